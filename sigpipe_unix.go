//go:build linux || darwin

package reactor

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

var ignoreSigpipeOnce sync.Once

// ignoreSigpipe makes write(2)/send(2) on a closed peer connection return
// EPIPE instead of terminating the process, which is Go's default behavior
// for unhandled SIGPIPE. It is called once from NewTcpServer/NewTcpClient/
// NewConnector so library users never have to remember to do it themselves.
func ignoreSigpipe() {
	ignoreSigpipeOnce.Do(func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, unix.SIGPIPE)
		go func() {
			for range c {
			}
		}()
	})
}
