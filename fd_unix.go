//go:build linux || darwin

package reactor

import "golang.org/x/sys/unix"

func closeFD(fd int) error {
	return unix.Close(fd)
}

// drainWakeFD reads and discards whatever is available on a wakeup fd
// (eventfd on Linux, the read end of a pipe on Darwin) so the poller does not
// immediately re-report it as readable.
func drainWakeFD(fd int) {
	var buf [512]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
		if n < len(buf) {
			return
		}
	}
}
