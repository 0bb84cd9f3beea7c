//go:build darwin

package reactor

import "golang.org/x/sys/unix"

// createWakeFD returns a non-blocking pipe pair. Darwin has no eventfd
// equivalent exposed portably, so the wakeup channel falls back to the
// classic self-pipe trick: write a byte to wake the poller, read (and
// discard) it from the loop thread.
func createWakeFD() (readFD int, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func writeWakeFD(fd int) error {
	var buf [1]byte
	buf[0] = 1
	_, err := unix.Write(fd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}
