//go:build linux

package reactor

import "golang.org/x/sys/unix"

// createWakeFD returns a single fd usable for both writing and reading a
// wakeup signal. On Linux this is an eventfd in non-blocking, semaphore-less
// mode: a write of any 8-byte value makes the fd readable, and a single read
// drains the accumulated counter in one syscall.
func createWakeFD() (readFD int, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func writeWakeFD(fd int) error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(fd, buf[:])
	if err == unix.EAGAIN {
		// Counter already non-zero; a pending wake is enough.
		return nil
	}
	return err
}
