package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// NewConnectionCallback is invoked on the owning EventLoop's goroutine for
// every accepted connection, with the accepted fd and the peer's address.
type NewConnectionCallback func(fd int, peer InetAddress)

// Acceptor listens on a bound address and accepts incoming connections,
// dispatching each to a NewConnectionCallback. It runs entirely on the
// EventLoop it is constructed with; TcpServer is responsible for handing the
// accepted fd off to a different loop from the pool.
type Acceptor struct {
	loop    *EventLoop
	listenFD int
	channel *Channel

	// idleFD is a pre-opened, otherwise-unused fd held in reserve so that
	// when Accept4 fails with EMFILE (the process is out of file
	// descriptors), the acceptor can close idleFD to free one up, accept
	// and immediately drop the new connection, then reopen idleFD — this
	// prevents a busy-loop of repeated readable-but-unacceptable epoll
	// wakeups that would otherwise spin the loop at 100% CPU.
	idleFD int

	listening bool

	logger Logger

	NewConnectionCallback NewConnectionCallback
}

// NewAcceptor creates a listening socket bound to addr. reusePort enables
// SO_REUSEPORT so multiple Acceptors (typically one per loop) can share the
// same listen address.
func NewAcceptor(loop *EventLoop, addr InetAddress, reusePort bool) (*Acceptor, error) {
	domain := unix.AF_INET
	if addr.IsIPv6() {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if reusePort {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	if err := unix.Bind(fd, addr.ToSockaddr()); err != nil {
		unix.Close(fd)
		return nil, err
	}

	idleFD, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	a := &Acceptor{loop: loop, listenFD: fd, idleFD: idleFD}
	a.channel = NewChannel(loop, fd)
	a.channel.SetReadCallback(a.handleRead)
	return a, nil
}

// Listen marks the socket as listening and starts watching it for incoming
// connections. Must be called on the owning loop's goroutine.
func (a *Acceptor) Listen() error {
	const backlog = 1024
	if err := unix.Listen(a.listenFD, backlog); err != nil {
		return err
	}
	a.listening = true
	a.channel.EnableReading()
	return nil
}

func (a *Acceptor) handleRead(_ time.Time) {
	connFD, sa, err := unix.Accept4(a.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		switch err {
		case unix.EMFILE, unix.ENFILE:
			a.handleFDExhaustion()
		case unix.EAGAIN, unix.ECONNABORTED, unix.EINTR:
			// Transient; nothing to do until the next readable event.
		default:
			a.log(LevelError, "accept", "accept4 failed", err)
		}
		return
	}
	peer, err := InetAddressFromSockaddr(sa)
	if err != nil {
		unix.Close(connFD)
		return
	}
	if a.NewConnectionCallback != nil {
		a.NewConnectionCallback(connFD, peer)
	} else {
		unix.Close(connFD)
	}
}

func (a *Acceptor) handleFDExhaustion() {
	unix.Close(a.idleFD)
	fd, _, err := unix.Accept4(a.listenFD, 0)
	if err == nil {
		unix.Close(fd)
	}
	idleFD, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err == nil {
		a.idleFD = idleFD
	}
	a.log(LevelWarn, "accept", "file descriptor limit reached, dropped one connection", nil)
}

// log routes through the acceptor's own configured logger (set by TcpServer
// from its WithLogger option) if there is one, otherwise falls back to the
// owning loop's logger.
func (a *Acceptor) log(level LogLevel, category, msg string, err error) {
	if a.logger != nil {
		logf(a.logger, a.loop.id, level, category, msg, err)
		return
	}
	a.loop.log(level, category, msg, err)
}

// Close stops accepting and releases the listening and reserve fds.
func (a *Acceptor) Close() {
	a.channel.DisableAll()
	a.channel.Remove()
	unix.Close(a.listenFD)
	unix.Close(a.idleFD)
}
