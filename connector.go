package reactor

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

type connectorState int32

const (
	connDisconnected connectorState = iota
	connConnecting
	connConnected
)

// NewConnectionFunc is invoked on the owning loop once a non-blocking
// connect succeeds, with the connected fd.
type NewConnectionFunc func(fd int)

// Connector drives a non-blocking TCP connect to a single remote address,
// with exponential-backoff retry on transient failure. It does not own the
// resulting connection fd once connected: ownership passes to
// NewConnectionCallback, mirroring muduo's Connector/TcpClient split.
type Connector struct {
	loop *EventLoop
	addr InetAddress
	opts *connOptions

	state   atomic.Int32
	fd      int
	channel *Channel

	retryDelay time.Duration

	connect atomic.Bool // desired state: true == should be trying to connect

	NewConnectionCallback NewConnectionFunc
}

// NewConnector creates a Connector targeting addr. Start must be called to
// begin connecting.
func NewConnector(loop *EventLoop, addr InetAddress, opts ...ConnectorOption) *Connector {
	ignoreSigpipe()
	c := &Connector{
		loop: loop,
		addr: addr,
		opts: resolveConnectorOptions(opts),
	}
	c.retryDelay = c.opts.initialRetryDelay
	c.state.Store(int32(connDisconnected))
	return c
}

// log routes through the connector's own configured logger (set via
// WithLogger) if there is one, otherwise falls back to the owning loop's
// logger.
func (c *Connector) log(level LogLevel, category, msg string, err error) {
	if c.opts.logger != nil {
		logf(c.opts.logger, c.loop.id, level, category, msg, err)
		return
	}
	c.loop.log(level, category, msg, err)
}

// Start begins (or resumes) connecting. Safe to call from any goroutine.
func (c *Connector) Start() {
	c.connect.Store(true)
	c.loop.RunInLoop(c.startInLoop)
}

// Stop abandons any in-progress connection attempt and retry timer.
func (c *Connector) Stop() {
	c.connect.Store(false)
	c.loop.RunInLoop(func() {
		if connectorState(c.state.Load()) == connConnecting {
			c.state.Store(int32(connDisconnected))
			c.removeAndResetChannel()
			unix.Close(c.fd)
		}
	})
}

func (c *Connector) startInLoop() {
	c.loop.AssertInLoopThread()
	if !c.connect.Load() {
		return
	}
	c.connectAttempt()
}

func (c *Connector) connectAttempt() {
	domain := unix.AF_INET
	if c.addr.IsIPv6() {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		c.log(LevelError, "connect", "socket() failed", err)
		return
	}
	err = unix.Connect(fd, c.addr.ToSockaddr())
	switch err {
	case nil, unix.EINPROGRESS:
		c.connecting(fd)
	case unix.EAGAIN, unix.EADDRINUSE, unix.EADDRNOTAVAIL, unix.ECONNREFUSED, unix.ENETUNREACH, unix.EINTR:
		unix.Close(fd)
		c.retry()
	case unix.EISCONN:
		c.connecting(fd)
	case unix.EACCES, unix.EPERM, unix.EAFNOSUPPORT, unix.EALREADY, unix.EBADF, unix.EFAULT, unix.ENOTSOCK:
		c.log(LevelError, "connect", "hard connect error, giving up", fmt.Errorf("%w: %v", ErrConnectorGivenUp, err))
		unix.Close(fd)
	default:
		c.log(LevelError, "connect", "unexpected connect error, giving up", fmt.Errorf("%w: %v", ErrConnectorGivenUp, err))
		unix.Close(fd)
	}
}

func (c *Connector) connecting(fd int) {
	c.state.Store(int32(connConnecting))
	c.fd = fd
	c.channel = NewChannel(c.loop, fd)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetErrorCallback(c.handleError)
	c.channel.EnableWriting()
}

func (c *Connector) handleWrite() {
	if connectorState(c.state.Load()) != connConnecting {
		return
	}
	fd := c.fd
	c.removeAndResetChannel()

	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil || errno != 0 {
		unix.Close(fd)
		c.retry()
		return
	}
	if c.isSelfConnect(fd) {
		unix.Close(fd)
		c.retry()
		return
	}
	c.state.Store(int32(connConnected))
	c.retryDelay = c.opts.initialRetryDelay
	if c.NewConnectionCallback != nil {
		c.NewConnectionCallback(fd)
	} else {
		unix.Close(fd)
	}
}

func (c *Connector) handleError() {
	if connectorState(c.state.Load()) != connConnecting {
		return
	}
	fd := c.fd
	c.removeAndResetChannel()
	unix.Close(fd)
	c.retry()
}

// isSelfConnect detects the degenerate case where a non-blocking connect to
// a loopback port with no listener bound its ephemeral local port to the
// exact same address:port it dialed, connecting the socket to itself.
func (c *Connector) isSelfConnect(fd int) bool {
	local, err := unix.Getsockname(fd)
	if err != nil {
		return false
	}
	peer, err := unix.Getpeername(fd)
	if err != nil {
		return false
	}
	la, lerr := InetAddressFromSockaddr(local)
	pa, perr := InetAddressFromSockaddr(peer)
	if lerr != nil || perr != nil {
		return false
	}
	return la.Port() == pa.Port() && la.IP().Equal(pa.IP())
}

func (c *Connector) removeAndResetChannel() {
	if c.channel != nil {
		c.channel.DisableAll()
		c.channel.Remove()
		c.channel = nil
	}
}

func (c *Connector) retry() {
	c.state.Store(int32(connDisconnected))
	if !c.connect.Load() {
		return
	}
	delay := c.retryDelay
	c.log(LevelWarn, "connect", "connect failed, retrying after backoff", nil)
	c.loop.RunAfter(delay, func() {
		if c.connect.Load() {
			c.connectAttempt()
		}
	})
	c.retryDelay *= 2
	if c.retryDelay > c.opts.maxRetryDelay {
		c.retryDelay = c.opts.maxRetryDelay
	}
}
