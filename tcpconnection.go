package reactor

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

type connState int32

const (
	stateConnecting connState = iota
	stateConnected
	stateDisconnecting
	stateDisconnected
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateDisconnecting:
		return "disconnecting"
	case stateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectionCallback is invoked on connection establishment and, a second
// time, immediately before teardown (Connected() distinguishes the two).
type ConnectionCallback func(conn *TcpConnection)

// MessageCallback is invoked whenever bytes are read from the peer; data
// already consumed by earlier calls has been retrieved from buf. receiveTime
// is the Poller's timestamp for the read that triggered this call.
type MessageCallback func(conn *TcpConnection, buf *Buffer, receiveTime time.Time)

// WriteCompleteCallback is invoked, via the loop's pending-task queue, each
// time sent data has been fully handed to the kernel: either when a Send
// wrote everything synchronously, or when the output buffer later drained.
type WriteCompleteCallback func(conn *TcpConnection)

// HighWaterMarkCallback is invoked when OutputBuffer().ReadableBytes() rises
// from below the configured threshold to at or above it, so the application can apply
// backpressure (stop reading from some other source) until it fires again
// after draining below the threshold... call sites decide that policy; this
// library only reports the crossing.
type HighWaterMarkCallback func(conn *TcpConnection, bytesQueued int)

// CloseCallback is an internal hook TcpServer/TcpClient use to learn when a
// connection has fully torn down, so they can remove it from their
// bookkeeping. Application code uses ConnectionCallback instead.
type CloseCallback func(conn *TcpConnection)

// TcpConnection represents one established socket, all methods other than
// Send/Shutdown/ForceClose/ForceCloseWithDelay/StartRead/StopRead (which are
// safe from any goroutine) must be called from the owning EventLoop's
// goroutine.
type TcpConnection struct {
	loop *EventLoop
	name string
	fd   int

	state atomic.Int32

	channel *Channel
	local   InetAddress
	peer    InetAddress

	inputBuffer  *Buffer
	outputBuffer *Buffer

	highWaterMark int
	reading       bool

	connectionCallback     ConnectionCallback
	messageCallback        MessageCallback
	writeCompleteCallback  WriteCompleteCallback
	highWaterMarkCallback  HighWaterMarkCallback
	closeCallback          CloseCallback

	context any
}

// newTcpConnection wraps an already-connected, non-blocking fd. Ownership of
// fd passes to the TcpConnection.
func newTcpConnection(loop *EventLoop, name string, fd int, local, peer InetAddress) *TcpConnection {
	c := &TcpConnection{
		loop:         loop,
		name:         name,
		fd:           fd,
		local:        local,
		peer:         peer,
		inputBuffer:  NewBuffer(),
		outputBuffer: NewBuffer(),
		reading:      true,
	}
	c.state.Store(int32(stateConnecting))

	c.SetTcpNoDelay(true)

	c.channel = NewChannel(loop, fd)
	c.channel.Tie(c.isAlive)
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)
	return c
}

func (c *TcpConnection) isAlive() bool {
	return connState(c.state.Load()) != stateDisconnected
}

func (c *TcpConnection) Name() string        { return c.name }
func (c *TcpConnection) LocalAddress() InetAddress { return c.local }
func (c *TcpConnection) PeerAddress() InetAddress  { return c.peer }
func (c *TcpConnection) Loop() *EventLoop     { return c.loop }

// Connected reports whether the connection is in the connected state
// (neither still connecting, draining, nor already closed).
func (c *TcpConnection) Connected() bool {
	return connState(c.state.Load()) == stateConnected
}

func (c *TcpConnection) SetContext(ctx any)  { c.context = ctx }
func (c *TcpConnection) Context() any        { return c.context }

func (c *TcpConnection) SetConnectionCallback(cb ConnectionCallback)         { c.connectionCallback = cb }
func (c *TcpConnection) SetMessageCallback(cb MessageCallback)               { c.messageCallback = cb }
func (c *TcpConnection) SetWriteCompleteCallback(cb WriteCompleteCallback)   { c.writeCompleteCallback = cb }
func (c *TcpConnection) SetCloseCallback(cb CloseCallback)                   { c.closeCallback = cb }

// SetHighWaterMarkCallback installs cb, fired when the output buffer grows
// from below thresholdBytes to at or above it.
func (c *TcpConnection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, thresholdBytes int) {
	c.highWaterMarkCallback = cb
	c.highWaterMark = thresholdBytes
}

func (c *TcpConnection) InputBuffer() *Buffer  { return c.inputBuffer }
func (c *TcpConnection) OutputBuffer() *Buffer { return c.outputBuffer }

// SetTcpNoDelay toggles TCP_NODELAY (Nagle's algorithm) on the underlying
// socket. Connections enable it by default.
func (c *TcpConnection) SetTcpNoDelay(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(c.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
}

// connectEstablished transitions the connection to stateConnected, enables
// read interest and fires the connection callback. Called exactly once by
// TcpServer/TcpClient after construction, on the owning loop.
func (c *TcpConnection) connectEstablished() {
	c.loop.AssertInLoopThread()
	c.state.Store(int32(stateConnected))
	c.channel.EnableReading()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// connectDestroyed performs final teardown bookkeeping: it removes the
// channel from the loop and closes the socket. Called exactly once, queued
// on the owning loop by the TcpServer/TcpClient close callback that
// handleClose invokes.
func (c *TcpConnection) connectDestroyed() {
	c.loop.AssertInLoopThread()
	if connState(c.state.Load()) == stateConnected {
		c.state.Store(int32(stateDisconnected))
		c.channel.DisableAll()
		if c.connectionCallback != nil {
			c.connectionCallback(c)
		}
	}
	c.channel.Remove()
	unix.Close(c.fd)
}

func (c *TcpConnection) handleRead(receiveTime time.Time) {
	n, err := c.inputBuffer.ReadFD(c.fd)
	switch {
	case n > 0:
		if c.messageCallback != nil {
			c.messageCallback(c, c.inputBuffer, receiveTime)
		}
	case n == 0:
		c.handleClose()
	default:
		if err == unix.EAGAIN {
			return
		}
		c.loop.log(LevelWarn, "conn", "read error", err)
		c.handleError()
	}
}

func (c *TcpConnection) handleWrite() {
	if !c.channel.IsWriting() {
		return
	}
	n, err := unix.Write(c.fd, c.outputBuffer.Peek())
	if err != nil {
		if err != unix.EAGAIN {
			c.loop.log(LevelWarn, "conn", "write error", err)
		}
		return
	}
	c.outputBuffer.Retrieve(n)
	if c.outputBuffer.ReadableBytes() == 0 {
		c.channel.DisableWriting()
		if c.writeCompleteCallback != nil {
			cb := c.writeCompleteCallback
			c.loop.QueueInLoop(func() { cb(c) })
		}
		if connState(c.state.Load()) == stateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

func (c *TcpConnection) handleClose() {
	st := connState(c.state.Load())
	if st == stateDisconnected {
		return
	}
	c.state.Store(int32(stateDisconnected))
	c.channel.DisableAll()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

func (c *TcpConnection) handleError() {
	errno, _ := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	c.loop.log(LevelWarn, "conn", "socket error", unix.Errno(errno))
}

// Send queues data for writing. If the output buffer is currently empty and
// the socket is writable, it attempts a synchronous write first so small
// messages on an idle connection avoid the extra poller round-trip; any
// remainder (or the whole message, if the socket is not currently writable)
// is appended to the output buffer and EventLoop write interest is enabled.
// Safe to call from any goroutine.
func (c *TcpConnection) Send(data []byte) {
	if c.loop.IsInLoopThread() {
		c.sendInLoop(data)
		return
	}
	buf := append([]byte(nil), data...)
	c.loop.QueueInLoop(func() { c.sendInLoop(buf) })
}

func (c *TcpConnection) sendInLoop(data []byte) {
	if connState(c.state.Load()) == stateDisconnected {
		c.loop.log(LevelWarn, "conn", "send on closed connection, dropped", ErrConnectionClosed)
		return
	}
	remaining := data
	if !c.channel.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := unix.Write(c.fd, data)
		if err != nil {
			if err != unix.EAGAIN {
				c.loop.log(LevelWarn, "conn", "write error", err)
				return
			}
			n = 0
		}
		remaining = data[n:]
		if len(remaining) == 0 {
			if c.writeCompleteCallback != nil {
				cb := c.writeCompleteCallback
				c.loop.QueueInLoop(func() { cb(c) })
			}
			return
		}
	}

	oldLen := c.outputBuffer.ReadableBytes()
	c.outputBuffer.Append(remaining)
	queued := c.outputBuffer.ReadableBytes()
	if c.highWaterMarkCallback != nil && c.highWaterMark > 0 &&
		queued >= c.highWaterMark && oldLen < c.highWaterMark {
		cb := c.highWaterMarkCallback
		c.loop.QueueInLoop(func() { cb(c, queued) })
	}
	if !c.channel.IsWriting() {
		c.channel.EnableWriting()
	}
}

// Shutdown half-closes the connection for writing once any queued output
// has drained, without discarding unread input. Safe from any goroutine.
func (c *TcpConnection) Shutdown() {
	c.loop.RunInLoop(func() {
		if connState(c.state.Load()) == stateConnected {
			c.state.Store(int32(stateDisconnecting))
			c.shutdownInLoop()
		}
	})
}

func (c *TcpConnection) shutdownInLoop() {
	if !c.channel.IsWriting() {
		unix.Shutdown(c.fd, unix.SHUT_WR)
	}
}

// ForceClose tears the connection down immediately, discarding any queued
// output. Safe from any goroutine.
func (c *TcpConnection) ForceClose() {
	c.loop.RunInLoop(func() {
		st := connState(c.state.Load())
		if st == stateConnected || st == stateDisconnecting {
			c.handleClose()
		}
	})
}

// ForceCloseWithDelay behaves like ForceClose but waits d before tearing the
// connection down, giving any in-flight output a chance to drain. It is a
// no-op if the connection has already reached stateDisconnected by the time
// the delay elapses. Safe from any goroutine.
func (c *TcpConnection) ForceCloseWithDelay(d time.Duration) {
	c.loop.RunAfter(d, func() {
		if connState(c.state.Load()) != stateDisconnected {
			c.handleClose()
		}
	})
}

// StartRead re-enables read interest after StopRead, from any goroutine.
func (c *TcpConnection) StartRead() {
	c.loop.RunInLoop(func() {
		if !c.reading {
			c.channel.EnableReading()
			c.reading = true
		}
	})
}

// StopRead disables read interest without closing the connection, from any
// goroutine; queued output continues to drain.
func (c *TcpConnection) StopRead() {
	c.loop.RunInLoop(func() {
		if c.reading {
			c.channel.DisableReading()
			c.reading = false
		}
	})
}

func (c *TcpConnection) IsReading() bool { return c.reading }
