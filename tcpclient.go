package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// TcpClient manages a single outbound connection, reconnecting through its
// Connector according to the caller's retry policy (re-dialing after a lost
// connection is opt-in via EnableRetry, unlike TcpServer which always keeps
// listening).
type TcpClient struct {
	loop *EventLoop
	name string

	connector *Connector

	mu   sync.Mutex
	conn *TcpConnection

	retry   atomic.Bool
	connID  atomic.Uint64

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	highWaterMark         int
}

// NewTcpClient creates a client that will dial addr on loop when Connect is
// called.
func NewTcpClient(loop *EventLoop, name string, addr InetAddress, opts ...ConnectorOption) *TcpClient {
	ignoreSigpipe()
	c := &TcpClient{
		loop: loop,
		name: name,
	}
	c.connector = NewConnector(loop, addr, opts...)
	c.connector.NewConnectionCallback = c.newConnection
	return c
}

func (c *TcpClient) SetConnectionCallback(cb ConnectionCallback)       { c.connectionCallback = cb }
func (c *TcpClient) SetMessageCallback(cb MessageCallback)             { c.messageCallback = cb }
func (c *TcpClient) SetWriteCompleteCallback(cb WriteCompleteCallback) { c.writeCompleteCallback = cb }

// SetHighWaterMarkCallback installs cb, fired when the connection's output
// buffer rises from below thresholdBytes to at or above it, propagated to the TcpConnection once
// it is created.
func (c *TcpClient) SetHighWaterMarkCallback(cb HighWaterMarkCallback, thresholdBytes int) {
	c.highWaterMarkCallback = cb
	c.highWaterMark = thresholdBytes
}

// EnableRetry makes the client attempt to re-dial after the connection is
// lost, in addition to retrying failed initial connect attempts (which the
// underlying Connector always does).
func (c *TcpClient) EnableRetry() { c.retry.Store(true) }

// Connect starts the underlying Connector. Safe from any goroutine.
func (c *TcpClient) Connect() {
	c.connector.Start()
}

// Disconnect tears down the current connection (if any) and stops retrying.
func (c *TcpClient) Disconnect() {
	c.connector.Stop()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.ForceClose()
	}
}

// Connection returns the current TcpConnection, or nil if not connected.
func (c *TcpClient) Connection() *TcpConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *TcpClient) newConnection(fd int) {
	local, err := localAddressOf(fd)
	if err != nil {
		local = InetAddress{}
	}
	peer := c.connector.addr
	id := c.connID.Add(1)
	name := fmt.Sprintf("%s#%d", c.name, id)

	conn := newTcpConnection(c.loop, name, fd, local, peer)
	conn.SetConnectionCallback(c.connectionCallback)
	conn.SetMessageCallback(c.messageCallback)
	conn.SetWriteCompleteCallback(c.writeCompleteCallback)
	if c.highWaterMarkCallback != nil {
		conn.SetHighWaterMarkCallback(c.highWaterMarkCallback, c.highWaterMark)
	}
	conn.SetCloseCallback(c.removeConnection)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.connectEstablished()
}

func (c *TcpClient) removeConnection(conn *TcpConnection) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Loop().QueueInLoop(conn.connectDestroyed)

	if c.retry.Load() {
		c.connector.Start()
	}
}
