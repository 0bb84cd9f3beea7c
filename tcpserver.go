package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// TcpServer accepts connections on a listening address and distributes them
// across an EventLoopThreadPool, invoking the installed callbacks on
// whichever loop owns each connection.
type TcpServer struct {
	baseLoop *EventLoop
	name     string
	addr     InetAddress
	opts     *serverOptions

	acceptor *Acceptor
	pool     *EventLoopThreadPool

	mu          sync.Mutex
	connections map[string]*TcpConnection
	nextConnID  atomic.Uint64

	started atomic.Bool

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	highWaterMark         int
}

// NewTcpServer creates a server bound to addr on baseLoop. Call SetThreadPool
// before Start to fan connections out across multiple loops; otherwise every
// connection is handled on baseLoop.
func NewTcpServer(baseLoop *EventLoop, name string, addr InetAddress, opts ...ServerOption) (*TcpServer, error) {
	ignoreSigpipe()
	cfg := resolveServerOptions(opts)
	acceptor, err := NewAcceptor(baseLoop, addr, cfg.reusePort)
	if err != nil {
		return nil, err
	}
	acceptor.logger = cfg.logger
	s := &TcpServer{
		baseLoop:    baseLoop,
		name:        name,
		addr:        addr,
		opts:        cfg,
		acceptor:    acceptor,
		connections: make(map[string]*TcpConnection),
	}
	acceptor.NewConnectionCallback = s.newConnection
	return s, nil
}

// SetThreadPool installs the pool used to select a loop for each accepted
// connection. Must be called before Start.
func (s *TcpServer) SetThreadPool(pool *EventLoopThreadPool) {
	s.pool = pool
}

func (s *TcpServer) SetConnectionCallback(cb ConnectionCallback)       { s.connectionCallback = cb }
func (s *TcpServer) SetMessageCallback(cb MessageCallback)             { s.messageCallback = cb }
func (s *TcpServer) SetWriteCompleteCallback(cb WriteCompleteCallback) { s.writeCompleteCallback = cb }

// SetHighWaterMarkCallback installs cb, fired when a connection's output
// buffer rises from below thresholdBytes to at or above it, propagated to every TcpConnection
// accepted from this point on.
func (s *TcpServer) SetHighWaterMarkCallback(cb HighWaterMarkCallback, thresholdBytes int) {
	s.highWaterMarkCallback = cb
	s.highWaterMark = thresholdBytes
}

// Start begins listening and accepting. It is idempotent: calling it more
// than once returns ErrServerAlreadyStarted.
func (s *TcpServer) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerAlreadyStarted
	}
	if s.pool != nil {
		s.pool.Start(nil)
	}
	done := make(chan error, 1)
	s.baseLoop.RunInLoop(func() {
		done <- s.acceptor.Listen()
	})
	return <-done
}

func (s *TcpServer) newConnection(fd int, peer InetAddress) {
	loop := s.baseLoop
	if s.pool != nil {
		loop = s.pool.GetNextLoop()
	}
	connID := s.nextConnID.Add(1)
	name := fmt.Sprintf("%s-%s#%d", s.name, s.addr, connID)

	local, err := localAddressOf(fd)
	if err != nil {
		local = s.addr
	}

	loop.RunInLoop(func() {
		conn := newTcpConnection(loop, name, fd, local, peer)
		conn.SetConnectionCallback(s.connectionCallback)
		conn.SetMessageCallback(s.messageCallback)
		conn.SetWriteCompleteCallback(s.writeCompleteCallback)
		if s.highWaterMarkCallback != nil {
			conn.SetHighWaterMarkCallback(s.highWaterMarkCallback, s.highWaterMark)
		}
		conn.SetCloseCallback(s.removeConnection)

		s.mu.Lock()
		s.connections[name] = conn
		s.mu.Unlock()

		conn.connectEstablished()
	})
}

func (s *TcpServer) removeConnection(conn *TcpConnection) {
	s.mu.Lock()
	delete(s.connections, conn.Name())
	s.mu.Unlock()
	conn.Loop().QueueInLoop(conn.connectDestroyed)
}

// Stop stops accepting new connections and force-closes every existing one,
// then stops the thread pool. It does not stop baseLoop itself.
func (s *TcpServer) Stop() {
	done := make(chan struct{})
	s.baseLoop.RunInLoop(func() {
		s.acceptor.Close()
		close(done)
	})
	<-done

	s.mu.Lock()
	conns := make([]*TcpConnection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.ForceClose()
	}

	if s.pool != nil {
		s.pool.Stop()
	}
}

// ConnectionCount returns the number of currently tracked connections.
func (s *TcpServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}
