// Package reactor implements a multi-threaded, non-blocking TCP networking
// library built around the reactor pattern: one EventLoop per goroutine,
// each multiplexing I/O readiness via epoll (Linux) or kqueue (Darwin/BSD),
// with an EventLoopThreadPool distributing accepted connections round-robin
// across a fixed set of loops.
//
// The object model follows the familiar split of Channel (one fd's interest
// and callbacks), TcpConnection (one established socket's buffers and state
// machine), Acceptor (a listening socket), Connector (a non-blocking dial
// with backoff retry), and TcpServer/TcpClient (the user-facing wiring of
// the above onto a thread pool).
//
// All methods on EventLoop-owned types other than the explicitly-documented
// thread-safe entry points (Send, Shutdown, ForceClose, Start, Stop, and the
// RunInLoop/QueueInLoop/RunAt family) must only be called from the loop's
// own goroutine; callers from other goroutines should go through
// EventLoop.RunInLoop or the thread-safe methods listed above.
package reactor
