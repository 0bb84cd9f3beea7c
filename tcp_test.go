package reactor

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTcpServerClient_EchoRoundTrip(t *testing.T) {
	serverLoop, err := NewEventLoop()
	require.NoError(t, err)
	startLoop(t, serverLoop)

	clientLoop, err := NewEventLoop()
	require.NoError(t, err)
	startLoop(t, clientLoop)

	addr, err := NewInetAddress("127.0.0.1", 0)
	require.NoError(t, err)

	// Bind to an ephemeral port by letting the kernel choose: retry with
	// port 0 semantics aren't available pre-bind, so tests pick a high,
	// likely-free fixed port instead.
	addr.port = 18732

	server, err := NewTcpServer(serverLoop, "echo", addr)
	require.NoError(t, err)
	server.SetMessageCallback(func(conn *TcpConnection, buf *Buffer, _ time.Time) {
		conn.Send(buf.RetrieveAsBytes())
	})
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)

	client := NewTcpClient(clientLoop, "echo-client", addr)
	received := make(chan string, 1)
	connected := make(chan struct{}, 1)
	client.SetConnectionCallback(func(conn *TcpConnection) {
		if conn.Connected() {
			connected <- struct{}{}
		}
	})
	client.SetMessageCallback(func(conn *TcpConnection, buf *Buffer, _ time.Time) {
		received <- buf.RetrieveString()
	})
	client.Connect()
	t.Cleanup(client.Disconnect)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	client.Connection().Send([]byte("ping"))

	select {
	case msg := <-received:
		assert.Equal(t, "ping", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("never received echo")
	}
}

// TestTcpServer_IdleConnectionTimesOut exercises S3: a server built atop the
// core primitives (per-connection Context plus a periodic loop timer
// scanning for staleness) closes connections that stay silent past an
// idle threshold, and the peer observes a clean EOF.
func TestTcpServer_IdleConnectionTimesOut(t *testing.T) {
	const idleThreshold = 150 * time.Millisecond

	loop, err := NewEventLoop()
	require.NoError(t, err)
	startLoop(t, loop)

	addr, err := NewInetAddress("127.0.0.1", 0)
	require.NoError(t, err)
	addr.port = 18744

	server, err := NewTcpServer(loop, "idle", addr)
	require.NoError(t, err)
	server.SetConnectionCallback(func(conn *TcpConnection) {
		if conn.Connected() {
			now := time.Now()
			conn.SetContext(&now)
		}
	})
	server.SetMessageCallback(func(conn *TcpConnection, buf *Buffer, _ time.Time) {
		now := time.Now()
		conn.SetContext(&now)
		buf.RetrieveAll()
	})
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)

	timerID := loop.RunEvery(20*time.Millisecond, func() {
		server.mu.Lock()
		conns := make([]*TcpConnection, 0, len(server.connections))
		for _, conn := range server.connections {
			conns = append(conns, conn)
		}
		server.mu.Unlock()
		for _, conn := range conns {
			last, ok := conn.Context().(*time.Time)
			if ok && time.Since(*last) > idleThreshold {
				conn.ForceClose()
			}
		}
	})
	t.Cleanup(func() { loop.CancelTimer(timerID) })

	rawConn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	require.NoError(t, err)
	defer rawConn.Close()

	require.NoError(t, rawConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	n, err := rawConn.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTcpServer_TracksConnectionCount(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	startLoop(t, loop)

	addr, err := NewInetAddress("127.0.0.1", 0)
	require.NoError(t, err)
	addr.port = 18733

	server, err := NewTcpServer(loop, "count", addr)
	require.NoError(t, err)

	var established atomic.Int32
	var mu sync.Mutex
	server.SetConnectionCallback(func(conn *TcpConnection) {
		mu.Lock()
		defer mu.Unlock()
		if conn.Connected() {
			established.Add(1)
		}
	})
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)

	client := NewTcpClient(loop, "count-client", addr)
	client.Connect()
	t.Cleanup(client.Disconnect)

	require.Eventually(t, func() bool {
		return established.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return server.ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
