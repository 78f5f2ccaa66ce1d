package tcp

import (
	"sync"
	"testing"
	"time"

	"github.com/nanokernel/nanokernel/poll"
	"github.com/stretchr/testify/require"
)

func runReactorInBackground(t *testing.T, r *poll.Reactor) func() {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run()
	}()
	return func() {
		r.Stop()
		<-done
	}
}

type echoServerNotify struct {
	BaseListenNotify
	listening chan struct{}
}

func (n *echoServerNotify) Listening(l *Listener) { close(n.listening) }
func (n *echoServerNotify) Connected(l *Listener) ConnNotify {
	return &echoConnNotify{}
}

type echoConnNotify struct {
	BaseConnNotify
}

func (echoConnNotify) Received(c *Conn, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	c.Write(buf)
}

type capturingClientNotify struct {
	BaseConnNotify
	mu        sync.Mutex
	conn      *Conn
	connected chan struct{}
	received  chan []byte
}

func (n *capturingClientNotify) Connected(c *Conn) {
	n.mu.Lock()
	n.conn = c
	n.mu.Unlock()
	close(n.connected)
}

func (n *capturingClientNotify) Received(c *Conn, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	n.received <- buf
}

// TestEchoRoundTrip mirrors spec.md §8's "TCP echo" scenario: dial a
// listener, write a payload, and observe it echoed back unchanged.
func TestEchoRoundTrip(t *testing.T) {
	reactor, err := poll.New()
	require.NoError(t, err)
	defer reactor.Close()
	stop := runReactorInBackground(t, reactor)
	defer stop()

	serverNotify := &echoServerNotify{listening: make(chan struct{})}
	l, err := Listen(reactor, "127.0.0.1:18232", serverNotify)
	require.NoError(t, err)
	defer l.Close()

	select {
	case <-serverNotify.listening:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Listening")
	}

	cn := &capturingClientNotify{connected: make(chan struct{}), received: make(chan []byte, 1)}
	require.NoError(t, DialHost(reactor, "127.0.0.1", "18232", cn))

	select {
	case <-cn.connected:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting to connect")
	}

	cn.mu.Lock()
	conn := cn.conn
	cn.mu.Unlock()
	require.NotNil(t, conn)
	require.NoError(t, conn.Write([]byte("hello")))

	select {
	case got := <-cn.received:
		require.Equal(t, "hello", string(got))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

type failServerNotify struct {
	BaseListenNotify
	notListening chan error
}

func (n *failServerNotify) NotListening(err error)           { n.notListening <- err }
func (n *failServerNotify) Connected(l *Listener) ConnNotify { return BaseConnNotify{} }

func TestListenFailureReportsNotListening(t *testing.T) {
	reactor, err := poll.New()
	require.NoError(t, err)
	defer reactor.Close()

	n := &failServerNotify{notListening: make(chan error, 1)}
	_, err = Listen(reactor, "not-a-valid-address", n)
	require.Error(t, err)

	select {
	case reportedErr := <-n.notListening:
		require.Error(t, reportedErr)
	default:
		t.Fatal("expected NotListening to be invoked")
	}
}

type closeTrackingListenNotify struct {
	BaseListenNotify
	listening chan struct{}
	closedN   int
}

func (n *closeTrackingListenNotify) Listening(l *Listener) { close(n.listening) }
func (n *closeTrackingListenNotify) Closed(l *Listener)    { n.closedN++ }
func (n *closeTrackingListenNotify) Connected(l *Listener) ConnNotify {
	return BaseConnNotify{}
}

func TestCloseReportsClosedExactlyOnce(t *testing.T) {
	reactor, err := poll.New()
	require.NoError(t, err)
	defer reactor.Close()
	stop := runReactorInBackground(t, reactor)
	defer stop()

	n := &closeTrackingListenNotify{listening: make(chan struct{})}
	l, err := Listen(reactor, "127.0.0.1:18233", n)
	require.NoError(t, err)

	select {
	case <-n.listening:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Listening")
	}

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	require.Equal(t, 1, n.closedN)
}

type silentServerNotify struct {
	BaseListenNotify
	listening chan struct{}
}

func (n *silentServerNotify) Listening(l *Listener) { close(n.listening) }
func (n *silentServerNotify) Connected(l *Listener) ConnNotify {
	return BaseConnNotify{}
}

type backlogClientNotify struct {
	BaseConnNotify
	mu          sync.Mutex
	conn        *Conn
	connected   chan struct{}
	throttled   chan struct{}
	unthrottled chan struct{}
}

func (n *backlogClientNotify) Connected(c *Conn) {
	n.mu.Lock()
	n.conn = c
	n.mu.Unlock()
	close(n.connected)
}

func (n *backlogClientNotify) Throttled(c *Conn) {
	select {
	case n.throttled <- struct{}{}:
	default:
	}
}

func (n *backlogClientNotify) Unthrottled(c *Conn) {
	select {
	case n.unthrottled <- struct{}{}:
	default:
	}
}

// TestWriteBacklogThrottles mirrors original_source/tests/tcp.rs's
// test_blocked_write: a peer that never reads forces the writer's
// outbound ring past the throttle watermark.
func TestWriteBacklogThrottles(t *testing.T) {
	reactor, err := poll.New()
	require.NoError(t, err)
	defer reactor.Close()
	stop := runReactorInBackground(t, reactor)
	defer stop()

	sn := &silentServerNotify{listening: make(chan struct{})}
	l, err := Listen(reactor, "127.0.0.1:18234", sn)
	require.NoError(t, err)
	defer l.Close()

	select {
	case <-sn.listening:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Listening")
	}

	cn := &backlogClientNotify{
		connected:   make(chan struct{}),
		throttled:   make(chan struct{}, 1),
		unthrottled: make(chan struct{}, 1),
	}
	require.NoError(t, DialHost(reactor, "127.0.0.1", "18234", cn))

	select {
	case <-cn.connected:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting to connect")
	}

	cn.mu.Lock()
	conn := cn.conn
	cn.mu.Unlock()
	require.NotNil(t, conn)

	chunk := make([]byte, 16*1024)
	for i := 0; i < 32; i++ {
		require.NoError(t, conn.Write(chunk))
	}

	select {
	case <-cn.throttled:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Throttled")
	}
}

type countingClientNotify struct {
	BaseConnNotify
	mu        sync.Mutex
	conn      *Conn
	connected chan struct{}
	total     int
	done      chan struct{}
	target    int
}

func (n *countingClientNotify) Connected(c *Conn) {
	n.mu.Lock()
	n.conn = c
	n.mu.Unlock()
	close(n.connected)
}

func (n *countingClientNotify) Received(c *Conn, data []byte) {
	n.mu.Lock()
	n.total += len(data)
	reached := n.total >= n.target
	n.mu.Unlock()
	if reached {
		select {
		case <-n.done:
		default:
			close(n.done)
		}
	}
}

// TestTCPEchoScenario mirrors spec.md §8's "TCP echo" scenario: a client
// writes 10,000 chunks of 1,000 bytes each; the listener's Received
// observes all 10,000,000 bytes and loops every one of them back.
func TestTCPEchoScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large-volume TCP echo scenario in -short mode")
	}

	reactor, err := poll.New()
	require.NoError(t, err)
	defer reactor.Close()
	stop := runReactorInBackground(t, reactor)
	defer stop()

	serverNotify := &echoServerNotify{listening: make(chan struct{})}
	l, err := Listen(reactor, "127.0.0.1:18236", serverNotify)
	require.NoError(t, err)
	defer l.Close()

	select {
	case <-serverNotify.listening:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Listening")
	}

	const chunkCount = 10_000
	const chunkSize = 1_000
	const totalBytes = chunkCount * chunkSize

	cn := &countingClientNotify{
		connected: make(chan struct{}),
		done:      make(chan struct{}),
		target:    totalBytes,
	}
	require.NoError(t, DialHost(reactor, "127.0.0.1", "18236", cn))

	select {
	case <-cn.connected:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting to connect")
	}

	cn.mu.Lock()
	conn := cn.conn
	cn.mu.Unlock()
	require.NotNil(t, conn)

	chunk := make([]byte, chunkSize)
	for i := range chunk {
		chunk[i] = "hello"[i%5]
	}
	for i := 0; i < chunkCount; i++ {
		require.NoError(t, conn.Write(chunk))
	}

	select {
	case <-cn.done:
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for all bytes to echo back")
	}

	cn.mu.Lock()
	total := cn.total
	cn.mu.Unlock()
	require.GreaterOrEqual(t, total, totalBytes)
}
