package httpaio

import (
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

type echoPathHandler struct{}

func (echoPathHandler) Request(req Request) string {
	return "path=" + req.Path
}

type capturingResponseHandler struct {
	response chan []byte
	errs     chan error
}

func (h *capturingResponseHandler) Response(body []byte) { h.response <- body }
func (h *capturingResponseHandler) Error(err error)       { h.errs <- err }

// TestHTTPRoundTrip mirrors spec.md §8's "HTTP round-trip" scenario: a
// Serve handler answering with the request path, fetched via Get over a
// real loopback connection.
func TestHTTPRoundTrip(t *testing.T) {
	reactor, err := poll.New()
	require.NoError(t, err)
	defer reactor.Close()
	stop := runReactorInBackground(t, reactor)
	defer stop()

	l, err := Serve(reactor, "127.0.0.1:18321", echoPathHandler{})
	require.NoError(t, err)
	defer l.Close()

	h := &capturingResponseHandler{response: make(chan []byte, 1), errs: make(chan error, 1)}
	require.NoError(t, Get(reactor, "http://127.0.0.1:18321/hello", h))

	select {
	case body := <-h.response:
		require.Equal(t, "path=/hello", string(body))
	case err := <-h.errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}
}

type pageQueryMethodHandler struct{}

func (pageQueryMethodHandler) Request(req Request) string {
	return "You're on page " + req.Path + " and you queried " + req.QueryString + " via " + req.Method.String()
}

// TestHTTPRoundTripMatchesOriginalScenario ports
// original_source/tests/http_serve.rs's test_http_client_server
// literally: GET the server's root and expect its exact response text.
func TestHTTPRoundTripMatchesOriginalScenario(t *testing.T) {
	reactor, err := poll.New()
	require.NoError(t, err)
	defer reactor.Close()
	stop := runReactorInBackground(t, reactor)
	defer stop()

	l, err := Serve(reactor, "127.0.0.1:18322", pageQueryMethodHandler{})
	require.NoError(t, err)
	defer l.Close()

	h := &capturingResponseHandler{response: make(chan []byte, 1), errs: make(chan error, 1)}
	require.NoError(t, Get(reactor, "http://127.0.0.1:18322", h))

	select {
	case body := <-h.response:
		require.Equal(t, "You're on page / and you queried  via GET", string(body))
	case err := <-h.errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}
}
