package httpaio

import (
	"fmt"
	"strings"

	"github.com/nanokernel/nanokernel/internal/hack"
	"github.com/nanokernel/nanokernel/poll"
	"github.com/nanokernel/nanokernel/tcp"
)

// Method is the HTTP request method token recognized by Serve, per
// original_source/src/aio/http_server.rs's Method enum. Anything other
// than POST is treated as GET, matching the original's fallback.
type Method int

const (
	MethodGet Method = iota
	MethodPost
)

func (m Method) String() string {
	if m == MethodPost {
		return "POST"
	}
	return "GET"
}

func parseMethod(token string) Method {
	if token == "POST" {
		return MethodPost
	}
	return MethodGet
}

// Request is the method/path/query extracted from a single request line.
type Request struct {
	Method      Method
	Path        string
	QueryString string
}

// Handler answers each request with the HTML body to send back; the
// server always responds 200 OK with that body's length as
// Content-Length, per spec.md §4.8.
type Handler interface {
	Request(req Request) string
}

// Serve listens on addr and answers every request on every accepted
// connection with handler, treating each received chunk as one complete
// HTTP request (no chunked/pipelined request support, matching
// original_source/src/aio/http_server.rs).
func Serve(reactor *poll.Reactor, addr string, handler Handler) (*tcp.Listener, error) {
	return tcp.Listen(reactor, addr, &listenNotify{handler: handler})
}

type listenNotify struct {
	tcp.BaseListenNotify
	handler Handler
}

func (n *listenNotify) Connected(l *tcp.Listener) tcp.ConnNotify {
	return &serverConn{handler: n.handler}
}

type serverConn struct {
	tcp.BaseConnNotify
	handler Handler
}

func (s *serverConn) Received(conn *tcp.Conn, data []byte) {
	req := parseRequestLine(data)
	body := s.handler.Request(req)
	response := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Length: %d\r\nContent-Type: text/html\r\n\r\n%s",
		len(body), body,
	)
	conn.Write([]byte(response))
}

// parseRequestLine ports original_source/src/aio/http_server.rs's request
// parsing: take the first line, split on whitespace for method and
// target, then split the target on '?' for path and query string.
//
// data is the connection's read-chunk buffer and is reused once Received
// returns, so the zero-copy view from hack.ByteSliceToString must not
// escape parseRequestLine or serverConn.Received.
func parseRequestLine(data []byte) Request {
	text := hack.ByteSliceToString(data)
	firstLine := text
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		firstLine = text[:nl]
	}
	firstLine = strings.TrimRight(firstLine, "\r")

	fields := strings.Fields(firstLine)
	method := "GET"
	target := "/"
	if len(fields) > 0 {
		method = fields[0]
	}
	if len(fields) > 1 {
		target = fields[1]
	}

	path := target
	query := ""
	if q := strings.IndexByte(target, '?'); q >= 0 {
		path = target[:q]
		query = target[q+1:]
	}
	if path == "" {
		path = "/"
	}

	return Request{
		Method:      parseMethod(method),
		Path:        path,
		QueryString: query,
	}
}
