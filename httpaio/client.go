package httpaio

import (
	"fmt"
	"strconv"

	"github.com/nanokernel/nanokernel/internal/hack"
	"github.com/nanokernel/nanokernel/poll"
	"github.com/nanokernel/nanokernel/ringbuf"
	"github.com/nanokernel/nanokernel/tcp"
)

// ResponseHandler receives a completed response body or a failure, per
// spec.md §4.8's client contract.
type ResponseHandler interface {
	Response(body []byte)
	Error(err error)
}

// Get issues a GET request for uri against reactor, invoking handler once
// the response body is fully received (or on failure). Non-blocking: Get
// returns as soon as the connection attempt has been initiated.
func Get(reactor *poll.Reactor, uri string, handler ResponseHandler) error {
	return request(reactor, "GET", uri, handler)
}

// Post issues a POST request for uri. The request body itself is not part
// of spec.md §4.8's client contract (which only specifies the request
// line), so Post differs from Get only in the emitted method token.
func Post(reactor *poll.Reactor, uri string, handler ResponseHandler) error {
	return request(reactor, "POST", uri, handler)
}

func request(reactor *poll.Reactor, method, uri string, handler ResponseHandler) error {
	u, err := ParseURI(uri)
	if err != nil {
		return err
	}
	notify := &clientConn{
		method:  method,
		host:    u.Host,
		path:    requestTarget(u),
		handler: handler,
		buffer:  ringbuf.New(4096),
	}
	return tcp.DialHost(reactor, u.Host, strconv.Itoa(u.Port), notify)
}

func requestTarget(u URI) string {
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.Query != "" {
		path += "?" + u.Query
	}
	return path
}

// clientConn accumulates a response across Received callbacks until
// Content-Length bytes of body have arrived, mirroring
// original_source/src/aio/http.rs's Connection<HANDLER>.
type clientConn struct {
	tcp.BaseConnNotify

	method  string
	host    string
	path    string
	handler ResponseHandler

	buffer        *ringbuf.Ring
	contentLength int
	haveLength    bool
}

func (c *clientConn) Connected(conn *tcp.Conn) {
	line := fmt.Sprintf("%s %s HTTP/1.1\r\nHost: %s\r\n\r\n", c.method, c.path, c.host)
	// line is a freshly built string only read within this call (Write
	// either sends it synchronously or copies it into the outbound
	// backlog before returning), so the zero-copy view is safe.
	if err := conn.Write(hack.StringToByteSlice(line)); err != nil {
		c.handler.Error(err)
	}
}

func (c *clientConn) ConnectFailed(conn *tcp.Conn) {
	c.handler.Error(fmt.Errorf("httpaio: connect failed"))
}

func (c *clientConn) Received(conn *tcp.Conn, data []byte) {
	if c.buffer.Cap()-c.buffer.Len() < len(data) {
		c.buffer.Grow(c.buffer.Len() + len(data))
	}
	c.buffer.Extend(data)

	if !c.haveLength {
		length, ok := parseContentLength(c.buffer)
		if !ok {
			return // Might find it in the next chunk.
		}
		removeUntilBoundary(c.buffer)
		c.contentLength = length
		c.haveLength = true
	}

	if c.buffer.Len() >= c.contentLength {
		c.handler.Response(c.buffer.Drain())
		conn.Dispose()
	}
}

func (c *clientConn) Closed(conn *tcp.Conn) {
	c.buffer.Release()
}

// deque byte-comparison over a ringbuf.Ring, ported from
// original_source/src/aio/http.rs's deque_compare.
func ringCompare(r *ringbuf.Ring, start, length int, value []byte) bool {
	if len(value) < length {
		return false
	}
	for i := 0; i < length; i++ {
		b, ok := r.At(start + i)
		if !ok || b != value[i] {
			return false
		}
	}
	return true
}

// parseNum ports original_source/src/aio/http.rs's parse_num: digits are
// accumulated; once a non-zero result has been seen, anything other than a
// digit or a space is a parse failure.
func parseNum(r *ringbuf.Ring, start, length int) (int, bool) {
	result := 0
	for i := start; i < start+length; i++ {
		b, ok := r.At(i)
		if !ok {
			return 0, false
		}
		switch {
		case b >= '0' && b <= '9':
			result = result*10 + int(b-'0')
		case result != 0 && b != ' ':
			return 0, false
		}
	}
	return result, true
}

// parseContentLength ports original_source/src/aio/http.rs's
// parse_headers: scan line by line for a "Content-Length:" prefix.
func parseContentLength(r *ringbuf.Ring) (int, bool) {
	header := []byte("Content-Length:")
	start := 0
	for i := 0; i < r.Len(); i++ {
		b, _ := r.At(i)
		if b != '\n' {
			continue
		}
		if ringCompare(r, start, len(header), header) {
			end := start + len(header)
			return parseNum(r, end, i-1-end) // -1 drops the \r before the \n.
		}
		start = i + 1
	}
	return 0, false
}

// removeUntilBoundary ports original_source/src/aio/http.rs's
// remove_until_boundary: discard everything up to and including the first
// "\r\n\r\n".
func removeUntilBoundary(r *ringbuf.Ring) {
	boundary := []byte("\r\n\r\n")
	cut := r.Len() - 1
	for i := 0; i+4 <= r.Len(); i++ {
		if ringCompare(r, i, 4, boundary) {
			cut = i + 4
			break
		}
	}
	r.DropFront(cut)
}
