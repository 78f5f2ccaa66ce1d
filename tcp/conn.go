package tcp

import (
	"sync/atomic"
	"syscall"

	"github.com/nanokernel/nanokernel/internal/bufpool"
	"github.com/nanokernel/nanokernel/poll"
)

const (
	readChunkSize    = 4096
	throttleWatermark = 64 * 1024
)

// Conn is a non-blocking TCP connection: a file descriptor, an outbound
// write backlog, and a disposed bit, per spec.md §3's "TCP connection"
// data model entry.
type Conn struct {
	fd      int
	reactor *poll.Reactor
	notify  ConnNotify
	handle  int

	outbound  *outboundRing
	throttled bool

	disposed atomic.Bool
	closed   atomic.Bool
}

func newConn(reactor *poll.Reactor, fd int, notify ConnNotify) *Conn {
	return &Conn{
		fd:       fd,
		reactor:  reactor,
		notify:   notify,
		outbound: newOutboundRing(4),
	}
}

// Fd returns the connection's file descriptor.
func (c *Conn) Fd() int { return c.fd }

// manage registers the connection for ReadWrite readiness and notifies the
// observer it is connected.
func (c *Conn) manage() error {
	handle, err := c.reactor.AddFD(c.fd, poll.ReadWrite, c.onEvent)
	if err != nil {
		return err
	}
	c.handle = handle
	c.notify.Connected(c)
	return nil
}

func (c *Conn) onEvent(ev poll.Event) poll.Action {
	if ev.Errored() || ev.HungUp() {
		c.reportClosed()
		return poll.Stop
	}

	if ev.Readable() {
		if stop := c.drainReadable(); stop {
			return poll.Stop
		}
	}

	if ev.Writable() {
		c.drainOutbound()
		if c.disposed.Load() && c.outbound.isEmpty() {
			c.reportClosed()
			return poll.Stop
		}
	}

	return poll.Continue
}

// drainReadable reads until would-block, notifying Received for each
// non-empty chunk; it reports true if the connection should stop (peer
// shutdown, fatal error, or the observer disposed it mid-drain).
func (c *Conn) drainReadable() bool {
	buf := bufpool.Get(readChunkSize)
	defer bufpool.Put(buf)

	for {
		n, err := syscall.Read(c.fd, buf)
		if n > 0 {
			c.notify.Received(c, buf[:n])
			if c.disposed.Load() {
				c.reportClosed()
				return true
			}
		}
		if err != nil {
			if err == syscall.EAGAIN {
				return false
			}
			c.reportClosed()
			return true
		}
		if n == 0 {
			// Peer shut down its write side.
			c.reportClosed()
			return true
		}
	}
}

// Write sends data, attempting a synchronous write first; any unwritten
// remainder is queued on the outbound backlog for the next Write
// readiness. Safe to call repeatedly even while the backlog is non-empty.
func (c *Conn) Write(data []byte) error {
	if c.outbound.isEmpty() {
		n, err := syscall.Write(c.fd, data)
		if err != nil && err != syscall.EAGAIN {
			return err
		}
		if n < 0 {
			n = 0
		}
		if n < len(data) {
			remainder := make([]byte, len(data)-n)
			copy(remainder, data[n:])
			c.enqueue(remainder)
		}
		return nil
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.enqueue(buf)
	return nil
}

func (c *Conn) enqueue(buf []byte) {
	c.outbound.pushBack(buf)
	if !c.throttled && c.outbound.byteLen() >= throttleWatermark {
		c.throttled = true
		c.notify.Throttled(c)
	}
}

func (c *Conn) drainOutbound() {
	for {
		item := c.outbound.front()
		if item == nil {
			break
		}
		n, err := syscall.Write(c.fd, item.buf[item.cursor:])
		if n > 0 {
			item.cursor += n
		}
		if item.cursor >= len(item.buf) {
			c.outbound.popFront()
		}
		if err != nil {
			if err == syscall.EAGAIN {
				break
			}
			c.reportClosed()
			return
		}
		if n == 0 {
			break
		}
	}

	if c.throttled && c.outbound.byteLen() < throttleWatermark {
		c.throttled = false
		c.notify.Unthrottled(c)
	}
}

// Dispose marks the connection for closing at the next callback boundary.
func (c *Conn) Dispose() {
	c.disposed.Store(true)
}

func (c *Conn) reportClosed() {
	if c.closed.CompareAndSwap(false, true) {
		syscall.Close(c.fd)
		c.notify.Closed(c)
	}
}
