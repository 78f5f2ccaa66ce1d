// Package tcp implements non-blocking listener and connection abstractions
// over poll.Reactor: user-supplied observers are notified of lifecycle
// events, and each connection maintains an outbound write backlog for
// back-pressure.
//
// See spec.md §4.7 and DESIGN.md's "tcp" entry. Grounded on
// original_source/src/async.rs's TcpListenNotify-driven accept loop and
// tests/tcp.rs's Listener/Server shape.
package tcp

import (
	"net"
	"sync/atomic"
	"syscall"

	"github.com/nanokernel/nanokernel/poll"
)

// Listener owns a non-blocking listening socket registered with a reactor.
type Listener struct {
	fd      int
	addr    string
	reactor *poll.Reactor
	notify  ListenNotify
	handle  int
	closed  atomic.Bool
}

// Listen binds and listens on addr ("host:port") and registers the
// resulting socket with reactor. On bind/listen failure, notify.NotListening
// is called before the error is returned; on success notify.Listening is
// called first.
func Listen(reactor *poll.Reactor, addr string, notify ListenNotify) (*Listener, error) {
	host, port, err := splitHostPort(addr)
	if err != nil {
		notify.NotListening(err)
		return nil, err
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := resolveAddrs(host)
		if err != nil || len(ips) == 0 {
			notify.NotListening(err)
			return nil, err
		}
		ip = ips[0].IP
	}

	family, sa := sockaddrFor(ip, port)
	fd, err := newNonblockingSocket(family)
	if err != nil {
		notify.NotListening(err)
		return nil, err
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		notify.NotListening(err)
		return nil, err
	}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Close(fd)
		notify.NotListening(err)
		return nil, err
	}
	if err := syscall.Listen(fd, 128); err != nil {
		syscall.Close(fd)
		notify.NotListening(err)
		return nil, err
	}

	l := &Listener{fd: fd, addr: addr, reactor: reactor, notify: notify}
	notify.Listening(l)

	handle, err := reactor.AddFD(fd, poll.Read, l.onReadable)
	if err != nil {
		syscall.Close(fd)
		notify.NotListening(err)
		return nil, err
	}
	l.handle = handle
	return l, nil
}

// Fd returns the listening socket's file descriptor.
func (l *Listener) Fd() int { return l.fd }

// Addr returns the address this listener was bound to.
func (l *Listener) Addr() string { return l.addr }

func (l *Listener) onReadable(ev poll.Event) poll.Action {
	if ev.Errored() || ev.HungUp() {
		l.reportClosed()
		return poll.Stop
	}

	for {
		connFd, _, err := syscall.Accept4(l.fd, syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC)
		if err != nil {
			if err == syscall.EAGAIN {
				return poll.Continue
			}
			l.reportClosed()
			return poll.Stop
		}

		connNotify := l.notify.Connected(l)
		c := newConn(l.reactor, connFd, connNotify)
		connNotify.Accepted(c)
		if err := c.manage(); err != nil {
			c.reportClosed()
		}
	}
}

func (l *Listener) reportClosed() {
	if l.closed.CompareAndSwap(false, true) {
		syscall.Close(l.fd)
		l.notify.Closed(l)
	}
}

// Close deregisters and closes the listening socket, reporting Closed
// exactly once.
func (l *Listener) Close() error {
	l.reactor.RemoveFD(l.handle)
	l.reportClosed()
	return nil
}
