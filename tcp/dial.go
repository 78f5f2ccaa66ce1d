package tcp

import (
	"errors"
	"net"
	"syscall"

	"github.com/nanokernel/nanokernel/poll"
)

// ErrNoAddresses is returned when host resolves to no candidates.
var ErrNoAddresses = errors.New("tcp: host resolved to no addresses")

// DialHost resolves host and walks the resulting address candidates,
// attempting a non-blocking connect to each in turn until one succeeds or
// all are exhausted. It must be called from the same goroutine that drives
// reactor's Run/Iterate loop, since reactor registration is not itself
// safe for concurrent use (spec.md §5: "the reactor is exclusively used
// from one thread; only its wakeup is safe from other threads").
//
// Ported from original_source/src/net.rs's connect_to_host, whose retry
// across AddrInfoIter was expressed as an actor sending itself a
// TryingConnectionToHost message (Rust's closure ownership rules forced
// that indirection); Go's closures have no such constraint, so the retry
// here is a direct recursive call instead of a round-trip through the
// actor runtime.
func DialHost(reactor *poll.Reactor, host, port string, notify ConnNotify) error {
	portNum, err := splitPort(port)
	if err != nil {
		return err
	}
	addrs, err := resolveAddrs(host)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return ErrNoAddresses
	}
	tryCandidate(reactor, addrs, 0, portNum, notify)
	return nil
}

func splitPort(port string) (int, error) {
	_, p, err := splitHostPort("0.0.0.0:" + port)
	return p, err
}

func tryCandidate(reactor *poll.Reactor, addrs []net.IPAddr, index int, port int, notify ConnNotify) {
	if index >= len(addrs) {
		notify.ConnectFailed(nil)
		return
	}

	family, sa := sockaddrFor(addrs[index].IP, port)
	fd, err := newNonblockingSocket(family)
	if err != nil {
		tryCandidate(reactor, addrs, index+1, port, notify)
		return
	}

	c := newConn(reactor, fd, notify)
	notify.Connecting(c, index+1)

	err = syscall.Connect(fd, sa)
	switch {
	case err == nil:
		if mErr := c.manage(); mErr != nil {
			c.reportClosed()
		}
	case err == syscall.EINPROGRESS:
		res, regErr := reactor.TryAddFDOneshot(fd, poll.Write)
		if regErr != nil {
			syscall.Close(fd)
			tryCandidate(reactor, addrs, index+1, port, notify)
			return
		}
		res.SetCallback(func(ev poll.Event) poll.Action {
			sockErr, gerr := syscall.GetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_ERROR)
			if gerr != nil || sockErr != 0 {
				syscall.Close(fd)
				tryCandidate(reactor, addrs, index+1, port, notify)
				return poll.Stop
			}
			if mErr := c.manage(); mErr != nil {
				c.reportClosed()
			}
			return poll.Stop
		})
	default:
		syscall.Close(fd)
		tryCandidate(reactor, addrs, index+1, port, notify)
	}
}
