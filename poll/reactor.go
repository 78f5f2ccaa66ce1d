// Package poll implements a single-threaded epoll reactor: it owns the
// polling descriptor, registers file descriptors with callbacks, dispatches
// readiness events, and supports wakeup from any thread.
//
// See spec.md §4.4 and DESIGN.md's "poll" entry. Grounded on
// connstate/poll_linux.go and connstate/poll_cache.go's free-list-backed
// fdOperator registry, reworked from their cgo-driven epoll_wait loop into
// a plain stdlib syscall.EpollWait EINTR-retry loop (spec.md's Reactor has
// no need for the cgo wrapper's batched-wakeup acknowledgement scheme).
package poll

import (
	"sync/atomic"
	"syscall"

	"github.com/nanokernel/nanokernel/internal/xlog"
	"github.com/nanokernel/nanokernel/slab"
)

// Mode is a bitmask of readiness a callback is interested in.
type Mode uint32

const (
	Read Mode = 1 << iota
	Write
	ReadWrite = Read | Write
)

// Event is the readiness mask delivered to a callback: it may combine
// Read/Write with Err, Hup, or RdHup independent of what was requested.
type Event uint32

const (
	EventRead Event = 1 << iota
	EventWrite
	EventErr
	EventHup
	EventRdHup
)

func (e Event) Readable() bool  { return e&EventRead != 0 }
func (e Event) Writable() bool  { return e&EventWrite != 0 }
func (e Event) Errored() bool   { return e&EventErr != 0 }
func (e Event) HungUp() bool    { return e&(EventHup|EventRdHup) != 0 }

// Action is returned by a normal (non-oneshot) callback to tell the
// reactor whether to keep watching the descriptor.
type Action int

const (
	Continue Action = iota
	Stop
)

// Callback is invoked on readiness. oneshot callbacks' return value is
// ignored (they always disarm after one delivery).
type Callback func(ev Event) Action

// sentinelHandle marks the wakeup pipe's slab slot; slab indices returned
// by Reserve/Insert are always >= 0, so -1 can never collide with one.
const sentinelHandle = -1

type entry struct {
	fd      int
	mode    Mode
	oneshot bool
	cb      Callback
}

// Reactor owns one epoll descriptor and its callback table. It must be
// driven from a single goroutine (Run or repeated Iterate calls); only
// Wakeup is safe to call from elsewhere.
type Reactor struct {
	epfd int

	wakeR int
	wakeW int

	callbacks *slab.Slab[entry]

	stopped atomic.Bool
	log     *xlog.Logger
}

// New creates a Reactor: an epoll descriptor plus a self-pipe registered
// under the sentinel handle so Wakeup can interrupt a blocked Iterate.
func New() (*Reactor, error) {
	epfd, err := syscall.EpollCreate1(syscall.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	var fds [2]int
	if err := syscall.Pipe2(fds[:], syscall.O_NONBLOCK|syscall.O_CLOEXEC); err != nil {
		syscall.Close(epfd)
		return nil, err
	}

	r := &Reactor{
		epfd:      epfd,
		wakeR:     fds[0],
		wakeW:     fds[1],
		callbacks: slab.New[entry](),
		log:       xlog.Default,
	}

	ev := syscall.EpollEvent{Events: uint32(syscall.EPOLLIN)}
	ev.Fd = int32(sentinelHandle)
	if err := syscall.EpollCtl(epfd, syscall.EPOLL_CTL_ADD, r.wakeR, &ev); err != nil {
		syscall.Close(r.wakeR)
		syscall.Close(r.wakeW)
		syscall.Close(epfd)
		return nil, err
	}
	return r, nil
}

func epollBits(mode Mode, oneshot bool) uint32 {
	var bits uint32
	if mode&Read != 0 {
		bits |= syscall.EPOLLIN | syscall.EPOLLRDHUP
	}
	if mode&Write != 0 {
		bits |= syscall.EPOLLOUT
	}
	bits |= syscall.EPOLLERR | syscall.EPOLLHUP
	if oneshot {
		bits |= syscall.EPOLLONESHOT
	} else {
		bits |= syscall.EPOLLET & 0xffffffff
	}
	return bits
}

func (r *Reactor) register(fd int, mode Mode, oneshot bool, cb Callback) (int, error) {
	handle := r.callbacks.Insert(entry{fd: fd, mode: mode, oneshot: oneshot, cb: cb})
	ev := syscall.EpollEvent{Events: epollBits(mode, oneshot)}
	ev.Fd = int32(handle)
	if err := syscall.EpollCtl(r.epfd, syscall.EPOLL_CTL_ADD, fd, &ev); err != nil {
		r.callbacks.Remove(handle)
		return 0, err
	}
	return handle, nil
}

// AddFD registers a persistent, edge-triggered callback for fd.
func (r *Reactor) AddFD(fd int, mode Mode, cb Callback) (int, error) {
	return r.register(fd, mode, false, cb)
}

// AddFDOneshot registers a callback that fires exactly once; the kernel
// disarms the descriptor after delivery.
func (r *Reactor) AddFDOneshot(fd int, mode Mode, cb Callback) (int, error) {
	return r.register(fd, mode, true, cb)
}

// Reservation is a callback slot registered with the kernel before its
// callback exists, so the handle id can be handed to code that needs it
// up front (e.g. a connect-in-progress closure that references its own
// handle to remove itself).
type Reservation struct {
	r       *Reactor
	handle  int
	fd      int
	mode    Mode
	oneshot bool
}

// Handle returns the slab index identifying this registration.
func (res *Reservation) Handle() int { return res.handle }

// SetCallback finishes the registration, installing cb to be invoked on
// readiness.
func (res *Reservation) SetCallback(cb Callback) {
	res.r.callbacks.Set(res.handle, entry{fd: res.fd, mode: res.mode, oneshot: res.oneshot, cb: cb})
}

func (r *Reactor) tryRegister(fd int, mode Mode, oneshot bool) (*Reservation, error) {
	handle := r.callbacks.Reserve()
	ev := syscall.EpollEvent{Events: epollBits(mode, oneshot)}
	ev.Fd = int32(handle)
	if err := syscall.EpollCtl(r.epfd, syscall.EPOLL_CTL_ADD, fd, &ev); err != nil {
		r.callbacks.Free(handle)
		return nil, err
	}
	return &Reservation{r: r, handle: handle, fd: fd, mode: mode, oneshot: oneshot}, nil
}

// TryAddFD reserves a callback slot and registers fd, returning a handle
// whose SetCallback finishes the registration.
func (r *Reactor) TryAddFD(fd int, mode Mode) (*Reservation, error) {
	return r.tryRegister(fd, mode, false)
}

// TryAddFDOneshot is TryAddFD for a one-shot registration.
func (r *Reactor) TryAddFDOneshot(fd int, mode Mode) (*Reservation, error) {
	return r.tryRegister(fd, mode, true)
}

// RemoveFD deregisters the descriptor associated with handle.
func (r *Reactor) RemoveFD(handle int) error {
	ent, ok := r.callbacks.Get(handle)
	if !ok {
		return nil
	}
	r.callbacks.Remove(handle)
	var ev syscall.EpollEvent
	return syscall.EpollCtl(r.epfd, syscall.EPOLL_CTL_DEL, ent.fd, &ev)
}

// Wakeup causes a blocked Iterate/Run on another thread to return
// immediately. Safe to call from any goroutine.
func (r *Reactor) Wakeup() error {
	_, err := syscall.Write(r.wakeW, []byte{0})
	if err != nil && err != syscall.EAGAIN {
		return err
	}
	return nil
}

// IterateResult is the outcome of one Iterate call.
type IterateResult int

const (
	IterateOK IterateResult = iota
	IterateInterrupted
)

// Iterate blocks until at least one descriptor is ready, then dispatches
// each delivered event's callback. events is caller-provided scratch space
// reused across calls to avoid per-call allocation.
func (r *Reactor) Iterate(events []syscall.EpollEvent) (IterateResult, error) {
	n, err := syscall.EpollWait(r.epfd, events, -1)
	if err != nil {
		if err == syscall.EINTR {
			return IterateInterrupted, nil
		}
		return IterateOK, err
	}

	for i := 0; i < n; i++ {
		ev := events[i]
		handle := int(ev.Fd)
		if handle == sentinelHandle {
			r.drainWakeup()
			continue
		}
		r.dispatch(handle, decodeEvent(ev.Events))
	}
	return IterateOK, nil
}

func (r *Reactor) drainWakeup() {
	var buf [64]byte
	for {
		n, err := syscall.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func decodeEvent(bits uint32) Event {
	var ev Event
	if bits&syscall.EPOLLIN != 0 {
		ev |= EventRead
	}
	if bits&syscall.EPOLLOUT != 0 {
		ev |= EventWrite
	}
	if bits&syscall.EPOLLERR != 0 {
		ev |= EventErr
	}
	if bits&syscall.EPOLLHUP != 0 {
		ev |= EventHup
	}
	if bits&syscall.EPOLLRDHUP != 0 {
		ev |= EventRdHup
	}
	return ev
}

func (r *Reactor) dispatch(handle int, ev Event) {
	ent, ok := r.callbacks.ReserveRemove(handle)
	if !ok {
		return
	}
	if ent.oneshot {
		// A disarmed one-shot fd is still in the epoll set; remove it before
		// the callback runs, since the callback may close the fd or register
		// it (or a new socket reusing its number) again.
		r.callbacks.Free(handle)
		var epEv syscall.EpollEvent
		if err := syscall.EpollCtl(r.epfd, syscall.EPOLL_CTL_DEL, ent.fd, &epEv); err != nil {
			r.log.Debugf("poll: epoll_ctl del fd=%d: %v", ent.fd, err)
		}
		ent.cb(ev)
		return
	}
	action := ent.cb(ev)
	if action == Continue {
		r.callbacks.Set(handle, ent)
		return
	}
	r.callbacks.Free(handle)
	var epEv syscall.EpollEvent
	if err := syscall.EpollCtl(r.epfd, syscall.EPOLL_CTL_DEL, ent.fd, &epEv); err != nil {
		r.log.Debugf("poll: epoll_ctl del fd=%d: %v", ent.fd, err)
	}
}

// Run drives Iterate until Stop is called.
func (r *Reactor) Run() error {
	events := make([]syscall.EpollEvent, 128)
	for !r.stopped.Load() {
		if _, err := r.Iterate(events); err != nil {
			return err
		}
	}
	return nil
}

// Stop marks the reactor stopped and wakes it so Run returns promptly.
func (r *Reactor) Stop() {
	r.stopped.Store(true)
	r.Wakeup()
}

// Close releases the epoll descriptor and wakeup pipe.
func (r *Reactor) Close() error {
	syscall.Close(r.wakeR)
	syscall.Close(r.wakeW)
	return syscall.Close(r.epfd)
}
