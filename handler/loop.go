// Package handler implements a single-threaded message-driven dispatcher
// layered over poll.Reactor: each handler owns a mailbox and a send handle
// (Stream), and reactor callbacks push into streams rather than running
// arbitrary closures directly, separating I/O plumbing from business logic.
//
// See spec.md §4.5 and DESIGN.md's "handler" entry. Ported from
// original_source/src/aio/handler.rs (the ready-list variant, not the
// older full-scan src/handler.rs it superseded).
package handler

import (
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/nanokernel/nanokernel/poll"
	"github.com/nanokernel/nanokernel/slab"
)

// Handler reacts to messages delivered through its Stream.
type Handler[M any] interface {
	Update(stream Stream[M], msg M)
}

// loopCore is the state shared by every Stream regardless of its message
// type: the ready list of component indices with pending messages, and a
// handle back to the reactor so Send can wake a blocked Iterate.
//
// Only Iterate (always run from the loop's own goroutine) ever pops ready
// entries, but Send is cross-thread safe by contract (spec.md §5 and the
// GLOSSARY's "Stream" entry): any goroutine, including an actor's worker,
// may call Send concurrently with Iterate. mu guards ready against that
// race; the original's single-threaded Rc<RefCell<...>> doesn't need an
// equivalent, since nothing there crosses a thread boundary.
type loopCore struct {
	reactor *poll.Reactor
	mu      sync.Mutex
	ready   []int
	stopped atomic.Bool
}

// mailbox holds one Stream's pending messages. mu guards items against
// concurrent Send calls racing each other and against Send racing the
// loop goroutine's pop.
type mailbox[M any] struct {
	mu    sync.Mutex
	items []M
}

// Stream is a cheap-to-copy handle to one handler's mailbox. Cloning it
// (by assignment; Stream has no pointer receiver methods that need it)
// shares the same underlying mailbox and ready list.
type Stream[M any] struct {
	core  *loopCore
	entry int
	box   *mailbox[M]
}

// Send enqueues msg on the stream's mailbox, marks its handler ready, and
// wakes the reactor so the next Iterate processes it. Safe to call from
// any goroutine, concurrently with other Sends and with the loop's own
// Iterate.
func (s Stream[M]) Send(msg M) {
	s.box.mu.Lock()
	s.box.items = append(s.box.items, msg)
	s.box.mu.Unlock()

	s.core.mu.Lock()
	s.core.ready = append(s.core.ready, s.entry)
	s.core.mu.Unlock()

	s.core.reactor.Wakeup()
}

func (s Stream[M]) pop() (M, bool) {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()
	var zero M
	if len(s.box.items) == 0 {
		return zero, false
	}
	msg := s.box.items[0]
	s.box.items = s.box.items[1:]
	return msg, true
}

// component is the type-erased entry the Loop's slab actually stores; each
// instantiation of handlerComponent[M] satisfies it for its own M.
type component interface {
	process()
}

type handlerComponent[M any] struct {
	handler Handler[M]
	stream  Stream[M]
}

func (c *handlerComponent[M]) process() {
	for {
		msg, ok := c.stream.pop()
		if !ok {
			return
		}
		c.handler.Update(c.stream, msg)
	}
}

// Loop is the single-threaded handler dispatcher.
type Loop struct {
	reactor    *poll.Reactor
	core       *loopCore
	components *slab.Slab[component]
}

// New creates a Loop and its underlying reactor.
func New() (*Loop, error) {
	reactor, err := poll.New()
	if err != nil {
		return nil, err
	}
	return &Loop{
		reactor:    reactor,
		core:       &loopCore{reactor: reactor},
		components: slab.New[component](),
	}, nil
}

// Reactor exposes the underlying reactor for callers that need to register
// descriptors without routing through a Stream (rare; prefer AddFD).
func (l *Loop) Reactor() *poll.Reactor {
	return l.reactor
}

// Spawn allocates a mailbox and ready-list slot for handler, returning the
// Stream that feeds it.
func Spawn[M any](l *Loop, h Handler[M]) Stream[M] {
	idx := l.components.Reserve()
	stream := Stream[M]{core: l.core, entry: idx, box: &mailbox[M]{}}
	l.components.Set(idx, &handlerComponent[M]{handler: h, stream: stream})
	return stream
}

// AddFD registers fd with the reactor so that on every readiness matching
// mode, callback's result is sent through stream, keeping the handler's
// Update as the only place business logic runs.
func AddFD[M any](l *Loop, fd int, mode poll.Mode, stream Stream[M], callback func(poll.Event) M) (int, error) {
	return l.reactor.AddFD(fd, mode, func(ev poll.Event) poll.Action {
		stream.Send(callback(ev))
		return poll.Continue
	})
}

// AddFDOneshot is AddFD for a one-shot registration.
func AddFDOneshot[M any](l *Loop, fd int, mode poll.Mode, stream Stream[M], callback func(poll.Event) M) (int, error) {
	return l.reactor.AddFDOneshot(fd, mode, func(ev poll.Event) poll.Action {
		stream.Send(callback(ev))
		return poll.Stop
	})
}

// RemoveFD deregisters fd.
func (l *Loop) RemoveFD(handle int) error {
	return l.reactor.RemoveFD(handle)
}

// Iterate processes every component with a pending message (reserve-remove,
// drain its mailbox via process, reinstall), then blocks in the reactor
// for the next batch of readiness. Reinstallation happens after process
// returns. Messages sent during Update to a handler not yet drained in this
// pass (including the handler's own stream) are delivered in this pass;
// the rest, and new registrations, are picked up on the following Iterate.
func (l *Loop) Iterate(events []syscall.EpollEvent) (poll.IterateResult, error) {
	l.core.mu.Lock()
	ready := l.core.ready
	l.core.ready = nil
	l.core.mu.Unlock()
	for _, entry := range ready {
		if !l.components.Contains(entry) {
			continue
		}
		comp, ok := l.components.ReserveRemove(entry)
		if !ok {
			continue
		}
		comp.process()
		l.components.Set(entry, comp)
	}
	return l.reactor.Iterate(events)
}

// Run drives Iterate until Stop is called.
func (l *Loop) Run() error {
	events := make([]syscall.EpollEvent, 128)
	for !l.core.stopped.Load() {
		result, err := l.Iterate(events)
		if err != nil {
			return err
		}
		_ = result
	}
	return nil
}

// Stop marks the loop stopped and wakes the reactor so Run returns. Safe
// to call from any goroutine.
func (l *Loop) Stop() {
	l.core.stopped.Store(true)
	l.reactor.Wakeup()
}

// Close releases the underlying reactor's descriptors.
func (l *Loop) Close() error {
	return l.reactor.Close()
}
