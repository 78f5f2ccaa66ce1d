// Package actor implements a multi-threaded actor runtime: a fixed-capacity
// pool of lightweight processes, each with a bounded mailbox, dispatched by
// a small team of worker threads over a shared lock-free run queue.
//
// See spec.md §4.6 and DESIGN.md's "actor" entry for the design this
// package ports from original_source/src/actor.rs.
package actor

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/nanokernel/nanokernel/bqueue"
	"github.com/nanokernel/nanokernel/internal/workerpool"
)

// Continuation is returned by a process's handler to tell the runtime what
// to do next.
type Continuation int

const (
	// Continue keeps the process Running; it will be invoked again with no
	// message on the next cycle.
	Continue Continuation = iota
	// Stop terminates the process: its generation is bumped, its mailbox
	// is cleared, and its index returns to the free list.
	Stop
	// WaitMessage moves the process to Waiting; it will next be invoked
	// only once a message is available in its mailbox.
	WaitMessage
)

var (
	// ErrNoCapacity is returned by Spawn when the process table is full.
	ErrNoCapacity = errors.New("actor: no capacity")
	// ErrActorIsDead is returned by Pid.Send when the target process has
	// since stopped (and possibly been reused at a newer generation).
	ErrActorIsDead = errors.New("actor: actor is dead")
)

// SendFailError is returned by Pid.Send when the target's release lock
// could not be acquired or its mailbox was full. The rejected message is
// attached so the caller can retry or drop it explicitly.
type SendFailError[M any] struct {
	Msg M
}

func (e *SendFailError[M]) Error() string {
	return "actor: send failed (actor busy or mailbox full)"
}

type runState int32

const (
	stateRunning runState = iota
	stateStopped
)

type processRunState int32

const (
	running processRunState = iota
	waiting
)

// sharedProcess is the externally addressable half of a process: any Pid
// holding a reference can attempt to reach its mailbox through the release
// lock, validating identity via the generation counter.
type sharedProcess struct {
	generation atomic.Uint64
	locked     atomic.Bool
	// mailbox holds *bqueue.Queue[M] for whichever M the currently
	// installed process was spawned with, type-erased. It is only ever
	// read or written while locked is held, mirroring the Rust
	// implementation's UnsafeCell guarded by the same release lock.
	mailbox any
}

func (sp *sharedProcess) tryLock() bool {
	return sp.locked.CompareAndSwap(false, true)
}

func (sp *sharedProcess) spinLock() {
	for !sp.tryLock() {
		runtime.Gosched()
	}
}

func (sp *sharedProcess) unlock() {
	sp.locked.Store(false)
}

// process is the runtime-local half: owned exclusively by whichever worker
// currently holds its index (ownership transferred via the run queue), so
// its fields need no synchronization of their own.
type process struct {
	maxMsgPerCycle int
	state          processRunState
	// onRunning is invoked when state == running; it corresponds to
	// Action::Other in the original (handler invoked with no message).
	onRunning func() Continuation
	// onMessage attempts to pop one message and invoke the handler with
	// it; ok is false if the mailbox was empty (Action::Dequeue => None).
	onMessage func() (cont Continuation, ok bool)
}

// Config configures a ProcessQueue.
type Config struct {
	// ProcessCapacity is the number of resident processes the table holds.
	ProcessCapacity int
	// ThreadCount is the number of worker goroutines dispatching processes.
	ThreadCount int
}

// ProcessQueue is the actor runtime: a fixed-capacity process table backed
// by a shared run queue and a small team of worker goroutines.
type ProcessQueue struct {
	capacity int

	processes []process
	shared    []*sharedProcess

	freeList *bqueue.Queue[int]
	runQueue *bqueue.Queue[int]

	processCount atomic.Int64
	state        atomic.Int32

	mu   sync.Mutex
	cond *sync.Cond

	pool *workerpool.Pool
}

// New creates a ProcessQueue and starts its worker goroutines.
func New(cfg Config) *ProcessQueue {
	if cfg.ProcessCapacity < 1 {
		panic("actor: ProcessCapacity must be at least 1")
	}
	if cfg.ThreadCount < 1 {
		panic("actor: ThreadCount must be at least 1")
	}

	pq := &ProcessQueue{
		capacity:  cfg.ProcessCapacity,
		processes: make([]process, cfg.ProcessCapacity),
		shared:    make([]*sharedProcess, cfg.ProcessCapacity),
		freeList:  bqueue.New[int](cfg.ProcessCapacity + 1),
		runQueue:  bqueue.New[int](cfg.ProcessCapacity + 1),
	}
	pq.cond = sync.NewCond(&pq.mu)

	for i := 0; i < cfg.ProcessCapacity; i++ {
		pq.shared[i] = &sharedProcess{}
		if !pq.freeList.TryPush(i) {
			panic("actor: free list undersized")
		}
	}

	pq.pool = workerpool.New(cfg.ThreadCount, pq.workerIteration)
	return pq
}

// SpawnParams configures a single process.
type SpawnParams[M any] struct {
	// Handler maps (self, optional message) to a continuation. It must
	// not block and must not panic across a boundary the runtime can't
	// recover from; a panic inside Handler is recovered by the worker
	// pool and treated as Stop (see DESIGN.md's actor/workerpool entry).
	Handler func(self Pid[M], msg *M) Continuation
	// MessageCapacity is the mailbox's bounded size. Values below 2 are
	// raised to 2, the smallest capacity bqueue.Queue supports.
	MessageCapacity int
	// MaxMessagePerCycle bounds how many handler invocations a single
	// worker performs on this process before yielding it back to the
	// run queue, for fairness across processes sharing the same worker.
	MaxMessagePerCycle int
}

// Pid is an opaque, cheap-to-copy actor identity parameterized by the
// message type it accepts.
type Pid[M any] struct {
	rt         *ProcessQueue
	id         int
	generation uint64
}

// Send attempts to deliver msg to the process identified by p. See
// spec.md §4.6 "Send-to-Pid" for the exact failure semantics.
func (p Pid[M]) Send(msg M) error {
	sp := p.rt.shared[p.id]
	if !sp.tryLock() {
		return &SendFailError[M]{Msg: msg}
	}
	if sp.generation.Load() != p.generation {
		sp.unlock()
		return ErrActorIsDead
	}
	mailbox, ok := sp.mailbox.(*bqueue.Queue[M])
	if !ok || mailbox == nil {
		sp.unlock()
		return ErrActorIsDead
	}
	pushed := mailbox.TryPush(msg)
	sp.unlock()
	if !pushed {
		return &SendFailError[M]{Msg: msg}
	}
	return nil
}

// Spawn allocates a process if the table has room, installs handler and
// mailbox, and schedules it for its first (no-message) dispatch.
func Spawn[M any](pq *ProcessQueue, params SpawnParams[M]) (Pid[M], error) {
	count := pq.processCount.Add(1)
	if count > int64(pq.capacity) {
		pq.processCount.Add(-1)
		var zero Pid[M]
		return zero, ErrNoCapacity
	}

	var id int
	for {
		if v, ok := pq.freeList.TryPop(); ok {
			id = v
			break
		}
	}

	sp := pq.shared[id]
	gen := sp.generation.Load()
	pid := Pid[M]{rt: pq, id: id, generation: gen}

	mailbox := bqueue.New[M](max(params.MessageCapacity, 2))
	sp.mailbox = mailbox
	sp.locked.Store(false)

	quota := params.MaxMessagePerCycle
	if params.MessageCapacity < quota {
		quota = params.MessageCapacity
	}

	proc := &pq.processes[id]
	proc.state = running
	proc.maxMsgPerCycle = quota
	handler := params.Handler
	proc.onRunning = func() Continuation {
		return handler(pid, nil)
	}
	proc.onMessage = func() (Continuation, bool) {
		msg, ok := mailbox.TryPop()
		if !ok {
			return Continue, false
		}
		return handler(pid, &msg), true
	}

	pq.pushRun(id)
	return pid, nil
}

// BlockingSpawn retries Spawn until it succeeds.
func BlockingSpawn[M any](pq *ProcessQueue, params SpawnParams[M]) Pid[M] {
	for {
		pid, err := Spawn(pq, params)
		if err == nil {
			return pid
		}
	}
}

func (pq *ProcessQueue) pushRun(id int) {
	for !pq.runQueue.TryPush(id) {
	}
	pq.mu.Lock()
	pq.cond.Broadcast()
	pq.mu.Unlock()
}

// Join busy-waits until no processes remain live. Intended for tests and
// short-lived batch scenarios, not production shutdown paths.
func (pq *ProcessQueue) Join() {
	for pq.processCount.Load() > 0 {
		runtime.Gosched()
	}
}

// Close stops the runtime: workers finish their current dispatch burst
// and exit without draining remaining mailboxes or queued processes (see
// DESIGN.md's actor Open Question (a)).
func (pq *ProcessQueue) Close() {
	pq.mu.Lock()
	pq.state.Store(int32(stateStopped))
	pq.cond.Broadcast()
	pq.mu.Unlock()
	pq.pool.Stop()
}

func (pq *ProcessQueue) workerIteration() {
	id, ok := pq.runQueue.TryPop()
	if !ok {
		pq.mu.Lock()
		for pq.runQueue.IsEmpty() && runState(pq.state.Load()) == stateRunning {
			pq.cond.Wait()
		}
		pq.mu.Unlock()
		return
	}

	// A panicking handler is treated as Stop: the process is reset before
	// the panic continues to the worker pool's recover.
	defer func() {
		if r := recover(); r != nil {
			pq.resetProcess(id)
			panic(r)
		}
	}()

	proc := &pq.processes[id]
	keepGoing := true
	msgCount := 0
	for keepGoing && msgCount < proc.maxMsgPerCycle {
		var cont Continuation
		switch proc.state {
		case running:
			cont = proc.onRunning()
		case waiting:
			var gotMessage bool
			cont, gotMessage = proc.onMessage()
			if !gotMessage {
				goto requeue
			}
		}
		switch cont {
		case Continue:
			proc.state = running
		case WaitMessage:
			proc.state = waiting
		case Stop:
			keepGoing = false
		}
		msgCount++
	}

requeue:
	if keepGoing {
		pq.pushRun(id)
	} else {
		pq.resetProcess(id)
	}
}

func (pq *ProcessQueue) resetProcess(id int) {
	sp := pq.shared[id]
	sp.spinLock()
	sp.generation.Add(1)
	sp.mailbox = nil
	sp.unlock()

	proc := &pq.processes[id]
	proc.onRunning = nil
	proc.onMessage = nil

	for !pq.freeList.TryPush(id) {
	}
	pq.processCount.Add(-1)
}
