// Package workerpool provides a fixed-size set of goroutines that run
// tasks with panic recovery, so a bug in caller-supplied code cannot bring
// down the process.
//
// This is a narrowed adaptation of concurrency/gopool from the pack: that
// package grows and shrinks its worker count elastically (MaxIdleWorkers,
// a ticker that ages workers out). The actor runtime instead needs exactly
// ThreadCount long-lived workers pinned for the runtime's lifetime (spec.md
// §4.6), so the elastic machinery is dropped and only the panic-isolation
// pattern (recover + log.Printf + debug.Stack, continue the loop) survives.
package workerpool

import (
	"log"
	"runtime/debug"
)

// PanicHandler is invoked when a task panics. If nil, the panic and its
// stack trace are logged via the standard log package.
type PanicHandler func(r interface{})

// Pool runs a fixed number of worker goroutines, each repeatedly invoking
// run until Stop is called.
type Pool struct {
	panicHandler PanicHandler
	done         chan struct{}
}

// New creates a Pool and immediately starts n worker goroutines, each
// calling run in a loop until Stop is invoked. run is expected to block
// (e.g. popping from a shared queue and sleeping when empty); Pool does not
// impose any scheduling of its own beyond panic isolation per call.
func New(n int, run func()) *Pool {
	p := &Pool{
		done: make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		go p.worker(run)
	}
	return p
}

// SetPanicHandler installs a handler invoked when run panics.
func (p *Pool) SetPanicHandler(f PanicHandler) {
	p.panicHandler = f
}

// Stop signals all workers to exit once their current run() call returns.
// It does not wait for them.
func (p *Pool) Stop() {
	close(p.done)
}

func (p *Pool) worker(run func()) {
	for {
		select {
		case <-p.done:
			return
		default:
		}
		p.runOnce(run)
	}
}

func (p *Pool) runOnce(run func()) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			} else {
				log.Printf("workerpool: recovered panic: %v\n%s", r, debug.Stack())
			}
		}
	}()
	run()
}
