// Package task provides the scheduler hop between worker goroutines and
// the goroutine owning player state. Blocking work runs on a worker;
// completions are posted back and drained by the owner.
package task

import "sync"

// Runner queues closures for the owning goroutine. When direct is set
// (tests), Post runs the closure inline instead.
type Runner struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	direct bool
}

// New returns a Runner whose Post enqueues for RunLoop.
func New() *Runner {
	return &Runner{wake: make(chan struct{}, 1)}
}

// NewDirect returns a Runner whose Post invokes inline. Only safe when
// every caller already runs on the owning goroutine.
func NewDirect() *Runner {
	return &Runner{direct: true}
}

// Post schedules fn on the owning goroutine.
func (r *Runner) Post(fn func()) {
	if r.direct {
		fn()
		return
	}
	r.mu.Lock()
	r.queue = append(r.queue, fn)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// RunBlocking runs work on a worker goroutine and posts done with its
// result.
func (r *Runner) RunBlocking(work func() (any, error), done func(any, error)) {
	go func() {
		value, err := work()
		r.Post(func() { done(value, err) })
	}()
}

// Drain runs every queued closure. Returns when the queue is empty.
func (r *Runner) Drain() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		fn := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		fn()
	}
}

// RunLoop drains closures until stop is closed.
func (r *Runner) RunLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			r.Drain()
			return
		case <-r.wake:
			r.Drain()
		}
	}
}
