// Package timer provides the period-driven readiness signal a snoop
// session exposes to its caller. There is no internal processing thread:
// the timer only marks period boundaries, and the caller polls or blocks
// on the event channel before running a synchronizer pass on its own
// goroutine.
package timer

import (
	"errors"
	"sync"
	"time"
)

// ErrStopped indicates a wait on a timer that is not running.
var ErrStopped = errors.New("timer: not running")

// ErrTimeout indicates a wait that elapsed without a readiness event.
var ErrTimeout = errors.New("timer: wait timed out")

// eventQueueLen bounds pending readiness events; excess ticks coalesce.
const eventQueueLen = 4

// Timer delivers one readiness event per elapsed period while running.
type Timer struct {
	period time.Duration

	mu      sync.Mutex
	ticker  *time.Ticker
	done    chan struct{}
	events  chan struct{}
	running bool
}

// New creates a stopped timer with the given period.
func New(period time.Duration) *Timer {
	return &Timer{
		period: period,
		events: make(chan struct{}, eventQueueLen),
	}
}

// Running reports whether the timer is started.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Start begins period event delivery. Starting a running timer is a no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.ticker = time.NewTicker(t.period)
	t.done = make(chan struct{})
	t.running = true
	go t.forward(t.ticker, t.done)
}

// Stop halts event delivery. Stopping a stopped timer is a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.ticker.Stop()
	close(t.done)
	t.running = false
}

// forward moves ticker ticks onto the event channel, dropping ticks when
// the caller lags behind a full queue.
func (t *Timer) forward(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			select {
			case t.events <- struct{}{}:
			default:
			}
		}
	}
}

// Events exposes the readiness channel for select-based polling.
func (t *Timer) Events() <-chan struct{} {
	return t.events
}

// Drain empties queued readiness events, the analog of flushing a timer
// read queue after poll wakeup.
func (t *Timer) Drain() {
	for {
		select {
		case <-t.events:
		default:
			return
		}
	}
}

// Wait blocks until the next readiness event or the timeout elapses.
// A negative timeout waits indefinitely. Waiting on a stopped timer
// returns ErrStopped immediately.
func (t *Timer) Wait(timeout time.Duration) error {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	if !running {
		return ErrStopped
	}

	if timeout < 0 {
		<-t.events
		return nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case <-t.events:
		return nil
	case <-deadline.C:
		return ErrTimeout
	}
}
