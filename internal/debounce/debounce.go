// Package debounce provides a cancellable single-shot timer where each new
// Schedule call supersedes the previous one.
package debounce

import (
	"sync"
	"time"
)

// Stopper cancels a timer started by a Clock.
type Stopper interface {
	Stop() bool
}

// Clock starts timers. Production code uses RealClock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// RealClock is backed by time.AfterFunc.
var RealClock Clock = realClock{}

// Timer runs at most one pending callback. Scheduling again cancels the
// callback that has not fired yet.
type Timer struct {
	clock Clock

	mu      sync.Mutex
	gen     uint64
	stopper Stopper
	fn      func()
}

// New returns a Timer using clock, or RealClock when clock is nil.
func New(clock Clock) *Timer {
	if clock == nil {
		clock = RealClock
	}
	return &Timer{clock: clock}
}

// Schedule cancels any pending callback and arranges for fn to run after d.
func (t *Timer) Schedule(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	gen := t.gen
	t.fn = fn
	t.stopper = t.clock.AfterFunc(d, func() { t.fire(gen) })
}

// Cancel drops the pending callback. It reports whether one was pending.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := t.fn != nil
	t.stopLocked()
	t.gen++
	return pending
}

// Fire runs the pending callback now, on the calling goroutine.
// It reports whether a callback was pending.
func (t *Timer) Fire() bool {
	t.mu.Lock()
	fn := t.fn
	t.stopLocked()
	t.gen++
	t.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}

// Pending reports whether a callback is waiting to fire.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fn != nil
}

// fire runs the callback of generation gen unless it was superseded.
func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.fn == nil {
		t.mu.Unlock()
		return
	}
	fn := t.fn
	t.fn = nil
	t.stopper = nil
	t.mu.Unlock()

	fn()
}

func (t *Timer) stopLocked() {
	if t.stopper != nil {
		t.stopper.Stop()
		t.stopper = nil
	}
	t.fn = nil
}
