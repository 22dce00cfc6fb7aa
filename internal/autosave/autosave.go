// Package autosave coalesces bursts of draft edits into infrequent
// full-content writes.
//
// States move idle -> pending -> saving -> idle, or to error when the last
// completed save failed. Error behaves like idle: new work is accepted and
// nothing is retried automatically.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/gradebook/internal/debounce"
	"github.com/pavelanni/gradebook/internal/model"
)

// State is the controller's persistence state.
type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending"
	StateSaving  State = "saving"
	StateError   State = "error"
)

// ErrClosed is returned by SaveNow after Close.
var ErrClosed = errors.New("autosave controller closed")

// SaveFunc writes the full content of a draft, replacing what is stored.
type SaveFunc func(ctx context.Context, content model.Content) error

// Status is a point-in-time view of the controller.
type Status struct {
	State       State     `json:"state"`
	LastSavedAt time.Time `json:"last_saved_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	InFlight    int       `json:"in_flight"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock driving the debounce timer.
func WithClock(clock debounce.Clock) Option {
	return func(c *Controller) { c.timer = debounce.New(clock) }
}

// WithNow sets the time source used for LastSavedAt.
func WithNow(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithErrorHandler registers a callback for failed saves. It must not block.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Controller) { c.onError = fn }
}

// WithLogger sets the logger used for save outcomes.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// Controller debounces snapshots and forwards them to a SaveFunc.
type Controller struct {
	save    SaveFunc
	timer   *debounce.Timer
	now     func() time.Time
	onError func(error)
	log     *slog.Logger

	mu        sync.Mutex
	pending   *model.Content
	inflight  int
	failed    bool
	lastErr   error
	lastSaved time.Time
	closed    bool
	waiters   []chan struct{}
}

// New creates a controller that persists through save.
func New(save SaveFunc, opts ...Option) *Controller {
	c := &Controller{
		save: save,
		now:  time.Now,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timer == nil {
		c.timer = debounce.New(nil)
	}
	return c
}

// Schedule replaces the pending snapshot and restarts the quiet period.
// Only the timer of the most recent call fires.
func (c *Controller) Schedule(content model.Content, quiet time.Duration) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = &content
	c.mu.Unlock()

	c.timer.Schedule(quiet, c.fire)
}

// Cancel drops the pending snapshot without saving it. It reports whether
// a save was pending.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	had := c.pending != nil
	c.pending = nil
	c.mu.Unlock()
	c.timer.Cancel()
	return had
}

// SaveNow persists content immediately, bypassing the debounce timer. A
// pending timer is left in place. The write is not cancelled when ctx is.
func (c *Controller) SaveNow(ctx context.Context, content model.Content) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.inflight++
	c.mu.Unlock()

	err := c.save(context.WithoutCancel(ctx), content)
	c.finish(err)
	return err
}

// Flush saves the pending snapshot now and waits for every in-flight save.
// The snapshot is taken from the controller, not the timer, so a timer that
// already fired but has not reached the controller cannot lose it.
func (c *Controller) Flush(ctx context.Context) error {
	c.timer.Cancel()

	c.mu.Lock()
	content := c.pending
	c.pending = nil
	if content != nil && !c.closed {
		c.inflight++
	} else {
		content = nil
	}
	c.mu.Unlock()

	var err error
	if content != nil {
		err = c.save(context.WithoutCancel(ctx), *content)
		c.finish(err)
	}
	return errors.Join(err, c.wait(ctx))
}

// Close cancels the pending timer and waits for in-flight saves. Pending
// edits that were not flushed are dropped.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.pending = nil
	c.mu.Unlock()

	c.timer.Cancel()
	return c.wait(ctx)
}

// Status reports the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:       c.stateLocked(),
		LastSavedAt: c.lastSaved,
		InFlight:    c.inflight,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case c.pending != nil:
		return StatePending
	case c.inflight > 0:
		return StateSaving
	case c.failed:
		return StateError
	default:
		return StateIdle
	}
}

func (c *Controller) fire() {
	c.mu.Lock()
	content := c.pending
	c.pending = nil
	if content == nil || c.closed {
		c.mu.Unlock()
		return
	}
	c.inflight++
	c.mu.Unlock()

	err := c.save(context.Background(), *content)
	c.finish(err)
}

func (c *Controller) finish(err error) {
	c.mu.Lock()
	c.inflight--
	if err != nil {
		c.failed = true
		c.lastErr = err
	} else {
		c.failed = false
		c.lastErr = nil
		c.lastSaved = c.now()
	}
	var waiters []chan struct{}
	if c.inflight == 0 {
		waiters = c.waiters
		c.waiters = nil
	}
	onError := c.onError
	c.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	if err != nil {
		c.log.Warn("draft save failed", "error", err)
		if onError != nil {
			onError(err)
		}
		return
	}
	c.log.Debug("draft saved")
}

func (c *Controller) wait(ctx context.Context) error {
	c.mu.Lock()
	if c.inflight == 0 {
		c.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
