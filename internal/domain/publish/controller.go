package publish

import (
	"context"
	"slices"
	"sync"
)

// SchedulerState is the global control state of a publish run.
type SchedulerState string

const (
	SchedulerRunning   SchedulerState = "running"
	SchedulerPaused    SchedulerState = "paused"
	SchedulerCancelled SchedulerState = "cancelled"
)

// String returns the string representation of the state.
func (s SchedulerState) String() string {
	return string(s)
}

// Controller holds the SchedulerState. External signal handlers write it;
// pipeline tasks only read it. Cancellation is final.
type Controller struct {
	mu        sync.Mutex
	state     SchedulerState
	changed   chan struct{}
	nextID    uint64
	listeners []listener

	// notify serializes transitions so listeners see them in order. It is
	// never taken while mu is held.
	notify sync.Mutex
}

type listener struct {
	id uint64
	fn func(SchedulerState)
}

// NewController returns a controller in RUNNING.
func NewController() *Controller {
	return &Controller{
		state:   SchedulerRunning,
		changed: make(chan struct{}),
	}
}

// State returns the current state.
func (c *Controller) State() SchedulerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnChange registers fn to be called, in order, after every state change,
// and returns a func that unregisters it. fn runs outside the state lock
// and may read the state, but must not change it.
func (c *Controller) OnChange(fn func(SchedulerState)) (unregister func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listeners = slices.DeleteFunc(c.listeners, func(l listener) bool { return l.id == id })
	}
}

// Pause stops new dispatches. It returns false unless the state was RUNNING.
func (c *Controller) Pause() bool {
	return c.transition(SchedulerPaused, func(s SchedulerState) bool { return s == SchedulerRunning })
}

// Resume allows dispatch again. It returns false unless the state was PAUSED.
func (c *Controller) Resume() bool {
	return c.transition(SchedulerRunning, func(s SchedulerState) bool { return s == SchedulerPaused })
}

// Cancel stops all further dispatch. Only the first call has an effect.
func (c *Controller) Cancel() bool {
	return c.transition(SchedulerCancelled, func(s SchedulerState) bool { return s != SchedulerCancelled })
}

// WaitUntilRunning blocks while PAUSED. It returns ErrSchedulerCancelled
// once cancelled, or the context error.
func (c *Controller) WaitUntilRunning(ctx context.Context) error {
	for {
		c.mu.Lock()
		state, changed := c.state, c.changed
		c.mu.Unlock()

		switch state {
		case SchedulerRunning:
			return nil
		case SchedulerCancelled:
			return ErrSchedulerCancelled
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) transition(to SchedulerState, allowed func(SchedulerState) bool) bool {
	c.notify.Lock()
	defer c.notify.Unlock()

	c.mu.Lock()
	if !allowed(c.state) {
		c.mu.Unlock()
		return false
	}
	c.state = to
	close(c.changed)
	c.changed = make(chan struct{})
	fns := make([]func(SchedulerState), len(c.listeners))
	for i, l := range c.listeners {
		fns[i] = l.fn
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(to)
	}
	return true
}
