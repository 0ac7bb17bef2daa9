package login

import (
	"context"
	"sync"
)

// Attempt is a scoped login flow. Closing it cancels the poll timer no
// matter how the flow ended. Once a newer Attempt was acquired, an older
// one no longer affects the controller.
type Attempt struct {
	c    *Controller
	id   uint64
	once sync.Once
}

// Acquire abandons any previous attempt and starts a new one. The returned
// Attempt is usable even when err is non-nil, so the caller can still
// Refresh or Close it.
func (c *Controller) Acquire(ctx context.Context) (*Attempt, error) {
	c.mu.Lock()
	c.lastOwner++
	c.owner = c.lastOwner
	a := &Attempt{c: c, id: c.owner}
	c.mu.Unlock()

	c.cancel(a.id)
	return a, c.start(ctx, a.id)
}

// Status returns the controller status
func (a *Attempt) Status() Status {
	return a.c.Status()
}

// Refresh starts a fresh challenge within the same attempt. It returns
// ErrSuperseded when another Attempt holds the flow.
func (a *Attempt) Refresh(ctx context.Context) error {
	if !a.c.cancel(a.id) {
		return ErrSuperseded
	}
	return a.c.start(ctx, a.id)
}

// Close cancels the attempt if it still holds the flow. Subsequent calls
// do nothing.
func (a *Attempt) Close() {
	a.once.Do(func() {
		c := a.c
		if c.cancel(a.id) {
			c.mu.Lock()
			if c.owner == a.id {
				c.owner = 0
			}
			c.mu.Unlock()
		}
	})
}
