package runner

import (
	"context"
	"errors"
	"sync"

	"krx-trader/internal/logger"
)

var (
	ErrAlreadyActive = errors.New("runner already active")
	ErrNotActive     = errors.New("no active runner")
)

// Factory builds a fresh Runner for each session.
type Factory func() (*Runner, error)

// Controller is the scheduler-facing handle for one kind of runner. It
// allows at most one active session at a time.
type Controller struct {
	name    string
	factory Factory

	mu     sync.Mutex
	active *Runner
}

func NewController(name string, factory Factory) *Controller {
	return &Controller{name: name, factory: factory}
}

func (c *Controller) Name() string { return c.name }

// Active returns the running session, or nil.
func (c *Controller) Active() *Runner {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Start builds and starts a new runner. A failed start leaves the
// controller idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return ErrAlreadyActive
	}
	r, err := c.factory()
	if err != nil {
		return err
	}
	if err := r.Start(ctx); err != nil {
		if r.State() == StateMonitoring {
			// periodic pass failed after startup; the session still needs Stop
			c.active = r
		}
		return err
	}
	c.active = r
	logger.Info(ctx, "Runner session active", "controller", c.name, "runner", r.Name(), "mode", r.Mode().String())
	return nil
}

// Stop stops the active runner and clears it, even when shutdown fails.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ErrNotActive
	}
	r := c.active
	c.active = nil
	return r.Stop(ctx)
}
