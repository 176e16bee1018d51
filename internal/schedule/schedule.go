// Package schedule runs periodic tasks and long-lived loops under one
// cancellable group.
//
// A Task is a named step function and an interval. Tests drive a task
// deterministically by calling Step directly; production code hands tasks
// to a Group, which ticks each on its own goroutine until the group's
// context is cancelled.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Logger defines the logging interface used by the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// StepFunc performs one unit of periodic work.
type StepFunc func(ctx context.Context) error

// Task is a periodically executed step.
type Task struct {
	// Name identifies the task in logs.
	Name string

	// Interval between steps. Must be positive.
	Interval time.Duration

	// Step is called once per tick. A returned error is logged and the task
	// keeps running; only context cancellation stops it.
	Step StepFunc

	// Immediate runs the first step before waiting one interval.
	Immediate bool
}

// Validate reports whether the task can be scheduled.
func (t Task) Validate() error {
	if t.Step == nil {
		return fmt.Errorf("schedule: task %q has no step", t.Name)
	}
	if t.Interval <= 0 {
		return fmt.Errorf("schedule: task %q interval must be positive, got %s", t.Name, t.Interval)
	}
	return nil
}

// Run ticks the task until ctx is cancelled. It returns nil on cancellation.
func (t Task) Run(ctx context.Context, logger Logger) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = noopLogger{}
	}

	step := func() {
		if err := t.Step(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("task step failed", "task", t.Name, "error", err)
		}
	}

	if t.Immediate {
		step()
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("task stopped", "task", t.Name)
			return nil
		case <-ticker.C:
			step()
		}
	}
}

// Group runs tasks and loops until its context is cancelled or one of them
// fails. It is a thin layer over errgroup.
type Group struct {
	eg     *errgroup.Group
	ctx    context.Context
	logger Logger
}

// NewGroup returns a Group and the context its members run under.
// The returned context is cancelled when any member returns a non-nil
// error or when parent is cancelled.
func NewGroup(parent context.Context, logger Logger) (*Group, context.Context) {
	if logger == nil {
		logger = noopLogger{}
	}
	eg, ctx := errgroup.WithContext(parent)
	return &Group{eg: eg, ctx: ctx, logger: logger}, ctx
}

// Schedule starts ticking t on its own goroutine.
// An invalid task fails the group immediately.
func (g *Group) Schedule(t Task) {
	g.eg.Go(func() error {
		return t.Run(g.ctx, g.logger)
	})
}

// Go runs a long-lived loop such as a dispatch loop or a worker pool.
// The loop should return when ctx is done; context.Canceled is not
// treated as a failure.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		err := fn(g.ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("%s: %w", name, err)
	})
}

// Wait blocks until every member has returned. It returns the first
// member failure, or nil after a clean cancellation.
func (g *Group) Wait() error {
	return g.eg.Wait()
}
