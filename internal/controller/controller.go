package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/fieldsim/internal/discovery"
	"github.com/nerrad567/fieldsim/internal/resource"
	"github.com/nerrad567/fieldsim/internal/subscription"
)

// Pusher sends a payload to a container. *pusher.Queue satisfies it.
type Pusher interface {
	Push(ctx context.Context, containerPath string, payload []byte) error
}

// Logger defines the logging interface used by the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Stats is a snapshot of controller counters.
type Stats struct {
	Measurements uint64
	Malformed    uint64
	Commands     uint64
	PushFailures uint64
	Actuators    int
}

// Controller evaluates rules against incoming measurements.
type Controller struct {
	rules     []Rule
	actuators *ActuatorRegistry
	pusher    Pusher

	measurements atomic.Uint64
	malformed    atomic.Uint64
	commands     atomic.Uint64
	pushFailures atomic.Uint64

	logger Logger
}

// New creates a controller. With no rules the default fan rule applies.
func New(rules []Rule, pusher Pusher) (*Controller, error) {
	if len(rules) == 0 {
		rules = []Rule{DefaultRule()}
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return &Controller{
		rules:     rules,
		actuators: NewActuatorRegistry(),
		pusher:    pusher,
		logger:    noopLogger{},
	}, nil
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// Rules returns the configured rules.
func (c *Controller) Rules() []Rule {
	return c.rules
}

// Actuators returns the actuator registry.
func (c *Controller) Actuators() *ActuatorRegistry {
	return c.actuators
}

// RegisterActuators adds discovered commands containers to the registry.
// It matches discovery.Handler.
func (c *Controller) RegisterActuators(_ context.Context, records []discovery.Record) {
	for _, r := range records {
		a := ActuatorFromRecord(r)
		if c.actuators.Register(a) {
			c.logger.Info("actuator registered", "id", a.ID, "capabilities", a.Capabilities)
		}
	}
}

// OnMeasurement evaluates every rule for m's type and pushes the resulting
// commands to the selected actuators.
//
// Parameters:
//   - ctx: Context for the pushes
//   - containerPath: Measurement container the reading came from
//   - m: The decoded reading
//
// Returns:
//   - int: Number of commands dispatched
//   - error: Joined push failures; dispatch continues past each one
func (c *Controller) OnMeasurement(ctx context.Context, containerPath string, m resource.Measurement) (int, error) {
	c.measurements.Add(1)

	var (
		dispatched int
		errs       []error
	)
	for _, rule := range c.rules {
		cmd, ok := rule.Evaluate(m)
		if !ok {
			continue
		}
		payload, err := cmd.Encode()
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", rule.Name, err))
			continue
		}

		for _, a := range c.actuators.List() {
			if !rule.Selector.Select(a) {
				continue
			}
			if err := c.pusher.Push(ctx, a.ID, payload); err != nil {
				c.pushFailures.Add(1)
				errs = append(errs, fmt.Errorf("%w: command to %q: %w", resource.ErrPush, a.ID, err))
				continue
			}
			dispatched++
			c.commands.Add(1)
			c.logger.Info("command dispatched",
				"rule", rule.Name,
				"source", containerPath,
				"value", m.Value,
				"actuator", a.ID,
				"command", cmd.String(),
			)
		}
	}
	return dispatched, errors.Join(errs...)
}

// MeasurementHandler adapts OnMeasurement to a subscription handler.
// Malformed payloads are counted and returned as ErrInvalidPayload.
func (c *Controller) MeasurementHandler() subscription.Handler {
	return func(ctx context.Context, containerPath string, payload []byte) error {
		m, err := resource.DecodeMeasurement(payload)
		if err != nil {
			c.malformed.Add(1)
			return fmt.Errorf("measurement from %q: %w", containerPath, err)
		}
		c.logger.Debug("measurement received", "path", containerPath, "type", m.Type, "value", m.Value)
		_, err = c.OnMeasurement(ctx, containerPath, m)
		return err
	}
}

// Stats returns a snapshot of the controller counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Measurements: c.measurements.Load(),
		Malformed:    c.malformed.Load(),
		Commands:     c.commands.Load(),
		PushFailures: c.pushFailures.Load(),
		Actuators:    c.actuators.Len(),
	}
}
