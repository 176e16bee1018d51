package subscription

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/fieldsim/internal/resource"
)

// Broker is the part of resource.Broker the registry needs.
type Broker interface {
	Subscribe(ctx context.Context, containerPath string) error
	Unsubscribe(ctx context.Context, containerPath string) error
	Notifications() <-chan resource.Notification
}

// Handler processes one notification. A returned error is logged and the
// notification discarded.
type Handler func(ctx context.Context, containerPath string, payload []byte) error

// Binding is one registered path and its handler.
type Binding struct {
	ContainerPath string
	Handler       Handler
	BoundAt       time.Time
}

// SubscriptionError reports a subscription the broker rejected.
// It unwraps to resource.ErrSubscription and the cause.
type SubscriptionError struct {
	ContainerPath string
	Err           error
}

// Error implements error.
func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription: subscribing to %q: %v", e.ContainerPath, e.Err)
}

// Unwrap allows errors.Is to match resource.ErrSubscription and the cause.
func (e *SubscriptionError) Unwrap() []error {
	return []error{resource.ErrSubscription, e.Err}
}

// Logger defines the logging interface used by the registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a snapshot of registry counters.
type Stats struct {
	Bindings      int
	Delivered     uint64
	Unbound       uint64
	HandlerErrors uint64
}

// Registry maps container paths to handlers.
type Registry struct {
	broker Broker

	// subMu serialises Subscribe so the broker is asked at most once per
	// path even under concurrent discovery callbacks.
	subMu sync.Mutex

	mu       sync.RWMutex
	bindings map[string]Binding

	delivered     atomic.Uint64
	unbound       atomic.Uint64
	handlerErrors atomic.Uint64

	logger Logger
}

// New creates a registry over broker.
func New(broker Broker) *Registry {
	return &Registry{
		broker:   broker,
		bindings: make(map[string]Binding),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Subscribe binds handler to containerPath.
//
// Returns:
//   - error: nil when bound or already bound; *SubscriptionError when the
//     broker rejects the subscription (no binding is stored)
func (r *Registry) Subscribe(ctx context.Context, containerPath string, handler Handler) error {
	if handler == nil {
		return errors.New("subscription: handler is required")
	}
	path := resource.Clean(containerPath)

	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.bound(path) {
		r.logger.Debug("already subscribed", "path", path)
		return nil
	}

	if err := r.broker.Subscribe(ctx, path); err != nil {
		return &SubscriptionError{ContainerPath: path, Err: err}
	}

	r.mu.Lock()
	r.bindings[path] = Binding{ContainerPath: path, Handler: handler, BoundAt: time.Now().UTC()}
	r.mu.Unlock()

	r.logger.Info("subscribed", "path", path)
	return nil
}

func (r *Registry) bound(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bindings[path]
	return ok
}

// Deliver invokes the handler bound to containerPath synchronously.
// It returns false when no binding exists; the notification is dropped.
func (r *Registry) Deliver(ctx context.Context, containerPath string, payload []byte) bool {
	path := resource.Clean(containerPath)

	r.mu.RLock()
	b, ok := r.bindings[path]
	r.mu.RUnlock()

	if !ok {
		r.unbound.Add(1)
		r.logger.Warn("notification for unbound path dropped", "path", path)
		return false
	}

	r.delivered.Add(1)
	if err := r.call(ctx, b, payload); err != nil {
		r.handlerErrors.Add(1)
		r.logger.Warn("notification handler failed", "path", path, "error", err)
	}
	return true
}

// call runs the handler, turning a panic into an error so one bad
// notification cannot stop the dispatch loop.
func (r *Registry) call(ctx context.Context, b Binding, payload []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return b.Handler(ctx, b.ContainerPath, payload)
}

// Run dispatches broker notifications until ctx is cancelled or the
// notification channel closes.
func (r *Registry) Run(ctx context.Context) error {
	notifications := r.broker.Notifications()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notifications:
			if !ok {
				r.logger.Debug("notification channel closed")
				return nil
			}
			r.Deliver(ctx, n.ContainerPath, n.Payload)
		}
	}
}

// Close unsubscribes every binding. All paths are attempted; failures are
// joined into the returned error.
func (r *Registry) Close(ctx context.Context) error {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	r.mu.Lock()
	paths := slices.Sorted(maps.Keys(r.bindings))
	clear(r.bindings)
	r.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := r.broker.Unsubscribe(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribing %q: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// Paths returns the bound container paths, sorted.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.bindings))
}

// Stats returns a snapshot of the registry counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	n := len(r.bindings)
	r.mu.RUnlock()
	return Stats{
		Bindings:      n,
		Delivered:     r.delivered.Load(),
		Unbound:       r.unbound.Load(),
		HandlerErrors: r.handlerErrors.Load(),
	}
}
