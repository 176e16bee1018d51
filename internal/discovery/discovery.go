// Package discovery finds broker containers by label and reports each one
// exactly once.
//
// A Task polls the broker on a fixed interval. Every poll takes a snapshot
// of matching nodes, subtracts the URIs already reported, and hands only
// the new ones to the task's callback, sorted by URI. A failed poll is
// logged and the next poll runs as scheduled.
package discovery

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/fieldsim/internal/resource"
	"github.com/nerrad567/fieldsim/internal/schedule"
)

// DefaultInterval is the poll period when a Query leaves it unset.
const DefaultInterval = time.Second

// Discoverer is the part of resource.Broker discovery needs.
type Discoverer interface {
	Discover(ctx context.Context, root string, labels []string) ([]resource.Node, error)
}

// Logger defines the logging interface used by discovery.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Record is a discovered container.
type Record struct {
	URI         string
	Labels      []string
	FirstSeenAt time.Time
}

// Query describes what a task looks for.
type Query struct {
	// Name identifies the task in logs (e.g. "measurements").
	Name string

	// Root restricts discovery to nodes under this path.
	Root string

	// Labels every reported node must carry.
	Labels []string

	// Interval between polls. Default: 1s.
	Interval time.Duration
}

// Handler receives newly discovered records. It runs on the polling
// goroutine and must not call back into the Task.
type Handler func(ctx context.Context, records []Record)

// Service creates discovery tasks against one broker.
type Service struct {
	broker Discoverer
	now    func() time.Time
	logger Logger
}

// NewService creates a discovery service.
func NewService(broker Discoverer) *Service {
	return &Service{
		broker: broker,
		now:    func() time.Time { return time.Now().UTC() },
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the service and the tasks it creates.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// NewTask creates a task without starting it. Poll it directly or hand
// Schedule() to a schedule.Group.
func (s *Service) NewTask(q Query, onNew Handler) (*Task, error) {
	if onNew == nil {
		return nil, errors.New("discovery: handler is required")
	}
	if q.Interval <= 0 {
		q.Interval = DefaultInterval
	}
	if q.Name == "" {
		q.Name = fmt.Sprintf("%v", q.Labels)
	}
	return &Task{
		svc:      s,
		query:    q,
		onNew:    onNew,
		reported: make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start creates a task and polls it on its own goroutine until ctx is
// cancelled. The first poll runs immediately.
func (s *Service) Start(ctx context.Context, q Query, onNew Handler) (*Task, error) {
	t, err := s.NewTask(q, onNew)
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(t.done)
		_ = t.Schedule().Run(ctx, s.logger)
	}()
	return t, nil
}

// Task is one periodic discovery query.
type Task struct {
	svc   *Service
	query Query
	onNew Handler

	// pollMu serialises polls so the reported set is merged in order.
	pollMu   sync.Mutex
	reported map[string]struct{}
	failures int

	done chan struct{}
}

// Query returns the task's query.
func (t *Task) Query() Query {
	return t.query
}

// Schedule returns the periodic task that calls Poll.
func (t *Task) Schedule() schedule.Task {
	return schedule.Task{
		Name:      "discovery/" + t.query.Name,
		Interval:  t.query.Interval,
		Immediate: true,
		Step: func(ctx context.Context) error {
			// Poll logs its own failures.
			_, _ = t.Poll(ctx)
			return nil
		},
	}
}

// Poll performs one discovery round.
//
// Returns:
//   - []Record: Records reported by this poll, sorted by URI
//   - error: ErrDiscovery wrapping the broker failure
func (t *Task) Poll(ctx context.Context) ([]Record, error) {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()

	nodes, err := t.svc.broker.Discover(ctx, t.query.Root, t.query.Labels)
	if err != nil {
		t.failures++
		if !errors.Is(err, resource.ErrDiscovery) {
			err = fmt.Errorf("%w: %w", resource.ErrDiscovery, err)
		}
		if ctx.Err() == nil {
			t.svc.logger.Warn("discovery poll failed", "task", t.query.Name, "root", t.query.Root, "error", err)
		}
		return nil, err
	}

	now := t.svc.now()
	var fresh []Record
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if _, ok := t.reported[n.Path]; ok {
			continue
		}
		if _, ok := seen[n.Path]; ok {
			continue
		}
		seen[n.Path] = struct{}{}
		fresh = append(fresh, Record{URI: n.Path, Labels: slices.Clone(n.Labels), FirstSeenAt: now})
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	slices.SortFunc(fresh, func(a, b Record) int { return cmp.Compare(a.URI, b.URI) })

	t.svc.logger.Info("discovered containers", "task", t.query.Name, "count", len(fresh))
	t.onNew(ctx, fresh)

	for _, r := range fresh {
		t.reported[r.URI] = struct{}{}
	}
	return fresh, nil
}

// Reported returns how many URIs the task has reported.
func (t *Task) Reported() int {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()
	return len(t.reported)
}

// Failures returns how many polls have failed.
func (t *Task) Failures() int {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()
	return t.failures
}

// Done is closed when a task started with Service.Start stops.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
