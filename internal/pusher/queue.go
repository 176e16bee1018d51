package pusher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/fieldsim/internal/infrastructure/config"
	"github.com/nerrad567/fieldsim/internal/resource"
)

// Default queue settings.
const (
	DefaultQueueSize       = 64
	DefaultWorkers         = 1
	DefaultShutdownTimeout = 2 * time.Second
)

// ErrClosed is returned by Push after the queue has shut down.
var ErrClosed = errors.New("pusher: queue closed")

// Target receives pushes. resource.Broker satisfies it.
type Target interface {
	PushContent(ctx context.Context, containerPath string, payload []byte) error
}

// Logger defines the logging interface used by the queue.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a snapshot of queue counters.
type Stats struct {
	Enqueued uint64
	Pushed   uint64
	Failed   uint64
	Dropped  uint64
	Retries  uint64
}

type job struct {
	path    string
	payload []byte
	queued  time.Time
}

// Queue is a bounded asynchronous push queue.
type Queue struct {
	target Target
	cfg    config.PushConfig

	// mu serialises enqueue so drop-oldest and the closed check are atomic
	// with respect to each other.
	mu     sync.Mutex
	closed bool
	jobs   chan job

	enqueued atomic.Uint64
	pushed   atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
	retries  atomic.Uint64

	logger Logger
}

// New creates a queue that delivers to target. Zero values in cfg select
// the package defaults.
func New(target Target, cfg config.PushConfig) *Queue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Queue{
		target: target,
		cfg:    cfg,
		jobs:   make(chan job, cfg.QueueSize),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the queue.
func (q *Queue) SetLogger(logger Logger) {
	q.logger = logger
}

// Push enqueues payload for containerPath. It returns without waiting for
// delivery. If the queue is full the oldest waiting entry is dropped.
//
// Returns ErrClosed once the queue has shut down, or ctx.Err() if ctx is
// already done.
func (q *Queue) Push(ctx context.Context, containerPath string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	j := job{path: containerPath, payload: payload, queued: time.Now()}
	for {
		select {
		case q.jobs <- j:
			q.enqueued.Add(1)
			return nil
		default:
		}

		select {
		case old := <-q.jobs:
			q.dropped.Add(1)
			q.logger.Warn("push queue full, dropped oldest entry",
				"path", old.path,
				"queued_for", time.Since(old.queued),
			)
		default:
		}
	}
}

// Run starts the workers and blocks until ctx is cancelled. It then stops
// accepting pushes and drains the remaining entries until the shutdown
// timeout. Run returns nil.
func (q *Queue) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for range q.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.cfg.ShutdownTimeout)
	defer cancel()
	q.drain(drainCtx)
	return nil
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			q.deliver(ctx, j)
		}
	}
}

// drain delivers whatever is still queued. Entries left when ctx expires
// are counted as dropped.
func (q *Queue) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			if n := len(q.jobs); n > 0 {
				q.dropped.Add(uint64(n))
				q.logger.Warn("shutdown timeout, discarding queued pushes", "count", n)
			}
			return
		}
		select {
		case j := <-q.jobs:
			q.deliver(ctx, j)
		default:
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, j job) {
	attempts := 0
	op := func() error {
		attempts++
		err := q.target.PushContent(ctx, j.path, j.payload)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var err error
	if q.cfg.MaxRetries == 0 {
		err = q.target.PushContent(ctx, j.path, j.payload)
	} else {
		notify := func(err error, wait time.Duration) {
			q.retries.Add(1)
			q.logger.Debug("push failed, retrying", "path", j.path, "attempt", attempts, "wait", wait, "error", err)
		}
		err = backoff.RetryNotify(op, q.retryPolicy(ctx), notify)
	}

	if err != nil {
		q.failed.Add(1)
		q.logger.Error("push failed, dropping", "path", j.path, "error", err)
		return
	}
	q.pushed.Add(1)
}

func (q *Queue) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if q.cfg.RetryInitialInterval > 0 {
		b.InitialInterval = q.cfg.RetryInitialInterval
	}
	if q.cfg.RetryMaxInterval > 0 {
		b.MaxInterval = q.cfg.RetryMaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(q.cfg.MaxRetries)), ctx)
}

// retryable reports whether a push failure may succeed on a later attempt.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, resource.ErrClosed), errors.Is(err, resource.ErrInvalidPath), errors.Is(err, resource.ErrNotFound):
		return false
	default:
		return true
	}
}

// Len returns the number of entries waiting.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued: q.enqueued.Load(),
		Pushed:   q.pushed.Load(),
		Failed:   q.failed.Load(),
		Dropped:  q.dropped.Load(),
		Retries:  q.retries.Load(),
	}
}
