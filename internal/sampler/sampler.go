package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/fieldsim/internal/infrastructure/config"
	"github.com/nerrad567/fieldsim/internal/profile"
	"github.com/nerrad567/fieldsim/internal/resource"
	"github.com/nerrad567/fieldsim/internal/schedule"
	"github.com/nerrad567/fieldsim/internal/tree"
)

// DefaultInterval is the tick period when none is configured.
const DefaultInterval = time.Second

// ErrNoSensors is returned by New when no sensors are configured.
var ErrNoSensors = errors.New("sampler: no sensors configured")

// Rand is the random source. Float64 must return values in [0, 1).
type Rand interface {
	Float64() float64
}

// NewRand returns a PCG source. A zero seed seeds from the clock.
func NewRand(seed uint64) Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Sensor is a simulated sensor bound to its profile.
type Sensor struct {
	ID      string
	Profile profile.Profile
}

// SensorsFromConfig resolves configured sensors against reg.
func SensorsFromConfig(cfgs []config.SensorConfig, reg *profile.Registry) ([]Sensor, error) {
	sensors := make([]Sensor, 0, len(cfgs))
	for _, c := range cfgs {
		p, err := reg.Get(c.Profile)
		if err != nil {
			return nil, fmt.Errorf("sensor %q: %w", c.ID, err)
		}
		sensors = append(sensors, Sensor{ID: c.ID, Profile: p})
	}
	return sensors, nil
}

// Ensurer creates or returns a sensor's measurement container.
// *tree.Manager satisfies it.
type Ensurer interface {
	EnsureDeviceSubtree(ctx context.Context, sensorID string, p profile.Profile) (*tree.Container, error)
}

// Enqueuer accepts pushes. *pusher.Queue satisfies it.
type Enqueuer interface {
	Push(ctx context.Context, containerPath string, payload []byte) error
}

// Logger defines the logging interface used by the sampler.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configure a Sampler.
type Options struct {
	// Interval is the tick period. Default: 1s.
	Interval time.Duration

	// Threshold in [0, 1). A tick produces a sample only when its first
	// draw exceeds it; zero samples on every tick with a non-zero draw.
	Threshold float64

	// Rand overrides the random source.
	Rand Rand

	// Now overrides the clock used for sample timestamps.
	Now func() time.Time

	// RecordBuffer bounds samples waiting for recorders.
	// Default: DefaultRecordBuffer.
	RecordBuffer int
}

// Stats is a snapshot of sampler counters.
type Stats struct {
	Ticks    uint64
	Samples  uint64
	Idle     uint64
	Skipped  uint64
	Failures uint64

	// RecordDropped counts samples that never reached the recorders.
	RecordDropped uint64
}

// Sampler produces synthetic readings on each tick.
type Sampler struct {
	sensors   []Sensor
	ensurer   Ensurer
	queue     Enqueuer
	recorders []resource.Recorder
	records   chan resource.Sample
	interval  time.Duration
	threshold float64
	now       func() time.Time

	rngMu sync.Mutex
	rng   Rand

	ticks    atomic.Uint64
	samples  atomic.Uint64
	idle     atomic.Uint64
	skipped  atomic.Uint64
	failures atomic.Uint64

	recordDropped atomic.Uint64

	logger Logger
}

// New creates a sampler over sensors.
//
// Returns ErrNoSensors when sensors is empty, or an error when the
// threshold is outside [0, 1).
func New(sensors []Sensor, ensurer Ensurer, queue Enqueuer, opts Options) (*Sampler, error) {
	if len(sensors) == 0 {
		return nil, ErrNoSensors
	}
	if opts.Threshold < 0 || opts.Threshold >= 1 {
		return nil, fmt.Errorf("sampler: threshold %v must be in [0, 1)", opts.Threshold)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Rand == nil {
		opts.Rand = NewRand(0)
	}
	if opts.RecordBuffer <= 0 {
		opts.RecordBuffer = DefaultRecordBuffer
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Sampler{
		sensors:   sensors,
		ensurer:   ensurer,
		queue:     queue,
		interval:  opts.Interval,
		threshold: opts.Threshold,
		now:       opts.Now,
		records:   make(chan resource.Sample, opts.RecordBuffer),
		rng:       opts.Rand,
		logger:    noopLogger{},
	}, nil
}

// SetLogger sets the logger for the sampler.
func (s *Sampler) SetLogger(logger Logger) {
	s.logger = logger
}

// AddRecorder registers a recorder that receives every enqueued sample.
// Recorders run on RunRecorders, not on the tick. Must be called before the
// sampler starts.
func (s *Sampler) AddRecorder(r resource.Recorder) {
	s.recorders = append(s.recorders, r)
}

// Sensors returns the configured sensors.
func (s *Sampler) Sensors() []Sensor {
	return s.sensors
}

// Task returns the periodic task that calls Tick.
func (s *Sampler) Task() schedule.Task {
	return schedule.Task{
		Name:     "sampler",
		Interval: s.interval,
		Step: func(ctx context.Context) error {
			_, _, err := s.Tick(ctx)
			return err
		},
	}
}

// draw returns the three uniform draws of one tick. The selection and value
// draws are only taken when the first exceeds the threshold.
func (s *Sampler) draw() (fire bool, pick, v float64) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	if s.rng.Float64() <= s.threshold {
		return false, 0, 0
	}
	return true, s.rng.Float64(), s.rng.Float64()
}

// Tick performs one sampling step.
//
// Returns:
//   - resource.Sample: The produced sample, when ok
//   - bool: false for an idle tick or a skipped sensor
//   - error: Non-creation ensure failures and enqueue failures
func (s *Sampler) Tick(ctx context.Context) (resource.Sample, bool, error) {
	s.ticks.Add(1)

	fire, pick, v := s.draw()
	if !fire {
		s.idle.Add(1)
		return resource.Sample{}, false, nil
	}

	idx := int(math.Floor(pick * float64(len(s.sensors))))
	if idx >= len(s.sensors) {
		idx = len(s.sensors) - 1
	}
	sensor := s.sensors[idx]
	_, value := sensor.Profile.Generate(v)

	container, err := s.ensurer.EnsureDeviceSubtree(ctx, sensor.ID, sensor.Profile)
	if err != nil {
		if errors.Is(err, resource.ErrCreation) {
			s.skipped.Add(1)
			s.logger.Debug("skipping sensor with failed subtree", "sensor", sensor.ID, "error", err)
			return resource.Sample{}, false, nil
		}
		s.failures.Add(1)
		return resource.Sample{}, false, fmt.Errorf("ensuring subtree for %q: %w", sensor.ID, err)
	}

	sample := resource.Sample{
		SensorID:      sensor.ID,
		Profile:       sensor.Profile.Name,
		Type:          sensor.Profile.DisplayType,
		Value:         value,
		Unit:          sensor.Profile.Unit,
		ContainerPath: container.Path(),
		At:            s.now(),
	}

	payload, err := sample.Measurement().Encode()
	if err != nil {
		s.failures.Add(1)
		return resource.Sample{}, false, err
	}
	if err := s.queue.Push(ctx, sample.ContainerPath, payload); err != nil {
		s.failures.Add(1)
		return resource.Sample{}, false, fmt.Errorf("enqueueing sample for %q: %w", sensor.ID, err)
	}
	s.samples.Add(1)

	s.offer(sample)

	s.logger.Debug("sample enqueued", "sensor", sensor.ID, "value", value, "path", sample.ContainerPath)
	return sample, true, nil
}

// Stats returns a snapshot of the sampler counters.
func (s *Sampler) Stats() Stats {
	return Stats{
		Ticks:    s.ticks.Load(),
		Samples:  s.samples.Load(),
		Idle:     s.idle.Load(),
		Skipped:  s.skipped.Load(),
		Failures: s.failures.Load(),

		RecordDropped: s.recordDropped.Load(),
	}
}
