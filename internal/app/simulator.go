package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/fieldsim/internal/archive"
	"github.com/nerrad567/fieldsim/internal/infrastructure/config"
	"github.com/nerrad567/fieldsim/internal/infrastructure/logging"
	"github.com/nerrad567/fieldsim/internal/profile"
	"github.com/nerrad567/fieldsim/internal/pusher"
	"github.com/nerrad567/fieldsim/internal/resource"
	"github.com/nerrad567/fieldsim/internal/sampler"
	"github.com/nerrad567/fieldsim/internal/schedule"
	"github.com/nerrad567/fieldsim/internal/subscription"
	"github.com/nerrad567/fieldsim/internal/tree"
)

// closeTimeout bounds unsubscribing on shutdown.
const closeTimeout = 2 * time.Second

// ActuatorState is the simulated state of one actuator.
type ActuatorState struct {
	ID            string
	ContainerPath string
	Capabilities  []string

	// Directives holds the last value received per directive key.
	Directives map[string]string

	Commands  int
	UpdatedAt time.Time
}

// Simulator is the sensor/actuator side.
type Simulator struct {
	broker    resource.Broker
	tree      *tree.Manager
	queue     *pusher.Queue
	sampler   *sampler.Sampler
	registry  *subscription.Registry
	actuators []config.ActuatorConfig

	sampleLog  archive.SampleRepository
	commandLog archive.CommandRepository

	stateMu sync.RWMutex
	states  map[string]*ActuatorState

	log *logging.Logger
}

// NewSimulator builds a simulator from configuration.
//
// Parameters:
//   - cfg: Full configuration (simulator, broker and push sections are used)
//   - broker: Broker connection owned by the caller
//   - log: Base logger
//
// Returns:
//   - *Simulator: Ready to Run
//   - error: If a profile or sensor definition is invalid
func NewSimulator(cfg *config.Config, broker resource.Broker, log *logging.Logger) (*Simulator, error) {
	profiles, err := profile.NewRegistry(cfg.Simulator.Profiles...)
	if err != nil {
		return nil, fmt.Errorf("loading profiles: %w", err)
	}
	sensors, err := sampler.SensorsFromConfig(cfg.Simulator.Sensors, profiles)
	if err != nil {
		return nil, err
	}

	manager := tree.New(broker, tree.Options{
		CSEBase:   cfg.Broker.CSEBase,
		AppName:   cfg.Simulator.AppName,
		Retention: cfg.Simulator.Retention,
	})
	manager.SetLogger(log.Component("tree"))

	queue := pusher.New(broker, cfg.Push)
	queue.SetLogger(log.Component("pusher").With("app", cfg.Simulator.AppName))

	smp, err := sampler.New(sensors, manager, queue, sampler.Options{
		Interval:  cfg.Simulator.TickInterval,
		Threshold: cfg.Simulator.Threshold,
		Rand:      sampler.NewRand(cfg.Simulator.Seed),
	})
	if err != nil {
		return nil, err
	}
	smp.SetLogger(log.Component("sampler"))

	registry := subscription.New(broker)
	registry.SetLogger(log.Component("subscription").With("app", cfg.Simulator.AppName))

	return &Simulator{
		broker:    broker,
		tree:      manager,
		queue:     queue,
		sampler:   smp,
		registry:  registry,
		actuators: cfg.Simulator.Actuators,
		states:    make(map[string]*ActuatorState),
		log:       log.Component("simulator"),
	}, nil
}

// AddRecorder registers a sample recorder. Must be called before Run.
func (s *Simulator) AddRecorder(r resource.Recorder) {
	s.sampler.AddRecorder(r)
}

// SetSampleArchive records every sample into repo and enables
// RecentSamples. Must be called before Run.
func (s *Simulator) SetSampleArchive(repo archive.SampleRepository) {
	s.sampleLog = repo
	s.sampler.AddRecorder(repo)
}

// SetCommandLog archives every received command. Must be called before Run.
func (s *Simulator) SetCommandLog(repo archive.CommandRepository) {
	s.commandLog = repo
}

// Sampler returns the simulator's sampler.
func (s *Simulator) Sampler() *sampler.Sampler {
	return s.sampler
}

// Tree returns the simulator's tree manager.
func (s *Simulator) Tree() *tree.Manager {
	return s.tree
}

// Setup creates the devices root and every actuator subtree, and
// subscribes to each commands container. Actuators the broker rejects are
// logged and skipped. Run calls Setup.
func (s *Simulator) Setup(ctx context.Context) error {
	if _, err := s.tree.EnsureRoot(ctx); err != nil {
		return err
	}

	for _, a := range s.actuators {
		c, err := s.tree.EnsureActuatorSubtree(ctx, a.ID, a.Capabilities)
		if err != nil {
			if errors.Is(err, resource.ErrCreation) {
				continue
			}
			return fmt.Errorf("creating actuator %q: %w", a.ID, err)
		}

		s.stateMu.Lock()
		if _, ok := s.states[a.ID]; !ok {
			s.states[a.ID] = &ActuatorState{
				ID:            a.ID,
				ContainerPath: c.Path(),
				Capabilities:  c.Capabilities,
				Directives:    make(map[string]string),
			}
		}
		s.stateMu.Unlock()

		if err := s.registry.Subscribe(ctx, c.Path(), s.commandHandler(a.ID)); err != nil {
			s.log.Error("subscribing to actuator commands failed", "actuator", a.ID, "error", err)
		}
	}
	return nil
}

// Run sets up the tree, then samples and serves actuator commands until
// ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.Setup(ctx); err != nil {
		return fmt.Errorf("simulator setup: %w", err)
	}
	s.log.Info("simulator running",
		"sensors", len(s.sampler.Sensors()),
		"actuators", len(s.actuators),
		"application", s.tree.ApplicationPath(),
	)

	g, _ := schedule.NewGroup(ctx, s.log)
	g.Schedule(s.sampler.Task())
	g.Go("push queue", s.queue.Run)
	g.Go("sample recorders", s.sampler.RunRecorders)
	g.Go("command dispatch", s.registry.Run)
	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if cerr := s.registry.Close(closeCtx); cerr != nil {
		s.log.Warn("releasing subscriptions", "error", cerr)
	}
	s.logArchiveSummary(closeCtx)

	s.log.Info("simulator stopped", "samples", s.sampler.Stats().Samples, "pushed", s.queue.Stats().Pushed)
	return err
}

// commandHandler applies commands received on an actuator's container.
func (s *Simulator) commandHandler(actuatorID string) subscription.Handler {
	return func(ctx context.Context, containerPath string, payload []byte) error {
		cmd, err := resource.DecodeCommand(payload)
		if err != nil {
			return fmt.Errorf("command for %q: %w", actuatorID, err)
		}
		now := time.Now().UTC()

		s.stateMu.Lock()
		st, ok := s.states[actuatorID]
		if !ok {
			st = &ActuatorState{ID: actuatorID, ContainerPath: containerPath, Directives: make(map[string]string)}
			s.states[actuatorID] = st
		}
		maps.Copy(st.Directives, cmd.Directives)
		st.Commands++
		st.UpdatedAt = now
		s.stateMu.Unlock()

		s.log.Info("actuator command received", "actuator", actuatorID, "command", cmd.String())

		if s.commandLog != nil {
			rec := archive.CommandRecord{
				ActuatorID:    actuatorID,
				ContainerPath: containerPath,
				Command:       cmd,
				ReceivedAt:    now,
			}
			if err := s.commandLog.RecordCommand(ctx, rec); err != nil {
				s.log.Warn("archiving command failed", "actuator", actuatorID, "error", err)
			}
		}
		return nil
	}
}

// ActuatorState returns a copy of an actuator's simulated state.
func (s *Simulator) ActuatorState(id string) (ActuatorState, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return ActuatorState{}, false
	}
	out := *st
	out.Directives = maps.Clone(st.Directives)
	out.Capabilities = slices.Clone(st.Capabilities)
	return out, true
}

// ActuatorIDs returns the IDs of actuators with state, sorted.
func (s *Simulator) ActuatorIDs() []string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return slices.Sorted(maps.Keys(s.states))
}

// ErrNoArchive is returned by the Recent* queries when no archive is set.
var ErrNoArchive = errors.New("app: no archive configured")

// RecentSamples returns up to limit archived samples of a sensor, newest
// first.
func (s *Simulator) RecentSamples(ctx context.Context, sensorID string, limit int) ([]resource.Sample, error) {
	if s.sampleLog == nil {
		return nil, ErrNoArchive
	}
	return s.sampleLog.List(ctx, archive.SampleFilter{SensorID: sensorID, Limit: limit})
}

// RecentCommands returns up to limit archived commands of an actuator,
// newest first.
func (s *Simulator) RecentCommands(ctx context.Context, actuatorID string, limit int) ([]archive.CommandRecord, error) {
	if s.commandLog == nil {
		return nil, ErrNoArchive
	}
	return s.commandLog.ListCommands(ctx, actuatorID, limit)
}

// logArchiveSummary logs the archive size and each sensor's latest sample.
func (s *Simulator) logArchiveSummary(ctx context.Context) {
	if s.sampleLog == nil {
		return
	}
	total, err := s.sampleLog.Count(ctx)
	if err != nil {
		s.log.Warn("reading archive failed", "error", err)
		return
	}
	s.log.Info("archive summary", "samples", total)

	for _, sensor := range s.sampler.Sensors() {
		latest, err := s.RecentSamples(ctx, sensor.ID, 1)
		if err != nil {
			s.log.Warn("reading archive failed", "sensor", sensor.ID, "error", err)
			continue
		}
		if len(latest) == 0 {
			continue
		}
		s.log.Info("latest archived sample",
			"sensor", sensor.ID,
			"value", latest[0].Value,
			"unit", latest[0].Unit,
			"at", latest[0].At,
		)
	}
}
