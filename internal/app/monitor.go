package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/fieldsim/internal/controller"
	"github.com/nerrad567/fieldsim/internal/discovery"
	"github.com/nerrad567/fieldsim/internal/infrastructure/config"
	"github.com/nerrad567/fieldsim/internal/infrastructure/logging"
	"github.com/nerrad567/fieldsim/internal/pusher"
	"github.com/nerrad567/fieldsim/internal/resource"
	"github.com/nerrad567/fieldsim/internal/schedule"
	"github.com/nerrad567/fieldsim/internal/subscription"
	"github.com/nerrad567/fieldsim/internal/tree"
)

// MonitorStats is a snapshot of the monitor's counters.
type MonitorStats struct {
	Controller         controller.Stats
	Subscriptions      subscription.Stats
	Push               pusher.Stats
	SubscriptionErrors uint64
}

// Monitor is the discovering, reacting side.
type Monitor struct {
	tree       *tree.Manager
	queue      *pusher.Queue
	registry   *subscription.Registry
	controller *controller.Controller

	measurements *discovery.Task
	commands     *discovery.Task

	subErrors atomic.Uint64

	log *logging.Logger
}

// NewMonitor builds a monitor from configuration.
//
// Parameters:
//   - cfg: Full configuration (monitor, broker and push sections are used)
//   - broker: Broker connection owned by the caller
//   - log: Base logger
//
// Returns:
//   - *Monitor: Ready to Run
//   - error: If a rule or selector is invalid
func NewMonitor(cfg *config.Config, broker resource.Broker, log *logging.Logger) (*Monitor, error) {
	rules, err := controller.RulesFromConfig(cfg.Monitor.Selector, cfg.Monitor.Rules)
	if err != nil {
		return nil, err
	}

	queue := pusher.New(broker, cfg.Push)
	queue.SetLogger(log.Component("pusher").With("app", cfg.Monitor.AppName))

	ctrl, err := controller.New(rules, queue)
	if err != nil {
		return nil, err
	}
	ctrl.SetLogger(log.Component("controller"))

	registry := subscription.New(broker)
	registry.SetLogger(log.Component("subscription").With("app", cfg.Monitor.AppName))

	manager := tree.New(broker, tree.Options{
		CSEBase: cfg.Broker.CSEBase,
		AppName: cfg.Monitor.AppName,
	})
	manager.SetLogger(log.Component("tree"))

	m := &Monitor{
		tree:       manager,
		queue:      queue,
		registry:   registry,
		controller: ctrl,
		log:        log.Component("monitor"),
	}

	root := cfg.Monitor.DiscoveryRoot
	if root == "" {
		root = cfg.Broker.CSEBase
	}
	svc := discovery.NewService(broker)
	svc.SetLogger(log.Component("discovery"))

	m.measurements, err = svc.NewTask(discovery.Query{
		Name:     "measurements",
		Root:     root,
		Labels:   cfg.Monitor.MeasurementLabels,
		Interval: cfg.Monitor.DiscoveryInterval,
	}, m.subscribeMeasurements)
	if err != nil {
		return nil, err
	}
	m.commands, err = svc.NewTask(discovery.Query{
		Name:     "commands",
		Root:     root,
		Labels:   cfg.Monitor.CommandLabels,
		Interval: cfg.Monitor.DiscoveryInterval,
	}, ctrl.RegisterActuators)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Controller returns the monitor's controller.
func (m *Monitor) Controller() *controller.Controller {
	return m.controller
}

// Setup registers the monitor application. Run calls Setup.
func (m *Monitor) Setup(ctx context.Context) error {
	_, err := m.tree.Register(ctx)
	return err
}

// Poll runs one round of both discovery queries, commands first so
// actuators are known before their measurements arrive.
func (m *Monitor) Poll(ctx context.Context) error {
	if _, err := m.commands.Poll(ctx); err != nil {
		return err
	}
	_, err := m.measurements.Poll(ctx)
	return err
}

// Run registers, then discovers, subscribes and reacts until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Setup(ctx); err != nil {
		return fmt.Errorf("monitor setup: %w", err)
	}
	m.log.Info("monitor running",
		"application", m.tree.ApplicationPath(),
		"rules", len(m.controller.Rules()),
	)

	g, _ := schedule.NewGroup(ctx, m.log)
	g.Schedule(m.commands.Schedule())
	g.Schedule(m.measurements.Schedule())
	g.Go("push queue", m.queue.Run)
	g.Go("notification dispatch", m.registry.Run)
	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if cerr := m.registry.Close(closeCtx); cerr != nil {
		m.log.Warn("releasing subscriptions", "error", cerr)
	}

	st := m.Stats()
	m.log.Info("monitor stopped",
		"measurements", st.Controller.Measurements,
		"commands", st.Controller.Commands,
		"actuators", st.Controller.Actuators,
	)
	return err
}

// subscribeMeasurements binds newly discovered measurement containers to
// the controller. Discovery has already marked the records reported, so a
// rejected subscription is counted and not retried.
func (m *Monitor) subscribeMeasurements(ctx context.Context, records []discovery.Record) {
	handler := m.controller.MeasurementHandler()
	for _, r := range records {
		err := m.registry.Subscribe(ctx, r.URI, handler)
		if err == nil {
			continue
		}
		var se *subscription.SubscriptionError
		if errors.As(err, &se) {
			m.subErrors.Add(1)
		}
		m.log.Error("subscribing to measurements failed", "path", r.URI, "error", err)
	}
}

// Stats returns a snapshot of the monitor's counters.
func (m *Monitor) Stats() MonitorStats {
	return MonitorStats{
		Controller:         m.controller.Stats(),
		Subscriptions:      m.registry.Stats(),
		Push:               m.queue.Stats(),
		SubscriptionErrors: m.subErrors.Load(),
	}
}
