package tree

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/fieldsim/internal/profile"
	"github.com/nerrad567/fieldsim/internal/resource"
)

// Fixed resource names and labels of the subtree layout.
const (
	DevicesName      = "devices"
	MeasurementsName = "measurements"
	CommandsName     = "commands"

	LabelDevices      = "devices"
	LabelSensor       = "sensor"
	LabelActuator     = "actuator"
	LabelMeasurements = "measurements"
	LabelCommands     = "commands"
)

// DefaultRetention is the shipped MaxInstances for measurement and command
// containers.
const DefaultRetention = 3

// ErrRootNotReady is returned when a subtree is requested before EnsureRoot.
var ErrRootNotReady = errors.New("tree: devices root not created")

// Creator is the part of resource.Broker the Manager needs.
type Creator interface {
	CreateResource(ctx context.Context, spec resource.Spec) (resource.Node, error)
}

// Logger defines the logging interface used by the Manager.
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

// Container is a created measurement or commands container together with
// the sensor or actuator node that owns it.
//
// A Container is immutable once returned.
type Container struct {
	// OwnerID is the sensor or actuator ID.
	OwnerID string

	// Owner is the sensor or actuator node.
	Owner resource.Node

	// Node is the measurements or commands container.
	Node resource.Node

	// Profile is set for sensor subtrees.
	Profile profile.Profile

	// Capabilities is set for actuator subtrees.
	Capabilities []string
}

// Path returns the container path content is pushed to.
func (c *Container) Path() string {
	return c.Node.Path
}

// Options configure a Manager.
type Options struct {
	// CSEBase is the base path applications register under (e.g. "onem2m").
	CSEBase string

	// AppName is the application resource name (e.g. "TestIPE").
	AppName string

	// Retention is MaxInstances for leaf containers. Zero or less is
	// unbounded.
	Retention int
}

type ownerKind string

const (
	ownerSensor   ownerKind = "sensor"
	ownerActuator ownerKind = "actuator"
)

type entryKey struct {
	kind ownerKind
	id   string
}

// entry serialises creation for one owner ID. Once done, container or err
// is fixed.
type entry struct {
	mu        sync.Mutex
	done      bool
	container *Container
	err       error
}

// Manager creates device and actuator subtrees idempotently.
//
// All methods are safe for concurrent use. Concurrent first calls for the
// same ID wait on a per-ID lock; different IDs proceed in parallel.
type Manager struct {
	creator   Creator
	basePath  string
	appName   string
	retention int

	rootMu  sync.Mutex
	app     *resource.Node
	devices *resource.Node

	entriesMu sync.Mutex
	entries   map[entryKey]*entry

	logger Logger
}

// New creates a Manager that issues creations through creator.
func New(creator Creator, opts Options) *Manager {
	retention := opts.Retention
	if retention <= 0 {
		retention = resource.Unbounded
	}
	return &Manager{
		creator:   creator,
		basePath:  resource.Clean(opts.CSEBase),
		appName:   opts.AppName,
		retention: retention,
		entries:   make(map[entryKey]*entry),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Retention returns the MaxInstances applied to leaf containers.
func (m *Manager) Retention() int {
	return m.retention
}

// Register creates the application node under the CSE base. It is
// idempotent and is all a consumer-only application needs.
func (m *Manager) Register(ctx context.Context) (resource.Node, error) {
	m.rootMu.Lock()
	defer m.rootMu.Unlock()
	return m.register(ctx)
}

// register must be called with rootMu held.
func (m *Manager) register(ctx context.Context) (resource.Node, error) {
	if m.app != nil {
		return *m.app, nil
	}
	app, err := m.creator.CreateResource(ctx, resource.Spec{
		ParentPath: m.basePath,
		Name:       m.appName,
		Kind:       resource.KindApplication,
	})
	if err != nil {
		return resource.Node{}, fmt.Errorf("registering application %q: %w", m.appName, err)
	}
	m.app = &app
	m.logger.Info("application registered", "path", app.Path)
	return app, nil
}

// EnsureRoot registers the application under the CSE base and creates the
// devices container below it. Both steps are idempotent.
//
// Returns:
//   - resource.Node: The devices container
//   - error: *resource.CreationError if the broker rejects either node
func (m *Manager) EnsureRoot(ctx context.Context) (resource.Node, error) {
	m.rootMu.Lock()
	defer m.rootMu.Unlock()

	if m.devices != nil {
		return *m.devices, nil
	}

	app, err := m.register(ctx)
	if err != nil {
		return resource.Node{}, err
	}

	devices, err := m.creator.CreateResource(ctx, resource.Spec{
		ParentPath:   app.Path,
		Name:         DevicesName,
		Labels:       []string{LabelDevices},
		MaxInstances: resource.Unbounded,
	})
	if err != nil {
		return resource.Node{}, fmt.Errorf("creating devices root: %w", err)
	}
	m.devices = &devices
	return devices, nil
}

// ApplicationPath returns the application node path, or "" before EnsureRoot.
func (m *Manager) ApplicationPath() string {
	m.rootMu.Lock()
	defer m.rootMu.Unlock()
	if m.app == nil {
		return ""
	}
	return m.app.Path
}

func (m *Manager) devicesPath() (string, error) {
	m.rootMu.Lock()
	defer m.rootMu.Unlock()
	if m.devices == nil {
		return "", ErrRootNotReady
	}
	return m.devices.Path, nil
}

// EnsureDeviceSubtree returns the measurements container of a sensor,
// creating the sensor node and its container on the first call.
//
// Parameters:
//   - ctx: Context for the broker calls
//   - sensorID: Sensor resource name
//   - p: Profile whose label tags the measurements container
//
// Returns:
//   - *Container: The same pointer on every successful call for sensorID
//   - error: ErrRootNotReady, or the cached *resource.CreationError
func (m *Manager) EnsureDeviceSubtree(ctx context.Context, sensorID string, p profile.Profile) (*Container, error) {
	return m.ensure(ctx, entryKey{kind: ownerSensor, id: sensorID}, func(devices string) (*Container, error) {
		owner, err := m.creator.CreateResource(ctx, resource.Spec{
			ParentPath:   devices,
			Name:         sensorID,
			Labels:       []string{LabelSensor},
			MaxInstances: resource.Unbounded,
		})
		if err != nil {
			return nil, err
		}
		leaf, err := m.creator.CreateResource(ctx, resource.Spec{
			ParentPath:   owner.Path,
			Name:         MeasurementsName,
			Labels:       []string{LabelMeasurements, p.ContainerLabel()},
			MaxInstances: m.retention,
		})
		if err != nil {
			return nil, err
		}
		return &Container{OwnerID: sensorID, Owner: owner, Node: leaf, Profile: p}, nil
	})
}

// EnsureActuatorSubtree returns the commands container of an actuator,
// creating the actuator node and its container on the first call.
// Capabilities are attached as extra labels on the commands container.
func (m *Manager) EnsureActuatorSubtree(ctx context.Context, actuatorID string, capabilities []string) (*Container, error) {
	caps := resource.NormaliseLabels(capabilities)
	return m.ensure(ctx, entryKey{kind: ownerActuator, id: actuatorID}, func(devices string) (*Container, error) {
		owner, err := m.creator.CreateResource(ctx, resource.Spec{
			ParentPath:   devices,
			Name:         actuatorID,
			Labels:       []string{LabelActuator},
			MaxInstances: resource.Unbounded,
		})
		if err != nil {
			return nil, err
		}
		leaf, err := m.creator.CreateResource(ctx, resource.Spec{
			ParentPath:   owner.Path,
			Name:         CommandsName,
			Labels:       append([]string{LabelCommands}, caps...),
			MaxInstances: m.retention,
		})
		if err != nil {
			return nil, err
		}
		return &Container{OwnerID: actuatorID, Owner: owner, Node: leaf, Capabilities: caps}, nil
	})
}

// ensure runs create once per key. Creation errors are cached; other errors
// (cancelled context, transport trouble) leave the entry open for a retry.
func (m *Manager) ensure(ctx context.Context, key entryKey, create func(devices string) (*Container, error)) (*Container, error) {
	e := m.entry(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return e.container, e.err
	}

	devices, err := m.devicesPath()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := create(devices)
	switch {
	case err == nil:
		e.done, e.container = true, c
		m.logger.Debug("subtree created", string(key.kind), key.id, "path", c.Path())
		return c, nil
	case errors.Is(err, resource.ErrCreation):
		e.done, e.err = true, err
		m.logger.Error("subtree creation failed, skipping from now on", string(key.kind), key.id, "error", err)
		return nil, err
	default:
		return nil, err
	}
}

func (m *Manager) entry(key entryKey) *entry {
	m.entriesMu.Lock()
	defer m.entriesMu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	return e
}

// Lookup returns the cached container for a sensor, if created.
func (m *Manager) Lookup(sensorID string) (*Container, bool) {
	return m.lookup(entryKey{kind: ownerSensor, id: sensorID})
}

// LookupActuator returns the cached commands container for an actuator.
func (m *Manager) LookupActuator(actuatorID string) (*Container, bool) {
	return m.lookup(entryKey{kind: ownerActuator, id: actuatorID})
}

func (m *Manager) lookup(key entryKey) (*Container, bool) {
	m.entriesMu.Lock()
	e, ok := m.entries[key]
	m.entriesMu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.container, e.container != nil
}
