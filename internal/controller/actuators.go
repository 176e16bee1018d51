package controller

import (
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/fieldsim/internal/discovery"
	"github.com/nerrad567/fieldsim/internal/resource"
	"github.com/nerrad567/fieldsim/internal/tree"
)

// Actuator is a registered command target.
type Actuator struct {
	// ID is the commands container path.
	ID string

	// Name is the actuator resource name (the container's parent).
	Name string

	Capabilities []string
	RegisteredAt time.Time
}

// ActuatorFromRecord converts a discovered commands container. The
// structural "commands" label is not a capability.
func ActuatorFromRecord(r discovery.Record) Actuator {
	caps := slices.DeleteFunc(resource.NormaliseLabels(r.Labels), func(l string) bool {
		return l == tree.LabelCommands
	})
	return Actuator{
		ID:           r.URI,
		Name:         resource.Base(resource.Parent(r.URI)),
		Capabilities: caps,
		RegisteredAt: r.FirstSeenAt,
	}
}

// ActuatorRegistry is an append-only set of actuators keyed by ID.
type ActuatorRegistry struct {
	mu        sync.RWMutex
	order     []string
	actuators map[string]Actuator
}

// NewActuatorRegistry creates an empty registry.
func NewActuatorRegistry() *ActuatorRegistry {
	return &ActuatorRegistry{actuators: make(map[string]Actuator)}
}

// Register adds a. It returns false if the ID is already registered; the
// existing entry is kept.
func (r *ActuatorRegistry) Register(a Actuator) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actuators[a.ID]; ok {
		return false
	}
	if a.RegisteredAt.IsZero() {
		a.RegisteredAt = time.Now().UTC()
	}
	a.Capabilities = slices.Clone(a.Capabilities)
	r.actuators[a.ID] = a
	r.order = append(r.order, a.ID)
	return true
}

// List returns actuators in registration order.
func (r *ActuatorRegistry) List() []Actuator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Actuator, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.actuators[id])
	}
	return out
}

// Get returns the actuator with the given ID.
func (r *ActuatorRegistry) Get(id string) (Actuator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actuators[id]
	return a, ok
}

// Len returns the number of registered actuators.
func (r *ActuatorRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
