package resource

import (
	"context"
	"time"
)

// Sample is one synthesised reading, as produced by the sampler and
// consumed by recorders.
type Sample struct {
	SensorID      string
	Profile       string
	Type          string
	Value         float64
	Unit          string
	ContainerPath string
	At            time.Time
}

// Measurement returns the wire payload for the sample.
func (s Sample) Measurement() Measurement {
	return Measurement{Value: s.Value, Type: s.Type, Unit: s.Unit}
}

// Recorder persists or exports samples outside the broker.
// Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, s Sample) error
}
