package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
)

// Measurement is the wire payload pushed to a measurement container.
//
//	{"value": 21.5, "type": "temperature", "unit": "degreeC"}
type Measurement struct {
	Value float64 `json:"value"`
	Type  string  `json:"type"`
	Unit  string  `json:"unit"`
}

// measurementWire uses a pointer so a missing "value" is distinguishable
// from an explicit zero.
type measurementWire struct {
	Value *float64 `json:"value"`
	Type  *string  `json:"type"`
	Unit  string   `json:"unit"`
}

// Encode marshals the measurement for PushContent.
func (m Measurement) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Validate checks the measurement can cross the broker boundary.
func (m Measurement) Validate() error {
	if strings.TrimSpace(m.Type) == "" {
		return fmt.Errorf("%w: measurement type is required", ErrInvalidPayload)
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return fmt.Errorf("%w: measurement value must be finite", ErrInvalidPayload)
	}
	return nil
}

// DecodeMeasurement parses and validates a measurement payload.
//
// Returns ErrInvalidPayload when the JSON is malformed or "value"/"type"
// are missing.
func DecodeMeasurement(payload []byte) (Measurement, error) {
	var w measurementWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return Measurement{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if w.Value == nil {
		return Measurement{}, fmt.Errorf("%w: missing value", ErrInvalidPayload)
	}
	if w.Type == nil {
		return Measurement{}, fmt.Errorf("%w: missing type", ErrInvalidPayload)
	}

	m := Measurement{Value: *w.Value, Type: *w.Type, Unit: w.Unit}
	if err := m.Validate(); err != nil {
		return Measurement{}, err
	}
	return m, nil
}

// Command is the payload pushed to an actuator's commands container.
// Directives are flat string pairs, e.g. {"Power": "ON"}.
type Command struct {
	Directives map[string]string
}

// Directive values understood by the simulated actuators.
const (
	DirectivePower = "Power"
	PowerOn        = "ON"
	PowerOff       = "OFF"
)

// NewCommand builds a single-directive command.
func NewCommand(key, value string) Command {
	return Command{Directives: map[string]string{key: value}}
}

// Validate checks the command has at least one non-empty directive key.
func (c Command) Validate() error {
	if len(c.Directives) == 0 {
		return fmt.Errorf("%w: command has no directives", ErrInvalidPayload)
	}
	for k := range c.Directives {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: empty directive key", ErrInvalidPayload)
		}
	}
	return nil
}

// Encode marshals the directives as a flat JSON object.
func (c Command) Encode() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c.Directives)
}

// Equal reports whether both commands carry the same directives.
func (c Command) Equal(other Command) bool {
	return maps.Equal(c.Directives, other.Directives)
}

// String renders directives in key order, e.g. "Power=ON".
func (c Command) String() string {
	keys := slices.Sorted(maps.Keys(c.Directives))
	var b bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(c.Directives[k])
	}
	return b.String()
}

// DecodeCommand parses and validates a command payload.
// Non-string directive values are rejected.
func DecodeCommand(payload []byte) (Command, error) {
	var directives map[string]string
	if err := json.Unmarshal(payload, &directives); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	c := Command{Directives: directives}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}
