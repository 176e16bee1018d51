package profile

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Kind is the enumerated physical quantity a sensor measures.
type Kind string

// Supported sensor kinds.
const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
	KindParticulate Kind = "particulate"
	KindGas         Kind = "gas"
	KindPH          Kind = "ph"
)

// AllKinds lists every supported kind.
var AllKinds = []Kind{KindTemperature, KindHumidity, KindParticulate, KindGas, KindPH}

// ErrInvalidProfile is returned when a profile fails validation.
var ErrInvalidProfile = errors.New("profile: invalid profile")

// ErrUnknownProfile is returned by Registry.Get for an unregistered name.
var ErrUnknownProfile = errors.New("profile: unknown profile")

// Profile describes how readings of one sensor type are synthesised and
// labelled.
type Profile struct {
	// Name identifies the profile in configuration (e.g. "aqm_temperature").
	Name string `yaml:"name"`

	// Kind is the physical quantity.
	Kind Kind `yaml:"kind"`

	// Range is the width of the raw value interval [Offset, Offset+Range).
	Range int `yaml:"range"`

	// Offset is the lowest raw value.
	Offset int `yaml:"offset"`

	// Unit is carried in every measurement payload.
	Unit string `yaml:"unit"`

	// DisplayType is the measurement payload "type" field.
	DisplayType string `yaml:"display_type"`

	// Label is the second label on the measurement container.
	// Defaults to the kind when empty.
	Label string `yaml:"label"`

	// Scale divides the raw value when greater than 1 (pH-like sensors use 10).
	Scale float64 `yaml:"scale"`
}

// ContainerLabel returns the label identifying this profile's measurements.
func (p Profile) ContainerLabel() string {
	if p.Label != "" {
		return p.Label
	}
	return string(p.Kind)
}

// Scaled converts a raw sample to the reported value.
func (p Profile) Scaled(raw float64) float64 {
	if p.Scale > 1 {
		return raw / p.Scale
	}
	return raw
}

// Generate maps a uniform draw u in [0, 1) to a reported value:
// floor(u*Range) + Offset, then scaled.
func (p Profile) Generate(u float64) (raw float64, value float64) {
	raw = math.Floor(u*float64(p.Range)) + float64(p.Offset)
	return raw, p.Scaled(raw)
}

// Validate checks the profile is usable.
func (p Profile) Validate() error {
	var errs []string
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "name is required")
	}
	if !validKind(p.Kind) {
		errs = append(errs, fmt.Sprintf("kind %q is not supported", p.Kind))
	}
	if p.Range <= 0 {
		errs = append(errs, "range must be positive")
	}
	if strings.TrimSpace(p.DisplayType) == "" {
		errs = append(errs, "display_type is required")
	}
	if p.Scale < 0 {
		errs = append(errs, "scale must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %s", ErrInvalidProfile, p.Name, strings.Join(errs, "; "))
	}
	return nil
}

func validKind(k Kind) bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}
