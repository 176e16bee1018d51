package profile

import (
	"fmt"
	"maps"
	"slices"
)

// Built-in profile names.
const (
	AQMTemperature  = "aqm_temperature"
	AQMHumidity     = "aqm_humidity"
	AQMPM25         = "aqm_pm2_5"
	AQMPM10         = "aqm_pm10"
	AQMH2S          = "aqm_h2s"
	FarmSolTemp     = "farm_solution_temperature"
	FarmEnvTemp     = "farm_environment_temperature"
	FarmHumidity    = "farm_humidity"
	FarmSoilPH      = "farm_soil_ph"
	unitDegreeC     = "degreeC"
	unitPercentage  = "percentage"
	unitMicrogramM3 = "ug/m^3"
)

// Builtin returns the built-in profile table.
func Builtin() []Profile {
	return []Profile{
		{Name: AQMTemperature, Kind: KindTemperature, Range: 50, Offset: 0, Unit: unitDegreeC, DisplayType: "temperature", Label: "temperature"},
		{Name: AQMHumidity, Kind: KindHumidity, Range: 30, Offset: 30, Unit: unitPercentage, DisplayType: "humidity", Label: "humidity"},
		{Name: AQMPM25, Kind: KindParticulate, Range: 400, Offset: 0, Unit: unitMicrogramM3, DisplayType: "PM2.5", Label: "PM2.5"},
		{Name: AQMPM10, Kind: KindParticulate, Range: 400, Offset: 0, Unit: unitMicrogramM3, DisplayType: "PM10", Label: "PM10"},
		{Name: AQMH2S, Kind: KindGas, Range: 199, Offset: 1, Unit: "ppm", DisplayType: "H2S", Label: "H2S"},

		{Name: FarmSolTemp, Kind: KindTemperature, Range: 50, Offset: 0, Unit: unitDegreeC, DisplayType: "nutrient solution temp", Label: "nutrient solution temperature"},
		{Name: FarmEnvTemp, Kind: KindTemperature, Range: 10, Offset: 20, Unit: unitDegreeC, DisplayType: "environmental temperature", Label: "environmental temperature"},
		{Name: FarmHumidity, Kind: KindHumidity, Range: 50, Offset: 40, Unit: unitPercentage, DisplayType: "humidity", Label: "humidity"},
		{Name: FarmSoilPH, Kind: KindPH, Range: 20, Offset: 55, Unit: "", DisplayType: "soil pH value", Label: "soil pH value", Scale: 10},
	}
}

// Registry is an immutable, name-keyed table of profiles.
// It is safe for concurrent use because it is never mutated after NewRegistry.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry builds a registry from the built-in table plus overrides.
// An override with the same name as a built-in replaces it.
//
// Returns an error if any resulting profile fails validation.
func NewRegistry(overrides ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range Builtin() {
		r.profiles[p.Name] = p
	}
	for _, p := range overrides {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		r.profiles[p.Name] = p
	}
	return r, nil
}

// Get returns the named profile.
func (r *Registry) Get(name string) (Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Names returns all profile names, sorted.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.profiles))
}

// Len returns the number of profiles.
func (r *Registry) Len() int {
	return len(r.profiles)
}
