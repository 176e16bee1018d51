package profile

import (
	"errors"
	"math"
	"testing"
)

func TestBuiltinProfilesAreValid(t *testing.T) {
	for _, p := range Builtin() {
		if err := p.Validate(); err != nil {
			t.Errorf("built-in %s: %v", p.Name, err)
		}
	}
}

func TestGenerate_StaysInRange(t *testing.T) {
	draws := []float64{0, 0.0001, 0.25, 0.5, 0.9, 0.999999}

	for _, p := range Builtin() {
		for _, u := range draws {
			raw, value := p.Generate(u)
			lo, hi := float64(p.Offset), float64(p.Offset+p.Range)
			if raw < lo || raw >= hi {
				t.Errorf("%s: Generate(%v) raw = %v, want [%v, %v)", p.Name, u, raw, lo, hi)
			}
			if raw != math.Floor(raw) {
				t.Errorf("%s: raw %v is not integral", p.Name, raw)
			}
			if p.Scale > 1 && value != raw/p.Scale {
				t.Errorf("%s: value = %v, want raw/%v = %v", p.Name, value, p.Scale, raw/p.Scale)
			}
			if p.Scale <= 1 && value != raw {
				t.Errorf("%s: unscaled value = %v, want %v", p.Name, value, raw)
			}
		}
	}
}

func TestGenerate_KnownValues(t *testing.T) {
	temp := Profile{Name: "Temp", Kind: KindTemperature, Range: 50, Offset: 0, DisplayType: "temperature"}
	if raw, value := temp.Generate(0.9); raw != 45 || value != 45 {
		t.Errorf("Temp.Generate(0.9) = %v, %v; want 45, 45", raw, value)
	}

	r, _ := NewRegistry()
	ph, err := r.Get(FarmSoilPH)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", FarmSoilPH, err)
	}
	// floor(0.5*20)+55 = 65 -> 6.5
	if raw, value := ph.Generate(0.5); raw != 65 || value != 6.5 {
		t.Errorf("pH.Generate(0.5) = %v, %v; want 65, 6.5", raw, value)
	}
}

func TestProfile_ContainerLabel(t *testing.T) {
	if got := (Profile{Kind: KindGas}).ContainerLabel(); got != "gas" {
		t.Errorf("ContainerLabel() default = %q, want gas", got)
	}
	if got := (Profile{Kind: KindGas, Label: "H2S"}).ContainerLabel(); got != "H2S" {
		t.Errorf("ContainerLabel() = %q, want H2S", got)
	}
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{"valid", Profile{Name: "x", Kind: KindGas, Range: 10, DisplayType: "CO2"}, false},
		{"missing name", Profile{Kind: KindGas, Range: 10, DisplayType: "CO2"}, true},
		{"unknown kind", Profile{Name: "x", Kind: "pressure", Range: 10, DisplayType: "p"}, true},
		{"zero range", Profile{Name: "x", Kind: KindGas, DisplayType: "CO2"}, true},
		{"missing display type", Profile{Name: "x", Kind: KindGas, Range: 10}, true},
		{"negative scale", Profile{Name: "x", Kind: KindGas, Range: 10, DisplayType: "CO2", Scale: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidProfile) {
				t.Errorf("Validate() error = %v, want ErrInvalidProfile", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestRegistry_Overrides(t *testing.T) {
	override := Profile{Name: AQMTemperature, Kind: KindTemperature, Range: 10, Offset: 15, Unit: "degreeC", DisplayType: "temperature"}
	extra := Profile{Name: "co2", Kind: KindGas, Range: 1000, Offset: 400, Unit: "ppm", DisplayType: "CO2"}

	r, err := NewRegistry(override, extra)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if r.Len() != len(Builtin())+1 {
		t.Errorf("Len() = %d, want %d", r.Len(), len(Builtin())+1)
	}

	got, _ := r.Get(AQMTemperature)
	if got.Range != 10 || got.Offset != 15 {
		t.Errorf("override not applied: %+v", got)
	}

	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("Get(missing) error = %v, want ErrUnknownProfile", err)
	}
}

func TestNewRegistry_RejectsInvalidOverride(t *testing.T) {
	if _, err := NewRegistry(Profile{Name: "bad"}); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("NewRegistry() error = %v, want ErrInvalidProfile", err)
	}
}
