package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "farm-01"
broker:
  transport: "mqtt"
mqtt:
  broker:
    host: "broker.local"
    port: 1884
  topic_prefix: "farm"
simulator:
  tick_interval: "250ms"
  threshold: 0.5
  seed: 42
  sensors:
    - id: "Sol_Temp"
      profile: "farm_solution_temperature"
    - id: "Soil_pH"
      profile: "farm_soil_ph"
  actuators:
    - id: "Switch-Motor"
      capabilities: ["motor"]
monitor:
  selector: "id_substring"
  discovery_interval: "2s"
  rules:
    - measurement_type: "nutrient solution temp"
      high: 30
      low: 18
      directive: "Power"
      high_value: "ON"
      low_value: "OFF"
      id_substring: "Motor"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "farm-01" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "farm-01")
	}
	if cfg.Broker.Transport != TransportMQTT {
		t.Errorf("Broker.Transport = %q, want %q", cfg.Broker.Transport, TransportMQTT)
	}
	if cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("MQTT.Broker.Port = %d, want 1884", cfg.MQTT.Broker.Port)
	}
	if cfg.Simulator.TickInterval != 250*time.Millisecond {
		t.Errorf("Simulator.TickInterval = %v, want 250ms", cfg.Simulator.TickInterval)
	}
	if cfg.Simulator.Seed != 42 {
		t.Errorf("Simulator.Seed = %d, want 42", cfg.Simulator.Seed)
	}
	if len(cfg.Simulator.Sensors) != 2 {
		t.Fatalf("len(Simulator.Sensors) = %d, want 2 (file replaces defaults)", len(cfg.Simulator.Sensors))
	}
	if cfg.Simulator.Actuators[0].Capabilities[0] != "motor" {
		t.Errorf("Actuators[0].Capabilities = %v, want [motor]", cfg.Simulator.Actuators[0].Capabilities)
	}
	if cfg.Monitor.DiscoveryInterval != 2*time.Second {
		t.Errorf("Monitor.DiscoveryInterval = %v, want 2s", cfg.Monitor.DiscoveryInterval)
	}

	// Untouched sections keep their defaults.
	if cfg.Simulator.Retention != 3 {
		t.Errorf("Simulator.Retention = %d, want default 3", cfg.Simulator.Retention)
	}
	if cfg.Push.QueueSize != 64 {
		t.Errorf("Push.QueueSize = %d, want default 64", cfg.Push.QueueSize)
	}
}

func TestLoad_ProfileOverrides(t *testing.T) {
	configPath := writeConfig(t, `
simulator:
  profiles:
    - name: "greenhouse_co2"
      kind: "gas"
      range: 600
      offset: 400
      unit: "ppm"
      display_type: "CO2"
  sensors:
    - id: "CO2"
      profile: "greenhouse_co2"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Simulator.Profiles) != 1 {
		t.Fatalf("len(Profiles) = %d, want 1", len(cfg.Simulator.Profiles))
	}
	p := cfg.Simulator.Profiles[0]
	if p.Range != 600 || p.Offset != 400 || p.DisplayType != "CO2" {
		t.Errorf("profile = %+v, want range 600 offset 400 display CO2", p)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, "simulator:\n  tick_interval: \"soon\"\n")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for unparseable duration, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: ""
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for empty site.id, got nil")
	}
	if !strings.Contains(err.Error(), "site.id is required") {
		t.Errorf("error = %v, want mention of site.id", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Broker.Transport = "coap" },
			wantErr: "broker.transport",
		},
		{
			name: "invalid QoS on mqtt transport",
			mutate: func(c *Config) {
				c.Broker.Transport = TransportMQTT
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
		{
			name: "QoS ignored on memory transport",
			mutate: func(c *Config) {
				c.MQTT.QoS = 3
			},
		},
		{
			name: "invalid port",
			mutate: func(c *Config) {
				c.Broker.Transport = TransportMQTT
				c.MQTT.Broker.Port = 70000
			},
			wantErr: "mqtt.broker.port",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Simulator.Threshold = 1 },
			wantErr: "simulator.threshold",
		},
		{
			name:    "no sensors",
			mutate:  func(c *Config) { c.Simulator.Sensors = nil },
			wantErr: "simulator.sensors",
		},
		{
			name: "duplicate sensor id",
			mutate: func(c *Config) {
				c.Simulator.Sensors = append(c.Simulator.Sensors, SensorConfig{ID: "Temp", Profile: "aqm_temperature"})
			},
			wantErr: "duplicate id",
		},
		{
			name:    "unknown selector",
			mutate:  func(c *Config) { c.Monitor.Selector = "regex" },
			wantErr: "monitor.selector",
		},
		{
			name: "capability selector without capability",
			mutate: func(c *Config) {
				c.Monitor.Rules[0].Capability = ""
			},
			wantErr: "capability is required",
		},
		{
			name: "low above high",
			mutate: func(c *Config) {
				c.Monitor.Rules[0].Low = 40
			},
			wantErr: "low must not exceed high",
		},
		{
			name: "both roles disabled",
			mutate: func(c *Config) {
				c.Simulator.Enabled = false
				c.Monitor.Enabled = false
			},
			wantErr: "at least one",
		},
		{
			name: "monitor only skips simulator checks",
			mutate: func(c *Config) {
				c.Simulator.Enabled = false
				c.Simulator.Sensors = nil
			},
		},
		{
			name: "archive enabled without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: "database.path",
		},
		{
			name:    "zero push workers",
			mutate:  func(c *Config) { c.Push.Workers = 0 },
			wantErr: "push.workers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Site.ID = ""
	cfg.Push.QueueSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"site.id", "push.queue_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("FIELDSIM_BROKER_TRANSPORT", "mqtt")
	t.Setenv("FIELDSIM_MQTT_HOST", "mqtt.example.com")
	t.Setenv("FIELDSIM_MQTT_PORT", "8883")
	t.Setenv("FIELDSIM_MQTT_USERNAME", "testuser")
	t.Setenv("FIELDSIM_MQTT_PASSWORD", "testpass")
	t.Setenv("FIELDSIM_SIMULATOR_SEED", "7")
	t.Setenv("FIELDSIM_DATABASE_PATH", "/custom/path.db")
	t.Setenv("FIELDSIM_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("FIELDSIM_LOG_LEVEL", "debug")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	checks := []struct {
		field string
		got   any
		want  any
	}{
		{"Broker.Transport", cfg.Broker.Transport, "mqtt"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Broker.Port", cfg.MQTT.Broker.Port, 8883},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"Simulator.Seed", cfg.Simulator.Seed, uint64(7)},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}
}

func TestApplyEnvOverrides_BadNumber(t *testing.T) {
	t.Setenv("FIELDSIM_MQTT_PORT", "not-a-port")
	if err := applyEnvOverrides(Default()); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port")
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path() = %q, want %q", got, DefaultPath)
	}
	t.Setenv(EnvConfigPath, "/etc/fieldsim.yaml")
	if got := Path(); got != "/etc/fieldsim.yaml" {
		t.Errorf("Path() = %q, want /etc/fieldsim.yaml", got)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Simulator.TickInterval != time.Second {
		t.Errorf("Default TickInterval = %v, want 1s", cfg.Simulator.TickInterval)
	}
	if cfg.Simulator.Threshold != 0.2 {
		t.Errorf("Default Threshold = %v, want 0.2", cfg.Simulator.Threshold)
	}
	if len(cfg.Simulator.Sensors) != 5 {
		t.Errorf("Default sensors = %d, want the 5 air-quality sensors", len(cfg.Simulator.Sensors))
	}
	if cfg.Push.MaxRetries != 0 {
		t.Errorf("Default MaxRetries = %d, want 0", cfg.Push.MaxRetries)
	}
	rule := cfg.Monitor.Rules[0]
	if rule.High != 30 || rule.Low != 18 || rule.Capability != "fan" {
		t.Errorf("Default rule = %+v", rule)
	}
}
