package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/fieldsim/internal/profile"
)

// Transport names accepted by broker.transport.
const (
	TransportMemory = "memory"
	TransportMQTT   = "mqtt"
)

// Selector names accepted by monitor.selector.
const (
	SelectorCapability  = "capability"
	SelectorIDSubstring = "id_substring"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "FIELDSIM_CONFIG"

// DefaultPath is used when EnvConfigPath is unset.
const DefaultPath = "configs/config.yaml"

// Config is the root configuration structure for fieldsim.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Broker    BrokerConfig    `yaml:"broker"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Push      PushConfig      `yaml:"push"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig identifies the deployment.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// BrokerConfig selects and tunes the resource broker binding.
type BrokerConfig struct {
	// Transport is "memory" (single process) or "mqtt".
	Transport string `yaml:"transport"`

	// CSEBase is the name of the root node applications register under.
	CSEBase string `yaml:"cse_base"`

	// NotificationBuffer bounds the inbound notification channel.
	NotificationBuffer int `yaml:"notification_buffer"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig     `yaml:"broker"`
	Auth        MQTTAuthConfig       `yaml:"auth"`
	QoS         int                  `yaml:"qos"`
	Reconnect   MQTTReconnectConfig  `yaml:"reconnect"`
	TopicPrefix string               `yaml:"topic_prefix"`
	Embedded    EmbeddedBrokerConfig `yaml:"embedded"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// EmbeddedBrokerConfig runs an in-process MQTT broker for single-host setups.
type EmbeddedBrokerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// SimulatorConfig configures the sensor/actuator side.
type SimulatorConfig struct {
	Enabled bool   `yaml:"enabled"`
	AppName string `yaml:"app_name"`

	// TickInterval is the sampling period.
	TickInterval time.Duration `yaml:"tick_interval"`

	// Threshold: a tick produces a sample only when its first draw exceeds it.
	// Zero samples on every tick.
	Threshold float64 `yaml:"threshold"`

	// Seed makes runs reproducible. Zero means seed from the clock.
	Seed uint64 `yaml:"seed"`

	// Retention is MaxInstances for measurement and command containers.
	// Zero means unbounded.
	Retention int `yaml:"retention"`

	Sensors   []SensorConfig    `yaml:"sensors"`
	Actuators []ActuatorConfig  `yaml:"actuators"`
	Profiles  []profile.Profile `yaml:"profiles"`
}

// SensorConfig binds a sensor ID to a profile name.
type SensorConfig struct {
	ID      string `yaml:"id"`
	Profile string `yaml:"profile"`
}

// ActuatorConfig describes one simulated actuator.
type ActuatorConfig struct {
	ID           string   `yaml:"id"`
	Capabilities []string `yaml:"capabilities"`
}

// MonitorConfig configures the discovering, reacting side.
type MonitorConfig struct {
	Enabled           bool          `yaml:"enabled"`
	AppName           string        `yaml:"app_name"`
	DiscoveryRoot     string        `yaml:"discovery_root"`
	DiscoveryInterval time.Duration `yaml:"discovery_interval"`
	MeasurementLabels []string      `yaml:"measurement_labels"`
	CommandLabels     []string      `yaml:"command_labels"`

	// Selector is "capability" or "id_substring".
	Selector string       `yaml:"selector"`
	Rules    []RuleConfig `yaml:"rules"`
}

// RuleConfig is one threshold rule.
//
// A reading of MeasurementType above High produces Directive=HighValue,
// below Low produces Directive=LowValue, otherwise nothing.
type RuleConfig struct {
	Name            string  `yaml:"name"`
	MeasurementType string  `yaml:"measurement_type"`
	High            float64 `yaml:"high"`
	Low             float64 `yaml:"low"`
	Directive       string  `yaml:"directive"`
	HighValue       string  `yaml:"high_value"`
	LowValue        string  `yaml:"low_value"`
	Capability      string  `yaml:"capability"`
	IDSubstring     string  `yaml:"id_substring"`
}

// PushConfig tunes the asynchronous push queue.
type PushConfig struct {
	QueueSize            int           `yaml:"queue_size"`
	Workers              int           `yaml:"workers"`
	MaxRetries           int           `yaml:"max_retries"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains SQLite measurement archive settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Path returns the config file location from FIELDSIM_CONFIG or DefaultPath.
func Path() string {
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FIELDSIM_SECTION_KEY
// For example: FIELDSIM_MQTT_HOST, FIELDSIM_BROKER_TRANSPORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the air-quality simulation wired to an
// in-process broker.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "fieldsim",
		},
		Broker: BrokerConfig{
			Transport:          TransportMemory,
			CSEBase:            "onem2m",
			NotificationBuffer: 256,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fieldsim",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "fieldsim",
			Embedded: EmbeddedBrokerConfig{
				Address: ":1883",
			},
		},
		Simulator: SimulatorConfig{
			Enabled:      true,
			AppName:      "TestIPE",
			TickInterval: time.Second,
			Threshold:    0.2,
			Retention:    3,
			Sensors: []SensorConfig{
				{ID: "Temp", Profile: profile.AQMTemperature},
				{ID: "Humi", Profile: profile.AQMHumidity},
				{ID: "PM2_5", Profile: profile.AQMPM25},
				{ID: "PM10", Profile: profile.AQMPM10},
				{ID: "H2S", Profile: profile.AQMH2S},
			},
			Actuators: []ActuatorConfig{
				{ID: "Air_Con", Capabilities: []string{"aircon"}},
				{ID: "Fan", Capabilities: []string{"fan"}},
			},
		},
		Monitor: MonitorConfig{
			Enabled:           true,
			AppName:           "TestGUI",
			DiscoveryInterval: time.Second,
			MeasurementLabels: []string{"measurements"},
			CommandLabels:     []string{"commands"},
			Selector:          SelectorCapability,
			Rules:             []RuleConfig{DefaultRule()},
		},
		Push: PushConfig{
			QueueSize:            64,
			Workers:              1,
			RetryInitialInterval: 200 * time.Millisecond,
			RetryMaxInterval:     5 * time.Second,
			ShutdownTimeout:      2 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/fieldsim.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "fieldsim",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// DefaultRule is the temperature fan rule: above 30 switch on, below 18 off.
func DefaultRule() RuleConfig {
	return RuleConfig{
		Name:            "fan-by-temperature",
		MeasurementType: "temperature",
		High:            30,
		Low:             18,
		Directive:       "Power",
		HighValue:       "ON",
		LowValue:        "OFF",
		Capability:      "fan",
		IDSubstring:     "Fan",
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FIELDSIM_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("FIELDSIM_BROKER_TRANSPORT"); v != "" {
		cfg.Broker.Transport = v
	}

	// MQTT
	if v := os.Getenv("FIELDSIM_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FIELDSIM_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing FIELDSIM_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("FIELDSIM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FIELDSIM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Simulator
	if v := os.Getenv("FIELDSIM_SIMULATOR_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing FIELDSIM_SIMULATOR_SEED: %w", err)
		}
		cfg.Simulator.Seed = seed
	}

	if v := os.Getenv("FIELDSIM_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("FIELDSIM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("FIELDSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch c.Broker.Transport {
	case TransportMemory, TransportMQTT:
	default:
		errs = append(errs, fmt.Sprintf("broker.transport must be %q or %q", TransportMemory, TransportMQTT))
	}
	if c.Broker.CSEBase == "" {
		errs = append(errs, "broker.cse_base is required")
	}
	if c.Broker.NotificationBuffer < 1 {
		errs = append(errs, "broker.notification_buffer must be at least 1")
	}

	if c.Broker.Transport == TransportMQTT {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
		if strings.Trim(c.MQTT.TopicPrefix, "/") == "" {
			errs = append(errs, "mqtt.topic_prefix is required")
		}
	}

	if !c.Simulator.Enabled && !c.Monitor.Enabled {
		errs = append(errs, "at least one of simulator.enabled or monitor.enabled must be true")
	}
	if c.Simulator.Enabled {
		errs = append(errs, c.Simulator.validate()...)
	}
	if c.Monitor.Enabled {
		errs = append(errs, c.Monitor.validate()...)
	}

	if c.Push.QueueSize < 1 {
		errs = append(errs, "push.queue_size must be at least 1")
	}
	if c.Push.Workers < 1 {
		errs = append(errs, "push.workers must be at least 1")
	}
	if c.Push.MaxRetries < 0 {
		errs = append(errs, "push.max_retries must not be negative")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the archive is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (s SimulatorConfig) validate() []string {
	var errs []string
	if s.AppName == "" {
		errs = append(errs, "simulator.app_name is required")
	}
	if s.TickInterval <= 0 {
		errs = append(errs, "simulator.tick_interval must be positive")
	}
	if s.Threshold < 0 || s.Threshold >= 1 {
		errs = append(errs, "simulator.threshold must be in [0, 1)")
	}
	if s.Retention < 0 {
		errs = append(errs, "simulator.retention must not be negative")
	}
	if len(s.Sensors) == 0 {
		errs = append(errs, "simulator.sensors must not be empty")
	}
	seen := make(map[string]bool)
	for i, sensor := range s.Sensors {
		if sensor.ID == "" || sensor.Profile == "" {
			errs = append(errs, fmt.Sprintf("simulator.sensors[%d] needs id and profile", i))
		}
		if seen[sensor.ID] {
			errs = append(errs, fmt.Sprintf("simulator.sensors[%d]: duplicate id %q", i, sensor.ID))
		}
		seen[sensor.ID] = true
	}
	for i, a := range s.Actuators {
		if a.ID == "" {
			errs = append(errs, fmt.Sprintf("simulator.actuators[%d].id is required", i))
		}
	}
	return errs
}

func (m MonitorConfig) validate() []string {
	var errs []string
	if m.AppName == "" {
		errs = append(errs, "monitor.app_name is required")
	}
	if m.DiscoveryInterval <= 0 {
		errs = append(errs, "monitor.discovery_interval must be positive")
	}
	if len(m.MeasurementLabels) == 0 {
		errs = append(errs, "monitor.measurement_labels must not be empty")
	}
	if len(m.CommandLabels) == 0 {
		errs = append(errs, "monitor.command_labels must not be empty")
	}
	switch m.Selector {
	case SelectorCapability, SelectorIDSubstring:
	default:
		errs = append(errs, fmt.Sprintf("monitor.selector must be %q or %q", SelectorCapability, SelectorIDSubstring))
	}
	for i, r := range m.Rules {
		if r.MeasurementType == "" || r.Directive == "" {
			errs = append(errs, fmt.Sprintf("monitor.rules[%d] needs measurement_type and directive", i))
		}
		if r.Low > r.High {
			errs = append(errs, fmt.Sprintf("monitor.rules[%d]: low must not exceed high", i))
		}
		if m.Selector == SelectorCapability && r.Capability == "" {
			errs = append(errs, fmt.Sprintf("monitor.rules[%d].capability is required for the capability selector", i))
		}
		if m.Selector == SelectorIDSubstring && r.IDSubstring == "" {
			errs = append(errs, fmt.Sprintf("monitor.rules[%d].id_substring is required for the id_substring selector", i))
		}
	}
	return errs
}
