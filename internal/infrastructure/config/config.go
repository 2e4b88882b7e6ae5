package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Haunt Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Logging   LoggingConfig   `yaml:"logging"`
	Detection DetectionConfig `yaml:"detection"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Sequences SequencesConfig `yaml:"sequences"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// SiteConfig identifies the installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DetectionConfig holds the distance thresholds (centimetres), timing and
// validation parameters used by the detector and controller loop.
type DetectionConfig struct {
	Warning      float64 `yaml:"warning"`
	Trigger      float64 `yaml:"trigger"`
	MinimumValid float64 `yaml:"minimum_valid"`
	MaximumValid float64 `yaml:"maximum_valid"`

	ReadingInterval     Duration `yaml:"reading_interval"`
	CooldownDuration    Duration `yaml:"cooldown_duration"`
	MaxSequenceDuration Duration `yaml:"max_sequence_duration"`

	ConsecutiveReadings int     `yaml:"consecutive_readings"`
	ReadingTolerance    float64 `yaml:"reading_tolerance"`
	MaxFailedReadings   int     `yaml:"max_failed_readings"`

	// RequireWarning forbids a direct Idle to Triggered transition.
	RequireWarning bool `yaml:"require_warning"`
}

// HardwareConfig lists the physical devices attached to the controller.
type HardwareConfig struct {
	Sensors []SensorConfig `yaml:"sensors"`
	Motor   MotorConfig    `yaml:"motor"`
	Relays  []RelayConfig  `yaml:"relays"`
	Light   LightConfig    `yaml:"light"`
	Audio   AudioConfig    `yaml:"audio"`
}

// Sensor types.
const (
	SensorUltrasonic = "ultrasonic"
	SensorSerial     = "serial"
)

// SensorConfig describes one range sensor. Ultrasonic sensors use the
// trigger/echo pins, serial sensors use the port settings.
type SensorConfig struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	TriggerPin  int      `yaml:"trigger_pin"`
	EchoPin     int      `yaml:"echo_pin"`
	EchoTimeout Duration `yaml:"echo_timeout"`
	Port        string   `yaml:"port"`
	BaudRate    int      `yaml:"baud_rate"`
}

// MotorConfig describes the H-bridge driven actuator.
type MotorConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ForwardPin int      `yaml:"forward_pin"`
	ReversePin int      `yaml:"reverse_pin"`
	MaxMove    Duration `yaml:"max_move"`
}

// RelayConfig describes one named relay channel.
type RelayConfig struct {
	Name      string `yaml:"name"`
	Pin       int    `yaml:"pin"`
	ActiveLow bool   `yaml:"active_low"`
}

// Light drivers.
const (
	LightGovee = "govee"
	LightMQTT  = "mqtt"
	LightNone  = "none"
)

// LightConfig describes the colour light.
type LightConfig struct {
	Driver        string   `yaml:"driver"`
	Address       string   `yaml:"address"`
	Port          int      `yaml:"port"`
	Topic         string   `yaml:"topic"`
	FlashInterval Duration `yaml:"flash_interval"`
	FlashColor    string   `yaml:"flash_color"`
}

// AudioConfig describes the external player used for audio playback.
type AudioConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Player    string   `yaml:"player"`
	Args      []string `yaml:"args"`
	Directory string   `yaml:"directory"`
}

// SequencesConfig holds the two named action lists.
type SequencesConfig struct {
	Setup   []ActionConfig `yaml:"setup"`
	Trigger []ActionConfig `yaml:"trigger"`
}

// ActionConfig is the raw form of one sequence step. Which fields apply
// depends on Type; the sequence package turns it into a typed action.
type ActionConfig struct {
	Type      string       `yaml:"type" json:"type"`
	Direction string       `yaml:"direction,omitempty" json:"direction,omitempty"`
	Duration  Duration     `yaml:"duration,omitempty" json:"duration,omitempty"`
	Device    string       `yaml:"device,omitempty" json:"device,omitempty"`
	State     string       `yaml:"state,omitempty" json:"state,omitempty"`
	Command   string       `yaml:"command,omitempty" json:"command,omitempty"`
	Color     *ColorConfig `yaml:"color,omitempty" json:"color,omitempty"`
	Preset    string       `yaml:"preset,omitempty" json:"preset,omitempty"`
	Count     int          `yaml:"count,omitempty" json:"count,omitempty"`
	Async     bool         `yaml:"async,omitempty" json:"async,omitempty"`
	File      string       `yaml:"file,omitempty" json:"file,omitempty"`
	Wait      bool         `yaml:"wait,omitempty" json:"wait,omitempty"`
}

// ColorConfig is an RGB triple, each channel 0-255.
type ColorConfig struct {
	R int `yaml:"r" json:"r"`
	G int `yaml:"g" json:"g"`
	B int `yaml:"b" json:"b"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool     `yaml:"enabled"`
	URL           string   `yaml:"url"`
	Token         string   `yaml:"token"`
	Org           string   `yaml:"org"`
	Bucket        string   `yaml:"bucket"`
	BatchSize     int      `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite settings for the activation history.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     APICORSConfig    `yaml:"cors"`
}

// APICORSConfig lists browser origins allowed to call the API.
// An empty list allows every origin.
type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  Duration `yaml:"read"`
	Write Duration `yaml:"write"`
	Idle  Duration `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string   `yaml:"path"`
	MaxMessageSize int64    `yaml:"max_message_size"`
	PingInterval   Duration `yaml:"ping_interval"`
	PongTimeout    Duration `yaml:"pong_timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. The raw YAML is checked against the embedded schema
//  2. Default values (hardcoded)
//  3. YAML file values (override defaults)
//  4. Environment variables (override file values)
//  5. Validate() over the merged result
//
// Environment variables follow the pattern: HAUNT_SECTION_KEY
// For example: HAUNT_MQTT_HOST, HAUNT_DETECTION_TRIGGER
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML bytes. See Load.
func Parse(data []byte) (*Config, error) {
	if err := checkSchema(data); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "barrel-001",
			Name: "Haunt",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Detection: DetectionConfig{
			Warning:             100,
			Trigger:             50,
			MinimumValid:        2,
			MaximumValid:        400,
			ReadingInterval:     Duration(100 * time.Millisecond),
			CooldownDuration:    Duration(30 * time.Second),
			MaxSequenceDuration: Duration(60 * time.Second),
			ConsecutiveReadings: 3,
			ReadingTolerance:    5,
			MaxFailedReadings:   10,
		},
		Hardware: HardwareConfig{
			Motor: MotorConfig{
				MaxMove: Duration(30 * time.Second),
			},
			Light: LightConfig{
				Driver:        LightNone,
				Port:          4003,
				FlashInterval: Duration(300 * time.Millisecond),
				FlashColor:    "white",
			},
			Audio: AudioConfig{
				Player:    "aplay",
				Directory: "./sounds",
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "haunt-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: Duration(time.Second),
				MaxDelay:     Duration(60 * time.Second),
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: Duration(10 * time.Second),
		},
		Database: DatabaseConfig{
			Path:        "./data/haunt.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  Duration(30 * time.Second),
				Write: Duration(30 * time.Second),
				Idle:  Duration(60 * time.Second),
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   Duration(30 * time.Second),
			PongTimeout:    Duration(10 * time.Second),
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HAUNT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Site
	if v := os.Getenv("HAUNT_SITE_ID"); v != "" {
		cfg.Site.ID = v
	}

	// Logging
	if v := os.Getenv("HAUNT_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Detection thresholds, for tuning on site without editing the file
	if v, ok := envFloat("HAUNT_DETECTION_WARNING"); ok {
		cfg.Detection.Warning = v
	}
	if v, ok := envFloat("HAUNT_DETECTION_TRIGGER"); ok {
		cfg.Detection.Trigger = v
	}
	if v := os.Getenv("HAUNT_DETECTION_COOLDOWN"); v != "" {
		if d, err := ParseDuration(v); err == nil {
			cfg.Detection.CooldownDuration = d
		}
	}

	// Light
	if v := os.Getenv("HAUNT_LIGHT_ADDRESS"); v != "" {
		cfg.Hardware.Light.Address = v
	}

	// MQTT
	if v := os.Getenv("HAUNT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HAUNT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HAUNT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("HAUNT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("HAUNT_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("HAUNT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	errs = append(errs, c.Detection.validate()...)
	errs = append(errs, c.Hardware.validate()...)

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (d DetectionConfig) validate() []string {
	var errs []string

	if d.Trigger <= 0 {
		errs = append(errs, "detection.trigger must be positive")
	}
	if d.Warning < d.Trigger {
		errs = append(errs, "detection.warning must not be below detection.trigger")
	}
	if d.MinimumValid < 0 || d.MaximumValid <= d.MinimumValid {
		errs = append(errs, "detection.minimum_valid must be non-negative and below detection.maximum_valid")
	}
	if d.Warning > d.MaximumValid {
		errs = append(errs, "detection.warning must not exceed detection.maximum_valid")
	}
	if d.ReadingInterval <= 0 {
		errs = append(errs, "detection.reading_interval must be positive")
	}
	if d.CooldownDuration < 0 {
		errs = append(errs, "detection.cooldown_duration must not be negative")
	}
	if d.MaxSequenceDuration <= 0 {
		errs = append(errs, "detection.max_sequence_duration must be positive")
	}
	if d.ConsecutiveReadings < 1 {
		errs = append(errs, "detection.consecutive_readings must be at least 1")
	}
	if d.ReadingTolerance < 0 {
		errs = append(errs, "detection.reading_tolerance must not be negative")
	}
	if d.MaxFailedReadings < 1 {
		errs = append(errs, "detection.max_failed_readings must be at least 1")
	}

	return errs
}

// BCM GPIO numbers usable on the 40-pin header.
const (
	minPin = 0
	maxPin = 27
)

func validPin(pin int) bool {
	return pin >= minPin && pin <= maxPin
}

func (h HardwareConfig) validate() []string {
	var errs []string
	used := make(map[int]string)

	claim := func(pin int, owner string) {
		if !validPin(pin) {
			errs = append(errs, fmt.Sprintf("%s pin %d must be between %d and %d", owner, pin, minPin, maxPin))
			return
		}
		if prev, ok := used[pin]; ok {
			errs = append(errs, fmt.Sprintf("%s pin %d already used by %s", owner, pin, prev))
			return
		}
		used[pin] = owner
	}

	if len(h.Sensors) == 0 {
		errs = append(errs, "hardware.sensors must list at least one sensor")
	}
	names := make(map[string]bool)
	for i, s := range h.Sensors {
		owner := fmt.Sprintf("hardware.sensors[%d]", i)
		if s.Name == "" {
			errs = append(errs, owner+".name is required")
		} else if names[s.Name] {
			errs = append(errs, fmt.Sprintf("%s.name %q is duplicated", owner, s.Name))
		}
		names[s.Name] = true

		switch s.Type {
		case SensorUltrasonic:
			claim(s.TriggerPin, owner+".trigger")
			claim(s.EchoPin, owner+".echo")
		case SensorSerial:
			if s.Port == "" {
				errs = append(errs, owner+".port is required for serial sensors")
			}
		default:
			errs = append(errs, fmt.Sprintf("%s.type %q must be %q or %q", owner, s.Type, SensorUltrasonic, SensorSerial))
		}
	}

	if h.Motor.Enabled {
		if h.Motor.ForwardPin == h.Motor.ReversePin {
			errs = append(errs, "hardware.motor.forward_pin and reverse_pin must differ")
		} else {
			claim(h.Motor.ForwardPin, "hardware.motor.forward")
			claim(h.Motor.ReversePin, "hardware.motor.reverse")
		}
		if h.Motor.MaxMove <= 0 {
			errs = append(errs, "hardware.motor.max_move must be positive")
		}
	}

	relays := make(map[string]bool)
	for i, r := range h.Relays {
		owner := fmt.Sprintf("hardware.relays[%d]", i)
		if r.Name == "" {
			errs = append(errs, owner+".name is required")
		} else if relays[r.Name] {
			errs = append(errs, fmt.Sprintf("%s.name %q is duplicated", owner, r.Name))
		}
		relays[r.Name] = true
		claim(r.Pin, owner)
	}

	switch h.Light.Driver {
	case LightNone, "":
	case LightGovee:
		if h.Light.Address == "" {
			errs = append(errs, "hardware.light.address is required for the govee driver")
		}
	case LightMQTT:
		if h.Light.Topic == "" {
			errs = append(errs, "hardware.light.topic is required for the mqtt driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("hardware.light.driver %q is not supported", h.Light.Driver))
	}
	if h.Light.FlashInterval <= 0 {
		errs = append(errs, "hardware.light.flash_interval must be positive")
	}

	if h.Audio.Enabled && h.Audio.Player == "" {
		errs = append(errs, "hardware.audio.player is required when audio is enabled")
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return c.API.Timeouts.Read.Std()
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return c.API.Timeouts.Write.Std()
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return c.API.Timeouts.Idle.Std()
}
