package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the automation bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SerialConfig contains serial link settings for the I/O board.
type SerialConfig struct {
	// Port is the serial device path (e.g., "/dev/ttyACM0").
	// Empty means auto-detect by USB vendor ID.
	Port string `yaml:"port"`

	// Baud is the serial line speed. Default: 115200.
	Baud int `yaml:"baud"`

	// ReadTimeout is the per-read timeout in seconds.
	ReadTimeout int `yaml:"read_timeout"`

	// CommandTimeout is the overall deadline for one command round-trip
	// in seconds. Zero means use ReadTimeout.
	CommandTimeout int `yaml:"command_timeout"`

	// ReconnectInterval is the minimum delay between reconnection
	// attempts in seconds.
	ReconnectInterval int `yaml:"reconnect_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is the root of the bridge's topic hierarchy.
	// Default: "automation".
	TopicPrefix string `yaml:"topic_prefix"`

	// PublishInterval is the periodic status publish interval in seconds.
	// This also paces the board poll loop.
	PublishInterval int `yaml:"publish_interval"`
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
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`

	// RetryInterval is how often the initial broker connection is retried
	// when the broker is unreachable at startup (seconds). Once connected,
	// the client library's automatic reconnect takes over.
	RetryInterval int `yaml:"retry_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// DatabaseConfig contains SQLite history database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionRows caps how many status snapshots are kept before the
	// oldest rows are pruned.
	RetentionRows int `yaml:"retention_rows"`
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AUTOBRIDGE_SECTION_KEY
// For example: AUTOBRIDGE_SERIAL_PORT, AUTOBRIDGE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in defaults without reading a file.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
// The defaults match the board's stock host-service behaviour.
func defaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:              "", // auto-detect
			Baud:              115200,
			ReadTimeout:       1,
			CommandTimeout:    2,
			ReconnectInterval: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "autobridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay:  1,
				MaxDelay:      60,
				RetryInterval: 15,
			},
			TopicPrefix:     "automation",
			PublishInterval: 1,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Enabled:       true,
			Path:          "./data/autobridge.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionRows: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AUTOBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Serial
	if v := os.Getenv("AUTOBRIDGE_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("AUTOBRIDGE_SERIAL_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.Serial.Baud = baud
		}
	}

	// MQTT
	if v := os.Getenv("AUTOBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AUTOBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AUTOBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("AUTOBRIDGE_MQTT_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}

	// API
	if v := os.Getenv("AUTOBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Database
	if v := os.Getenv("AUTOBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("AUTOBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Serial validation
	if c.Serial.Baud <= 0 {
		errs = append(errs, "serial.baud must be positive")
	}
	if c.Serial.ReadTimeout <= 0 {
		errs = append(errs, "serial.read_timeout must be positive")
	}
	if c.Serial.ReconnectInterval <= 0 {
		errs = append(errs, "serial.reconnect_interval must be positive")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}
	if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must not contain wildcards")
	}
	if c.MQTT.PublishInterval <= 0 {
		errs = append(errs, "mqtt.publish_interval must be positive")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetReadTimeout returns the serial per-read timeout as a Duration.
func (c *SerialConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

// GetCommandTimeout returns the per-command deadline as a Duration.
// Falls back to the read timeout when unset.
func (c *SerialConfig) GetCommandTimeout() time.Duration {
	if c.CommandTimeout <= 0 {
		return c.GetReadTimeout()
	}
	return time.Duration(c.CommandTimeout) * time.Second
}

// GetReconnectInterval returns the serial reconnect interval as a Duration.
func (c *SerialConfig) GetReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectInterval) * time.Second
}

// GetPublishInterval returns the status publish interval as a Duration.
func (c *MQTTConfig) GetPublishInterval() time.Duration {
	return time.Duration(c.PublishInterval) * time.Second
}

// GetRetryInterval returns the initial broker connect retry interval as a Duration.
func (c *MQTTReconnectConfig) GetRetryInterval() time.Duration {
	return time.Duration(c.RetryInterval) * time.Second
}
