package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Tuya Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Datapoint DatapointConfig `yaml:"datapoint"`
	Firmware  FirmwareConfig  `yaml:"firmware"`
	Update    UpdateConfig    `yaml:"update"`
}

// GatewayConfig identifies this gateway instance.
type GatewayConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for datapoint telemetry.
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

// DatapointConfig contains datapoint dispatch settings.
type DatapointConfig struct {
	// CommandQuota is the number of commands allowed per quota window.
	CommandQuota int `yaml:"command_quota"`

	// QuotaWindow is the rolling quota window in seconds.
	QuotaWindow int `yaml:"quota_window"`

	// MinSpacing is the minimum gap between consecutive commands in milliseconds.
	MinSpacing int `yaml:"min_spacing"`
}

// FirmwareConfig contains firmware repository settings.
type FirmwareConfig struct {
	// Sources lists manifest sources in priority order.
	Sources []FirmwareSourceConfig `yaml:"sources"`

	// ManifestTTL is the manifest cache lifetime in seconds.
	ManifestTTL int `yaml:"manifest_ttl"`

	// ImageTTL is the image lookup cache lifetime in seconds.
	ImageTTL int `yaml:"image_ttl"`

	// FetchTimeout is the per-request HTTP timeout in seconds.
	FetchTimeout int `yaml:"fetch_timeout"`
}

// FirmwareSourceConfig describes a single firmware manifest source.
type FirmwareSourceConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// UpdateConfig contains update orchestrator settings.
type UpdateConfig struct {
	// HistorySize bounds the in-memory record of finished updates.
	HistorySize int `yaml:"history_size"`

	// Archive enables the durable SQLite archive of finished updates.
	Archive bool `yaml:"archive"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TUYACORE_SECTION_KEY
// For example: TUYACORE_DATABASE_PATH, TUYACORE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

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
		Gateway: GatewayConfig{
			ID:       "gateway-001",
			Name:     "Tuya Core",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/tuyacore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tuyacore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Datapoint: DatapointConfig{
			CommandQuota: 20,
			QuotaWindow:  10,
			MinSpacing:   100,
		},
		Firmware: FirmwareConfig{
			Sources: []FirmwareSourceConfig{
				{
					Name: "koenkk",
					URL:  "https://raw.githubusercontent.com/Koenkk/zigbee-OTA/master/index.json",
				},
			},
			ManifestTTL:  86400,
			ImageTTL:     86400,
			FetchTimeout: 30,
		},
		Update: UpdateConfig{
			HistorySize: 100,
			Archive:     true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TUYACORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("TUYACORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("TUYACORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TUYACORE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("TUYACORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TUYACORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("TUYACORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("TUYACORE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("TUYACORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("TUYACORE_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.ID == "" {
		errs = append(errs, "gateway.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Datapoint.CommandQuota < 1 {
		errs = append(errs, "datapoint.command_quota must be at least 1")
	}
	if c.Datapoint.QuotaWindow < 1 {
		errs = append(errs, "datapoint.quota_window must be at least 1 second")
	}
	if c.Datapoint.MinSpacing < 0 {
		errs = append(errs, "datapoint.min_spacing must not be negative")
	}

	for i, src := range c.Firmware.Sources {
		if src.Name == "" {
			errs = append(errs, fmt.Sprintf("firmware.sources[%d].name is required", i))
		}
		if src.URL == "" {
			errs = append(errs, fmt.Sprintf("firmware.sources[%d].url is required", i))
		}
	}
	if c.Firmware.ManifestTTL < 0 {
		errs = append(errs, "firmware.manifest_ttl must not be negative")
	}
	if c.Firmware.ImageTTL < 0 {
		errs = append(errs, "firmware.image_ttl must not be negative")
	}

	if c.Update.HistorySize < 1 {
		errs = append(errs, "update.history_size must be at least 1")
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

// GetManifestTTL returns the firmware manifest cache lifetime as a Duration.
func (c *Config) GetManifestTTL() time.Duration {
	return time.Duration(c.Firmware.ManifestTTL) * time.Second
}

// GetImageTTL returns the firmware image cache lifetime as a Duration.
func (c *Config) GetImageTTL() time.Duration {
	return time.Duration(c.Firmware.ImageTTL) * time.Second
}

// GetFetchTimeout returns the firmware fetch timeout as a Duration.
func (c *Config) GetFetchTimeout() time.Duration {
	return time.Duration(c.Firmware.FetchTimeout) * time.Second
}

// GetQuotaWindow returns the datapoint quota window as a Duration.
func (c *Config) GetQuotaWindow() time.Duration {
	return time.Duration(c.Datapoint.QuotaWindow) * time.Second
}

// GetMinSpacing returns the datapoint command spacing as a Duration.
func (c *Config) GetMinSpacing() time.Duration {
	return time.Duration(c.Datapoint.MinSpacing) * time.Millisecond
}
