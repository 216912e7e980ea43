package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Station  StationConfig  `mapstructure:"station"`
	GPIO     GPIOConfig     `mapstructure:"gpio"`
	Database DatabaseConfig `mapstructure:"database"`
	Web      WebConfig      `mapstructure:"web"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds service identification
type ServerConfig struct {
	Name        string `mapstructure:"name"`
	Layout      string `mapstructure:"layout"` // Model railway layout name
	Description string `mapstructure:"description"`
}

// StationConfig holds the DCC command generator channel configuration
type StationConfig struct {
	Transport     string `mapstructure:"transport"`      // "subprocess" or "serial"
	Executable    string `mapstructure:"executable"`     // Subprocess: generator binary path
	SerialDevice  string `mapstructure:"serial_device"`  // Serial: device path
	SerialBaud    int    `mapstructure:"serial_baud"`    // Serial: baud rate
	TickSeconds   int    `mapstructure:"tick_seconds"`   // Supervisor cadence
	LivenessTicks int    `mapstructure:"liveness_ticks"` // Process liveness check every N ticks
}

// GPIOConfig holds the generator's output pin assignment.
// Both pins at 0 means the channel is administratively disabled.
type GPIOConfig struct {
	PinA int `mapstructure:"pin_a"`
	PinB int `mapstructure:"pin_b"`
}

// DatabaseConfig holds fleet registry persistence configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// WebConfig holds web API configuration
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// CaptureConfig holds the diagnostic capture trail configuration
type CaptureConfig struct {
	Depth   int  `mapstructure:"depth"`   // Records kept in memory
	Persist bool `mapstructure:"persist"` // Also store records in the database
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig holds Prometheus metrics configuration
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Set defaults
	setDefaults()

	// Set config file
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/dcc-pilot")
	}

	// Environment variables
	viper.SetEnvPrefix("DCC")
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is OK, use defaults
		} else if os.IsNotExist(err) {
			// File explicitly specified but doesn't exist - that's also OK
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal to struct
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.name", "DCC-Pilot")
	viper.SetDefault("server.layout", "home")
	viper.SetDefault("server.description", "DCC model railway control service")

	// Station defaults
	viper.SetDefault("station.transport", "subprocess")
	viper.SetDefault("station.executable", "/usr/local/bin/pidcc")
	viper.SetDefault("station.serial_baud", 115200)
	viper.SetDefault("station.tick_seconds", 1)
	viper.SetDefault("station.liveness_ticks", 5)

	// GPIO defaults: unconfigured, channel disabled
	viper.SetDefault("gpio.pin_a", 0)
	viper.SetDefault("gpio.pin_b", 0)

	// Database defaults
	viper.SetDefault("database.path", "dcc-pilot.db")

	// Web defaults
	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", 8090)

	// Capture defaults
	viper.SetDefault("capture.depth", 256)
	viper.SetDefault("capture.persist", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prometheus.enabled", true)
	viper.SetDefault("metrics.prometheus.port", 9290)
	viper.SetDefault("metrics.prometheus.path", "/metrics")
}
