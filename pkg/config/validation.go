package config

import (
	"fmt"
	"strings"
)

// validate validates the configuration
func validate(cfg *Config) error {
	// Validate station config
	transport := strings.ToLower(cfg.Station.Transport)
	if transport != "subprocess" && transport != "serial" {
		return fmt.Errorf("station.transport must be subprocess or serial, got %s", cfg.Station.Transport)
	}
	if transport == "subprocess" && cfg.Station.Executable == "" {
		return fmt.Errorf("station.executable is required for the subprocess transport")
	}
	if transport == "serial" {
		if cfg.Station.SerialDevice == "" {
			return fmt.Errorf("station.serial_device is required for the serial transport")
		}
		if cfg.Station.SerialBaud <= 0 {
			return fmt.Errorf("station.serial_baud must be positive")
		}
	}
	if cfg.Station.TickSeconds <= 0 {
		return fmt.Errorf("station.tick_seconds must be positive")
	}
	if cfg.Station.LivenessTicks <= 0 {
		return fmt.Errorf("station.liveness_ticks must be positive")
	}

	// Validate GPIO pins: 0 means unassigned, anything else must be a
	// plausible header pin number.
	if cfg.GPIO.PinA < 0 || cfg.GPIO.PinA > 64 {
		return fmt.Errorf("gpio.pin_a out of range: %d", cfg.GPIO.PinA)
	}
	if cfg.GPIO.PinB < 0 || cfg.GPIO.PinB > 64 {
		return fmt.Errorf("gpio.pin_b out of range: %d", cfg.GPIO.PinB)
	}

	// Validate web config
	if cfg.Web.Enabled {
		if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
			return fmt.Errorf("web.port must be between 1 and 65535")
		}
	}

	// Validate capture config
	if cfg.Capture.Depth <= 0 {
		return fmt.Errorf("capture.depth must be positive")
	}

	// Validate metrics config
	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		if cfg.Metrics.Prometheus.Port <= 0 || cfg.Metrics.Prometheus.Port > 65535 {
			return fmt.Errorf("metrics.prometheus.port must be between 1 and 65535")
		}
	}

	return nil
}
