package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func validStation() StationConfig {
	return StationConfig{
		Transport:     "subprocess",
		Executable:    "/usr/local/bin/pidcc",
		TickSeconds:   1,
		LivenessTicks: 5,
	}
}

func TestLoad_UsesDefaults_WhenNoFile(t *testing.T) {
	// Reset viper to avoid cross-test pollution
	viper.Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	// Spot-check a few defaults
	if cfg.Station.Transport != "subprocess" {
		t.Errorf("expected Station.Transport default subprocess, got %s", cfg.Station.Transport)
	}
	if cfg.Station.Executable != "/usr/local/bin/pidcc" {
		t.Errorf("expected default executable, got %s", cfg.Station.Executable)
	}
	if cfg.Station.LivenessTicks != 5 {
		t.Errorf("expected Station.LivenessTicks default 5, got %d", cfg.Station.LivenessTicks)
	}
	if cfg.GPIO.PinA != 0 || cfg.GPIO.PinB != 0 {
		t.Errorf("expected GPIO pins default 0, got %d %d", cfg.GPIO.PinA, cfg.GPIO.PinB)
	}
	if cfg.Web.Enabled != true {
		t.Errorf("expected Web.Enabled default true, got %v", cfg.Web.Enabled)
	}
	if cfg.Web.Port != 8090 {
		t.Errorf("expected Web.Port default 8090, got %d", cfg.Web.Port)
	}
	if cfg.Capture.Depth != 256 {
		t.Errorf("expected Capture.Depth default 256, got %d", cfg.Capture.Depth)
	}
	if cfg.Logging.Level == "" {
		t.Errorf("expected Logging.Level to be set (default info)")
	}
	if cfg.Metrics.Prometheus.Port != 9290 {
		t.Errorf("expected Prometheus.Port default 9290, got %d", cfg.Metrics.Prometheus.Port)
	}
}

func TestLoad_FromFile(t *testing.T) {
	viper.Reset()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
station:
  executable: /opt/pidcc/pidcc
gpio:
  pin_a: 18
  pin_b: 19
web:
  port: 9999
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Station.Executable != "/opt/pidcc/pidcc" {
		t.Errorf("expected executable from file, got %s", cfg.Station.Executable)
	}
	if cfg.GPIO.PinA != 18 || cfg.GPIO.PinB != 19 {
		t.Errorf("expected pins 18/19, got %d/%d", cfg.GPIO.PinA, cfg.GPIO.PinB)
	}
	if cfg.Web.Port != 9999 {
		t.Errorf("expected web port 9999, got %d", cfg.Web.Port)
	}
	// Defaults still apply for unset sections
	if cfg.Station.TickSeconds != 1 {
		t.Errorf("expected tick_seconds default 1, got %d", cfg.Station.TickSeconds)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Run("invalid transport", func(t *testing.T) {
		cfg := &Config{Station: validStation(), Capture: CaptureConfig{Depth: 1}}
		cfg.Station.Transport = "pigeon"
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for unknown station.transport")
		}
	})

	t.Run("subprocess without executable", func(t *testing.T) {
		cfg := &Config{Station: validStation(), Capture: CaptureConfig{Depth: 1}}
		cfg.Station.Executable = ""
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for missing station.executable")
		}
	})

	t.Run("serial without device", func(t *testing.T) {
		cfg := &Config{Station: validStation(), Capture: CaptureConfig{Depth: 1}}
		cfg.Station.Transport = "serial"
		cfg.Station.SerialBaud = 115200
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for missing station.serial_device")
		}
	})

	t.Run("gpio pin out of range", func(t *testing.T) {
		cfg := &Config{Station: validStation(), Capture: CaptureConfig{Depth: 1}}
		cfg.GPIO.PinA = 99
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for gpio.pin_a out of range")
		}
	})

	t.Run("invalid web port when enabled", func(t *testing.T) {
		cfg := &Config{
			Station: validStation(),
			Capture: CaptureConfig{Depth: 1},
			Web:     WebConfig{Enabled: true, Port: 70000},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for invalid web.port out of range")
		}
	})

	t.Run("non-positive capture depth", func(t *testing.T) {
		cfg := &Config{Station: validStation()}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for non-positive capture.depth")
		}
	})
}
