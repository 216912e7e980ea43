package testhelpers

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/trackworks/dcc-pilot/pkg/capture"
	"github.com/trackworks/dcc-pilot/pkg/config"
	"github.com/trackworks/dcc-pilot/pkg/logger"
	"github.com/trackworks/dcc-pilot/pkg/metrics"
	"github.com/trackworks/dcc-pilot/pkg/station"
)

// IntegrationSuite wires the service's core pieces around a fake
// generator for end-to-end tests.
type IntegrationSuite struct {
	T         *testing.T
	Logger    *logger.Logger
	Ctx       context.Context
	Cancel    context.CancelFunc
	Trail     *capture.Trail
	Metrics   *metrics.Collector
	Generator *FakeGenerator
}

// NewIntegrationSuite creates a new integration test suite
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	log := logger.New(logger.Config{
		Level:  "error",
		Format: "text",
	})

	return &IntegrationSuite{
		T:         t,
		Logger:    log,
		Ctx:       ctx,
		Cancel:    cancel,
		Trail:     capture.NewTrail(64),
		Metrics:   metrics.NewCollector(),
		Generator: NewFakeGenerator(),
	}
}

// NewStation builds and initializes a station channeled through the
// suite's fake generator.
func (s *IntegrationSuite) NewStation(pinA, pinB int) *station.Station {
	st := station.New(station.Config{
		Transport:     "subprocess",
		Executable:    "fake-generator",
		LivenessTicks: 1,
		PinA:          pinA,
		PinB:          pinB,
	}, s.Trail, s.Metrics, s.Logger)
	st.SetTransportFactory(func() station.Transport { return s.Generator })
	if err := st.Initialize(); err != nil {
		s.T.Fatalf("station initialize: %v", err)
	}
	return st
}

// GetFreePort gets a free port for testing
func (s *IntegrationSuite) GetFreePort() int {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		s.T.Fatal(err)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		s.T.Fatal(err)
	}
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port
}

// Cleanup cleans up resources
func (s *IntegrationSuite) Cleanup() {
	_ = s.Generator.Close()
	s.Cancel()
}

// WaitFor waits for a condition to be true
func (s *IntegrationSuite) WaitFor(condition func() bool, timeout time.Duration, message string) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.T.Logf("WaitFor timeout: %s", message)
	return false
}

// AssertEventually asserts that a condition becomes true within timeout
func (s *IntegrationSuite) AssertEventually(condition func() bool, timeout time.Duration, message string) {
	if !s.WaitFor(condition, timeout, message) {
		s.T.Errorf("Assertion failed: %s", message)
	}
}

// CreateDefaultConfig creates a default test configuration
func CreateDefaultConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Name:   "Test Service",
			Layout: "Test Layout",
		},
		Station: config.StationConfig{
			Transport:     "subprocess",
			Executable:    "fake-generator",
			TickSeconds:   1,
			LivenessTicks: 1,
		},
		GPIO: config.GPIOConfig{
			PinA: 18,
			PinB: 19,
		},
		Web: config.WebConfig{
			Enabled: false,
		},
		Capture: config.CaptureConfig{
			Depth: 64,
		},
		Logging: config.LoggingConfig{
			Level:  "error",
			Format: "text",
		},
		Metrics: config.MetricsConfig{
			Enabled: false,
		},
	}
}
