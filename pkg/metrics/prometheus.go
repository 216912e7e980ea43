package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/trackworks/dcc-pilot/pkg/logger"
)

// PrometheusConfig holds Prometheus server configuration
type PrometheusConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// PrometheusHandler handles Prometheus metrics HTTP requests
type PrometheusHandler struct {
	collector *Collector
}

// NewPrometheusHandler creates a new Prometheus handler
func NewPrometheusHandler(collector *Collector) *PrometheusHandler {
	return &PrometheusHandler{
		collector: collector,
	}
}

// ServeHTTP handles HTTP requests for metrics
func (h *PrometheusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	var output strings.Builder

	// Command metrics
	output.WriteString("# HELP dcc_commands_sent_total Total command lines handed to the transport\n")
	output.WriteString("# TYPE dcc_commands_sent_total counter\n")
	output.WriteString(fmt.Sprintf("dcc_commands_sent_total %d\n", h.collector.GetCommandsSent()))

	output.WriteString("# HELP dcc_commands_rejected_total Commands rejected before transmission\n")
	output.WriteString("# TYPE dcc_commands_rejected_total counter\n")
	for reason, n := range h.collector.GetCommandsRejectedByReason() {
		output.WriteString(fmt.Sprintf("dcc_commands_rejected_total{reason=%q} %d\n", reason, n))
	}

	output.WriteString("# HELP dcc_write_errors_total Failed transport writes\n")
	output.WriteString("# TYPE dcc_write_errors_total counter\n")
	output.WriteString(fmt.Sprintf("dcc_write_errors_total %d\n", h.collector.GetWriteErrors()))

	// Inbound stream metrics
	output.WriteString("# HELP dcc_lines_decoded_total Decoded inbound status lines\n")
	output.WriteString("# TYPE dcc_lines_decoded_total counter\n")
	for tag, n := range h.collector.GetLinesDecodedByTag() {
		output.WriteString(fmt.Sprintf("dcc_lines_decoded_total{tag=%q} %d\n", tag, n))
	}

	output.WriteString("# HELP dcc_bytes_read_total Raw bytes drained from the inbound stream\n")
	output.WriteString("# TYPE dcc_bytes_read_total counter\n")
	output.WriteString(fmt.Sprintf("dcc_bytes_read_total %d\n", h.collector.GetBytesRead()))

	// Supervision metrics
	output.WriteString("# HELP dcc_generator_relaunches_total Generator relaunch attempts\n")
	output.WriteString("# TYPE dcc_generator_relaunches_total counter\n")
	output.WriteString(fmt.Sprintf("dcc_generator_relaunches_total %d\n", h.collector.GetRelaunches()))

	output.WriteString("# HELP dcc_readiness_expired_total Stale readiness states forced back to idle\n")
	output.WriteString("# TYPE dcc_readiness_expired_total counter\n")
	output.WriteString(fmt.Sprintf("dcc_readiness_expired_total %d\n", h.collector.GetReadinessExpired()))

	w.Write([]byte(output.String()))
}

// PrometheusServer is an HTTP server for Prometheus metrics
type PrometheusServer struct {
	config    PrometheusConfig
	collector *Collector
	log       *logger.Logger
	server    *http.Server
}

// NewPrometheusServer creates a new Prometheus metrics server
func NewPrometheusServer(config PrometheusConfig, collector *Collector, log *logger.Logger) *PrometheusServer {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}

	return &PrometheusServer{
		config:    config,
		collector: collector,
		log:       log.WithComponent("metrics"),
	}
}

// Start starts the Prometheus metrics server
func (s *PrometheusServer) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("Prometheus metrics server disabled")
		return nil
	}

	handler := NewPrometheusHandler(s.collector)
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, handler)

	// Use a listener to get the actual port (useful for testing with port 0)
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{
		Handler: mux,
	}

	s.log.Info("Starting Prometheus metrics server",
		logger.Int("port", actualPort),
		logger.String("path", s.config.Path))

	// Start server
	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.log.Info("Shutting down Prometheus metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown error: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// Stop stops the Prometheus metrics server
func (s *PrometheusServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
	}
}
