package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/trackworks/dcc-pilot/pkg/config"
	"github.com/trackworks/dcc-pilot/pkg/logger"
)

// Server represents the control-panel HTTP server
type Server struct {
	config config.WebConfig
	logger *logger.Logger
	server *http.Server
	hub    *WebSocketHub
	api    *API
	addr   string
	mu     sync.RWMutex
}

// NewServer creates a new web server instance
func NewServer(cfg config.WebConfig, api *API, hub *WebSocketHub, log *logger.Logger) *Server {
	return &Server{
		config: cfg,
		logger: log,
		hub:    hub,
		api:    api,
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Web server is disabled")
		return nil
	}

	// Start WebSocket hub
	go s.hub.Run(ctx)

	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", s.handleHealth)

	// Control endpoints
	mux.HandleFunc("/dcc/gpio", s.api.HandleGpio)
	mux.HandleFunc("/dcc/accessory", s.api.HandleAccessory)
	mux.HandleFunc("/dcc/fleet/status", s.api.HandleStatus)
	mux.HandleFunc("/dcc/fleet/move", s.api.HandleMove)
	mux.HandleFunc("/dcc/fleet/set", s.api.HandleSet)
	mux.HandleFunc("/dcc/fleet/stop", s.api.HandleStop)
	mux.HandleFunc("/dcc/fleet/vehicle/model", s.api.HandleAddModel)
	mux.HandleFunc("/dcc/fleet/vehicle/add", s.api.HandleAddVehicle)
	mux.HandleFunc("/dcc/fleet/vehicle/delete", s.api.HandleDeleteVehicle)
	mux.HandleFunc("/dcc/fleet/consist/add", s.api.HandleAddConsist)
	mux.HandleFunc("/dcc/fleet/consist/assign", s.api.HandleAssign)
	mux.HandleFunc("/dcc/fleet/consist/remove", s.api.HandleRemove)
	mux.HandleFunc("/dcc/fleet/consist/delete", s.api.HandleDeleteConsist)
	mux.HandleFunc("/dcc/fleet/config", s.api.HandleConfig)
	mux.HandleFunc("/dcc/capture", s.api.HandleCapture)

	// WebSocket endpoint
	mux.Handle("/ws", s.hub.Handler())

	// Serve static control panel assets if present (frontend/dist)
	staticDir := "frontend/dist"
	if fi, err := os.Stat(staticDir); err == nil && fi.IsDir() {
		s.logger.Info("Serving static control panel assets", logger.String("dir", staticDir))
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			reqPath := filepath.Clean(r.URL.Path)
			if reqPath == "/" {
				http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
				return
			}
			if len(reqPath) > 0 && reqPath[0] == '/' {
				reqPath = reqPath[1:]
			}
			fullPath := filepath.Join(staticDir, reqPath)
			if fi, err := os.Stat(fullPath); err == nil && !fi.IsDir() {
				http.ServeFile(w, r, fullPath)
				return
			}
			// Fallback to index.html for SPA routes
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
		})
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start listener to get actual address (especially for port 0)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info("Starting web server",
		logger.String("address", s.addr))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// GetAddr returns the address the server is listening on
func (s *Server) GetAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// GetHub returns the WebSocket hub
func (s *Server) GetHub() *WebSocketHub {
	return s.hub
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, _, _ := GetVersionInfo()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "dcc-pilot",
		"version": version,
		"channel": s.api.station.Readiness().String(),
		"alive":   s.api.station.Alive(),
		"time":    time.Now().Unix(),
	}); err != nil {
		s.logger.Warn("Failed to encode health response", logger.Error(err))
	}
}
