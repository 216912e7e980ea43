package web

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/trackworks/dcc-pilot/pkg/config"
	"github.com/trackworks/dcc-pilot/pkg/logger"
)

func newTestServer(t *testing.T, cfg config.WebConfig) (*Server, *apiRig) {
	t.Helper()
	rig := newAPIRig(t)
	log := logger.New(logger.Config{Level: "error"})
	hub := NewWebSocketHub(log)
	return NewServer(cfg, rig.api, hub, log), rig
}

func TestServer_New(t *testing.T) {
	cfg := config.WebConfig{
		Enabled: true,
		Host:    "localhost",
		Port:    8090,
	}
	srv, _ := newTestServer(t, cfg)

	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
	if srv.config.Port != 8090 {
		t.Errorf("Expected port 8090, got %d", srv.config.Port)
	}
}

func TestServer_StartStop(t *testing.T) {
	cfg := config.WebConfig{
		Enabled: true,
		Host:    "localhost",
		Port:    0, // Use any available port
	}
	srv, _ := newTestServer(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	err := <-errChan
	if err != nil && err != context.Canceled && err != http.ErrServerClosed {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestServer_DisabledDoesNothing(t *testing.T) {
	cfg := config.WebConfig{Enabled: false}
	srv, _ := newTestServer(t, cfg)

	if err := srv.Start(context.Background()); err != nil {
		t.Errorf("disabled server should return nil, got %v", err)
	}
}

func TestServer_RoutesServed(t *testing.T) {
	cfg := config.WebConfig{
		Enabled: true,
		Host:    "localhost",
		Port:    0,
	}
	srv, _ := newTestServer(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		if err := srv.Start(ctx); err != nil && err != context.Canceled && err != http.ErrServerClosed {
			t.Logf("srv.Start error: %v", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	addr := srv.GetAddr()
	if addr == "" {
		t.Fatal("Server address is empty")
	}
	base := "http://" + addr

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	_ = resp.Body.Close()
	if health["service"] != "dcc-pilot" || health["channel"] != "idle" {
		t.Errorf("health = %v", health)
	}

	resp, err = http.Get(base + "/dcc/fleet/status")
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/dcc/fleet/move?id=5&speed=10")
	if err != nil {
		t.Fatalf("move request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("move = %d", resp.StatusCode)
	}
}
