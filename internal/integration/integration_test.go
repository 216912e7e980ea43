//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/trackworks/dcc-pilot/internal/testhelpers"
	"github.com/trackworks/dcc-pilot/pkg/config"
	"github.com/trackworks/dcc-pilot/pkg/fleet"
	"github.com/trackworks/dcc-pilot/pkg/station"
	"github.com/trackworks/dcc-pilot/pkg/web"
)

// buildService wires station, fleet and web server around the suite's
// fake generator and returns the HTTP base URL.
func buildService(t *testing.T, suite *testhelpers.IntegrationSuite) (string, *station.Station, *fleet.Fleet) {
	t.Helper()

	st := suite.NewStation(18, 19)
	fl := fleet.New(st, suite.Logger)

	hub := web.NewWebSocketHub(suite.Logger)
	suite.Trail.AddListener(hub.BroadcastCaptureRecord)

	api := web.NewAPI(st, fl, suite.Trail, hub, "Test Layout", suite.Logger)

	port := suite.GetFreePort()
	srv := web.NewServer(config.WebConfig{
		Enabled: true,
		Host:    "localhost",
		Port:    port,
	}, api, hub, suite.Logger)

	go func() {
		if err := srv.Start(suite.Ctx); err != nil && err != context.Canceled && err != http.ErrServerClosed {
			t.Logf("web server: %v", err)
		}
	}()

	base := fmt.Sprintf("http://localhost:%d", port)
	suite.AssertEventually(func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, "web server came up")

	return base, st, fl
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	var body json.RawMessage
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

// TestTrackCommandsEndToEnd drives the HTTP API and asserts the exact
// command lines that reach the generator.
func TestTrackCommandsEndToEnd(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()

	base, _, _ := buildService(t, suite)

	// The fresh channel announces its pin assignment first.
	suite.AssertEventually(func() bool {
		return suite.Generator.Sent("pin 18 19")
	}, time.Second, "pin line transmitted")

	if code, _ := get(t, base+"/dcc/fleet/move?id=5&speed=15"); code != http.StatusOK {
		t.Fatalf("move = %d", code)
	}
	if !suite.Generator.Sent("send 5 105") {
		t.Errorf("move line missing, got %v", suite.Generator.Lines())
	}

	if code, _ := get(t, base+"/dcc/accessory?adr=70&device=2&state=on"); code != http.StatusOK {
		t.Fatalf("accessory = %d", code)
	}
	if !suite.Generator.Sent("send 134 154") {
		t.Errorf("accessory line missing, got %v", suite.Generator.Lines())
	}

	// Stop everything, urgently.
	if code, _ := get(t, base+"/dcc/fleet/stop?urgent=1"); code != http.StatusOK {
		t.Fatalf("stop = %d", code)
	}
	if !suite.Generator.Sent("send 0 65") {
		t.Errorf("emergency stop line missing, got %v", suite.Generator.Lines())
	}
}

// TestFleetLifecycleOverHTTP registers a model and vehicles, drives a
// consist and checks the reported status.
func TestFleetLifecycleOverHTTP(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()

	base, _, _ := buildService(t, suite)

	steps := []string{
		"/dcc/fleet/vehicle/model?model=GP38&type=engine&devices=lights:13+sound:1",
		"/dcc/fleet/vehicle/add?id=BNSF2077&model=GP38&adr=77",
		"/dcc/fleet/vehicle/add?id=UP1996&model=GP38&adr=96",
		"/dcc/fleet/consist/add?id=freight&adr=50",
		"/dcc/fleet/consist/assign?consist=freight&loco=BNSF2077&mode=f",
		"/dcc/fleet/consist/assign?consist=freight&loco=UP1996&mode=r",
	}
	for _, step := range steps {
		if code, body := get(t, base+step); code != http.StatusOK {
			t.Fatalf("%s = %d (%s)", step, code, body)
		}
	}

	// Moving the consist fans out to both members, reversed for the
	// trailing unit.
	if code, _ := get(t, base+"/dcc/fleet/move?id=freight&speed=100"); code != http.StatusOK {
		t.Fatalf("consist move failed")
	}
	suite.AssertEventually(func() bool {
		return suite.Generator.Sent("send 77 127") && suite.Generator.Sent("send 96 95")
	}, time.Second, "consist fan-out transmitted")

	// Switching a named device resolves through the model's function map.
	if code, _ := get(t, base+"/dcc/fleet/set?id=BNSF2077&device=sound&state=on"); code != http.StatusOK {
		t.Fatalf("set failed")
	}
	if !suite.Generator.Sent("send 77 129") {
		t.Errorf("function line missing, got %v", suite.Generator.Lines())
	}

	code, body := get(t, base+"/dcc/fleet/status")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var status struct {
		Trains struct {
			Vehicles []struct {
				ID    string `json:"id"`
				Speed int    `json:"speed"`
			} `json:"vehicles"`
		} `json:"trains"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(status.Trains.Vehicles) != 2 {
		t.Fatalf("expected 2 vehicles, got %d", len(status.Trains.Vehicles))
	}
	for _, v := range status.Trains.Vehicles {
		want := 28
		if v.ID == "UP1996" {
			want = -28
		}
		if v.Speed != want {
			t.Errorf("vehicle %s speed = %d, want %d", v.ID, v.Speed, want)
		}
	}
}

// TestSupervisorRelaunchesDeadGenerator kills the fake generator and
// checks the periodic tick brings a fresh channel up.
func TestSupervisorRelaunchesDeadGenerator(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()

	st := suite.NewStation(18, 19)
	defer st.Shutdown()

	if suite.Generator.Opens() != 1 {
		t.Fatalf("opens = %d, want 1", suite.Generator.Opens())
	}

	suite.Generator.Die()
	st.PeriodicTick(time.Now())

	suite.AssertEventually(func() bool {
		return suite.Generator.Opens() == 2
	}, time.Second, "generator relaunched")

	// The relaunched channel re-announces its pins.
	lines := suite.Generator.Lines()
	if len(lines) < 2 || lines[len(lines)-1] != "pin 18 19" {
		t.Errorf("pin line not re-sent, lines = %v", lines)
	}
}

// TestReadinessGatesTrafficEndToEnd feeds status lines through the
// inbound stream and checks the full-queue gate.
func TestReadinessGatesTrafficEndToEnd(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()

	st := suite.NewStation(18, 19)
	defer st.Shutdown()

	suite.Generator.EmitFull()
	suite.AssertEventually(func() bool {
		return st.Readiness() == station.StateFull
	}, time.Second, "full status decoded")

	if st.Move(5, 10) {
		t.Error("move accepted while generator full")
	}
	if !st.Stop(5, true) {
		t.Error("stop rejected; safety commands are never gated")
	}

	suite.Generator.EmitIdle()
	suite.AssertEventually(func() bool {
		return st.Readiness() == station.StateIdle
	}, time.Second, "idle status decoded")

	if !st.Move(5, 10) {
		t.Error("move rejected after idle")
	}
}
