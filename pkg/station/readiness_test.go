package station

import (
	"testing"
	"time"
)

func TestReadiness_Transitions(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		tags []byte
		want ReadinessState
	}{
		{"initial state is idle", nil, StateIdle},
		{"busy report", []byte{'%'}, StateBusy},
		{"full report", []byte{'*'}, StateFull},
		{"idle report clears full", []byte{'*', '#'}, StateIdle},
		{"error leaves state unchanged", []byte{'%', '!'}, StateBusy},
		{"debug leaves state unchanged", []byte{'*', '$'}, StateFull},
		{"unknown tag ignored", []byte{'%', '?'}, StateBusy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r readiness
			for _, tag := range tt.tags {
				r.apply(tag, now)
			}
			if r.state != tt.want {
				t.Errorf("state = %v, want %v", r.state, tt.want)
			}
		})
	}
}

func TestReadiness_OnlyFullGates(t *testing.T) {
	var r readiness
	now := time.Now()

	r.apply('%', now)
	if r.gated() {
		t.Error("busy must not gate commands")
	}
	r.apply('*', now)
	if !r.gated() {
		t.Error("full must gate commands")
	}
	r.apply('#', now)
	if r.gated() {
		t.Error("idle must not gate commands")
	}
}

func TestReadiness_Expiry(t *testing.T) {
	var r readiness
	now := time.Now()

	r.apply('*', now)
	if r.expire(now.Add(2 * time.Second)) {
		t.Error("state should not expire before the deadline")
	}
	if r.state != StateFull {
		t.Errorf("state = %v, want full", r.state)
	}

	if !r.expire(now.Add(4 * time.Second)) {
		t.Error("state should expire past the deadline")
	}
	if r.state != StateIdle {
		t.Errorf("state = %v, want idle after expiry", r.state)
	}

	// Idle never expires.
	if r.expire(now.Add(10 * time.Second)) {
		t.Error("idle must not expire")
	}
}

func TestReadiness_BusyAlsoExpires(t *testing.T) {
	var r readiness
	now := time.Now()

	r.apply('%', now)
	if !r.expire(now.Add(4 * time.Second)) {
		t.Error("stale busy should fall back to idle")
	}
}

func TestReadinessState_String(t *testing.T) {
	if StateIdle.String() != "idle" || StateBusy.String() != "busy" || StateFull.String() != "full" {
		t.Error("unexpected state names")
	}
}
