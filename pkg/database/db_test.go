package database

import (
	"bytes"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/trackworks/dcc-pilot/pkg/capture"
	"github.com/trackworks/dcc-pilot/pkg/fleet"
	"github.com/trackworks/dcc-pilot/pkg/logger"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Output: &bytes.Buffer{}})
	db, err := NewDB(Config{Path: filepath.Join(t.TempDir(), "test.db")}, log)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDB_DefaultsAndMigrations(t *testing.T) {
	db := newTestDB(t)

	// Migrations ran: all tables accept rows.
	if err := db.GetDB().Create(&ModelRecord{Name: "GP38", Type: "engine"}).Error; err != nil {
		t.Errorf("vehicle_models not migrated: %v", err)
	}
	if err := db.GetDB().Create(&CaptureEntry{Time: time.Now(), Topic: "PIDCC", Tag: "IDLE"}).Error; err != nil {
		t.Errorf("capture_entries not migrated: %v", err)
	}
}

func TestFleetRepository_SaveLoadRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewFleetRepository(db.GetDB())

	cfg := fleet.Config{
		Models: []fleet.Model{
			{Name: "GP38", Type: "engine", Functions: []fleet.Function{
				{Name: "lights", Index: 13},
				{Name: "sound", Index: 1},
			}},
			{Name: "boxcar", Type: "dummy"},
		},
		Vehicles: []fleet.VehicleConfig{
			{ID: "BNSF2077", Address: 77, Model: "GP38"},
			{ID: "UP1996", Address: 96, Model: "GP38"},
		},
		Consists: []fleet.ConsistConfig{
			{ID: "freight", Address: 50, Members: []fleet.ConsistMember{
				{Vehicle: "BNSF2077", Mode: "f"},
				{Vehicle: "UP1996", Mode: "r"},
			}},
		},
	}

	if err := repo.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := repo.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestFleetRepository_SaveReplacesPrevious(t *testing.T) {
	db := newTestDB(t)
	repo := NewFleetRepository(db.GetDB())

	first := fleet.Config{
		Vehicles: []fleet.VehicleConfig{{ID: "OLD1", Address: 1}},
	}
	if err := repo.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := fleet.Config{
		Vehicles: []fleet.VehicleConfig{{ID: "NEW1", Address: 2}},
	}
	if err := repo.Save(second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := repo.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Vehicles) != 1 || loaded.Vehicles[0].ID != "NEW1" {
		t.Errorf("previous snapshot not replaced: %+v", loaded.Vehicles)
	}
}

func TestFleetRepository_LoadEmpty(t *testing.T) {
	db := newTestDB(t)
	repo := NewFleetRepository(db.GetDB())

	loaded, err := repo.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Models) != 0 || len(loaded.Vehicles) != 0 || len(loaded.Consists) != 0 {
		t.Errorf("expected empty config, got %+v", loaded)
	}
}

func TestStationRepository_Pins(t *testing.T) {
	db := newTestDB(t)
	repo := NewStationRepository(db.GetDB())

	_, _, found, err := repo.LoadPins()
	if err != nil {
		t.Fatalf("LoadPins: %v", err)
	}
	if found {
		t.Error("no pins saved yet")
	}

	if err := repo.SavePins(18, 19); err != nil {
		t.Fatalf("SavePins: %v", err)
	}
	// Saving again updates the single row.
	if err := repo.SavePins(12, 13); err != nil {
		t.Fatalf("SavePins update: %v", err)
	}

	a, b, found, err := repo.LoadPins()
	if err != nil {
		t.Fatalf("LoadPins: %v", err)
	}
	if !found || a != 12 || b != 13 {
		t.Errorf("LoadPins = (%d, %d, %v)", a, b, found)
	}
}

func TestCaptureRepository_RecentAndRetention(t *testing.T) {
	db := newTestDB(t)
	repo := NewCaptureRepository(db.GetDB())

	now := time.Now()
	for i := 0; i < 5; i++ {
		entry := CaptureEntry{
			Time:  now.Add(time.Duration(i-4) * time.Hour),
			Topic: "PIDCC",
			Tag:   "WRITE",
			Text:  "send 5 105",
		}
		if err := repo.Create(&entry); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	recent, err := repo.GetRecent(3)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(recent))
	}
	if !recent[0].Time.After(recent[2].Time) {
		t.Error("entries not ordered most recent first")
	}

	deleted, err := repo.DeleteOlderThan(now.Add(-90 * time.Minute))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
}

func TestCaptureWriter_DrainsTrailRecords(t *testing.T) {
	db := newTestDB(t)
	repo := NewCaptureRepository(db.GetDB())
	log := logger.New(logger.Config{Level: "error", Output: &bytes.Buffer{}})

	writer := NewCaptureWriter(repo, 16, log)
	writer.Start()

	trail := capture.NewTrail(16)
	trail.AddListener(writer.Listener())
	trail.Record("PIDCC", "WRITE", "send 5 105")
	trail.Record("PIDCC", "IDLE", "at rest")

	writer.Stop() // waits for the queue to drain

	entries, err := repo.GetRecent(10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 persisted entries, got %d", len(entries))
	}
	if writer.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", writer.Dropped())
	}
}
