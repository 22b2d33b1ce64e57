package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/verdantops/greenhouse-monitor/greenhouse/store"
)

// newSeededDB builds a seeded database on disk and returns a raw handle to it.
func newSeededDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "check.db")
	st, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := store.Seed(context.Background(), st); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Failed to open raw handle: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestChecksPassOnSeededDatabase(t *testing.T) {
	db := newSeededDB(t)

	for _, check := range []struct {
		name string
		fn   func(*sql.DB) CheckResult
	}{
		{"sensors", checkSensors},
		{"actuators", checkActuators},
		{"readings", checkReadings},
		{"commands", checkCommands},
	} {
		result := check.fn(db)
		if !result.Valid {
			t.Errorf("Check %s failed on seeded database: %v", check.name, result.Notes)
		}
	}
}

func TestCheckSensorsBadUnit(t *testing.T) {
	db := newSeededDB(t)

	if _, err := db.Exec(`UPDATE sensors SET unit = 'furlongs' WHERE type = 'temperature'`); err != nil {
		t.Fatalf("Failed to corrupt sensor: %v", err)
	}

	result := checkSensors(db)
	if result.Valid {
		t.Error("Expected sensor check to fail on bad unit")
	}
}

func TestCheckActuatorsImplausibleState(t *testing.T) {
	db := newSeededDB(t)

	if _, err := db.Exec(`UPDATE actuators SET state = 'SIDEWAYS' WHERE type = 'servo'`); err != nil {
		t.Fatalf("Failed to corrupt actuator: %v", err)
	}

	result := checkActuators(db)
	if result.Valid {
		t.Error("Expected actuator check to fail on implausible state")
	}
}

func TestCheckReadingsOrphan(t *testing.T) {
	db := newSeededDB(t)

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(`INSERT INTO sensor_readings (id, sensor_id, value, recorded_at) VALUES ('r1', 'ghost', 1.0, ?)`, now)
	if err != nil {
		t.Fatalf("Failed to insert orphan reading: %v", err)
	}

	result := checkReadings(db)
	if result.Valid {
		t.Error("Expected reading check to fail on orphan row")
	}
}

func TestCheckCommandsBadStatus(t *testing.T) {
	db := newSeededDB(t)

	var actuatorID string
	if err := db.QueryRow(`SELECT id FROM actuators LIMIT 1`).Scan(&actuatorID); err != nil {
		t.Fatalf("Failed to find actuator: %v", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(`INSERT INTO actuator_commands (id, actuator_id, command, status, issued_by, issued_at) VALUES ('c1', ?, 'ON', 'teleported', 'test', ?)`, actuatorID, now)
	if err != nil {
		t.Fatalf("Failed to insert command: %v", err)
	}

	result := checkCommands(db)
	if result.Valid {
		t.Error("Expected command check to fail on unknown status")
	}
}

func TestPlausibleState(t *testing.T) {
	tests := []struct {
		actuatorType, state string
		want                bool
	}{
		{"servo", "OPEN", true},
		{"servo", "CLOSED", true},
		{"servo", "45°", true},
		{"servo", "ON", false},
		{"relay", "ON", true},
		{"relay", "OFF", true},
		{"relay", "OPEN", false},
		{"blender", "ON", false},
	}

	for _, tt := range tests {
		if got := plausibleState(tt.actuatorType, tt.state); got != tt.want {
			t.Errorf("plausibleState(%q, %q) = %v, want %v", tt.actuatorType, tt.state, got, tt.want)
		}
	}
}
