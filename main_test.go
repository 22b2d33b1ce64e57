package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName == "" {
		t.Error("AppName should not be empty")
	}

	expectedVersion := "1.0.0"
	if Version != expectedVersion {
		t.Errorf("Expected version %s, got %s", expectedVersion, Version)
	}

	expectedAppName := "Greenhouse Monitor Server"
	if AppName != expectedAppName {
		t.Errorf("Expected app name %s, got %s", expectedAppName, AppName)
	}
}

func TestInitializeServices(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, svc, hub, err := initializeServices(dbPath, true, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	defer st.Close()

	if svc == nil {
		t.Fatal("Expected monitor service to be initialized")
	}
	if hub == nil {
		t.Fatal("Expected hub to be initialized")
	}

	// Seeding was requested, so the inventory should be present.
	sensors, err := st.ListSensors(context.Background())
	if err != nil {
		t.Fatalf("Failed to list sensors: %v", err)
	}
	if len(sensors) != 5 {
		t.Errorf("Expected 5 seeded sensors, got %d", len(sensors))
	}
}

func TestInitializeServices_InvalidDBPath(t *testing.T) {
	_, _, _, err := initializeServices("/non/existent/dir/greenhouse.db", false, zerolog.Nop())
	if err == nil {
		t.Error("Expected error for unwritable database path")
	}
}

func TestFlagDefaults(t *testing.T) {
	if *port <= 0 || *port > 65535 {
		t.Errorf("Invalid default port: %d", *port)
	}

	if *host == "" {
		t.Error("Host should have a default value")
	}

	if *dbPath == "" {
		t.Error("Database path should have a default value")
	}
}

// Note: main(), runHTTPServer() and runNgrokTunnel() start servers and block,
// so they are exercised through the api package's end-to-end tests instead.
