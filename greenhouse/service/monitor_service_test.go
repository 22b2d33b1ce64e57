package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/verdantops/greenhouse-monitor/greenhouse/store"
)

// fakeNotifier records dispatches instead of pushing to live sessions.
type fakeNotifier struct {
	devicesOnline bool

	commands  []interface{}
	readings  []interface{}
	actuators []interface{}
}

func (f *fakeNotifier) DispatchCommandToDevices(command interface{}) bool {
	f.commands = append(f.commands, command)
	return f.devicesOnline
}

func (f *fakeNotifier) DispatchReadingToDashboards(reading interface{}) {
	f.readings = append(f.readings, reading)
}

func (f *fakeNotifier) DispatchActuatorStateToDashboards(actuator interface{}) {
	f.actuators = append(f.actuators, actuator)
}

func newTestService(t *testing.T) (MonitorService, store.Store, *fakeNotifier) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := store.Seed(context.Background(), st); err != nil {
		t.Fatalf("Failed to seed test store: %v", err)
	}

	notifier := &fakeNotifier{devicesOnline: true}
	return NewMonitorService(st, notifier, zerolog.Nop()), st, notifier
}

func sensorByType(t *testing.T, st store.Store, sensorType string) store.Sensor {
	t.Helper()

	sensors, err := st.ListSensors(context.Background())
	if err != nil {
		t.Fatalf("ListSensors failed: %v", err)
	}
	for _, s := range sensors {
		if s.Type == sensorType {
			return s
		}
	}
	t.Fatalf("No seeded sensor of type %q", sensorType)
	return store.Sensor{}
}

func actuatorByType(t *testing.T, st store.Store, actuatorType string) store.Actuator {
	t.Helper()

	actuators, err := st.ListActuators(context.Background())
	if err != nil {
		t.Fatalf("ListActuators failed: %v", err)
	}
	for _, a := range actuators {
		if a.Type == actuatorType {
			return a
		}
	}
	t.Fatalf("No seeded actuator of type %q", actuatorType)
	return store.Actuator{}
}

func TestCreateReadingDispatchesToDashboards(t *testing.T) {
	svc, st, notifier := newTestService(t)
	ctx := context.Background()
	temp := sensorByType(t, st, "temperature")

	reading, err := svc.CreateReading(ctx, CreateReadingRequest{SensorID: temp.ID, Value: 28.5})
	if err != nil {
		t.Fatalf("CreateReading failed: %v", err)
	}
	if reading.ID == "" {
		t.Error("Reading should get an id")
	}
	if reading.Sensor == nil || reading.Sensor.Type != "temperature" {
		t.Error("Reading should carry its sensor metadata")
	}
	if len(notifier.readings) != 1 {
		t.Errorf("Expected 1 dashboard dispatch, got %d", len(notifier.readings))
	}
}

func TestCreateReadingUnknownSensor(t *testing.T) {
	svc, _, notifier := newTestService(t)

	_, err := svc.CreateReading(context.Background(), CreateReadingRequest{SensorID: "missing", Value: 1})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if len(notifier.readings) != 0 {
		t.Error("Failed create should not dispatch to dashboards")
	}
}

func TestCreateReadingValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateReading(context.Background(), CreateReadingRequest{})
	if !errors.Is(err, ErrMissingSensorID) {
		t.Errorf("Expected ErrMissingSensorID, got %v", err)
	}
}

func TestSaveReadingBatchSkipsUnknownTypes(t *testing.T) {
	svc, _, _ := newTestService(t)

	count, err := svc.SaveReadingBatch(context.Background(), BatchReadingRequest{
		DeviceID: "esp8266_001",
		Readings: []BatchReading{
			{SensorType: "temperature", Value: 28.5},
			{SensorType: "humidity", Value: 71.2},
			{SensorType: "barometric", Value: 1013}, // not part of the inventory
		},
	})
	if err != nil {
		t.Fatalf("SaveReadingBatch failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 readings saved (unknown type skipped), got %d", count)
	}
}

func TestSaveReadingBatchEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.SaveReadingBatch(context.Background(), BatchReadingRequest{})
	if !errors.Is(err, ErrMissingReadings) {
		t.Errorf("Expected ErrMissingReadings, got %v", err)
	}
}

func TestLatestReadings(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	temp := sensorByType(t, st, "temperature")

	if _, err := svc.CreateReading(ctx, CreateReadingRequest{SensorID: temp.ID, Value: 30}); err != nil {
		t.Fatalf("CreateReading failed: %v", err)
	}

	latest, err := svc.LatestReadings(ctx)
	if err != nil {
		t.Fatalf("LatestReadings failed: %v", err)
	}
	if len(latest) != 5 {
		t.Fatalf("Expected one entry per seeded sensor, got %d", len(latest))
	}

	for _, entry := range latest {
		if entry.Sensor.Type == "temperature" {
			if entry.Reading == nil || entry.Reading.Value != 30 {
				t.Errorf("Temperature entry should carry the reading, got %+v", entry.Reading)
			}
		} else if entry.Reading != nil {
			t.Errorf("Unreported sensor %q should have nil reading", entry.Sensor.Type)
		}
	}
}

func TestIssueCommandServo(t *testing.T) {
	svc, st, notifier := newTestService(t)
	ctx := context.Background()
	servo := actuatorByType(t, st, "servo")

	result, err := svc.IssueCommand(ctx, servo.ID, IssueCommandRequest{Command: "OPEN"})
	if err != nil {
		t.Fatalf("IssueCommand failed: %v", err)
	}

	if result.Actuator.State != "OPEN" {
		t.Errorf("Servo state should derive to OPEN, got %q", result.Actuator.State)
	}
	if result.Command.Status != store.CommandStatusSent {
		t.Errorf("Command should be marked sent, got %q", result.Command.Status)
	}
	if result.Command.IssuedBy != "user:web" {
		t.Errorf("IssuedBy should default to user:web, got %q", result.Command.IssuedBy)
	}
	if !result.Delivered {
		t.Error("Delivered should reflect the notifier's result")
	}

	if len(notifier.commands) != 1 {
		t.Fatalf("Expected 1 command dispatch, got %d", len(notifier.commands))
	}
	dispatch, ok := notifier.commands[0].(CommandDispatch)
	if !ok {
		t.Fatalf("Dispatch payload has unexpected type %T", notifier.commands[0])
	}
	if dispatch.CommandID != result.Command.ID || dispatch.Command != "OPEN" || dispatch.ActuatorType != "servo" {
		t.Errorf("Dispatch payload mismatch: %+v", dispatch)
	}
}

func TestIssueCommandDeviceOffline(t *testing.T) {
	svc, st, notifier := newTestService(t)
	notifier.devicesOnline = false
	ctx := context.Background()
	pump := actuatorByType(t, st, "relay")

	result, err := svc.IssueCommand(ctx, pump.ID, IssueCommandRequest{Command: "ON"})
	if err != nil {
		t.Fatalf("IssueCommand with no devices should not error: %v", err)
	}
	if result.Delivered {
		t.Error("Delivered should be false with no devices online")
	}

	// The command is durably recorded regardless.
	commands, err := st.ListCommands(ctx, pump.ID, 5)
	if err != nil {
		t.Fatalf("ListCommands failed: %v", err)
	}
	if len(commands) != 1 {
		t.Errorf("Expected the command persisted, got %d", len(commands))
	}
}

func TestIssueCommandUnknownActuator(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.IssueCommand(context.Background(), "missing", IssueCommandRequest{Command: "ON"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestReportActuatorStateAcksCommand(t *testing.T) {
	svc, st, notifier := newTestService(t)
	ctx := context.Background()
	servo := actuatorByType(t, st, "servo")

	result, err := svc.IssueCommand(ctx, servo.ID, IssueCommandRequest{Command: "OPEN"})
	if err != nil {
		t.Fatalf("IssueCommand failed: %v", err)
	}

	actuator, err := svc.ReportActuatorState(ctx, servo.ID, ReportStateRequest{
		State:     "OPEN",
		CommandID: result.Command.ID,
	})
	if err != nil {
		t.Fatalf("ReportActuatorState failed: %v", err)
	}
	if actuator.State != "OPEN" {
		t.Errorf("Expected state OPEN, got %q", actuator.State)
	}

	commands, err := st.ListCommands(ctx, servo.ID, 1)
	if err != nil {
		t.Fatalf("ListCommands failed: %v", err)
	}
	if commands[0].Status != store.CommandStatusAck {
		t.Errorf("Referenced command should be acknowledged, got %q", commands[0].Status)
	}
	if len(notifier.actuators) != 1 {
		t.Errorf("Expected 1 actuator dispatch, got %d", len(notifier.actuators))
	}
}

func TestGetActuatorStatus(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	pump := actuatorByType(t, st, "relay")

	status, err := svc.GetActuatorStatus(ctx, pump.ID)
	if err != nil {
		t.Fatalf("GetActuatorStatus failed: %v", err)
	}
	if status.State != "OFF" {
		t.Errorf("Seeded pump should be OFF, got %q", status.State)
	}
	if status.LatestCommand != nil {
		t.Error("Fresh actuator should have no latest command")
	}

	if _, err := svc.IssueCommand(ctx, pump.ID, IssueCommandRequest{Command: "ON"}); err != nil {
		t.Fatalf("IssueCommand failed: %v", err)
	}

	status, err = svc.GetActuatorStatus(ctx, pump.ID)
	if err != nil {
		t.Fatalf("GetActuatorStatus failed: %v", err)
	}
	if status.LatestCommand == nil || status.LatestCommand.Command != "ON" {
		t.Errorf("Expected latest command ON, got %+v", status.LatestCommand)
	}
}

func TestDeriveState(t *testing.T) {
	tests := []struct {
		actuatorType string
		current      string
		command      string
		want         string
	}{
		{"servo", "CLOSED", "OPEN", "OPEN"},
		{"servo", "OPEN", "CLOSE", "CLOSED"},
		{"servo", "CLOSED", "ANGLE:45", "45°"},
		{"servo", "CLOSED", "DANCE", "CLOSED"},
		{"relay", "OFF", "ON", "ON"},
		{"relay", "ON", "OFF", "OFF"},
		{"relay", "OFF", "OPEN", "OFF"},
		{"unknown", "X", "ON", "X"},
	}

	for _, tt := range tests {
		if got := deriveState(tt.actuatorType, tt.current, tt.command); got != tt.want {
			t.Errorf("deriveState(%s, %s, %s) = %q, want %q",
				tt.actuatorType, tt.current, tt.command, got, tt.want)
		}
	}
}

func TestReadingFilterSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		rng  string
		want time.Duration
	}{
		{"1h", time.Hour},
		{"6h", 6 * time.Hour},
		{"12h", 12 * time.Hour},
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"30d", 30 * 24 * time.Hour},
		{"", 24 * time.Hour},
		{"bogus", 24 * time.Hour},
	}

	for _, tt := range tests {
		f := ReadingFilter{Range: tt.rng}
		if got := f.Since(now); now.Sub(got) != tt.want {
			t.Errorf("Range %q: expected window %v, got %v", tt.rng, tt.want, now.Sub(got))
		}
	}
}

func TestListCommandHistory(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	servo := actuatorByType(t, st, "servo")

	for _, command := range []string{"OPEN", "CLOSE", "ANGLE:45"} {
		if _, err := svc.IssueCommand(ctx, servo.ID, IssueCommandRequest{Command: command}); err != nil {
			t.Fatalf("IssueCommand(%q) failed: %v", command, err)
		}
	}

	history, err := svc.ListCommandHistory(ctx, servo.ID, 0)
	if err != nil {
		t.Fatalf("ListCommandHistory failed: %v", err)
	}

	if history.Actuator.ID != servo.ID || history.Actuator.Type != "servo" {
		t.Errorf("Unexpected actuator summary: %+v", history.Actuator)
	}
	if history.Actuator.State != "45°" {
		t.Errorf("Summary state should reflect the last command, got %q", history.Actuator.State)
	}
	if len(history.Commands) != 3 {
		t.Fatalf("Expected 3 commands, got %d", len(history.Commands))
	}
	if history.Commands[0].Command != "ANGLE:45" {
		t.Errorf("Commands should be newest first, got %q", history.Commands[0].Command)
	}

	limited, err := svc.ListCommandHistory(ctx, servo.ID, 2)
	if err != nil {
		t.Fatalf("ListCommandHistory with limit failed: %v", err)
	}
	if len(limited.Commands) != 2 {
		t.Errorf("Expected limit to cap history at 2, got %d", len(limited.Commands))
	}
}

func TestListCommandHistoryUnknownActuator(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ListCommandHistory(context.Background(), "missing", 0)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
