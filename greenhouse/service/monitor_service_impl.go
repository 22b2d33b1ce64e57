package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/verdantops/greenhouse-monitor/greenhouse/store"
)

// Validation errors surfaced to the HTTP layer as 400 responses.
var (
	ErrMissingSensorID = errors.New("missing required fields: sensorId, value")
	ErrMissingReadings = errors.New("missing or invalid readings array")
	ErrMissingCommand  = errors.New("missing required field: command")
	ErrMissingState    = errors.New("missing required field: state")
)

// monitorService is the production MonitorService backed by a Store and a
// Notifier (the WebSocket hub's delivery gateway).
type monitorService struct {
	store    store.Store
	notifier Notifier
	logger   zerolog.Logger
}

// NewMonitorService creates a MonitorService on top of st, pushing real-time
// updates through notifier.
func NewMonitorService(st store.Store, notifier Notifier, logger zerolog.Logger) MonitorService {
	return &monitorService{
		store:    st,
		notifier: notifier,
		logger:   logger.With().Str("component", "monitor_service").Logger(),
	}
}

func (m *monitorService) ListSensors(ctx context.Context) ([]store.Sensor, error) {
	return m.store.ListSensors(ctx)
}

func (m *monitorService) ListReadings(ctx context.Context, f ReadingFilter) ([]store.SensorReading, error) {
	return m.store.ListReadings(ctx, store.ReadingQuery{
		Since:      f.Since(time.Now().UTC()),
		SensorID:   f.SensorID,
		SensorType: f.SensorType,
		Limit:      f.Limit,
	})
}

// LatestReadings returns the most recent reading per sensor, with a nil
// reading for sensors that have never reported.
func (m *monitorService) LatestReadings(ctx context.Context) ([]LatestReading, error) {
	sensors, err := m.store.ListSensors(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sensors: %w", err)
	}

	latest := make([]LatestReading, 0, len(sensors))
	for _, sensor := range sensors {
		reading, err := m.store.LatestReading(ctx, sensor.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("latest reading for %s: %w", sensor.ID, err)
		}
		latest = append(latest, LatestReading{Sensor: sensor, Reading: reading})
	}
	return latest, nil
}

// CreateReading persists one reading for a known sensor and mirrors it to
// dashboard sessions.
func (m *monitorService) CreateReading(ctx context.Context, req CreateReadingRequest) (*store.SensorReading, error) {
	if req.SensorID == "" {
		return nil, ErrMissingSensorID
	}

	sensor, err := m.store.GetSensor(ctx, req.SensorID)
	if err != nil {
		return nil, err
	}

	reading := &store.SensorReading{
		SensorID: req.SensorID,
		Value:    req.Value,
	}
	if req.RecordedAt != nil {
		reading.RecordedAt = req.RecordedAt.UTC()
	}
	if err := m.store.CreateReading(ctx, reading); err != nil {
		return nil, err
	}
	reading.Sensor = sensor

	m.notifier.DispatchReadingToDashboards(reading)

	return reading, nil
}

// SaveReadingBatch resolves each entry to a sensor by type and persists the
// batch. Unknown sensor types are skipped with a warning, matching the
// device firmware's tolerance for partial configuration.
func (m *monitorService) SaveReadingBatch(ctx context.Context, req BatchReadingRequest) (int, error) {
	if len(req.Readings) == 0 {
		return 0, ErrMissingReadings
	}

	sensors, err := m.store.ListSensors(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing sensors: %w", err)
	}
	byType := make(map[string]store.Sensor, len(sensors))
	for _, s := range sensors {
		byType[s.Type] = s
	}

	var toInsert []store.SensorReading
	for _, r := range req.Readings {
		sensor, ok := byType[r.SensorType]
		if !ok {
			m.logger.Warn().Str("sensor_type", r.SensorType).Msg("unknown sensor type, reading skipped")
			continue
		}
		toInsert = append(toInsert, store.SensorReading{
			SensorID: sensor.ID,
			Value:    r.Value,
		})
	}

	count, err := m.store.CreateReadings(ctx, toInsert)
	if err != nil {
		return 0, err
	}

	m.logger.Info().Int("count", count).Str("device_id", req.DeviceID).Msg("saved sensor readings")
	return count, nil
}

func (m *monitorService) ListActuators(ctx context.Context) ([]store.Actuator, error) {
	actuators, err := m.store.ListActuators(ctx)
	if err != nil {
		return nil, err
	}

	// Include the last few commands per actuator, like the dashboard shows.
	for i := range actuators {
		commands, err := m.store.ListCommands(ctx, actuators[i].ID, 5)
		if err != nil {
			return nil, fmt.Errorf("listing commands for %s: %w", actuators[i].ID, err)
		}
		actuators[i].Commands = commands
	}
	return actuators, nil
}

func (m *monitorService) GetActuatorStatus(ctx context.Context, id string) (*ActuatorStatus, error) {
	actuator, err := m.store.GetActuator(ctx, id)
	if err != nil {
		return nil, err
	}

	commands, err := m.store.ListCommands(ctx, id, 1)
	if err != nil {
		return nil, fmt.Errorf("listing commands: %w", err)
	}

	status := &ActuatorStatus{
		ID:        actuator.ID,
		Name:      actuator.Name,
		Type:      actuator.Type,
		State:     actuator.State,
		UpdatedAt: actuator.UpdatedAt,
	}
	if len(commands) > 0 {
		status.LatestCommand = &commands[0]
	}
	return status, nil
}

// ReportActuatorState records the state a device observed after executing a
// command, marks the command acknowledged if one was referenced, and mirrors
// the new state to dashboards.
func (m *monitorService) ReportActuatorState(ctx context.Context, id string, req ReportStateRequest) (*store.Actuator, error) {
	if req.State == "" {
		return nil, ErrMissingState
	}

	actuator, err := m.store.UpdateActuatorState(ctx, id, req.State)
	if err != nil {
		return nil, err
	}

	if req.CommandID != "" {
		if err := m.store.UpdateCommandStatus(ctx, req.CommandID, store.CommandStatusAck); err != nil {
			// A stale command id is not worth failing the state report over.
			m.logger.Warn().Err(err).Str("command_id", req.CommandID).Msg("failed to ack command")
		}
	}

	m.notifier.DispatchActuatorStateToDashboards(actuator)

	return actuator, nil
}

// IssueCommand persists a command against an actuator, derives the
// actuator's new state from the command, and pushes the command to connected
// device sessions. Delivered reports whether any device received it; the
// command is durably recorded regardless, so a miss is a warning for the
// caller ("device offline"), not an error.
func (m *monitorService) IssueCommand(ctx context.Context, actuatorID string, req IssueCommandRequest) (*CommandResult, error) {
	if req.Command == "" {
		return nil, ErrMissingCommand
	}
	if req.IssuedBy == "" {
		req.IssuedBy = "user:web"
	}

	actuator, err := m.store.GetActuator(ctx, actuatorID)
	if err != nil {
		return nil, err
	}

	command := &store.ActuatorCommand{
		ActuatorID: actuatorID,
		Command:    req.Command,
		IssuedBy:   req.IssuedBy,
		Status:     store.CommandStatusQueued,
	}
	if err := m.store.CreateCommand(ctx, command); err != nil {
		return nil, err
	}

	if newState := deriveState(actuator.Type, actuator.State, req.Command); newState != actuator.State {
		actuator, err = m.store.UpdateActuatorState(ctx, actuatorID, newState)
		if err != nil {
			return nil, err
		}
	}

	if err := m.store.UpdateCommandStatus(ctx, command.ID, store.CommandStatusSent); err != nil {
		return nil, err
	}
	command.Status = store.CommandStatusSent

	delivered := m.notifier.DispatchCommandToDevices(CommandDispatch{
		CommandID:    command.ID,
		ActuatorID:   actuatorID,
		ActuatorType: actuator.Type,
		Command:      req.Command,
	})

	m.logger.Info().
		Str("actuator_id", actuatorID).
		Str("command", req.Command).
		Bool("delivered", delivered).
		Msg("command issued")

	return &CommandResult{Command: command, Actuator: actuator, Delivered: delivered}, nil
}

// ListCommandHistory returns an actuator's recent commands, newest first.
// Limit defaults to 20.
func (m *monitorService) ListCommandHistory(ctx context.Context, actuatorID string, limit int) (*CommandHistory, error) {
	actuator, err := m.store.GetActuator(ctx, actuatorID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 20
	}
	commands, err := m.store.ListCommands(ctx, actuatorID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing commands: %w", err)
	}

	return &CommandHistory{
		Actuator: ActuatorSummary{
			ID:    actuator.ID,
			Name:  actuator.Name,
			Type:  actuator.Type,
			State: actuator.State,
		},
		Commands: commands,
	}, nil
}

func (m *monitorService) Health(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// deriveState maps a command to the actuator state it implies.
// Servo (roof/glass): OPEN, CLOSE, ANGLE:<n>. Relay (pump): ON, OFF.
// Unrecognized commands leave the state unchanged.
func deriveState(actuatorType, current, command string) string {
	switch actuatorType {
	case "servo":
		switch {
		case command == "OPEN":
			return "OPEN"
		case command == "CLOSE":
			return "CLOSED"
		case strings.HasPrefix(command, "ANGLE:"):
			return strings.TrimPrefix(command, "ANGLE:") + "°"
		}
	case "relay":
		if command == "ON" || command == "OFF" {
			return command
		}
	}
	return current
}
