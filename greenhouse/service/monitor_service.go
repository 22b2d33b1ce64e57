package service

import (
	"context"

	"github.com/verdantops/greenhouse-monitor/greenhouse/store"
)

// MonitorService defines all greenhouse monitoring operations exposed to the
// HTTP layer. It sits between the transport layers and the store, and pushes
// real-time updates into the WebSocket hub through a Notifier.
type MonitorService interface {
	// Sensors
	ListSensors(ctx context.Context) ([]store.Sensor, error)

	// Readings
	ListReadings(ctx context.Context, f ReadingFilter) ([]store.SensorReading, error)
	LatestReadings(ctx context.Context) ([]LatestReading, error)
	CreateReading(ctx context.Context, req CreateReadingRequest) (*store.SensorReading, error)
	SaveReadingBatch(ctx context.Context, req BatchReadingRequest) (int, error)

	// Actuators
	ListActuators(ctx context.Context) ([]store.Actuator, error)
	GetActuatorStatus(ctx context.Context, id string) (*ActuatorStatus, error)
	ReportActuatorState(ctx context.Context, id string, req ReportStateRequest) (*store.Actuator, error)
	IssueCommand(ctx context.Context, actuatorID string, req IssueCommandRequest) (*CommandResult, error)
	ListCommandHistory(ctx context.Context, actuatorID string, limit int) (*CommandHistory, error)

	// Health
	Health(ctx context.Context) error
}

// Notifier is the hub's delivery gateway as seen by the service layer. All
// methods are best-effort pushes to live WebSocket sessions; none of them
// can fail from the caller's point of view.
type Notifier interface {
	DispatchCommandToDevices(command interface{}) bool
	DispatchReadingToDashboards(reading interface{})
	DispatchActuatorStateToDashboards(actuator interface{})
}
