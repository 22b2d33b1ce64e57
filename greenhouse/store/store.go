package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// Sensor is one physical sensor attached to the greenhouse controller.
type Sensor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Unit      string    `json:"unit"`
	CreatedAt time.Time `json:"createdAt"`
}

// SensorReading is a single measurement recorded for a sensor. Sensor is
// populated on reads that join sensor metadata.
type SensorReading struct {
	ID         string    `json:"id"`
	SensorID   string    `json:"sensorId"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recordedAt"`
	Sensor     *Sensor   `json:"sensor,omitempty"`
}

// Actuator is a controllable output (servo, relay) with its last known state.
type Actuator struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	State     string            `json:"state"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Commands  []ActuatorCommand `json:"commands,omitempty"`
}

// ActuatorCommand is one command issued against an actuator and its
// delivery status (queued, sent, ack).
type ActuatorCommand struct {
	ID         string    `json:"id"`
	ActuatorID string    `json:"actuatorId"`
	Command    string    `json:"command"`
	Status     string    `json:"status"`
	IssuedBy   string    `json:"issuedBy"`
	IssuedAt   time.Time `json:"issuedAt"`
}

// Command status values.
const (
	CommandStatusQueued = "queued"
	CommandStatusSent   = "sent"
	CommandStatusAck    = "ack"
)

// ReadingQuery filters ListReadings. Zero-value fields are not applied.
type ReadingQuery struct {
	Since      time.Time
	SensorID   string
	SensorType string
	Limit      int
}

// Store is the persistence interface for sensors, readings, actuators and
// commands. Implementations must be safe for concurrent use.
type Store interface {
	// Sensors
	CreateSensor(ctx context.Context, s *Sensor) error
	GetSensor(ctx context.Context, id string) (*Sensor, error)
	ListSensors(ctx context.Context) ([]Sensor, error)

	// Readings
	CreateReading(ctx context.Context, r *SensorReading) error
	CreateReadings(ctx context.Context, readings []SensorReading) (int, error)
	ListReadings(ctx context.Context, q ReadingQuery) ([]SensorReading, error)
	LatestReading(ctx context.Context, sensorID string) (*SensorReading, error)

	// Actuators
	CreateActuator(ctx context.Context, a *Actuator) error
	GetActuator(ctx context.Context, id string) (*Actuator, error)
	ListActuators(ctx context.Context) ([]Actuator, error)
	UpdateActuatorState(ctx context.Context, id, state string) (*Actuator, error)

	// Commands
	CreateCommand(ctx context.Context, c *ActuatorCommand) error
	UpdateCommandStatus(ctx context.Context, id, status string) error
	ListCommands(ctx context.Context, actuatorID string, limit int) ([]ActuatorCommand, error)

	// Ping verifies the underlying database is reachable.
	Ping(ctx context.Context) error
	Close() error
}
