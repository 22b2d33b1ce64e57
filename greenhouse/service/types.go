package service

import (
	"time"

	"github.com/verdantops/greenhouse-monitor/greenhouse/store"
)

// ReadingFilter selects historical readings. Range is one of
// 1h, 6h, 12h, 24h, 7d, 30d (default 24h); Limit defaults to 100.
type ReadingFilter struct {
	Range      string
	SensorID   string
	SensorType string
	Limit      int
}

// rangeHours maps a range token to its span in hours.
var rangeHours = map[string]int{
	"1h":  1,
	"6h":  6,
	"12h": 12,
	"24h": 24,
	"7d":  24 * 7,
	"30d": 24 * 30,
}

// Since returns the start of the filter's time window, relative to now.
func (f ReadingFilter) Since(now time.Time) time.Time {
	hours, ok := rangeHours[f.Range]
	if !ok {
		hours = 24
	}
	return now.Add(-time.Duration(hours) * time.Hour)
}

// LatestReading pairs a sensor with its most recent reading. Reading is nil
// when the sensor has never reported.
type LatestReading struct {
	Sensor  store.Sensor         `json:"sensor"`
	Reading *store.SensorReading `json:"reading"`
}

// CreateReadingRequest creates a single reading for a known sensor.
type CreateReadingRequest struct {
	SensorID   string     `json:"sensorId"`
	Value      float64    `json:"value"`
	RecordedAt *time.Time `json:"recordedAt,omitempty"`
}

// BatchReadingRequest stores several readings reported together by one
// device, each resolved to a sensor by its type.
type BatchReadingRequest struct {
	DeviceID string         `json:"deviceId"`
	Readings []BatchReading `json:"readings"`
}

// BatchReading is one entry of a batch report.
type BatchReading struct {
	SensorType string  `json:"sensorType"`
	Value      float64 `json:"value"`
}

// ActuatorStatus is an actuator with its most recent command, if any.
type ActuatorStatus struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Type          string                 `json:"type"`
	State         string                 `json:"state"`
	UpdatedAt     time.Time              `json:"updatedAt"`
	LatestCommand *store.ActuatorCommand `json:"latestCommand"`
}

// ReportStateRequest is a device reporting an actuator's observed state,
// optionally acknowledging the command that caused it.
type ReportStateRequest struct {
	State     string `json:"state"`
	CommandID string `json:"commandId,omitempty"`
}

// IssueCommandRequest issues a command against an actuator.
type IssueCommandRequest struct {
	Command  string `json:"command"`
	IssuedBy string `json:"issuedBy"`
}

// CommandResult is the outcome of IssueCommand. Delivered is false when no
// device session was connected at dispatch time; the command is persisted
// either way.
type CommandResult struct {
	Command   *store.ActuatorCommand `json:"command"`
	Actuator  *store.Actuator        `json:"actuator"`
	Delivered bool                   `json:"delivered"`
}

// ActuatorSummary is the trimmed actuator view embedded in a command history.
type ActuatorSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	State string `json:"state"`
}

// CommandHistory is an actuator's recent commands, newest first.
type CommandHistory struct {
	Actuator ActuatorSummary         `json:"actuator"`
	Commands []store.ActuatorCommand `json:"commands"`
}

// CommandDispatch is the payload pushed to device sessions when a command is
// issued. It carries enough for the device to act and to correlate its ack.
type CommandDispatch struct {
	CommandID    string `json:"commandId"`
	ActuatorID   string `json:"actuatorId"`
	ActuatorType string `json:"actuatorType"`
	Command      string `json:"command"`
}
