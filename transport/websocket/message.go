package websocket

import (
	"encoding/json"
	"time"
)

// Message types exchanged over the wire. The Type field of the envelope
// selects one of these; anything else is answered with an error envelope.
const (
	TypeConnected         = "connected"
	TypeAuth              = "auth"
	TypeAuthSuccess       = "auth_success"
	TypeError             = "error"
	TypePing              = "ping"
	TypePong              = "pong"
	TypeSensorReading     = "sensor_reading"
	TypeSensorReadingAck  = "sensor_reading_ack"
	TypeActuatorStatus    = "actuator_status"
	TypeActuatorStatusAck = "actuator_status_ack"
	TypeCommandAck        = "command_ack"
	TypeCommandDispatch   = "command_dispatch"
)

// Client type values accepted in an auth announcement. The short aliases
// exist so firmware and browser clients can announce with either spelling.
const (
	ClientTypeESP8266   = "esp8266"
	ClientTypeDevice    = "device"
	ClientTypeWeb       = "web"
	ClientTypeDashboard = "dashboard"
)

// Role is the negotiated category of a connection. A session starts with
// RoleUnset and moves to RoleDevice or RoleDashboard on a successful auth.
type Role string

const (
	RoleUnset     Role = ""
	RoleDevice    Role = "device"
	RoleDashboard Role = "dashboard"
)

// roleForClientType maps an announced client type to its role.
// Unknown values map to RoleUnset.
func roleForClientType(clientType string) Role {
	switch clientType {
	case ClientTypeESP8266, ClientTypeDevice:
		return RoleDevice
	case ClientTypeWeb, ClientTypeDashboard:
		return RoleDashboard
	default:
		return RoleUnset
	}
}

// Envelope is an inbound frame as decoded off the wire. Data is kept raw so
// each handler can decode (or relay) the payload for its own message type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is an outbound frame. Exactly which optional fields are populated
// depends on Type; Timestamp is always set by the sender helpers.
type Message struct {
	Type       string      `json:"type"`
	Data       interface{} `json:"data,omitempty"`
	Timestamp  string      `json:"timestamp,omitempty"`
	ClientID   string      `json:"clientId,omitempty"`
	ClientType string      `json:"clientType,omitempty"`
	Error      string      `json:"error,omitempty"`
	Message    string      `json:"message,omitempty"`
}

// AuthData is the payload of an auth announcement.
type AuthData struct {
	ClientType string `json:"clientType"`
	DeviceID   string `json:"deviceId"`
}

// ClientInfo is a snapshot of one live session, exposed to observability
// endpoints via Hub.ClientList.
type ClientInfo struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Role        Role      `json:"role"`
	DeviceID    string    `json:"deviceId,omitempty"`
	RemoteAddr  string    `json:"ip"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// nowISO returns the server timestamp used on every outbound message.
func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
