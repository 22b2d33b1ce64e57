// Command simulator emulates an ESP8266 greenhouse controller. It connects
// to the monitor server's WebSocket endpoint, authenticates as a device,
// periodically reports realistic sensor readings, and answers dispatched
// actuator commands with a command_ack and an actuator_status update.
//
// The connection is retried with exponential backoff, so the simulator can
// be started before the server and survives restarts.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
)

var (
	serverURL = flag.String("url", "ws://localhost:3000/ws", "WebSocket server URL")
	deviceID  = flag.String("device", "esp8266_simulator_001", "Device identifier announced on auth")
	interval  = flag.Duration("interval", 5*time.Second, "Interval between sensor reports")
	debug     = flag.Bool("debug", false, "Enable debug logging")
)

// message mirrors the server's wire envelope.
type message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// sensorSample is one entry of a sensor_reading report.
type sensorSample struct {
	SensorType string  `json:"sensorType"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
}

// commandDispatch is the payload of a command_dispatch message.
type commandDispatch struct {
	CommandID    string `json:"commandId"`
	ActuatorID   string `json:"actuatorId"`
	ActuatorType string `json:"actuatorType"`
	Command      string `json:"command"`
}

func main() {
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Jitter: true,
	}

	for {
		err := runSession(logger, stop)
		if err == nil {
			// Clean shutdown requested.
			return
		}

		wait := b.Duration()
		logger.Warn().Err(err).Dur("retry_in", wait).Msg("session ended, reconnecting")

		select {
		case <-stop:
			return
		case <-time.After(wait):
		}
		continueAfterReconnect(b, logger)
	}
}

// continueAfterReconnect resets the backoff once a retry has been scheduled
// long enough ago to consider the previous failure transient.
func continueAfterReconnect(b *backoff.Backoff, logger zerolog.Logger) {
	if b.Attempt() > 5 {
		logger.Debug().Msg("resetting backoff after repeated attempts")
		b.Reset()
	}
}

// runSession dials the server and runs one device session until the
// connection drops or stop fires. A nil return means a requested shutdown.
func runSession(logger zerolog.Logger, stop chan os.Signal) error {
	logger.Info().Str("url", *serverURL).Msg("connecting")

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		return fmt.Errorf("dialing server: %w", err)
	}
	defer conn.Close()

	// Gorilla connections allow one concurrent writer; sends from the
	// ticker loop and the command handler share this mutex.
	var writeMu sync.Mutex
	send := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	if err := send(map[string]interface{}{
		"type": "auth",
		"data": map[string]string{
			"clientType": "esp8266",
			"deviceId":   *deviceID,
		},
	}); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			var msg message
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			handleServerMessage(logger, msg, send)
		}
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			logger.Info().Msg("shutting down")
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil

		case err := <-readErr:
			return fmt.Errorf("reading from server: %w", err)

		case <-ticker.C:
			report := map[string]interface{}{
				"type": "sensor_reading",
				"data": map[string]interface{}{
					"deviceId": *deviceID,
					"readings": generateReadings(time.Now()),
				},
			}
			if err := send(report); err != nil {
				return fmt.Errorf("sending readings: %w", err)
			}
			logger.Debug().Msg("sensor readings sent")
		}
	}
}

// handleServerMessage reacts to one message from the server. Commands are
// acknowledged and followed by an actuator_status update reflecting the new
// state the hardware would settle into.
func handleServerMessage(logger zerolog.Logger, msg message, send func(interface{}) error) {
	switch msg.Type {
	case "connected":
		logger.Info().Msg("connected to server")

	case "auth_success":
		logger.Info().Msg("authenticated as esp8266")

	case "command_dispatch":
		var cmd commandDispatch
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			logger.Warn().Err(err).Msg("unparseable command dispatch")
			return
		}
		logger.Info().Str("command", cmd.Command).Str("actuator_id", cmd.ActuatorID).Msg("executing command")

		send(map[string]interface{}{
			"type": "command_ack",
			"data": map[string]string{
				"commandId":  cmd.CommandID,
				"actuatorId": cmd.ActuatorID,
				"command":    cmd.Command,
				"status":     "executed",
			},
		})
		send(map[string]interface{}{
			"type": "actuator_status",
			"data": map[string]string{
				"actuatorId": cmd.ActuatorID,
				"state":      stateAfterCommand(cmd),
			},
		})

	case "error":
		logger.Warn().Str("error", msg.Error).Msg("server reported error")

	case "sensor_reading_ack", "actuator_status_ack", "pong":
		logger.Debug().Str("type", msg.Type).Msg("server ack")
	}
}

// stateAfterCommand mirrors the firmware's actuator behavior.
func stateAfterCommand(cmd commandDispatch) string {
	switch {
	case cmd.Command == "OPEN":
		return "OPEN"
	case cmd.Command == "CLOSE":
		return "CLOSED"
	case strings.HasPrefix(cmd.Command, "ANGLE:"):
		return strings.TrimPrefix(cmd.Command, "ANGLE:") + "°"
	case cmd.Command == "ON" || cmd.Command == "OFF":
		return cmd.Command
	default:
		return "UNKNOWN"
	}
}

// generateReadings produces one sample per sensor with realistic ranges.
// Light follows a crude day/night cycle; rain is a 20% chance.
func generateReadings(now time.Time) []sensorSample {
	light := 400 + rand.Float64()*600 // 400-1000 lux (day)
	if hour := now.Hour(); hour < 6 || hour > 18 {
		light = rand.Float64() * 100 // 0-100 lux (night)
	}

	rain := 0.0
	if rand.Float64() > 0.8 {
		rain = 1.0
	}

	return []sensorSample{
		{SensorType: "temperature", Value: round2(25 + rand.Float64()*10), Unit: "°C"},
		{SensorType: "humidity", Value: round2(60 + rand.Float64()*30), Unit: "%"},
		{SensorType: "soil", Value: round2(30 + rand.Float64()*50), Unit: "%"},
		{SensorType: "light", Value: round2(light), Unit: "lux"},
		{SensorType: "rain", Value: rain, Unit: "boolean"},
	}
}

func round2(v float64) float64 {
	return float64(int(v*100)) / 100
}
