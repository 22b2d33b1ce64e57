package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/verdantops/greenhouse-monitor/greenhouse/service"
	"github.com/verdantops/greenhouse-monitor/greenhouse/store"
	"github.com/verdantops/greenhouse-monitor/transport/websocket"
)

// Server is the REST API server. It owns the HTTP routes and mounts the
// WebSocket hub's upgrade endpoint at /ws.
type Server struct {
	service service.MonitorService
	hub     *websocket.Hub
	router  *mux.Router
	logger  zerolog.Logger
}

// NewServer creates an API server over svc and hub.
func NewServer(svc service.MonitorService, hub *websocket.Hub, logger zerolog.Logger) *Server {
	s := &Server{
		service: svc,
		hub:     hub,
		router:  mux.NewRouter(),
		logger:  logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Sensors and readings
	api.HandleFunc("/sensors", s.handleListSensors).Methods("GET")
	api.HandleFunc("/readings", s.handleListReadings).Methods("GET")
	api.HandleFunc("/readings", s.handleCreateReading).Methods("POST")
	api.HandleFunc("/readings/latest", s.handleLatestReadings).Methods("GET")
	api.HandleFunc("/readings/batch", s.handleBatchReadings).Methods("POST")

	// Actuators and commands
	api.HandleFunc("/actuators", s.handleListActuators).Methods("GET")
	api.HandleFunc("/actuators/{id}/commands", s.handleIssueCommand).Methods("POST")
	api.HandleFunc("/actuators/{id}/commands", s.handleListCommands).Methods("GET")
	api.HandleFunc("/actuators/{id}/status", s.handleActuatorStatus).Methods("GET")
	api.HandleFunc("/actuators/{id}/status", s.handleReportActuatorState).Methods("PATCH")

	// Observability
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/ws/clients", s.handleWSClients).Methods("GET")

	// WebSocket upgrade. Only this path speaks the socket protocol.
	s.router.HandleFunc("/ws", s.hub.ServeWS)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// response is the envelope every JSON endpoint returns.
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Count   *int        `json:"count,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, response{Success: false, Error: message})
}

// respondServiceError maps service/store errors onto HTTP statuses.
func (s *Server) respondServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrMissingSensorID),
		errors.Is(err, service.ErrMissingReadings),
		errors.Is(err, service.ErrMissingCommand),
		errors.Is(err, service.ErrMissingState):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Str("action", action).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

func count(n int) *int { return &n }

// Sensor and reading handlers

func (s *Server) handleListSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := s.service.ListSensors(r.Context())
	if err != nil {
		s.respondServiceError(w, err, "fetch sensors")
		return
	}
	respondJSON(w, http.StatusOK, response{Success: true, Data: sensors, Count: count(len(sensors))})
}

func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	readings, err := s.service.ListReadings(r.Context(), service.ReadingFilter{
		Range:      q.Get("range"),
		SensorID:   q.Get("sensorId"),
		SensorType: q.Get("sensorType"),
		Limit:      limit,
	})
	if err != nil {
		s.respondServiceError(w, err, "fetch readings")
		return
	}
	respondJSON(w, http.StatusOK, response{Success: true, Data: readings, Count: count(len(readings))})
}

func (s *Server) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SensorID   string   `json:"sensorId"`
		Value      *float64 `json:"value"`
		RecordedAt string   `json:"recordedAt,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.SensorID == "" || req.Value == nil {
		respondError(w, http.StatusBadRequest, "Missing required fields: sensorId, value")
		return
	}

	create := service.CreateReadingRequest{SensorID: req.SensorID, Value: *req.Value}
	if req.RecordedAt != "" {
		recordedAt, err := time.Parse(time.RFC3339, req.RecordedAt)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid recordedAt timestamp")
			return
		}
		create.RecordedAt = &recordedAt
	}

	reading, err := s.service.CreateReading(r.Context(), create)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Sensor not found")
			return
		}
		s.respondServiceError(w, err, "save reading")
		return
	}
	respondJSON(w, http.StatusCreated, response{Success: true, Data: reading})
}

func (s *Server) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	latest, err := s.service.LatestReadings(r.Context())
	if err != nil {
		s.respondServiceError(w, err, "fetch latest readings")
		return
	}
	respondJSON(w, http.StatusOK, response{Success: true, Data: latest})
}

func (s *Server) handleBatchReadings(w http.ResponseWriter, r *http.Request) {
	var req service.BatchReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	saved, err := s.service.SaveReadingBatch(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, err, "save readings")
		return
	}

	respondJSON(w, http.StatusCreated, response{
		Success: true,
		Data:    map[string]interface{}{"count": saved, "deviceId": req.DeviceID},
		Message: fmt.Sprintf("Saved %d readings", saved),
	})
}

// Actuator handlers

func (s *Server) handleListActuators(w http.ResponseWriter, r *http.Request) {
	actuators, err := s.service.ListActuators(r.Context())
	if err != nil {
		s.respondServiceError(w, err, "fetch actuators")
		return
	}
	respondJSON(w, http.StatusOK, response{Success: true, Data: actuators, Count: count(len(actuators))})
}

func (s *Server) handleIssueCommand(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req service.IssueCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	result, err := s.service.IssueCommand(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Actuator not found")
			return
		}
		s.respondServiceError(w, err, "send command")
		return
	}

	msg := fmt.Sprintf("Command '%s' sent to %s", req.Command, result.Actuator.Name)
	if !result.Delivered {
		msg = fmt.Sprintf("Command '%s' recorded but no device is online", req.Command)
	}
	respondJSON(w, http.StatusCreated, response{Success: true, Data: result, Message: msg})
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := s.service.ListCommandHistory(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Actuator not found")
			return
		}
		s.respondServiceError(w, err, "fetch commands")
		return
	}
	respondJSON(w, http.StatusOK, response{Success: true, Data: history, Count: count(len(history.Commands))})
}

func (s *Server) handleActuatorStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	status, err := s.service.GetActuatorStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Actuator not found")
			return
		}
		s.respondServiceError(w, err, "fetch actuator status")
		return
	}
	respondJSON(w, http.StatusOK, response{Success: true, Data: status})
}

func (s *Server) handleReportActuatorState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req service.ReportStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	actuator, err := s.service.ReportActuatorState(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Actuator not found")
			return
		}
		s.respondServiceError(w, err, "update actuator status")
		return
	}
	respondJSON(w, http.StatusOK, response{Success: true, Data: actuator})
}

// Observability handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.service.Health(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, response{
			Success: false,
			Data:    map[string]string{"status": "unhealthy", "database": "disconnected", "timestamp": now},
			Error:   err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, response{
		Success: true,
		Data:    map[string]string{"status": "healthy", "database": "connected", "timestamp": now},
	})
}

func (s *Server) handleWSClients(w http.ResponseWriter, r *http.Request) {
	clients := s.hub.ClientList()

	deviceConnected := false
	dashboards := 0
	for _, c := range clients {
		switch c.Role {
		case websocket.RoleDevice:
			deviceConnected = true
		case websocket.RoleDashboard:
			dashboards++
		}
	}

	// This endpoint carries two extra top-level fields beside the common
	// envelope, so it writes its own shape.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(struct {
		Success          bool                   `json:"success"`
		Data             []websocket.ClientInfo `json:"data"`
		Count            int                    `json:"count"`
		ESP8266Connected bool                   `json:"esp8266Connected"`
		WebClientsCount  int                    `json:"webClientsCount"`
	}{
		Success:          true,
		Data:             clients,
		Count:            len(clients),
		ESP8266Connected: deviceConnected,
		WebClientsCount:  dashboards,
	})
}
