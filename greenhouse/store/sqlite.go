package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using an embedded SQLite database.
// It uses modernc.org/sqlite which is pure Go (no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at path and runs schema
// migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// Single connection to avoid SQLITE_BUSY (SQLite is single-writer).
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sensors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			unit TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sensor_readings (
			id TEXT PRIMARY KEY,
			sensor_id TEXT NOT NULL REFERENCES sensors(id),
			value REAL NOT NULL,
			recorded_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_sensor_time
			ON sensor_readings(sensor_id, recorded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_time
			ON sensor_readings(recorded_at)`,
		`CREATE TABLE IF NOT EXISTS actuators (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS actuator_commands (
			id TEXT PRIMARY KEY,
			actuator_id TEXT NOT NULL REFERENCES actuators(id),
			command TEXT NOT NULL,
			status TEXT NOT NULL,
			issued_by TEXT NOT NULL DEFAULT '',
			issued_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_actuator_time
			ON actuator_commands(actuator_id, issued_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

// CreateSensor inserts a sensor, assigning an id and creation time if unset.
func (s *SQLiteStore) CreateSensor(ctx context.Context, sensor *Sensor) error {
	if sensor.ID == "" {
		sensor.ID = uuid.NewString()
	}
	if sensor.CreatedAt.IsZero() {
		sensor.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sensors (id, name, type, unit, created_at) VALUES (?, ?, ?, ?, ?)`,
		sensor.ID, sensor.Name, sensor.Type, sensor.Unit, sensor.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting sensor: %w", err)
	}
	return nil
}

// GetSensor fetches a sensor by id. Returns ErrNotFound if it does not exist.
func (s *SQLiteStore) GetSensor(ctx context.Context, id string) (*Sensor, error) {
	var sensor Sensor
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, unit, created_at FROM sensors WHERE id = ?`, id).
		Scan(&sensor.ID, &sensor.Name, &sensor.Type, &sensor.Unit, &sensor.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying sensor: %w", err)
	}
	return &sensor, nil
}

// ListSensors returns all sensors ordered by name.
func (s *SQLiteStore) ListSensors(ctx context.Context) ([]Sensor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, unit, created_at FROM sensors ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying sensors: %w", err)
	}
	defer rows.Close()

	var sensors []Sensor
	for rows.Next() {
		var sensor Sensor
		if err := rows.Scan(&sensor.ID, &sensor.Name, &sensor.Type, &sensor.Unit, &sensor.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning sensor: %w", err)
		}
		sensors = append(sensors, sensor)
	}
	return sensors, rows.Err()
}

// CreateReading inserts one reading, assigning id and recording time if unset.
func (s *SQLiteStore) CreateReading(ctx context.Context, r *SensorReading) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_readings (id, sensor_id, value, recorded_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.SensorID, r.Value, r.RecordedAt)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// CreateReadings inserts a batch of readings in one transaction and returns
// the number inserted.
func (s *SQLiteStore) CreateReadings(ctx context.Context, readings []SensorReading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	count := 0
	for i := range readings {
		r := &readings[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.RecordedAt.IsZero() {
			r.RecordedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sensor_readings (id, sensor_id, value, recorded_at) VALUES (?, ?, ?, ?)`,
			r.ID, r.SensorID, r.Value, r.RecordedAt); err != nil {
			return 0, fmt.Errorf("inserting reading: %w", err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing tx: %w", err)
	}
	return count, nil
}

// ListReadings returns readings matching q, newest first, joined with their
// sensor metadata.
func (s *SQLiteStore) ListReadings(ctx context.Context, q ReadingQuery) ([]SensorReading, error) {
	query := `SELECT r.id, r.sensor_id, r.value, r.recorded_at,
			s.id, s.name, s.type, s.unit, s.created_at
		FROM sensor_readings r
		JOIN sensors s ON s.id = r.sensor_id
		WHERE 1=1`
	var args []interface{}

	if !q.Since.IsZero() {
		query += ` AND r.recorded_at >= ?`
		args = append(args, q.Since)
	}
	if q.SensorID != "" {
		query += ` AND r.sensor_id = ?`
		args = append(args, q.SensorID)
	}
	if q.SensorType != "" {
		query += ` AND s.type = ?`
		args = append(args, q.SensorType)
	}

	query += ` ORDER BY r.recorded_at DESC`

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var readings []SensorReading
	for rows.Next() {
		var r SensorReading
		var sensor Sensor
		if err := rows.Scan(&r.ID, &r.SensorID, &r.Value, &r.RecordedAt,
			&sensor.ID, &sensor.Name, &sensor.Type, &sensor.Unit, &sensor.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		r.Sensor = &sensor
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// LatestReading returns the most recent reading for a sensor, or ErrNotFound
// if the sensor has none.
func (s *SQLiteStore) LatestReading(ctx context.Context, sensorID string) (*SensorReading, error) {
	var r SensorReading
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sensor_id, value, recorded_at FROM sensor_readings
		WHERE sensor_id = ? ORDER BY recorded_at DESC LIMIT 1`, sensorID).
		Scan(&r.ID, &r.SensorID, &r.Value, &r.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest reading: %w", err)
	}
	return &r, nil
}

// CreateActuator inserts an actuator, assigning id and update time if unset.
func (s *SQLiteStore) CreateActuator(ctx context.Context, a *Actuator) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actuators (id, name, type, state, updated_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Type, a.State, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting actuator: %w", err)
	}
	return nil
}

// GetActuator fetches an actuator by id. Returns ErrNotFound if it does not
// exist.
func (s *SQLiteStore) GetActuator(ctx context.Context, id string) (*Actuator, error) {
	var a Actuator
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, state, updated_at FROM actuators WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Type, &a.State, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying actuator: %w", err)
	}
	return &a, nil
}

// ListActuators returns all actuators ordered by name.
func (s *SQLiteStore) ListActuators(ctx context.Context) ([]Actuator, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, state, updated_at FROM actuators ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying actuators: %w", err)
	}
	defer rows.Close()

	var actuators []Actuator
	for rows.Next() {
		var a Actuator
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.State, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning actuator: %w", err)
		}
		actuators = append(actuators, a)
	}
	return actuators, rows.Err()
}

// UpdateActuatorState sets an actuator's state and returns the updated row.
func (s *SQLiteStore) UpdateActuatorState(ctx context.Context, id, state string) (*Actuator, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE actuators SET state = ?, updated_at = ? WHERE id = ?`,
		state, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("updating actuator: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetActuator(ctx, id)
}

// CreateCommand inserts a command, assigning id, issue time and initial
// status if unset.
func (s *SQLiteStore) CreateCommand(ctx context.Context, c *ActuatorCommand) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.IssuedAt.IsZero() {
		c.IssuedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = CommandStatusQueued
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actuator_commands (id, actuator_id, command, status, issued_by, issued_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.ActuatorID, c.Command, c.Status, c.IssuedBy, c.IssuedAt)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

// UpdateCommandStatus sets a command's delivery status.
func (s *SQLiteStore) UpdateCommandStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE actuator_commands SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("updating command: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCommands returns the most recent commands for an actuator, newest
// first.
func (s *SQLiteStore) ListCommands(ctx context.Context, actuatorID string, limit int) ([]ActuatorCommand, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actuator_id, command, status, issued_by, issued_at
		FROM actuator_commands WHERE actuator_id = ?
		ORDER BY issued_at DESC LIMIT ?`, actuatorID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	var commands []ActuatorCommand
	for rows.Next() {
		var c ActuatorCommand
		if err := rows.Scan(&c.ID, &c.ActuatorID, &c.Command, &c.Status, &c.IssuedBy, &c.IssuedAt); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		commands = append(commands, c)
	}
	return commands, rows.Err()
}

// Ping verifies the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
