// Package store provides persistence for the greenhouse domain: sensors,
// sensor readings, actuators and actuator commands.
//
// The Store interface abstracts the backend; SQLiteStore is the production
// implementation, built on modernc.org/sqlite (pure Go, no CGO) with WAL
// journaling and a single write connection. Schema migrations run on open.
//
// Records use UUID string primary keys and UTC timestamps. Lookups of
// missing rows return ErrNotFound so callers can map them to 404 responses.
package store
