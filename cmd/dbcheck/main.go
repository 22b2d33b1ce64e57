// Command dbcheck validates the contents of a greenhouse monitor database.
// It checks:
//   - Sensors: non-empty names, known types, expected units per type
//   - Actuators: known types and states plausible for the hardware
//   - Readings: no rows referencing a missing sensor
//   - Commands: no rows referencing a missing actuator, and known statuses
//
// It prints a per-table report and exits with non-zero status if any check
// fails, which makes it usable as a pre-deploy sanity gate.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

var dbPath = flag.String("db", "greenhouse.db", "SQLite database path")

// CheckResult captures the outcome of validating a single table.
// If Valid is true, Notes contains informational messages; otherwise it
// accumulates the problems that were found.
type CheckResult struct {
	Table string
	Valid bool
	Notes []string
}

func (r *CheckResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

func (r *CheckResult) info(format string, args ...interface{}) {
	r.Notes = append(r.Notes, "✓ "+fmt.Sprintf(format, args...))
}

// expectedUnits maps each sensor type to the unit the firmware reports.
var expectedUnits = map[string]string{
	"temperature": "°C",
	"humidity":    "%",
	"soil":        "%",
	"light":       "lux",
	"rain":        "boolean",
}

func checkSensors(db *sql.DB) CheckResult {
	result := CheckResult{Table: "sensors", Valid: true}

	rows, err := db.Query(`SELECT id, name, type, unit FROM sensors`)
	if err != nil {
		result.fail("Query failed: %v", err)
		return result
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id, name, sensorType, unit string
		if err := rows.Scan(&id, &name, &sensorType, &unit); err != nil {
			result.fail("Scan failed: %v", err)
			return result
		}
		count++

		if strings.TrimSpace(name) == "" {
			result.fail("Sensor %s has an empty name", id)
		}
		want, known := expectedUnits[sensorType]
		if !known {
			result.fail("Sensor %s has unknown type %q", id, sensorType)
		} else if unit != want {
			result.fail("Sensor %s (%s) has unit %q, expected %q", id, sensorType, unit, want)
		}
	}

	if count == 0 {
		result.fail("No sensors found; run the server with -seed first")
	}
	if result.Valid {
		result.info("Sensors: %d", count)
	}
	return result
}

// plausibleState reports whether a stored actuator state is one the
// hardware can actually be in.
func plausibleState(actuatorType, state string) bool {
	switch actuatorType {
	case "servo":
		return state == "OPEN" || state == "CLOSED" || state == "UNKNOWN" ||
			strings.HasSuffix(state, "°")
	case "relay":
		return state == "ON" || state == "OFF" || state == "UNKNOWN"
	default:
		return false
	}
}

func checkActuators(db *sql.DB) CheckResult {
	result := CheckResult{Table: "actuators", Valid: true}

	rows, err := db.Query(`SELECT id, name, type, state FROM actuators`)
	if err != nil {
		result.fail("Query failed: %v", err)
		return result
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id, name, actuatorType, state string
		if err := rows.Scan(&id, &name, &actuatorType, &state); err != nil {
			result.fail("Scan failed: %v", err)
			return result
		}
		count++

		if strings.TrimSpace(name) == "" {
			result.fail("Actuator %s has an empty name", id)
		}
		if actuatorType != "servo" && actuatorType != "relay" {
			result.fail("Actuator %s has unknown type %q", id, actuatorType)
		} else if !plausibleState(actuatorType, state) {
			result.fail("Actuator %s (%s) has implausible state %q", id, actuatorType, state)
		}
	}

	if count == 0 {
		result.fail("No actuators found; run the server with -seed first")
	}
	if result.Valid {
		result.info("Actuators: %d", count)
	}
	return result
}

func checkReadings(db *sql.DB) CheckResult {
	result := CheckResult{Table: "sensor_readings", Valid: true}

	var total, orphans int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sensor_readings`).Scan(&total); err != nil {
		result.fail("Count failed: %v", err)
		return result
	}
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sensor_readings r
		LEFT JOIN sensors s ON s.id = r.sensor_id
		WHERE s.id IS NULL`).Scan(&orphans)
	if err != nil {
		result.fail("Orphan query failed: %v", err)
		return result
	}

	if orphans > 0 {
		result.fail("%d readings reference a missing sensor", orphans)
	}
	if result.Valid {
		result.info("Readings: %d, all referencing known sensors", total)
	}
	return result
}

func checkCommands(db *sql.DB) CheckResult {
	result := CheckResult{Table: "actuator_commands", Valid: true}

	var total, orphans, badStatus int
	if err := db.QueryRow(`SELECT COUNT(*) FROM actuator_commands`).Scan(&total); err != nil {
		result.fail("Count failed: %v", err)
		return result
	}
	err := db.QueryRow(`
		SELECT COUNT(*) FROM actuator_commands c
		LEFT JOIN actuators a ON a.id = c.actuator_id
		WHERE a.id IS NULL`).Scan(&orphans)
	if err != nil {
		result.fail("Orphan query failed: %v", err)
		return result
	}
	err = db.QueryRow(`
		SELECT COUNT(*) FROM actuator_commands
		WHERE status NOT IN ('queued', 'sent', 'ack')`).Scan(&badStatus)
	if err != nil {
		result.fail("Status query failed: %v", err)
		return result
	}

	if orphans > 0 {
		result.fail("%d commands reference a missing actuator", orphans)
	}
	if badStatus > 0 {
		result.fail("%d commands have an unknown status", badStatus)
	}
	if result.Valid {
		result.info("Commands: %d, statuses within queued/sent/ack", total)
	}
	return result
}

// main opens the database read-only, runs every check, prints a concise
// report, and exits with non-zero status if any check failed.
func main() {
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Printf("Cannot open database %s: %v\n", *dbPath, err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath+"?mode=ro")
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	checks := []func(*sql.DB) CheckResult{
		checkSensors,
		checkActuators,
		checkReadings,
		checkCommands,
	}

	allValid := true
	for _, check := range checks {
		result := check(db)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.Table)
		if result.Valid {
			fmt.Println("✅ VALID")
			for _, note := range result.Notes {
				fmt.Println("  " + note)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, note := range result.Notes {
				if !strings.HasPrefix(note, "✓") {
					fmt.Println("  ❌ " + note)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ Database is consistent")
	} else {
		fmt.Println("❌ Database has problems")
		os.Exit(1)
	}
}
