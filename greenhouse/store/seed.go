package store

import (
	"context"
	"fmt"
)

// Seed populates the store with the greenhouse's fixed hardware inventory:
// the five sensors on the DHT11/soil/LDR/rain board and the two actuators
// (roof servo and water pump relay). It is idempotent; an already-seeded
// store is left untouched.
func Seed(ctx context.Context, s Store) error {
	existing, err := s.ListSensors(ctx)
	if err != nil {
		return fmt.Errorf("checking existing sensors: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	sensors := []Sensor{
		{Name: "DHT11 - Temperature", Type: "temperature", Unit: "°C"},
		{Name: "DHT11 - Humidity", Type: "humidity", Unit: "%"},
		{Name: "Soil Moisture Sensor", Type: "soil", Unit: "%"},
		{Name: "LDR - Light Sensor", Type: "light", Unit: "lux"},
		{Name: "Rain Sensor", Type: "rain", Unit: "boolean"},
	}
	for i := range sensors {
		if err := s.CreateSensor(ctx, &sensors[i]); err != nil {
			return fmt.Errorf("seeding sensor %q: %w", sensors[i].Name, err)
		}
	}

	actuators := []Actuator{
		{Name: "Servo MG996R - Roof/Glass", Type: "servo", State: "CLOSED"},
		{Name: "Relay - Water Pump", Type: "relay", State: "OFF"},
	}
	for i := range actuators {
		if err := s.CreateActuator(ctx, &actuators[i]); err != nil {
			return fmt.Errorf("seeding actuator %q: %w", actuators[i].Name, err)
		}
	}

	return nil
}
