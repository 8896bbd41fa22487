package core

import (
	"fmt"
	"math"
	"time"
)

// DroneStatus is one validated telemetry sample.
type DroneStatus struct {
	Position   Coordinate
	Mode       string
	ReceivedAt time.Time
}

// ValidatePosition rejects non-finite or out-of-range positions.
func ValidatePosition(c Coordinate) error {
	for name, v := range map[string]float64{"lat": c.Latitude, "lon": c.Longitude, "alt": c.Altitude} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("lat %f out of range", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("lon %f out of range", c.Longitude)
	}
	return nil
}
