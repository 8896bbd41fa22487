package geo

import (
	"encoding/json"
	"fmt"

	"github.com/gcsplan/planner/pkg/core"
)

// ParsePolyline parses a JSON array of [lat, lon] or [lat, lon, alt] pairs.
// Input format: "[[lat1,lon1],[lat2,lon2,alt2],...]"
func ParsePolyline(input string, defaultAlt float64) ([]core.Coordinate, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse polyline JSON: %w", err)
	}

	out := make([]core.Coordinate, len(coords))
	for i, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		out[i] = core.Coordinate{Latitude: c[0], Longitude: c[1], Altitude: defaultAlt}
		if len(c) > 2 {
			out[i].Altitude = c[2]
		}
		if err := core.ValidatePosition(out[i]); err != nil {
			return nil, fmt.Errorf("coordinate %d: %w", i, err)
		}
	}

	return out, nil
}
