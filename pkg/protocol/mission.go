package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gcsplan/planner/pkg/core"
)

// LatLonAlt is the flattened point shape the mission backend speaks.
type LatLonAlt struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// Coordinate converts to the core representation.
func (p LatLonAlt) Coordinate() core.Coordinate {
	return core.Coordinate{Latitude: p.Lat, Longitude: p.Lon, Altitude: p.Alt}
}

// UnmarshalJSON accepts both {lat,lon,alt} and {latitude,longitude,altitude}
// (and "lng"), since the backend echoes stored waypoints verbatim.
func (p *LatLonAlt) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pick := func(keys ...string) (float64, bool) {
		for _, k := range keys {
			var v float64
			if rv, ok := raw[k]; ok && string(rv) != "null" && json.Unmarshal(rv, &v) == nil {
				return v, true
			}
		}
		return 0, false
	}
	lat, okLat := pick("lat", "latitude")
	lon, okLon := pick("lon", "lng", "longitude")
	if !okLat || !okLon {
		return fmt.Errorf("position missing lat/lon")
	}
	alt, _ := pick("alt", "altitude")
	*p = LatLonAlt{Lat: lat, Lon: lon, Alt: alt}
	return nil
}

// Flatten turns every coordinate of every waypoint into one point each.
func Flatten(ws []core.Waypoint) []LatLonAlt {
	points := make([]LatLonAlt, 0)
	for _, w := range ws {
		for _, c := range w.Coordinates {
			points = append(points, LatLonAlt{Lat: c.Latitude, Lon: c.Longitude, Alt: c.Altitude})
		}
	}
	return points
}

// BatchRequest stores a named set of points on the backend.
type BatchRequest struct {
	Name             string      `json:"waypoints name"`
	Waypoints        []LatLonAlt `json:"waypoints"`
	ContextWaypoints []string    `json:"context_waypoints,omitempty"`
}

// CommandRequest carries free text plus structured waypoints.
type CommandRequest struct {
	Command          string          `json:"command"`
	Waypoints        []core.Waypoint `json:"waypoints"`
	ContextWaypoints []string        `json:"context_waypoints,omitempty"`
}

// MissionResponse is the renderable part of a backend reply.
type MissionResponse struct {
	Area []core.Coordinate
	Path []core.Coordinate
}

// Empty reports whether there is nothing to draw.
func (r MissionResponse) Empty() bool {
	return len(r.Area) == 0 && len(r.Path) == 0
}

type areaDescriptor struct {
	Coordinates []json.RawMessage `json:"coordinates"`
}

type pathPoint struct {
	Position json.RawMessage `json:"position"`
}

type executedArgs struct {
	Waypoints []pathPoint `json:"waypoints"`
}

// ParseMissionResponse extracts waypoints[0].coordinates and
// executed_functions[0][1].waypoints[].position. Missing or oddly shaped
// fields yield empty slices; only a body that isn't a JSON object is an error.
// Unparseable individual points are skipped.
func ParseMissionResponse(body []byte) (MissionResponse, error) {
	var out MissionResponse

	var top map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &top); err != nil {
		return out, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}

	var areas []areaDescriptor
	if raw, ok := top["waypoints"]; ok && json.Unmarshal(raw, &areas) == nil && len(areas) > 0 {
		for _, rc := range areas[0].Coordinates {
			var p LatLonAlt
			if json.Unmarshal(rc, &p) == nil {
				out.Area = append(out.Area, p.Coordinate())
			}
		}
	}

	var executed []json.RawMessage
	if raw, ok := top["executed_functions"]; ok && json.Unmarshal(raw, &executed) == nil && len(executed) > 0 {
		var call []json.RawMessage
		if json.Unmarshal(executed[0], &call) == nil && len(call) > 1 {
			var args executedArgs
			if json.Unmarshal(call[1], &args) == nil {
				for _, wp := range args.Waypoints {
					var p LatLonAlt
					if len(wp.Position) > 0 && json.Unmarshal(wp.Position, &p) == nil {
						out.Path = append(out.Path, p.Coordinate())
					}
				}
			}
		}
	}

	return out, nil
}
