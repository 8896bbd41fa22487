// pkg/core/waypoint.go
package core

import (
	"slices"
	"time"
)

// Kind describes how a waypoint's coordinates are interpreted and rendered.
type Kind string

const (
	KindPolygon   Kind = "polygon"
	KindRectangle Kind = "rectangle"
	KindCircle    Kind = "circle"
	KindPoint     Kind = "point"
)

// Kinds lists every valid Kind in display order.
var Kinds = []Kind{KindPolygon, KindRectangle, KindCircle, KindPoint}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds, k)
}

// MinPoints is the minimum number of stored coordinates for the kind.
func (k Kind) MinPoints() int {
	if k == KindPoint {
		return 1
	}
	return 3
}

// Coordinate is a geographic position. Altitude is in meters.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// WaypointMetadata is derived at creation and never authoritative elsewhere.
type WaypointMetadata struct {
	PointCount int     `json:"pointCount"`
	Area       float64 `json:"area"`      // m², approximate planar
	Perimeter  float64 `json:"perimeter"` // m, approximate
}

// Waypoint is a named geographic shape or point.
type Waypoint struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Kind          Kind             `json:"kind"`
	Coordinates   []Coordinate     `json:"coordinates"`
	CreatedAt     time.Time        `json:"createdAt"`
	SceneEntityID string           `json:"sceneEntityId,omitempty"`
	Description   string           `json:"description,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	Metadata      WaypointMetadata `json:"metadata"`
}

// Clone returns a deep copy so callers can't alias repository state.
func (w Waypoint) Clone() Waypoint {
	w.Coordinates = slices.Clone(w.Coordinates)
	w.Tags = slices.Clone(w.Tags)
	return w
}

// CountByKind tallies waypoints per kind.
func CountByKind(ws []Waypoint) map[Kind]int {
	counts := make(map[Kind]int)
	for _, w := range ws {
		counts[w.Kind]++
	}
	return counts
}
