// Package protocol holds the JSON documents exchanged with disk, the mission
// backend and the telemetry feed.
package protocol

import (
	"time"

	"github.com/gcsplan/planner/pkg/core"
)

// DocumentVersion is written into every stored document.
const DocumentVersion = "1.0"

// FormatIndividual tags per-waypoint documents.
const FormatIndividual = "individual"

// StoreDocument is the aggregate waypoint file.
type StoreDocument struct {
	Version   string          `json:"version"`
	Created   time.Time       `json:"created"`
	Waypoints []core.Waypoint `json:"waypoints"`
	Metadata  StoreMetadata   `json:"metadata"`
}

// StoreMetadata summarizes the aggregate file.
type StoreMetadata struct {
	TotalWaypoints int               `json:"totalWaypoints"`
	Types          map[core.Kind]int `json:"types"`
}

// NewStoreDocument builds the envelope for a full collection.
func NewStoreDocument(ws []core.Waypoint, now time.Time) StoreDocument {
	if ws == nil {
		ws = []core.Waypoint{}
	}
	return StoreDocument{
		Version:   DocumentVersion,
		Created:   now.UTC(),
		Waypoints: ws,
		Metadata: StoreMetadata{
			TotalWaypoints: len(ws),
			Types:          core.CountByKind(ws),
		},
	}
}

// ItemDocument is the per-waypoint file.
type ItemDocument struct {
	Version  string        `json:"version"`
	Created  time.Time     `json:"created"`
	Waypoint core.Waypoint `json:"waypoint"`
	Metadata ItemMetadata  `json:"metadata"`
}

// ItemMetadata describes where a per-waypoint file came from.
type ItemMetadata struct {
	SavedAt time.Time `json:"savedAt"`
	Source  string    `json:"source"`
	Format  string    `json:"format"`
}

// NewItemDocument wraps a single waypoint.
func NewItemDocument(w core.Waypoint, source string, now time.Time) ItemDocument {
	return ItemDocument{
		Version:  DocumentVersion,
		Created:  w.CreatedAt.UTC(),
		Waypoint: w,
		Metadata: ItemMetadata{
			SavedAt: now.UTC(),
			Source:  source,
			Format:  FormatIndividual,
		},
	}
}
