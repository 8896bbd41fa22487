package gormstorage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gcsplan/planner/pkg/core"
	"gorm.io/datatypes"
)

// WaypointRecord is one stored waypoint. Position keeps insertion order.
type WaypointRecord struct {
	ID            string         `gorm:"primaryKey;size:64"`
	Position      int            `gorm:"index:idx_waypoint_position"`
	Name          string         `gorm:"size:255;not null"`
	Kind          string         `gorm:"size:16;not null"`
	Coordinates   datatypes.JSON `gorm:"not null"`
	CreatedAt     time.Time
	SceneEntityID string         `gorm:"size:128"`
	Description   string
	Tags          datatypes.JSON
	Metadata      datatypes.JSON
}

// TableName sets the table name.
func (*WaypointRecord) TableName() string {
	return "waypoints"
}

// StoreInfo mirrors the aggregate envelope header. There is a single row.
type StoreInfo struct {
	ID             uint `gorm:"primaryKey"`
	Version        string
	Created        time.Time
	TotalWaypoints int
	Types          datatypes.JSON
}

// TableName sets the table name.
func (*StoreInfo) TableName() string {
	return "store_info"
}

// Models lists every table the backend migrates.
var Models = []any{&WaypointRecord{}, &StoreInfo{}}

// tagsToJSON converts a []string to datatypes.JSON for DB storage.
func tagsToJSON(tags []string) datatypes.JSON {
	if len(tags) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(tags)
	return datatypes.JSON(data)
}

// toRecord converts a core.Waypoint to its row.
func toRecord(w core.Waypoint, position int) (WaypointRecord, error) {
	coords, err := json.Marshal(w.Coordinates)
	if err != nil {
		return WaypointRecord{}, fmt.Errorf("encode coordinates of %s: %w", w.ID, err)
	}
	meta, err := json.Marshal(w.Metadata)
	if err != nil {
		return WaypointRecord{}, fmt.Errorf("encode metadata of %s: %w", w.ID, err)
	}
	return WaypointRecord{
		ID:            w.ID,
		Position:      position,
		Name:          w.Name,
		Kind:          string(w.Kind),
		Coordinates:   datatypes.JSON(coords),
		CreatedAt:     w.CreatedAt.UTC(),
		SceneEntityID: w.SceneEntityID,
		Description:   w.Description,
		Tags:          tagsToJSON(w.Tags),
		Metadata:      datatypes.JSON(meta),
	}, nil
}

// toWaypoint converts a row back. Undecodable JSON columns are an error.
func toWaypoint(r WaypointRecord) (core.Waypoint, error) {
	w := core.Waypoint{
		ID:            r.ID,
		Name:          r.Name,
		Kind:          core.Kind(r.Kind),
		CreatedAt:     r.CreatedAt.UTC(),
		SceneEntityID: r.SceneEntityID,
		Description:   r.Description,
	}
	if err := json.Unmarshal(r.Coordinates, &w.Coordinates); err != nil {
		return core.Waypoint{}, fmt.Errorf("decode coordinates of %s: %w", r.ID, err)
	}
	if len(r.Tags) > 0 {
		if err := json.Unmarshal(r.Tags, &w.Tags); err != nil {
			return core.Waypoint{}, fmt.Errorf("decode tags of %s: %w", r.ID, err)
		}
		if len(w.Tags) == 0 {
			w.Tags = nil
		}
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &w.Metadata); err != nil {
			return core.Waypoint{}, fmt.Errorf("decode metadata of %s: %w", r.ID, err)
		}
	}
	return w, nil
}
