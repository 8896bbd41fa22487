package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gcsplan/planner/pkg/core"
)

// TelemetryMessage is one push message from the live feed.
type TelemetryMessage struct {
	DroneStatus *struct {
		CurrentPosition *LatLonAlt `json:"current_position"`
		Mode            string     `json:"mode"`
	} `json:"drone_status"`
}

// DecodeTelemetry parses and validates a feed message.
func DecodeTelemetry(data []byte, now time.Time) (core.DroneStatus, error) {
	var msg TelemetryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return core.DroneStatus{}, fmt.Errorf("decode telemetry: %w", err)
	}
	if msg.DroneStatus == nil || msg.DroneStatus.CurrentPosition == nil {
		return core.DroneStatus{}, fmt.Errorf("telemetry missing drone_status.current_position")
	}
	pos := msg.DroneStatus.CurrentPosition.Coordinate()
	if err := core.ValidatePosition(pos); err != nil {
		return core.DroneStatus{}, fmt.Errorf("invalid telemetry position: %w", err)
	}
	return core.DroneStatus{
		Position:   pos,
		Mode:       msg.DroneStatus.Mode,
		ReceivedAt: now,
	}, nil
}
