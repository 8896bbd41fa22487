package api

import (
	"log/slog"

	"github.com/gcsplan/planner/pkg/core"
	"github.com/gcsplan/planner/pkg/protocol"
)

// MissionRenderer draws a mission response. scene.Bridge implements it.
type MissionRenderer interface {
	RenderMission(area, path []core.Coordinate) error
}

// RenderMissionResponse draws the area and path found in body. Malformed or
// missing fields mean there is nothing to render; it reports whether
// anything was drawn. A nil log uses slog.Default.
func RenderMissionResponse(body []byte, r MissionRenderer, log *slog.Logger) bool {
	if log == nil {
		log = slog.Default()
	}
	resp, err := protocol.ParseMissionResponse(body)
	if err != nil {
		log.Debug("Mission response not renderable", "error", err)
		return false
	}
	if resp.Empty() {
		return false
	}
	if err := r.RenderMission(resp.Area, resp.Path); err != nil {
		log.Warn("Failed to render mission response", "error", err)
		return false
	}
	return true
}
