package geo

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gcsplan/planner/pkg/core"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Waypoints are stored in EPSG:4326 (lat/lon). Capture math that must look
// right on the map (squares, circles) runs in EPSG:3857, the projection the
// globe renders in, and is converted back before storing.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

var (
	toMercator   = wgs84.EPSG().Transform(4326, 3857)
	fromMercator = wgs84.EPSG().Transform(3857, 4326)
)

// XY is a point in EPSG:3857 meters.
type XY struct {
	X, Y float64
}

// Project converts a coordinate to Web Mercator.
func Project(c core.Coordinate) XY {
	x, y, _ := toMercator(c.Longitude, c.Latitude, 0)
	return XY{X: x, Y: y}
}

// Unproject converts Web Mercator back to a coordinate with the given altitude.
func Unproject(p XY, altitude float64) core.Coordinate {
	lon, lat, _ := fromMercator(p.X, p.Y, 0)
	return core.Coordinate{Latitude: lat, Longitude: lon, Altitude: altitude}
}

// CoordinateFromString parses "lat,lon" or "lat,lon,alt". Missing altitude
// takes defaultAlt.
func CoordinateFromString(coords string, defaultAlt float64) (core.Coordinate, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	alt := defaultAlt
	if len(parts) > 2 {
		alt, err = strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return core.Coordinate{}, ErrInvalidCoordinates
		}
	}
	c := core.Coordinate{Latitude: lat, Longitude: lon, Altitude: alt}
	if core.ValidatePosition(c) != nil {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	return c, nil
}
