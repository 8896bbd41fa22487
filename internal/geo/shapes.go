package geo

import (
	"math"

	"github.com/gcsplan/planner/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// DefaultCircleSegments is the vertex count of a sampled circle ring.
const DefaultCircleSegments = 64

// CircleRing samples a circle around center through edge. The radius is the
// projected distance between them, so the ring is round on the map.
// Vertices start due east and go counter-clockwise; the ring is not closed.
func CircleRing(center, edge core.Coordinate, segments int) []core.Coordinate {
	if segments <= 0 {
		segments = DefaultCircleSegments
	}
	c := Project(center)
	e := Project(edge)
	r := math.Hypot(e.X-c.X, e.Y-c.Y)

	ring := make([]core.Coordinate, segments)
	for i := range ring {
		theta := 2 * math.Pi * float64(i) / float64(segments)
		ring[i] = Unproject(XY{X: c.X + r*math.Cos(theta), Y: c.Y + r*math.Sin(theta)}, center.Altitude)
	}
	return ring
}

// SquareFromCorners builds an axis-aligned square in projected space from two
// opposite corners. The side is the smaller of the two spans, anchored at a
// and extending toward b. Vertices: a, then counter-clockwise or clockwise
// depending on drag direction.
func SquareFromCorners(a, b core.Coordinate) []core.Coordinate {
	pa := Project(a)
	pb := Project(b)
	dx := pb.X - pa.X
	dy := pb.Y - pa.Y
	side := math.Min(math.Abs(dx), math.Abs(dy))
	sx := math.Copysign(side, dx)
	sy := math.Copysign(side, dy)

	return []core.Coordinate{
		Unproject(pa, a.Altitude),
		Unproject(XY{X: pa.X + sx, Y: pa.Y}, a.Altitude),
		Unproject(XY{X: pa.X + sx, Y: pa.Y + sy}, a.Altitude),
		Unproject(XY{X: pa.X, Y: pa.Y + sy}, a.Altitude),
	}
}

// Measure derives point count, approximate planar area and perimeter.
// Area and perimeter are computed in EPSG:3857 with simplefeatures and
// corrected by the Mercator scale factor at the ring's mean latitude.
func Measure(kind core.Kind, coords []core.Coordinate) core.WaypointMetadata {
	meta := core.WaypointMetadata{PointCount: len(coords)}
	if kind == core.KindPoint || len(coords) < 3 {
		return meta
	}

	// degenerate rings still measure, as zero
	ring, err := closedRing(coords, geom.DisableAllValidations)
	if err != nil {
		return meta
	}
	poly, err := geom.NewPolygon([]geom.LineString{ring}, geom.DisableAllValidations)
	if err != nil {
		return meta
	}

	var latSum float64
	for _, c := range coords {
		latSum += c.Latitude
	}
	k := scale(latSum / float64(len(coords)))

	meta.Area = poly.Area() * k * k
	meta.Perimeter = ring.Length() * k
	return meta
}

// ValidRing reports whether coords form a simple, valid polygon ring.
func ValidRing(coords []core.Coordinate) bool {
	if len(coords) < 3 {
		return false
	}
	ring, err := closedRing(coords)
	if err != nil {
		return false
	}
	_, err = geom.NewPolygon([]geom.LineString{ring})
	return err == nil
}

func closedRing(coords []core.Coordinate, opts ...geom.ConstructorOption) (geom.LineString, error) {
	flat := make([]float64, 0, (len(coords)+1)*2)
	for _, c := range coords {
		p := Project(c)
		flat = append(flat, p.X, p.Y)
	}
	first, last := coords[0], coords[len(coords)-1]
	if first.Latitude != last.Latitude || first.Longitude != last.Longitude {
		flat = append(flat, flat[0], flat[1])
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY), opts...)
}

// scale is the Web Mercator ground-distance correction at lat.
func scale(lat float64) float64 {
	return math.Cos(lat * math.Pi / 180)
}
