package grid

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
)

// EarthRadiusKm is the mean Earth radius used for all great-circle distances.
const EarthRadiusKm = 6371.0088

// DistanceKm returns the great-circle distance between two coordinates.
func DistanceKm(a, b domain.Geo) float64 {
	return s2.LatLngFromDegrees(a.Lat, a.Lon).Distance(s2.LatLngFromDegrees(b.Lat, b.Lon)).Radians() * EarthRadiusKm
}

// DistanceToPolygonKm returns 0 when p lies inside the spherical polygon,
// otherwise the shortest great-circle distance from p to its edges.
func DistanceToPolygonKm(p domain.Geo, ring []domain.Geo) float64 {
	if len(ring) == 0 {
		return math.Inf(1)
	}
	pts := make([]s2.Point, 0, len(ring))
	for _, g := range ring {
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(g.Lat, g.Lon)))
	}
	x := s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon))

	if len(pts) >= 3 {
		loop := s2.LoopFromPoints(pts)
		loop.Normalize()
		if loop.ContainsPoint(x) {
			return 0
		}
	}

	best := math.Inf(1)
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		if d := s2.DistanceFromSegment(x, a, b).Radians() * EarthRadiusKm; d < best {
			best = d
		}
	}
	return best
}

// DistanceToCellKm is DistanceToPolygonKm against the cell's grid boundary.
func DistanceToCellKm(p domain.Geo, c domain.Cell) (float64, error) {
	b, err := Boundary(c)
	if err != nil {
		return 0, err
	}
	return DistanceToPolygonKm(p, b), nil
}
