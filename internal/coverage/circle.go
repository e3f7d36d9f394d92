package coverage

import (
	"math"

	"github.com/ctessum/geom"
)

// circleSegments is the vertex count of the polygon standing in for a circle.
const circleSegments = 128

// Circle returns a closed regular polygon centered on c with the same area as
// a true circle of radius r. Circles with a common center nest for any r.
func Circle(c geom.Point, r float64) geom.Polygon {
	n := float64(circleSegments)
	step := 2 * math.Pi / n
	rr := r * math.Sqrt(2*math.Pi/(n*math.Sin(step)))

	path := make(geom.Path, 0, circleSegments+1)
	for i := 0; i < circleSegments; i++ {
		a := float64(i) * step
		path = append(path, geom.Point{X: c.X + rr*math.Cos(a), Y: c.Y + rr*math.Sin(a)})
	}
	path = append(path, path[0])
	return geom.Polygon{path}
}
