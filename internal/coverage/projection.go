package coverage

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
)

const (
	// WebMercatorProj is the spherical web-mapping projection (EPSG:3857).
	WebMercatorProj = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"

	// GeographicProj is WGS-84 longitude/latitude (EPSG:4326).
	GeographicProj = "+proj=longlat +datum=WGS84 +no_defs"
)

// maxMercatorLat is where web mercator stops being usable.
const maxMercatorLat = 85.05112878

// worldWidth is the web mercator x extent in meters, 2πR.
const worldWidth = 2 * math.Pi * 6378137

// Projector converts WGS-84 geometry into web mercator meters.
type Projector struct {
	mercator *proj.SR
	forward  proj.Transformer
}

// NewProjector parses both spatial references and builds the forward transform.
func NewProjector() (*Projector, error) {
	geo, err := proj.Parse(GeographicProj)
	if err != nil {
		return nil, fmt.Errorf("parse geographic projection: %w", err)
	}
	merc, err := proj.Parse(WebMercatorProj)
	if err != nil {
		return nil, fmt.Errorf("parse web mercator projection: %w", err)
	}
	fwd, err := geo.NewTransform(merc)
	if err != nil {
		return nil, fmt.Errorf("build web mercator transform: %w", err)
	}
	return &Projector{mercator: merc, forward: fwd}, nil
}

// TransformFrom builds a transform from sr into web mercator, for boundary
// files that carry their own reference system.
func (p *Projector) TransformFrom(sr *proj.SR) (proj.Transformer, error) {
	t, err := sr.NewTransform(p.mercator)
	if err != nil {
		return nil, fmt.Errorf("build transform to web mercator: %w", err)
	}
	return t, nil
}

// Point projects one coordinate. Latitudes beyond the web mercator limit
// yield a *domain.ProjectionError.
func (p *Projector) Point(g domain.Geo) (geom.Point, error) {
	if math.Abs(g.Lat) > maxMercatorLat {
		return geom.Point{}, &domain.ProjectionError{
			Source: "web mercator",
			CRS:    "EPSG:3857",
			Err:    fmt.Errorf("latitude %v outside ±%v", g.Lat, maxMercatorLat),
		}
	}
	x, y, err := p.forward(g.Lon, g.Lat)
	if err != nil {
		return geom.Point{}, fmt.Errorf("project %v,%v: %w", g.Lat, g.Lon, err)
	}
	return geom.Point{X: x, Y: y}, nil
}

// Polygon projects a single ring and closes it. Rings crossing ±180° are
// unwrapped so every vertex lies within half a world of the first one.
func (p *Projector) Polygon(ring []domain.Geo) (geom.Polygon, error) {
	if len(ring) < 3 {
		return nil, fmt.Errorf("polygon needs at least 3 vertices, got %d", len(ring))
	}
	path := make(geom.Path, 0, len(ring)+1)
	for _, g := range ring {
		pt, err := p.Point(g)
		if err != nil {
			return nil, err
		}
		if len(path) > 0 {
			pt.X = unwrapX(pt.X, path[0].X)
		}
		path = append(path, pt)
	}
	if path[0] != path[len(path)-1] {
		path = append(path, path[0])
	}
	return geom.Polygon{path}, nil
}

// ScaleFactor is the web mercator linear scale at lat: projected lengths are
// true lengths multiplied by this factor.
func ScaleFactor(lat float64) float64 {
	return 1 / math.Cos(lat*math.Pi/180)
}

// unwrapX shifts x by whole world widths to the copy nearest ref.
func unwrapX(x, ref float64) float64 {
	for x-ref > worldWidth/2 {
		x -= worldWidth
	}
	for ref-x > worldWidth/2 {
		x += worldWidth
	}
	return x
}

// alignX returns shape translated by whole world widths so that its first
// vertex is the copy nearest refX. The input is not modified.
func alignX(shape geom.Polygon, refX float64) geom.Polygon {
	if len(shape) == 0 || len(shape[0]) == 0 {
		return shape
	}
	dx := unwrapX(shape[0][0].X, refX) - shape[0][0].X
	if dx == 0 {
		return shape
	}
	out := make(geom.Polygon, len(shape))
	for i, path := range shape {
		moved := make(geom.Path, len(path))
		for j, pt := range path {
			moved[j] = geom.Point{X: pt.X + dx, Y: pt.Y}
		}
		out[i] = moved
	}
	return out
}
