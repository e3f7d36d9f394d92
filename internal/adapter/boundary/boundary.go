// Package boundary loads administrative boundaries from shapefiles and
// GeoJSON, and exports matched cells as GeoJSON.
package boundary

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb"

	"github.com/couchcryptid/hex-coverage-etl/internal/coverage"
	"github.com/couchcryptid/hex-coverage-etl/internal/dataset"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
)

// fromOrb builds a dataset boundary from WGS-84 polygons, projecting them
// with p.
func fromOrb(name string, mp orb.MultiPolygon, p *coverage.Projector) (dataset.Boundary, error) {
	var shapes geom.MultiPolygon
	for _, poly := range mp {
		gp := make(geom.Polygon, 0, len(poly))
		for _, ring := range poly {
			geo := make([]domain.Geo, 0, len(ring))
			for _, pt := range ring {
				geo = append(geo, domain.Geo{Lat: pt.Lat(), Lon: pt.Lon()})
			}
			if len(geo) > 1 && geo[0] == geo[len(geo)-1] {
				geo = geo[:len(geo)-1]
			}
			projected, err := p.Polygon(geo)
			if err != nil {
				return dataset.Boundary{}, fmt.Errorf("boundary %q: %w", name, err)
			}
			gp = append(gp, projected[0])
		}
		if len(gp) > 0 {
			shapes = append(shapes, gp)
		}
	}
	if len(shapes) == 0 {
		return dataset.Boundary{}, fmt.Errorf("boundary %q: no polygon rings", name)
	}
	var shape geom.Polygonal = shapes
	if len(shapes) == 1 {
		shape = shapes[0]
	}
	return dataset.Boundary{Name: name, Shape: shape, Geo: mp}, nil
}

// toOrb converts a geographic (lon/lat) ctessum geometry to orb polygons.
func toOrb(g geom.Geom) (orb.MultiPolygon, error) {
	convert := func(p geom.Polygon) orb.Polygon {
		out := make(orb.Polygon, 0, len(p))
		for _, path := range p {
			r := make(orb.Ring, 0, len(path)+1)
			for _, pt := range path {
				r = append(r, orb.Point{pt.X, pt.Y})
			}
			if len(r) > 0 && r[0] != r[len(r)-1] {
				r = append(r, r[0])
			}
			out = append(out, r)
		}
		return out
	}
	switch v := g.(type) {
	case geom.Polygon:
		return orb.MultiPolygon{convert(v)}, nil
	case geom.MultiPolygon:
		out := make(orb.MultiPolygon, 0, len(v))
		for _, p := range v {
			out = append(out, convert(p))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
}
