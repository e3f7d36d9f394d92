package boundary

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"

	"github.com/couchcryptid/hex-coverage-etl/internal/coverage"
	"github.com/couchcryptid/hex-coverage-etl/internal/dataset"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

// Shapefile attribute columns used for filtering and naming.
const (
	FieldStateFP = "STATEFP"
	FieldName    = "NAME"
)

// ShapefileFilter selects rows by state FIPS code and name. Empty fields
// match everything; Name matches ignoring case.
type ShapefileFilter struct {
	StateFP string
	Name    string
}

func (f ShapefileFilter) match(fields map[string]string) bool {
	if f.StateFP != "" && strings.TrimSpace(fields[FieldStateFP]) != f.StateFP {
		return false
	}
	if f.Name != "" && !strings.EqualFold(strings.TrimSpace(fields[FieldName]), f.Name) {
		return false
	}
	return true
}

// ReadShapefile loads the polygons of a shapefile matching filter. Without a
// .prj file the coordinates are assumed to be WGS-84.
func ReadShapefile(path string, filter ShapefileFilter, projector *coverage.Projector, logger *slog.Logger, metrics *observability.Metrics) ([]dataset.Boundary, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer dec.Close()

	src, err := shapefileSR(dec, path, logger)
	if err != nil {
		return nil, err
	}
	geoSR, err := proj.Parse(coverage.GeographicProj)
	if err != nil {
		return nil, fmt.Errorf("parse geographic projection: %w", err)
	}
	toGeo, err := src.NewTransform(geoSR)
	if err != nil {
		return nil, &domain.ProjectionError{Source: path, Err: err}
	}
	toMerc, err := projector.TransformFrom(src)
	if err != nil {
		return nil, &domain.ProjectionError{Source: path, Err: err}
	}

	var out []dataset.Boundary
	row := 0
	for {
		g, fields, more := dec.DecodeRowFields(FieldStateFP, FieldName)
		if !more {
			break
		}
		row++
		if !filter.match(fields) {
			continue
		}
		name := strings.TrimSpace(fields[FieldName])
		if name == "" {
			name = fmt.Sprintf("row %d", row)
		}

		b, err := shapefileBoundary(name, g, toGeo, toMerc)
		if err != nil {
			logger.Warn("boundary shape rejected, skipping", "path", path, "row", row, "error", err)
			metrics.RecordsSkipped.WithLabelValues("boundary").Inc()
			continue
		}
		out = append(out, b)
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("read shapefile %s: %w", path, err)
	}
	metrics.RecordsLoaded.WithLabelValues("boundary").Add(float64(len(out)))
	logger.Info("shapefile boundaries loaded", "path", path, "boundaries", len(out))
	return out, nil
}

func shapefileSR(dec *shp.Decoder, path string, logger *slog.Logger) (*proj.SR, error) {
	prj := strings.TrimSuffix(path, ".shp") + ".prj"
	if _, err := os.Stat(prj); errors.Is(err, os.ErrNotExist) {
		logger.Warn("shapefile has no coordinate reference system, assuming WGS-84", "path", path)
		sr, err := proj.Parse(coverage.GeographicProj)
		if err != nil {
			return nil, fmt.Errorf("parse geographic projection: %w", err)
		}
		return sr, nil
	}
	sr, err := dec.SR()
	if err != nil {
		return nil, &domain.ProjectionError{Source: path, CRS: prj, Err: err}
	}
	return sr, nil
}

func shapefileBoundary(name string, g geom.Geom, toGeo, toMerc proj.Transformer) (dataset.Boundary, error) {
	if _, ok := g.(geom.Polygonal); !ok {
		return dataset.Boundary{}, fmt.Errorf("boundary %q is %T, not a polygon", name, g)
	}
	merc, err := g.Transform(toMerc)
	if err != nil {
		return dataset.Boundary{}, fmt.Errorf("project boundary %q: %w", name, err)
	}
	shape, ok := merc.(geom.Polygonal)
	if !ok {
		return dataset.Boundary{}, fmt.Errorf("projected boundary %q is %T", name, merc)
	}
	geo, err := g.Transform(toGeo)
	if err != nil {
		return dataset.Boundary{}, fmt.Errorf("reproject boundary %q: %w", name, err)
	}
	mp, err := toOrb(geo)
	if err != nil {
		return dataset.Boundary{}, fmt.Errorf("boundary %q: %w", name, err)
	}
	return dataset.Boundary{Name: name, Shape: shape, Geo: mp}, nil
}
