package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

// Population snapshot column names.
const (
	ColCell       = "h3"
	ColPopulation = "population"
	ColDensity    = "density_per_mi2"
	ColLat        = "lat"
	ColLon        = "lon"
	ColCity       = "city"
	ColCounty     = "county"
	ColState      = "state"
	ColCountry    = "country"
	ColGeometry   = "geometry"
)

// PopulationSource reads a population snapshot from a parquet file.
type PopulationSource struct {
	path    string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPopulationSource creates a source for path.
func NewPopulationSource(path string, logger *slog.Logger, metrics *observability.Metrics) *PopulationSource {
	return &PopulationSource{path: path, logger: logger, metrics: metrics}
}

// Path returns the file the source reads.
func (s *PopulationSource) Path() string { return s.path }

// ExtractPopulation reads every row. A missing required column fails the
// read; rows with a bad cell id or population are skipped.
func (s *PopulationSource) ExtractPopulation(ctx context.Context) ([]domain.PopulationRecord, error) {
	pf, err := file.OpenParquetFile(s.path, false)
	if err != nil {
		return nil, fmt.Errorf("open population snapshot %s: %w", s.path, err)
	}
	defer pf.Close()

	idx := columnIndex(pf)
	if err := requireColumns(s.path, idx, ColCell, ColPopulation); err != nil {
		return nil, err
	}

	var out []domain.PopulationRecord
	for g := 0; g < pf.NumRowGroups(); g++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := s.readRowGroup(pf.RowGroup(g), idx)
		if err != nil {
			return nil, fmt.Errorf("read population snapshot %s row group %d: %w", s.path, g, err)
		}
		out = append(out, recs...)
	}
	s.logger.Info("population snapshot loaded", "path", s.path, "records", len(out))
	return out, nil
}

func (s *PopulationSource) readRowGroup(rg *file.RowGroupReader, idx map[string]int) ([]domain.PopulationRecord, error) {
	rows := int(rg.NumRows())
	if rows == 0 {
		return nil, nil
	}

	cells, cellErrs, err := readCells(rg, idx[ColCell], rows)
	if err != nil {
		return nil, err
	}
	pop, popValid, err := readNumbers(rg, idx[ColPopulation], rows)
	if err != nil {
		return nil, err
	}

	optNumber := func(name string) ([]float64, error) {
		i, ok := idx[name]
		if !ok {
			return nil, nil
		}
		v, _, err := readNumbers(rg, i, rows)
		return v, err
	}
	optString := func(name string) ([]string, error) {
		i, ok := idx[name]
		if !ok {
			return nil, nil
		}
		return readStrings(rg, i, rows)
	}

	density, err := optNumber(ColDensity)
	if err != nil {
		return nil, err
	}
	lat, err := optNumber(ColLat)
	if err != nil {
		return nil, err
	}
	lon, err := optNumber(ColLon)
	if err != nil {
		return nil, err
	}
	labels := make(map[string][]string, 4)
	for _, name := range []string{ColCity, ColCounty, ColState, ColCountry} {
		v, err := optString(name)
		if err != nil {
			return nil, err
		}
		labels[name] = v
	}
	var geoms [][]byte
	if i, ok := idx[ColGeometry]; ok {
		if geoms, _, err = readBytes(rg, i, rows); err != nil {
			return nil, err
		}
	}

	out := make([]domain.PopulationRecord, 0, rows)
	for r := 0; r < rows && r < len(cells); r++ {
		if cellErrs[r] != nil {
			s.skip(r, cellErrs[r])
			continue
		}
		if r >= len(pop) || !popValid[r] || math.IsNaN(pop[r]) || pop[r] < 0 {
			s.skip(r, fmt.Errorf("invalid population for cell %s", cells[r]))
			continue
		}
		rec := domain.PopulationRecord{
			Cell:       cells[r],
			Population: pop[r],
			Density:    at(density, r),
			Centroid:   domain.Geo{Lat: at(lat, r), Lon: at(lon, r)},
			PlaceLabels: domain.PlaceLabels{
				City:    at(labels[ColCity], r),
				County:  at(labels[ColCounty], r),
				State:   at(labels[ColState], r),
				Country: at(labels[ColCountry], r),
			},
		}
		if b := at(geoms, r); len(b) > 0 {
			ring, err := outerRing(b)
			if err != nil {
				s.logger.Warn("cell geometry unreadable, using grid boundary", "cell", rec.Cell.String(), "error", err)
			} else {
				rec.Boundary = ring
			}
		}
		out = append(out, rec)
	}
	s.metrics.RecordsLoaded.WithLabelValues("population").Add(float64(len(out)))
	return out, nil
}

func (s *PopulationSource) skip(row int, err error) {
	s.logger.Warn("population row rejected, skipping", "path", s.path, "row", row, "error", err)
	s.metrics.RecordsSkipped.WithLabelValues("population").Inc()
}

func at[T any](v []T, i int) T {
	var zero T
	if i < len(v) {
		return v[i]
	}
	return zero
}

// outerRing decodes a WKB polygon (or the first polygon of a multipolygon)
// into its outer ring without the closing vertex.
func outerRing(b []byte) ([]domain.Geo, error) {
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, err
	}
	var ring orb.Ring
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) > 0 {
			ring = v[0]
		}
	case orb.MultiPolygon:
		if len(v) > 0 && len(v[0]) > 0 {
			ring = v[0][0]
		}
	default:
		return nil, fmt.Errorf("unexpected geometry type %s", g.GeoJSONType())
	}
	if len(ring) > 1 && ring.Closed() {
		ring = ring[:len(ring)-1]
	}
	if len(ring) < 3 {
		return nil, fmt.Errorf("ring has %d vertices", len(ring))
	}
	out := make([]domain.Geo, len(ring))
	for i, p := range ring {
		out[i] = domain.Geo{Lat: p.Lat(), Lon: p.Lon()}
	}
	return out, nil
}
