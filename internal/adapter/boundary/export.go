package boundary

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/hex-coverage-etl/internal/dataset"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
)

// WriteCellsGeoJSON writes one polygon feature per matched cell.
func WriteCellsGeoJSON(path string, matches []dataset.Match) error {
	fc := geojson.NewFeatureCollection()
	for _, m := range matches {
		ring := m.Record.Boundary
		if len(ring) == 0 {
			b, err := grid.Boundary(m.Record.Cell)
			if err != nil {
				return fmt.Errorf("cell %s: %w", m.Record.Cell, err)
			}
			ring = b
		}
		r := make(orb.Ring, 0, len(ring)+1)
		for _, g := range ring {
			r = append(r, orb.Point{g.Lon, g.Lat})
		}
		r = append(r, r[0])

		f := geojson.NewFeature(orb.Polygon{r})
		f.Properties["h3"] = m.Record.Cell.String()
		f.Properties["population"] = m.Record.Population
		f.Properties["boundary"] = m.Boundary
		if m.Record.City != "" {
			f.Properties["city"] = m.Record.City
		}
		if m.Record.County != "" {
			f.Properties["county"] = m.Record.County
		}
		if m.Record.State != "" {
			f.Properties["state"] = m.Record.State
		}
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
