package boundary_test

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/boundary"
	"github.com/couchcryptid/hex-coverage-etl/internal/coverage"
	"github.com/couchcryptid/hex-coverage-etl/internal/dataset"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const squareFeature = `{"type":"Feature","properties":{"NAME":%q},"geometry":{"type":"Polygon","coordinates":[[[-73.99,40.753],[-73.98,40.753],[-73.98,40.763],[-73.99,40.763],[-73.99,40.753]]]}}`

func writeGeoJSON(t *testing.T, crs string, features ...string) string {
	t.Helper()
	body := `{"type":"FeatureCollection",`
	if crs != "" {
		body += fmt.Sprintf(`"crs":{"type":"name","properties":{"name":%q}},`, crs)
	}
	body += `"features":[`
	for i, f := range features {
		if i > 0 {
			body += ","
		}
		body += f
	}
	body += `]}`
	path := filepath.Join(t.TempDir(), "boundary.geojson")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newProjector(t *testing.T) *coverage.Projector {
	t.Helper()
	p, err := coverage.NewProjector()
	require.NoError(t, err)
	return p
}

func TestReadGeoJSON_PolygonsAndSkips(t *testing.T) {
	point := `{"type":"Feature","properties":{"name":"pin"},"geometry":{"type":"Point","coordinates":[-73.98,40.75]}}`
	path := writeGeoJSON(t, "", fmt.Sprintf(squareFeature, "Midtown"), point)
	m := observability.NewMetricsForTesting()

	got, err := boundary.ReadGeoJSON(path, "", newProjector(t), discardLogger(), m)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Midtown", got[0].Name)
	assert.Len(t, got[0].Geo, 1)
	assert.Greater(t, got[0].Shape.Area(), 0.0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsSkipped.WithLabelValues("boundary")))
}

func TestReadGeoJSON_NameFilter(t *testing.T) {
	path := writeGeoJSON(t, "", fmt.Sprintf(squareFeature, "Midtown"), fmt.Sprintf(squareFeature, "Chelsea"))

	got, err := boundary.ReadGeoJSON(path, "chelsea", newProjector(t), discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Chelsea", got[0].Name)
}

func TestReadGeoJSON_CRS(t *testing.T) {
	ok := writeGeoJSON(t, "urn:ogc:def:crs:OGC:1.3:CRS84", fmt.Sprintf(squareFeature, "a"))
	_, err := boundary.ReadGeoJSON(ok, "", newProjector(t), discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	bad := writeGeoJSON(t, "EPSG:32767", fmt.Sprintf(squareFeature, "a"))
	_, err = boundary.ReadGeoJSON(bad, "", newProjector(t), discardLogger(), observability.NewMetricsForTesting())
	var projErr *domain.ProjectionError
	require.ErrorAs(t, err, &projErr)
	assert.Equal(t, "EPSG:32767", projErr.CRS)

	_, err = boundary.ReadGeoJSON(writeGeoJSON(t, "local grid", fmt.Sprintf(squareFeature, "a")), "", newProjector(t), discardLogger(), observability.NewMetricsForTesting())
	require.ErrorAs(t, err, &projErr)
}

func TestReadGeoJSON_NAD83Reprojected(t *testing.T) {
	path := writeGeoJSON(t, "urn:ogc:def:crs:EPSG::4269", fmt.Sprintf(squareFeature, "Midtown"))

	got, err := boundary.ReadGeoJSON(path, "", newProjector(t), discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	require.Len(t, got, 1)
	first := got[0].Geo[0][0][0]
	assert.InDelta(t, -73.99, first.Lon(), 1e-6)
	assert.InDelta(t, 40.753, first.Lat(), 1e-6)
	assert.Greater(t, got[0].Shape.Area(), 0.0)
}

func TestReadGeoJSON_ProjectedCRS(t *testing.T) {
	// Times Square area in CONUS Albers meters
	albers := `{"type":"Feature","properties":{"NAME":"albers"},"geometry":{"type":"Polygon","coordinates":[[[1826000,2184000],[1827000,2184000],[1827000,2185000],[1826000,2185000],[1826000,2184000]]]}}`
	path := writeGeoJSON(t, "EPSG:5070", albers)

	got, err := boundary.ReadGeoJSON(path, "", newProjector(t), discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	require.Len(t, got, 1)
	first := got[0].Geo[0][0][0]
	assert.InDelta(t, 40.758, first.Lat(), 0.05)
	assert.InDelta(t, -73.9855, first.Lon(), 0.05)
}

func TestReadShapefile_Missing(t *testing.T) {
	_, err := boundary.ReadShapefile(filepath.Join(t.TempDir(), "counties.shp"), boundary.ShapefileFilter{}, newProjector(t), discardLogger(), observability.NewMetricsForTesting())
	require.Error(t, err)
}

func TestBoundarySearchAndExport(t *testing.T) {
	p := newProjector(t)
	origin, err := grid.CellAt(domain.Geo{Lat: 40.758, Lon: -73.9855}, 8)
	require.NoError(t, err)
	cells, err := grid.Disk(origin, 4)
	require.NoError(t, err)
	recs := make([]domain.PopulationRecord, len(cells))
	for i, c := range cells {
		recs[i] = domain.PopulationRecord{Cell: c, Population: 10}
	}
	ds, err := dataset.New(recs, 8, p, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	path := writeGeoJSON(t, "", fmt.Sprintf(squareFeature, "Midtown"))
	bounds, err := boundary.ReadGeoJSON(path, "", p, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	matches := ds.Intersecting(bounds)
	require.NotEmpty(t, matches)
	assert.Less(t, len(matches), len(cells))

	out := filepath.Join(t.TempDir(), "out", "hexes.geojson")
	require.NoError(t, boundary.WriteCellsGeoJSON(out, matches))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, len(matches))
	assert.Equal(t, matches[0].Record.Cell.String(), fc.Features[0].Properties.MustString("h3"))
	assert.Equal(t, "Midtown", fc.Features[0].Properties.MustString("boundary"))
}
