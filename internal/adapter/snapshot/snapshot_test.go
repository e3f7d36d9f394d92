package snapshot

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

var timesSquare = domain.Geo{Lat: 40.7580, Lon: -73.9855}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCells(t *testing.T, res, k int) []domain.Cell {
	t.Helper()
	c, err := grid.CellAt(timesSquare, res)
	require.NoError(t, err)
	cells, err := grid.Disk(c, k)
	require.NoError(t, err)
	return cells
}

func TestPopulation_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pop.parquet")
	cells := testCells(t, 8, 1)
	in := make([]domain.PopulationRecord, len(cells))
	for i, c := range cells {
		in[i] = domain.PopulationRecord{
			Cell:        c,
			Population:  float64(i * 10),
			Density:     float64(i*10) / domain.Res8HexAreaMi2,
			Centroid:    domain.Geo{Lat: 40.75, Lon: -73.98},
			PlaceLabels: domain.PlaceLabels{City: "New York", State: "NY", Country: "US"},
		}
	}
	require.NoError(t, WritePopulation(path, in))

	m := observability.NewMetricsForTesting()
	got, err := NewPopulationSource(path, discardLogger(), m).ExtractPopulation(context.Background())
	require.NoError(t, err)
	require.Len(t, got, len(in))

	for i := range in {
		assert.Equal(t, in[i].Cell, got[i].Cell)
		assert.Equal(t, in[i].Population, got[i].Population)
		assert.Equal(t, in[i].PlaceLabels, got[i].PlaceLabels)
		assert.Equal(t, in[i].Centroid, got[i].Centroid)
		assert.Len(t, got[i].Boundary, 6)
	}
	assert.Equal(t, float64(len(in)), testutil.ToFloat64(m.RecordsLoaded.WithLabelValues("population")))
}

func TestPopulation_SkipsBadRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pop.parquet")
	cells := testCells(t, 8, 0)

	type row struct {
		cell string
		pop  any
	}
	rows := []row{{cells[0].String(), 10.0}, {"bogus", 5.0}, {cells[0].String(), nil}}
	require.NoError(t, writeTable(path, []column[row]{
		{ColCell, arrow.BinaryTypes.String, func(r row) any { return r.cell }},
		{ColPopulation, arrow.PrimitiveTypes.Float64, func(r row) any { return r.pop }},
	}, rows))

	m := observability.NewMetricsForTesting()
	got, err := NewPopulationSource(path, discardLogger(), m).ExtractPopulation(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, cells[0], got[0].Cell)
	assert.Empty(t, got[0].Boundary)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsSkipped.WithLabelValues("population")))
}

func TestPopulation_IntegerCellColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pop.parquet")
	cells := testCells(t, 8, 1)
	require.NoError(t, writeTable(path, []column[domain.Cell]{
		{ColCell, arrow.PrimitiveTypes.Int64, func(c domain.Cell) any { return int64(c) }},
		{ColPopulation, arrow.PrimitiveTypes.Int64, func(domain.Cell) any { return int64(42) }},
	}, cells))

	got, err := NewPopulationSource(path, discardLogger(), observability.NewMetricsForTesting()).ExtractPopulation(context.Background())
	require.NoError(t, err)
	require.Len(t, got, len(cells))
	assert.Equal(t, cells[3], got[3].Cell)
	assert.Equal(t, 42.0, got[3].Population)
}

func TestPopulation_SchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.parquet")
	require.NoError(t, WriteSignals(path, "", []domain.SignalRecord{{Cell: testCells(t, 9, 0)[0], MinSignal: -90}}))

	_, err := NewPopulationSource(path, discardLogger(), observability.NewMetricsForTesting()).ExtractPopulation(context.Background())
	var schemaErr *domain.SchemaMismatchError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, ColCell, schemaErr.Column)
}

func TestPopulation_MissingFile(t *testing.T) {
	_, err := NewPopulationSource(filepath.Join(t.TempDir(), "nope.parquet"), discardLogger(), observability.NewMetricsForTesting()).ExtractPopulation(context.Background())
	require.Error(t, err)
}

func TestSignals_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "NY_US_hexes.parquet")
	cells := testCells(t, 9, 1)
	in := make([]domain.SignalRecord, len(cells))
	for i, c := range cells {
		in[i] = domain.SignalRecord{Cell: c, MinSignal: -80 - float64(i)}
	}
	require.NoError(t, WriteSignals(path, "", in))

	got, err := NewSignalSource(path, "", discardLogger(), observability.NewMetricsForTesting()).ExtractSignals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestSignals_CustomColumnMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.parquet")
	require.NoError(t, WriteSignals(path, "", []domain.SignalRecord{{Cell: testCells(t, 9, 0)[0], MinSignal: -90}}))

	_, err := NewSignalSource(path, "h3_res10_id", discardLogger(), observability.NewMetricsForTesting()).ExtractSignals(context.Background())
	var schemaErr *domain.SchemaMismatchError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "h3_res10_id", schemaErr.Column)
}

func TestGlobSignalSources(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"TX_US_hexes.parquet", "CA_US_hexes.parquet", "notes.txt"} {
		require.NoError(t, WriteSignals(filepath.Join(dir, name), "", nil))
	}

	got, err := GlobSignalSources(filepath.Join(dir, "*_US_hexes.parquet"), "", discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "CA_US_hexes.parquet", filepath.Base(got[0].Path()))
}

func TestReportWriter_LoadReport(t *testing.T) {
	dir := t.TempDir()
	m := observability.NewMetricsForTesting()
	w := NewReportWriter(dir, discardLogger(), m)
	cells := testCells(t, 8, 1)

	records := make([]domain.AggregatedRecord, len(cells))
	for i, c := range cells {
		records[i] = domain.AggregatedRecord{
			PopulationRecord: domain.PopulationRecord{Cell: c, Population: 100},
			AvgSignal:        -95,
			SignalSamples:    3,
			Band:             domain.BandGood,
		}
	}
	require.NoError(t, w.LoadReport(context.Background(), domain.CoverageReport{Label: "NY", Records: records}))

	path := w.PathFor("NY")
	assert.Equal(t, filepath.Join(dir, "NY_"+AggregatedFileName), path)

	got, err := NewPopulationSource(path, discardLogger(), observability.NewMetricsForTesting()).ExtractPopulation(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, len(records))
	assert.Equal(t, float64(len(records)), testutil.ToFloat64(m.RecordsPublished.WithLabelValues("parquet")))
	assert.Equal(t, filepath.Join(dir, AggregatedFileName), w.PathFor(""))
}

func TestWriteCellWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radius.parquet")
	cells := testCells(t, 8, 0)
	require.NoError(t, WriteCellWeights(path, []domain.CellWeight{{Cell: cells[0], Fraction: 0.5, Population: 10, WeightedPopulation: 5}}))

	got, err := NewPopulationSource(path, discardLogger(), observability.NewMetricsForTesting()).ExtractPopulation(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10.0, got[0].Population)
}
