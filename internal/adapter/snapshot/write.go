package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

// AggregatedFileName is the report file written into the output directory.
const AggregatedFileName = "all_hexes_with_signal.parquet"

// column describes one output column and how to take its value from a row.
// A nil value is written as null.
type column[T any] struct {
	name  string
	typ   arrow.DataType
	value func(T) any
}

func writeTable[T any](path string, cols []column[T], rows []T) error {
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.name, Type: c.typ, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	for _, r := range rows {
		for i, c := range cols {
			if err := appendValue(b.Field(i), c.value(r)); err != nil {
				return fmt.Errorf("column %s: %w", c.name, err)
			}
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w, err := pqarrow.NewFileWriter(schema, f, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("open parquet writer %s: %w", path, err)
	}
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch x := v.(type) {
	case string:
		b.(*array.StringBuilder).Append(x)
	case float64:
		b.(*array.Float64Builder).Append(x)
	case int64:
		b.(*array.Int64Builder).Append(x)
	case []byte:
		if x == nil {
			b.AppendNull()
			return nil
		}
		b.(*array.BinaryBuilder).Append(x)
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

// cellWKB encodes the record's polygon, falling back to the grid boundary.
// Cells whose boundary cannot be built get a null geometry.
func cellWKB(rec domain.PopulationRecord) []byte {
	ring := rec.Boundary
	if len(ring) == 0 {
		b, err := grid.Boundary(rec.Cell)
		if err != nil {
			return nil
		}
		ring = b
	}
	r := make(orb.Ring, 0, len(ring)+1)
	for _, g := range ring {
		r = append(r, orb.Point{g.Lon, g.Lat})
	}
	r = append(r, r[0])
	b, err := wkb.Marshal(orb.Polygon{r})
	if err != nil {
		return nil
	}
	return b
}

func populationColumns[T any](get func(T) domain.PopulationRecord) []column[T] {
	str := arrow.BinaryTypes.String
	f64 := arrow.PrimitiveTypes.Float64
	return []column[T]{
		{ColCell, str, func(r T) any { return get(r).Cell.String() }},
		{ColPopulation, f64, func(r T) any { return get(r).Population }},
		{ColDensity, f64, func(r T) any { return get(r).Density }},
		{ColLat, f64, func(r T) any { return get(r).Centroid.Lat }},
		{ColLon, f64, func(r T) any { return get(r).Centroid.Lon }},
		{ColCity, str, func(r T) any { return get(r).City }},
		{ColCounty, str, func(r T) any { return get(r).County }},
		{ColState, str, func(r T) any { return get(r).State }},
		{ColCountry, str, func(r T) any { return get(r).Country }},
	}
}

func geometryColumn[T any](get func(T) domain.PopulationRecord) column[T] {
	return column[T]{ColGeometry, arrow.BinaryTypes.Binary, func(r T) any { return cellWKB(get(r)) }}
}

// WritePopulation writes population records with their cell polygons.
func WritePopulation(path string, records []domain.PopulationRecord) error {
	id := func(r domain.PopulationRecord) domain.PopulationRecord { return r }
	cols := append(populationColumns(id), geometryColumn(id))
	return writeTable(path, cols, records)
}

// WriteAggregated writes joined records with their signal and band.
func WriteAggregated(path string, records []domain.AggregatedRecord) error {
	get := func(r domain.AggregatedRecord) domain.PopulationRecord { return r.PopulationRecord }
	cols := populationColumns(get)
	cols = append(cols,
		column[domain.AggregatedRecord]{"avg_minsignal", arrow.PrimitiveTypes.Float64, func(r domain.AggregatedRecord) any { return r.AvgSignal }},
		column[domain.AggregatedRecord]{"signal_samples", arrow.PrimitiveTypes.Int64, func(r domain.AggregatedRecord) any { return int64(r.SignalSamples) }},
		column[domain.AggregatedRecord]{"band", arrow.BinaryTypes.String, func(r domain.AggregatedRecord) any { return string(r.Band) }},
		geometryColumn(get),
	)
	return writeTable(path, cols, records)
}

// WriteSignals writes a coverage snapshot using cellColumn for the cell ids.
func WriteSignals(path, cellColumn string, records []domain.SignalRecord) error {
	if cellColumn == "" {
		cellColumn = DefaultSignalCellColumn
	}
	return writeTable(path, []column[domain.SignalRecord]{
		{cellColumn, arrow.BinaryTypes.String, func(r domain.SignalRecord) any { return r.Cell.String() }},
		{ColMinSignal, arrow.PrimitiveTypes.Float64, func(r domain.SignalRecord) any { return r.MinSignal }},
	}, records)
}

// WriteCellWeights writes the matched cells of one radius query.
func WriteCellWeights(path string, cells []domain.CellWeight) error {
	f64 := arrow.PrimitiveTypes.Float64
	return writeTable(path, []column[domain.CellWeight]{
		{ColCell, arrow.BinaryTypes.String, func(c domain.CellWeight) any { return c.Cell.String() }},
		{"intersection_ratio", f64, func(c domain.CellWeight) any { return c.Fraction }},
		{ColPopulation, f64, func(c domain.CellWeight) any { return c.Population }},
		{"adjusted_population", f64, func(c domain.CellWeight) any { return c.WeightedPopulation }},
		{"distance_km", f64, func(c domain.CellWeight) any { return c.DistanceKm }},
		{"area_km2", f64, func(c domain.CellWeight) any { return c.AreaKm2 }},
	}, cells)
}

// ReportWriter stores aggregation reports as parquet files in a directory.
type ReportWriter struct {
	dir     string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewReportWriter creates a writer for dir.
func NewReportWriter(dir string, logger *slog.Logger, metrics *observability.Metrics) *ReportWriter {
	return &ReportWriter{dir: dir, logger: logger, metrics: metrics}
}

// PathFor returns the file a report with label is written to.
func (w *ReportWriter) PathFor(label string) string {
	if label == "" {
		return filepath.Join(w.dir, AggregatedFileName)
	}
	return filepath.Join(w.dir, label+"_"+AggregatedFileName)
}

// LoadReport writes the report's records.
func (w *ReportWriter) LoadReport(_ context.Context, report domain.CoverageReport) error {
	path := w.PathFor(report.Label)
	if err := WriteAggregated(path, report.Records); err != nil {
		return err
	}
	w.metrics.RecordsPublished.WithLabelValues("parquet").Add(float64(len(report.Records)))
	w.logger.Info("aggregated snapshot written", "path", path, "records", len(report.Records))
	return nil
}

// Close is a no-op; files are closed after each write.
func (w *ReportWriter) Close() error { return nil }
