// Package snapshot reads and writes the parquet snapshots the analytics run on.
package snapshot

import (
	"fmt"

	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/file"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
)

const batchSize = 8192

// columnIndex maps column names to their position in the file schema.
func columnIndex(pf *file.Reader) map[string]int {
	schema := pf.MetaData().Schema
	idx := make(map[string]int, schema.NumColumns())
	for i := 0; i < schema.NumColumns(); i++ {
		idx[schema.Column(i).Name()] = i
	}
	return idx
}

// requireColumns returns a SchemaMismatchError for the first missing column.
func requireColumns(source string, idx map[string]int, names ...string) error {
	for _, n := range names {
		if _, ok := idx[n]; !ok {
			return &domain.SchemaMismatchError{Source: source, Column: n}
		}
	}
	return nil
}

// readDense drains a column chunk, placing values at their row positions.
// Rows whose definition level is below maxDef are null.
func readDense[T any](read func(int64, []T, []int16) (int64, int, error), hasNext func() bool, maxDef int16, rows int) ([]T, []bool, error) {
	out := make([]T, 0, rows)
	valid := make([]bool, 0, rows)
	vals := make([]T, batchSize)
	defs := make([]int16, batchSize)

	for hasNext() {
		total, n, err := read(batchSize, vals, defs)
		if err != nil {
			return nil, nil, err
		}
		if total == 0 {
			break
		}
		if maxDef == 0 {
			out = append(out, vals[:n]...)
			for i := 0; i < n; i++ {
				valid = append(valid, true)
			}
			continue
		}
		v := 0
		for i := int64(0); i < total; i++ {
			if defs[i] == maxDef {
				out = append(out, vals[v])
				valid = append(valid, true)
				v++
				continue
			}
			var zero T
			out = append(out, zero)
			valid = append(valid, false)
		}
	}
	return out, valid, nil
}

// readNumbers reads any numeric physical type as float64.
func readNumbers(rg *file.RowGroupReader, col int, rows int) ([]float64, []bool, error) {
	cr, err := rg.Column(col)
	if err != nil {
		return nil, nil, err
	}
	maxDef := cr.Descriptor().MaxDefinitionLevel()

	switch r := cr.(type) {
	case *file.Float64ColumnChunkReader:
		return readDense(func(n int64, v []float64, d []int16) (int64, int, error) {
			return r.ReadBatch(n, v, d, nil)
		}, r.HasNext, maxDef, rows)
	case *file.Float32ColumnChunkReader:
		v, ok, err := readDense(func(n int64, v []float32, d []int16) (int64, int, error) {
			return r.ReadBatch(n, v, d, nil)
		}, r.HasNext, maxDef, rows)
		return widen(v), ok, err
	case *file.Int64ColumnChunkReader:
		v, ok, err := readDense(func(n int64, v []int64, d []int16) (int64, int, error) {
			return r.ReadBatch(n, v, d, nil)
		}, r.HasNext, maxDef, rows)
		return widen(v), ok, err
	case *file.Int32ColumnChunkReader:
		v, ok, err := readDense(func(n int64, v []int32, d []int16) (int64, int, error) {
			return r.ReadBatch(n, v, d, nil)
		}, r.HasNext, maxDef, rows)
		return widen(v), ok, err
	default:
		return nil, nil, fmt.Errorf("column %s: unsupported numeric type %s", cr.Descriptor().Name(), cr.Type())
	}
}

func widen[T float32 | int64 | int32](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// readBytes reads a BYTE_ARRAY column.
func readBytes(rg *file.RowGroupReader, col int, rows int) ([][]byte, []bool, error) {
	cr, err := rg.Column(col)
	if err != nil {
		return nil, nil, err
	}
	r, ok := cr.(*file.ByteArrayColumnChunkReader)
	if !ok {
		return nil, nil, fmt.Errorf("column %s: expected byte array, got %s", cr.Descriptor().Name(), cr.Type())
	}
	v, valid, err := readDense(byteArrays(r), r.HasNext, cr.Descriptor().MaxDefinitionLevel(), rows)
	if err != nil {
		return nil, nil, err
	}
	out := make([][]byte, len(v))
	for i, b := range v {
		out[i] = b
	}
	return out, valid, nil
}

// byteArrays copies each value out of the page buffer, which the reader
// reuses between batches.
func byteArrays(r *file.ByteArrayColumnChunkReader) func(int64, []parquet.ByteArray, []int16) (int64, int, error) {
	return func(n int64, v []parquet.ByteArray, d []int16) (int64, int, error) {
		total, read, err := r.ReadBatch(n, v, d, nil)
		for i := 0; i < read; i++ {
			v[i] = append(parquet.ByteArray(nil), v[i]...)
		}
		return total, read, err
	}
}

// readStrings reads a BYTE_ARRAY column as strings; nulls become "".
func readStrings(rg *file.RowGroupReader, col int, rows int) ([]string, error) {
	b, _, err := readBytes(rg, col, rows)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(b))
	for i, x := range b {
		out[i] = string(x)
	}
	return out, nil
}

// readCells reads a cell column stored either as hexadecimal strings or as
// 64-bit integers. Rows that do not hold a valid cell carry an error.
func readCells(rg *file.RowGroupReader, col int, rows int) ([]domain.Cell, []error, error) {
	cr, err := rg.Column(col)
	if err != nil {
		return nil, nil, err
	}
	maxDef := cr.Descriptor().MaxDefinitionLevel()

	switch r := cr.(type) {
	case *file.ByteArrayColumnChunkReader:
		v, valid, err := readDense(byteArrays(r), r.HasNext, maxDef, rows)
		if err != nil {
			return nil, nil, err
		}
		cells := make([]domain.Cell, len(v))
		errs := make([]error, len(v))
		for i := range v {
			if !valid[i] {
				errs[i] = &domain.InvalidCellError{Reason: "null"}
				continue
			}
			cells[i], errs[i] = grid.ParseCell(string(v[i]))
		}
		return cells, errs, nil
	case *file.Int64ColumnChunkReader:
		v, valid, err := readDense(func(n int64, v []int64, d []int16) (int64, int, error) {
			return r.ReadBatch(n, v, d, nil)
		}, r.HasNext, maxDef, rows)
		if err != nil {
			return nil, nil, err
		}
		cells := make([]domain.Cell, len(v))
		errs := make([]error, len(v))
		for i := range v {
			if !valid[i] {
				errs[i] = &domain.InvalidCellError{Reason: "null"}
				continue
			}
			cells[i], errs[i] = grid.FromInt(v[i])
		}
		return cells, errs, nil
	default:
		return nil, nil, fmt.Errorf("column %s: cell ids must be strings or int64, got %s", cr.Descriptor().Name(), cr.Type())
	}
}
