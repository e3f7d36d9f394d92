package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/apache/arrow/go/v14/parquet/file"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

// Signal snapshot column names.
const (
	DefaultSignalCellColumn = "h3_res9_id"
	ColMinSignal            = "minsignal"
)

// SignalSource reads a coverage snapshot from a parquet file.
type SignalSource struct {
	path       string
	cellColumn string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewSignalSource creates a source for path. An empty cellColumn uses
// DefaultSignalCellColumn.
func NewSignalSource(path, cellColumn string, logger *slog.Logger, metrics *observability.Metrics) *SignalSource {
	if cellColumn == "" {
		cellColumn = DefaultSignalCellColumn
	}
	return &SignalSource{path: path, cellColumn: cellColumn, logger: logger, metrics: metrics}
}

// Path returns the file the source reads.
func (s *SignalSource) Path() string { return s.path }

// ExtractSignals reads every row, skipping rows with a bad cell id or a null
// signal.
func (s *SignalSource) ExtractSignals(ctx context.Context) ([]domain.SignalRecord, error) {
	pf, err := file.OpenParquetFile(s.path, false)
	if err != nil {
		return nil, fmt.Errorf("open signal snapshot %s: %w", s.path, err)
	}
	defer pf.Close()

	idx := columnIndex(pf)
	if err := requireColumns(s.path, idx, s.cellColumn, ColMinSignal); err != nil {
		return nil, err
	}

	var out []domain.SignalRecord
	for g := 0; g < pf.NumRowGroups(); g++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rg := pf.RowGroup(g)
		rows := int(rg.NumRows())
		cells, cellErrs, err := readCells(rg, idx[s.cellColumn], rows)
		if err != nil {
			return nil, fmt.Errorf("read signal snapshot %s: %w", s.path, err)
		}
		sig, valid, err := readNumbers(rg, idx[ColMinSignal], rows)
		if err != nil {
			return nil, fmt.Errorf("read signal snapshot %s: %w", s.path, err)
		}
		for r := 0; r < len(cells) && r < len(sig); r++ {
			if cellErrs[r] != nil || !valid[r] {
				err := cellErrs[r]
				if err == nil {
					err = fmt.Errorf("null signal for cell %s", cells[r])
				}
				s.logger.Warn("signal row rejected, skipping", "path", s.path, "row", r, "error", err)
				s.metrics.RecordsSkipped.WithLabelValues("signal").Inc()
				continue
			}
			out = append(out, domain.SignalRecord{Cell: cells[r], MinSignal: sig[r]})
		}
	}
	s.metrics.RecordsLoaded.WithLabelValues("signal").Add(float64(len(out)))
	s.logger.Info("signal snapshot loaded", "path", s.path, "records", len(out))
	return out, nil
}

// GlobSignalSources returns one source per file matching pattern, sorted by path.
func GlobSignalSources(pattern, cellColumn string, logger *slog.Logger, metrics *observability.Metrics) ([]*SignalSource, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	sort.Strings(paths)
	out := make([]*SignalSource, 0, len(paths))
	for _, p := range paths {
		out = append(out, NewSignalSource(p, cellColumn, logger, metrics))
	}
	return out, nil
}
