package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"

	"github.com/couchcryptid/hex-coverage-etl/internal/aggregate"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

// SignalExtractor reads one fine-resolution coverage snapshot.
type SignalExtractor interface {
	Path() string
	ExtractSignals(ctx context.Context) ([]domain.SignalRecord, error)
}

// ReportLoader writes a finished coverage report to a destination.
type ReportLoader interface {
	LoadReport(ctx context.Context, report domain.CoverageReport) error
}

const (
	loadAttempts   = 3
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Pipeline orchestrates the extract, roll-up, join and load steps of a
// coverage aggregation.
type Pipeline struct {
	aggregator *aggregate.Aggregator
	loaders    []ReportLoader
	logger     *slog.Logger
	metrics    *observability.Metrics
	backoff    time.Duration
}

// New creates a Pipeline that hands every report to each loader in order.
func New(agg *aggregate.Aggregator, loaders []ReportLoader, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		aggregator: agg,
		loaders:    loaders,
		logger:     logger,
		metrics:    metrics,
		backoff:    initialBackoff,
	}
}

// Run aggregates one signal snapshot against population and loads the
// resulting report. An empty label is derived from the snapshot file name.
func (p *Pipeline) Run(ctx context.Context, label string, population []domain.PopulationRecord, source SignalExtractor) (domain.CoverageReport, error) {
	start := time.Now()
	p.metrics.JobRunning.Set(1)
	defer p.metrics.JobRunning.Set(0)
	defer func() { p.metrics.JobDuration.WithLabelValues("aggregate").Observe(time.Since(start).Seconds()) }()

	if label == "" {
		label = LabelFor(source.Path())
	}

	signals, err := source.ExtractSignals(ctx)
	if err != nil {
		return domain.CoverageReport{}, fmt.Errorf("extract %s: %w", source.Path(), err)
	}

	rolled, skipped := p.aggregator.RollUp(signals)
	joined := aggregate.Join(population, rolled)
	p.metrics.JoinRecords.Set(float64(len(joined)))

	report := domain.CoverageReport{
		RunID:          uuid.NewString(),
		Label:          label,
		GeneratedAt:    domain.Now(),
		Records:        joined,
		Summary:        aggregate.Bucket(joined),
		SignalsRead:    len(signals),
		SignalsSkipped: skipped,
	}
	p.logger.Info("coverage joined",
		"run_id", report.RunID,
		"label", label,
		"signals", len(signals),
		"signals_skipped", skipped,
		"coarse_cells", len(rolled),
		"joined", len(joined),
	)
	if report.Summary.NoData {
		p.logger.Warn("no population joined with signal", "label", label, "path", source.Path())
	}

	for _, l := range p.loaders {
		if err := p.load(ctx, l, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// RunAll aggregates each source in turn. A source that fails is logged and
// skipped; only cancellation stops the loop.
func (p *Pipeline) RunAll(ctx context.Context, population []domain.PopulationRecord, sources []SignalExtractor) ([]domain.CoverageReport, error) {
	reports := make([]domain.CoverageReport, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := p.Run(ctx, "", population, src)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return reports, err
			}
			p.logger.Error("aggregation failed, continuing", "path", src.Path(), "error", err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// load retries a failing loader with exponential backoff.
func (p *Pipeline) load(ctx context.Context, l ReportLoader, report domain.CoverageReport) error {
	backoff := p.backoff
	var err error
	for attempt := 1; attempt <= loadAttempts; attempt++ {
		if err = l.LoadReport(ctx, report); err == nil {
			return nil
		}
		p.logger.Error("load report failed", "label", report.Label, "attempt", attempt, "error", err)
		if attempt == loadAttempts || !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("load report %s: %w", report.Label, err)
}

// LabelFor derives a report label from a snapshot file name, so
// "NY_US_hexes.parquet" becomes "NY".
func LabelFor(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.Index(name, "_US_hexes"); i > 0 {
		return name[:i]
	}
	return name
}
