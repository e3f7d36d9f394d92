// Package aggregate rolls fine signal cells up to population cells, joins the
// two datasets and summarizes population by signal band.
package aggregate

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

// Rolled is the mean signal of every fine cell under one coarse cell.
type Rolled struct {
	Cell      domain.Cell
	AvgSignal float64
	Samples   int
}

// Aggregator rolls signal snapshots up to a coarse resolution.
type Aggregator struct {
	coarseRes int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates an Aggregator targeting coarseRes.
func New(coarseRes int, logger *slog.Logger, metrics *observability.Metrics) (*Aggregator, error) {
	if err := grid.CheckResolution(coarseRes); err != nil {
		return nil, err
	}
	return &Aggregator{coarseRes: coarseRes, logger: logger, metrics: metrics}, nil
}

// RollUp maps each signal cell to its coarse ancestor and averages MinSignal
// per ancestor. Coarse cells with no signal get no entry. Rows with an
// invalid cell, a resolution coarser than the target or a non-finite signal
// are skipped; the second return value counts them.
func (a *Aggregator) RollUp(signals []domain.SignalRecord) (map[domain.Cell]Rolled, int) {
	type acc struct {
		sum float64
		n   int
	}
	sums := make(map[domain.Cell]*acc)
	skipped := 0

	for _, s := range signals {
		if math.IsNaN(s.MinSignal) || math.IsInf(s.MinSignal, 0) {
			a.skip(s.Cell, fmt.Errorf("non-finite signal %v", s.MinSignal))
			skipped++
			continue
		}
		parent, err := grid.Parent(s.Cell, a.coarseRes)
		if err != nil {
			a.skip(s.Cell, err)
			skipped++
			continue
		}
		x, ok := sums[parent]
		if !ok {
			x = &acc{}
			sums[parent] = x
		}
		x.sum += s.MinSignal
		x.n++
	}

	out := make(map[domain.Cell]Rolled, len(sums))
	for c, x := range sums {
		out[c] = Rolled{Cell: c, AvgSignal: x.sum / float64(x.n), Samples: x.n}
	}
	return out, skipped
}

func (a *Aggregator) skip(c domain.Cell, err error) {
	a.logger.Warn("signal roll-up failed, skipping record", "cell", c.String(), "error", err)
	a.metrics.CellsSkipped.WithLabelValues("rollup").Inc()
}

// Join keeps population cells that have a rolled-up signal, in population
// order, and classifies each into a band.
func Join(population []domain.PopulationRecord, rolled map[domain.Cell]Rolled) []domain.AggregatedRecord {
	out := make([]domain.AggregatedRecord, 0, min(len(population), len(rolled)))
	for _, p := range population {
		r, ok := rolled[p.Cell]
		if !ok {
			continue
		}
		out = append(out, domain.AggregatedRecord{
			PopulationRecord: p,
			AvgSignal:        r.AvgSignal,
			SignalSamples:    r.Samples,
			Band:             domain.ClassifySignal(r.AvgSignal),
		})
	}
	return out
}

// Bucket totals population per band. Records without a known band are
// classified from AvgSignal. Percentages are population / total * 100; a zero
// total sets NoData and leaves them at zero.
func Bucket(records []domain.AggregatedRecord) domain.BandSummary {
	totals := make(map[domain.Band]*domain.BandTotal, len(domain.Bands))
	for _, b := range domain.Bands {
		totals[b] = &domain.BandTotal{Band: b}
	}

	var total float64
	for _, r := range records {
		t, ok := totals[r.Band]
		if !ok {
			t = totals[domain.ClassifySignal(r.AvgSignal)]
		}
		t.Population += r.Population
		t.Cells++
		total += r.Population
	}

	s := domain.BandSummary{
		TotalPopulation: total,
		Cells:           len(records),
		Bands:           make([]domain.BandTotal, 0, len(domain.Bands)),
		NoData:          total == 0,
	}
	for _, b := range domain.Bands {
		t := *totals[b]
		if !s.NoData {
			t.Percent = t.Population / total * 100
		}
		s.Bands = append(s.Bands, t)
	}
	return s
}

// Worst returns up to n records with the lowest average signal, weakest
// first. Ties keep the higher population first. n <= 0 returns all records.
func Worst(records []domain.AggregatedRecord, n int) []domain.AggregatedRecord {
	sorted := make([]domain.AggregatedRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].AvgSignal != sorted[j].AvgSignal {
			return sorted[i].AvgSignal < sorted[j].AvgSignal
		}
		return sorted[i].Population > sorted[j].Population
	})
	if n > 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
