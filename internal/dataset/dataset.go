// Package dataset holds the population snapshot in a read-only form shared by
// concurrent queries.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/couchcryptid/hex-coverage-etl/internal/coverage"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
	"github.com/couchcryptid/hex-coverage-etl/internal/radius"
)

// indexedCell is the spatial index entry for one cell.
type indexedCell struct {
	geom.Polygon
	idx int
}

// Dataset is an immutable population snapshot with its cells projected and
// indexed. Nothing mutates after New, so it is safe for concurrent use.
type Dataset struct {
	resolution int
	records    []domain.PopulationRecord
	cells      []coverage.Cell
	index      map[domain.Cell]int
	tree       *rtree.Rtree

	resolver    *radius.Resolver
	weigher     *coverage.Weigher
	maxRadiusKm float64
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithMaxRadiusKm rejects radius queries wider than km with
// domain.ErrInvalidRadius. Zero or less means no limit.
func WithMaxRadiusKm(km float64) Option {
	return func(d *Dataset) { d.maxRadiusKm = km }
}

// New validates and projects the records once. Records with an invalid cell,
// a cell at the wrong resolution, a duplicate cell or an unusable population
// are skipped with a warning.
func New(records []domain.PopulationRecord, resolution int, projector *coverage.Projector, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) (*Dataset, error) {
	resolver, err := radius.NewResolver(resolution)
	if err != nil {
		return nil, err
	}

	d := &Dataset{
		resolution: resolution,
		records:    make([]domain.PopulationRecord, 0, len(records)),
		cells:      make([]coverage.Cell, 0, len(records)),
		index:      make(map[domain.Cell]int, len(records)),
		tree:       rtree.NewTree(25, 50),
		resolver:   resolver,
		weigher:    coverage.NewWeigher(projector, logger, metrics),
		logger:     logger,
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, rec := range records {
		c, err := d.prepare(rec, projector)
		if err != nil {
			logger.Warn("dataset record rejected, skipping",
				"cell", rec.Cell.String(),
				"error", err,
			)
			metrics.CellsSkipped.WithLabelValues("dataset").Inc()
			continue
		}
		if rec.Centroid == (domain.Geo{}) {
			rec.Centroid = c.Centroid
		}
		i := len(d.records)
		d.records = append(d.records, rec)
		d.cells = append(d.cells, c)
		d.index[rec.Cell] = i
		d.tree.Insert(&indexedCell{Polygon: c.Shape, idx: i})
	}

	metrics.DatasetCells.Set(float64(len(d.records)))
	logger.Info("dataset ready", "cells", len(d.records), "skipped", len(records)-len(d.records), "resolution", resolution)
	return d, nil
}

func (d *Dataset) prepare(rec domain.PopulationRecord, projector *coverage.Projector) (coverage.Cell, error) {
	if err := grid.Validate(rec.Cell); err != nil {
		return coverage.Cell{}, err
	}
	if r := grid.Resolution(rec.Cell); r != d.resolution {
		return coverage.Cell{}, &domain.UnsupportedResolutionError{
			Resolution: r,
			Reason:     fmt.Sprintf("dataset resolution is %d", d.resolution),
		}
	}
	if _, dup := d.index[rec.Cell]; dup {
		return coverage.Cell{}, errors.New("duplicate cell")
	}
	if math.IsNaN(rec.Population) || math.IsInf(rec.Population, 0) || rec.Population < 0 {
		return coverage.Cell{}, fmt.Errorf("invalid population %v", rec.Population)
	}

	ring := rec.Boundary
	if len(ring) == 0 {
		b, err := grid.Boundary(rec.Cell)
		if err != nil {
			return coverage.Cell{}, err
		}
		ring = b
	}
	shape, err := projector.Polygon(ring)
	if err != nil {
		return coverage.Cell{}, err
	}
	centroid, err := grid.Centroid(rec.Cell)
	if err != nil {
		return coverage.Cell{}, err
	}
	area, err := grid.AreaKm2(rec.Cell)
	if err != nil {
		return coverage.Cell{}, err
	}
	return coverage.Cell{
		ID:         rec.Cell,
		Population: rec.Population,
		Centroid:   centroid,
		Shape:      shape,
		AreaKm2:    area,
	}, nil
}

// Resolution returns the cell resolution of the snapshot.
func (d *Dataset) Resolution() int { return d.resolution }

// Len returns the number of cells held.
func (d *Dataset) Len() int { return len(d.records) }

// Records returns the accepted records in load order. Callers must not modify them.
func (d *Dataset) Records() []domain.PopulationRecord { return d.records }

// Lookup returns the record for c.
func (d *Dataset) Lookup(c domain.Cell) (domain.PopulationRecord, bool) {
	i, ok := d.index[c]
	if !ok {
		return domain.PopulationRecord{}, false
	}
	return d.records[i], true
}

// CheckReadiness reports an error while the dataset holds no cells.
func (d *Dataset) CheckReadiness(_ context.Context) error {
	if len(d.records) == 0 {
		return errors.New("dataset has no cells loaded")
	}
	return nil
}

// QueryRadius resolves the circle to candidate cells, weights those present
// in the snapshot under policy and totals them.
func (d *Dataset) QueryRadius(q domain.RadiusQuery, policy coverage.Policy) (domain.RadiusResult, error) {
	start := time.Now()
	res, err := d.queryRadius(q, policy)
	outcome := "ok"
	switch {
	case errors.Is(err, domain.ErrInvalidRadius), errors.Is(err, domain.ErrInvalidCoordinate):
		outcome = "invalid"
	case err != nil:
		outcome = "error"
	}
	d.metrics.Queries.WithLabelValues(string(policy), outcome).Inc()
	if err != nil {
		return domain.RadiusResult{}, err
	}
	d.metrics.QueryDuration.Observe(time.Since(start).Seconds())
	d.metrics.QueryMatchedCells.Observe(float64(res.MatchedCells))
	return res, nil
}

func (d *Dataset) queryRadius(q domain.RadiusQuery, policy coverage.Policy) (domain.RadiusResult, error) {
	if d.maxRadiusKm > 0 && q.RadiusKm > d.maxRadiusKm {
		return domain.RadiusResult{}, fmt.Errorf("%w: %v km exceeds the %v km limit", domain.ErrInvalidRadius, q.RadiusKm, d.maxRadiusKm)
	}
	cand, err := d.resolver.Resolve(q.Center, q.RadiusKm)
	if err != nil {
		return domain.RadiusResult{}, err
	}

	present := make([]coverage.Cell, 0, len(cand.Cells))
	for _, c := range cand.Cells {
		if i, ok := d.index[c]; ok {
			present = append(present, d.cells[i])
		}
	}

	weights, skipped, err := d.weigher.Weigh(q, policy, present)
	if err != nil {
		return domain.RadiusResult{}, err
	}

	res := domain.RadiusResult{
		Query:        q,
		Resolution:   d.resolution,
		CenterCell:   cand.CenterCell,
		NominalRings: cand.NominalRings,
		Rings:        cand.Rings,
		Policy:       string(policy),
		Cells:        weights,
		Skipped:      skipped,
	}
	coverage.Summarize(&res)
	return res, nil
}
