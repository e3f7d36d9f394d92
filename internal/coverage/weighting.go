// Package coverage weights candidate cells by how much of each lies inside a
// query circle and totals the population they carry.
package coverage

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

// Policy selects how a candidate cell's population is counted.
type Policy string

const (
	// PolicyAreaWeighted counts the share of the cell's area inside the circle.
	PolicyAreaWeighted Policy = "area"
	// PolicyBinary counts every candidate cell in full.
	PolicyBinary Policy = "binary"
)

// ParsePolicy accepts "area" (also "area-weighted", "weighted") or "binary".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "area", "area-weighted", "weighted":
		return PolicyAreaWeighted, nil
	case "binary", "full":
		return PolicyBinary, nil
	default:
		return "", fmt.Errorf("unknown weighting policy %q", s)
	}
}

// Cell is a dataset cell prepared for weighting.
type Cell struct {
	ID         domain.Cell
	Population float64
	Centroid   domain.Geo
	Shape      geom.Polygon // web mercator meters
	AreaKm2    float64
}

// Weigher applies a weighting policy to candidate cells.
type Weigher struct {
	projector *Projector
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewWeigher creates a Weigher. The projector must be the one the cell
// shapes were projected with.
func NewWeigher(projector *Projector, logger *slog.Logger, metrics *observability.Metrics) *Weigher {
	return &Weigher{projector: projector, logger: logger, metrics: metrics}
}

// Weigh returns the weighted cells sorted by centroid distance, and the number
// of cells skipped because their geometry could not be weighted. Cells with a
// zero fraction are left out. An empty result is not an error.
func (w *Weigher) Weigh(q domain.RadiusQuery, policy Policy, cells []Cell) ([]domain.CellWeight, int, error) {
	if err := q.Validate(); err != nil {
		return nil, 0, err
	}

	var fraction func(Cell) (float64, error)
	switch policy {
	case PolicyBinary:
		fraction = func(Cell) (float64, error) { return 1, nil }
	case PolicyAreaWeighted:
		if q.RadiusKm == 0 || len(cells) == 0 {
			return []domain.CellWeight{}, 0, nil
		}
		center, err := w.projector.Point(q.Center)
		if err != nil {
			return nil, 0, fmt.Errorf("weigh cells: %w", err)
		}
		circle := Circle(center, q.RadiusKm*1000*ScaleFactor(q.Center.Lat))
		circleBounds := circle.Bounds()
		fraction = func(c Cell) (float64, error) {
			return areaFraction(alignX(c.Shape, center.X), circle, circleBounds)
		}
	default:
		return nil, 0, fmt.Errorf("weigh cells: unknown policy %q", policy)
	}

	out := make([]domain.CellWeight, 0, len(cells))
	skipped := 0
	for _, c := range cells {
		f, err := fraction(c)
		if err != nil {
			w.logger.Warn("cell weighting failed, skipping cell",
				"cell", c.ID.String(),
				"error", err,
			)
			w.metrics.CellsSkipped.WithLabelValues("weighting").Inc()
			skipped++
			continue
		}
		if f <= 0 {
			continue
		}
		out = append(out, domain.CellWeight{
			Cell:               c.ID,
			Fraction:           f,
			Population:         c.Population,
			WeightedPopulation: c.Population * f,
			DistanceKm:         grid.DistanceKm(q.Center, c.Centroid),
			AreaKm2:            c.AreaKm2,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Cell < out[j].Cell
	})
	return out, skipped, nil
}

func areaFraction(shape geom.Polygon, circle geom.Polygon, circleBounds *geom.Bounds) (float64, error) {
	if len(shape) == 0 || len(shape[0]) < 4 {
		return 0, fmt.Errorf("degenerate polygon")
	}
	cellArea := math.Abs(shape.Area())
	if !(cellArea > 0) || math.IsInf(cellArea, 0) {
		return 0, fmt.Errorf("invalid cell area %v", cellArea)
	}
	if !circleBounds.Overlaps(shape.Bounds()) {
		return 0, nil
	}
	inter := shape.Intersection(circle)
	if inter == nil {
		return 0, nil
	}
	a := math.Abs(inter.Area())
	if math.IsNaN(a) {
		return 0, fmt.Errorf("invalid intersection area")
	}
	f := a / cellArea
	if f > 1 {
		f = 1
	}
	return f, nil
}

// Summarize fills the totals of res from res.Cells.
func Summarize(res *domain.RadiusResult) {
	n := len(res.Cells)
	res.MatchedCells = n
	if n == 0 {
		res.TotalPopulation, res.WeightedPopulation, res.AvgPopulation = 0, 0, 0
		res.TotalAreaKm2, res.CoveredAreaKm2 = 0, 0
		res.AvgDistanceKm, res.MaxDistanceKm = 0, 0
		return
	}

	pop := make([]float64, n)
	weighted := make([]float64, n)
	area := make([]float64, n)
	covered := make([]float64, n)
	dist := make([]float64, n)
	for i, c := range res.Cells {
		pop[i] = c.Population
		weighted[i] = c.WeightedPopulation
		area[i] = c.AreaKm2
		covered[i] = c.AreaKm2 * c.Fraction
		dist[i] = c.DistanceKm
	}

	res.TotalPopulation = floats.Sum(pop)
	res.WeightedPopulation = floats.Sum(weighted)
	res.AvgPopulation = stat.Mean(pop, nil)
	res.TotalAreaKm2 = floats.Sum(area)
	res.CoveredAreaKm2 = floats.Sum(covered)
	res.AvgDistanceKm = stat.Mean(dist, nil)
	res.MaxDistanceKm = floats.Max(dist)
}
