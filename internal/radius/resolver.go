// Package radius resolves a (center, radius) query to a conservative set of
// candidate grid cells.
package radius

import (
	"fmt"
	"math"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
)

// Candidates is the resolved cell set for one query.
type Candidates struct {
	Center     domain.Geo
	RadiusKm   float64
	Resolution int
	CenterCell domain.Cell

	// NominalRings is ceil(radius / apothem), the ring count the grid
	// geometry suggests. Rings is the count actually searched after the
	// guard expansion and is never smaller.
	NominalRings int
	Rings        int

	Cells []domain.Cell
}

// Set returns the candidate cells as a lookup set.
func (c Candidates) Set() map[domain.Cell]struct{} {
	s := make(map[domain.Cell]struct{}, len(c.Cells))
	for _, x := range c.Cells {
		s[x] = struct{}{}
	}
	return s
}

// Resolver turns radius queries into candidate cell sets at one resolution.
type Resolver struct {
	resolution int
}

// NewResolver returns a resolver for res.
func NewResolver(res int) (*Resolver, error) {
	if err := grid.CheckResolution(res); err != nil {
		return nil, err
	}
	return &Resolver{resolution: res}, nil
}

// Resolution returns the resolution the resolver works at.
func (r *Resolver) Resolution() int { return r.resolution }

// RingCount returns ceil(radiusKm / apothem(res)). Any positive radius gets
// at least one ring so neighbors whose edge is within reach are never lost to
// a zero ring count.
func RingCount(radiusKm float64, res int) int {
	if radiusKm <= 0 {
		return 0
	}
	k := int(math.Ceil(radiusKm / grid.ApothemKm(res)))
	if k < 1 {
		k = 1
	}
	return k
}

// maxRings caps the guard expansion for a nominal ring count.
func maxRings(nominal int) int { return 3*nominal + 3 }

// Resolve returns every cell that could intersect the circle of radiusKm
// around center. The set always contains the center cell and is a superset
// of the cells truly within the radius: rings are added until a whole ring
// lies outside the circle. Cells farther than radius plus one apothem from
// the center are dropped.
func (r *Resolver) Resolve(center domain.Geo, radiusKm float64) (Candidates, error) {
	q := domain.RadiusQuery{Center: center, RadiusKm: radiusKm}
	if err := q.Validate(); err != nil {
		return Candidates{}, err
	}

	origin, err := grid.CellAt(center, r.resolution)
	if err != nil {
		return Candidates{}, err
	}

	out := Candidates{
		Center:     center,
		RadiusKm:   radiusKm,
		Resolution: r.resolution,
		CenterCell: origin,
	}
	if radiusKm == 0 {
		out.Cells = []domain.Cell{origin}
		return out, nil
	}

	nominal := RingCount(radiusKm, r.resolution)
	k := nominal
	for k < maxRings(nominal) {
		reached, err := ringWithin(origin, k+1, center, radiusKm)
		if err != nil {
			return Candidates{}, err
		}
		if !reached {
			break
		}
		k++
	}
	out.NominalRings = nominal
	out.Rings = k

	disk, err := grid.Disk(origin, k)
	if err != nil {
		return Candidates{}, fmt.Errorf("resolve radius: %w", err)
	}

	limit := radiusKm + grid.ApothemKm(r.resolution)
	out.Cells = make([]domain.Cell, 0, len(disk))
	for _, c := range disk {
		if c == origin {
			out.Cells = append(out.Cells, c)
			continue
		}
		d, err := grid.DistanceToCellKm(center, c)
		if err != nil {
			return Candidates{}, fmt.Errorf("resolve radius: %w", err)
		}
		if d <= limit {
			out.Cells = append(out.Cells, c)
		}
	}
	return out, nil
}

// ringWithin reports whether any cell of ring k touches the circle.
func ringWithin(origin domain.Cell, k int, center domain.Geo, radiusKm float64) (bool, error) {
	ring, err := grid.Ring(origin, k)
	if err != nil {
		return false, fmt.Errorf("resolve radius: %w", err)
	}
	for _, c := range ring {
		d, err := grid.DistanceToCellKm(center, c)
		if err != nil {
			return false, fmt.Errorf("resolve radius: %w", err)
		}
		if d <= radiusKm {
			return true, nil
		}
	}
	return false, nil
}
