// Package grid adapts the H3 hexagonal grid to the domain cell type. It is the
// only package that talks to the grid library directly.
package grid

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/uber/h3-go/v4"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
)

// Supported resolution range.
const (
	MinResolution = 0
	MaxResolution = 15
)

// CheckResolution returns an UnsupportedResolutionError outside the supported range.
func CheckResolution(res int) error {
	if res < MinResolution || res > MaxResolution {
		return &domain.UnsupportedResolutionError{
			Resolution: res,
			Reason:     fmt.Sprintf("must be between %d and %d", MinResolution, MaxResolution),
		}
	}
	return nil
}

// ParseCell decodes a hexadecimal cell token (an optional 0x prefix is
// accepted) and checks that it names a real cell.
func ParseCell(token string) (domain.Cell, error) {
	s := strings.ToLower(strings.TrimSpace(token))
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, &domain.InvalidCellError{Token: token, Reason: "empty"}
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, &domain.InvalidCellError{Token: token, Reason: "not a hexadecimal index"}
	}
	c := domain.Cell(v)
	if err := Validate(c); err != nil {
		return 0, &domain.InvalidCellError{Token: token, Reason: "not a valid cell index"}
	}
	return c, nil
}

// FromInt converts an integer-encoded cell, as some snapshots store it.
func FromInt(v int64) (domain.Cell, error) {
	c := domain.Cell(uint64(v))
	if err := Validate(c); err != nil {
		return 0, err
	}
	return c, nil
}

// Validate reports whether c is a valid cell index.
func Validate(c domain.Cell) error {
	if c == 0 || !toH3(c).IsValid() {
		return &domain.InvalidCellError{Token: c.String(), Reason: "not a valid cell index"}
	}
	return nil
}

// Resolution returns the resolution encoded in c.
func Resolution(c domain.Cell) int {
	return toH3(c).Resolution()
}

// CellAt returns the unique cell at res containing the coordinate.
func CellAt(g domain.Geo, res int) (domain.Cell, error) {
	if err := domain.ValidateGeo(g); err != nil {
		return 0, err
	}
	if err := CheckResolution(res); err != nil {
		return 0, err
	}
	c, err := h3.LatLngToCell(h3.NewLatLng(g.Lat, g.Lon), res)
	if err != nil {
		return 0, fmt.Errorf("locate cell at %v,%v res %d: %w", g.Lat, g.Lon, res, err)
	}
	return fromH3(c), nil
}

// Parent returns the ancestor of c at the coarser resolution res. Asking for
// the cell's own resolution returns c unchanged.
func Parent(c domain.Cell, res int) (domain.Cell, error) {
	if err := Validate(c); err != nil {
		return 0, err
	}
	if err := CheckResolution(res); err != nil {
		return 0, err
	}
	own := Resolution(c)
	if res > own {
		return 0, &domain.UnsupportedResolutionError{
			Resolution: res,
			Reason:     fmt.Sprintf("finer than cell resolution %d", own),
		}
	}
	if res == own {
		return c, nil
	}
	p, err := toH3(c).Parent(res)
	if err != nil {
		return 0, fmt.Errorf("parent of %s at res %d: %w", c, res, err)
	}
	return fromH3(p), nil
}

// Disk returns every cell within k grid steps of c, c included, sorted and
// without duplicates.
func Disk(c domain.Cell, k int) ([]domain.Cell, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, fmt.Errorf("grid disk of %s: negative k %d", c, k)
	}
	cells, err := h3.GridDisk(toH3(c), k)
	if err != nil {
		return nil, fmt.Errorf("grid disk of %s k=%d: %w", c, k, err)
	}
	return normalize(cells), nil
}

// Ring returns the cells exactly k steps from c. Ring 0 is c itself.
func Ring(c domain.Cell, k int) ([]domain.Cell, error) {
	outer, err := Disk(c, k)
	if err != nil {
		return nil, err
	}
	if k == 0 {
		return outer, nil
	}
	inner, err := Disk(c, k-1)
	if err != nil {
		return nil, err
	}
	seen := make(map[domain.Cell]struct{}, len(inner))
	for _, x := range inner {
		seen[x] = struct{}{}
	}
	ring := make([]domain.Cell, 0, len(outer)-len(inner))
	for _, x := range outer {
		if _, ok := seen[x]; !ok {
			ring = append(ring, x)
		}
	}
	return ring, nil
}

// Boundary returns the cell's polygon vertices in counter-clockwise order,
// not closed.
func Boundary(c domain.Cell) ([]domain.Geo, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}
	b, err := h3.CellToBoundary(toH3(c))
	if err != nil {
		return nil, fmt.Errorf("boundary of %s: %w", c, err)
	}
	out := make([]domain.Geo, len(b))
	for i, ll := range b {
		out[i] = domain.Geo{Lat: ll.Lat, Lon: ll.Lng}
	}
	return out, nil
}

// Centroid returns the cell's center point.
func Centroid(c domain.Cell) (domain.Geo, error) {
	if err := Validate(c); err != nil {
		return domain.Geo{}, err
	}
	ll, err := h3.CellToLatLng(toH3(c))
	if err != nil {
		return domain.Geo{}, fmt.Errorf("centroid of %s: %w", c, err)
	}
	return domain.Geo{Lat: ll.Lat, Lon: ll.Lng}, nil
}

// AreaKm2 returns the exact spherical area of the cell.
func AreaKm2(c domain.Cell) (float64, error) {
	if err := Validate(c); err != nil {
		return 0, err
	}
	a, err := h3.CellAreaKm2(toH3(c))
	if err != nil {
		return 0, fmt.Errorf("area of %s: %w", c, err)
	}
	return a, nil
}

func toH3(c domain.Cell) h3.Cell { return h3.Cell(int64(c)) }

func fromH3(c h3.Cell) domain.Cell { return domain.Cell(uint64(c)) }

// normalize drops the zero placeholders the grid library may emit near
// pentagons, then sorts and deduplicates.
func normalize(cells []h3.Cell) []domain.Cell {
	out := make([]domain.Cell, 0, len(cells))
	for _, c := range cells {
		if c == 0 {
			continue
		}
		out = append(out, fromH3(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, c := range out {
		if i > 0 && c == out[n-1] {
			continue
		}
		out[n] = c
		n++
	}
	return out[:n]
}
