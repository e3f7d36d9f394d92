package dataset

import (
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
)

// Filter narrows the snapshot for the dashboard search. Zero fields do not
// filter. County and City match case-insensitive substrings; State matches
// exactly, ignoring case.
type Filter struct {
	MinDensity *float64
	MaxDensity *float64
	State      string
	County     string
	City       string

	// Near keeps cells whose centroid lies within Near.RadiusKm of Near.Center.
	Near *domain.RadiusQuery

	Limit int
}

// SearchResult is a filtered page of records.
type SearchResult struct {
	Records         []domain.PopulationRecord
	Total           int
	TotalPopulation float64
}

// Search returns the records matching f, highest population first.
func (d *Dataset) Search(f Filter) (SearchResult, error) {
	if f.Near != nil {
		if err := f.Near.Validate(); err != nil {
			return SearchResult{}, err
		}
	}
	county := strings.ToLower(f.County)
	city := strings.ToLower(f.City)

	var out SearchResult
	for i, r := range d.records {
		if f.MinDensity != nil && r.Density < *f.MinDensity {
			continue
		}
		if f.MaxDensity != nil && r.Density > *f.MaxDensity {
			continue
		}
		if f.State != "" && !strings.EqualFold(r.State, f.State) {
			continue
		}
		if county != "" && !strings.Contains(strings.ToLower(r.County), county) {
			continue
		}
		if city != "" && !strings.Contains(strings.ToLower(r.City), city) {
			continue
		}
		if f.Near != nil && grid.DistanceKm(f.Near.Center, d.cells[i].Centroid) > f.Near.RadiusKm {
			continue
		}
		out.Records = append(out.Records, r)
		out.TotalPopulation += r.Population
	}
	out.Total = len(out.Records)

	sort.SliceStable(out.Records, func(i, j int) bool {
		return out.Records[i].Population > out.Records[j].Population
	})
	if f.Limit > 0 && len(out.Records) > f.Limit {
		out.Records = out.Records[:f.Limit]
	}
	return out, nil
}

// Boundary is a named region to intersect with the snapshot.
type Boundary struct {
	Name string
	// Shape is the region in web mercator, matching the dataset cells.
	Shape geom.Polygonal
	// Geo is the same region in WGS-84 longitude/latitude.
	Geo orb.MultiPolygon
}

// Match is a cell intersecting a boundary.
type Match struct {
	Record   domain.PopulationRecord
	Boundary string
}

// Intersecting returns every cell whose polygon intersects at least one
// boundary, once, sorted by cell. A cell is credited to the first boundary
// it meets.
func (d *Dataset) Intersecting(boundaries []Boundary) []Match {
	seen := make(map[int]struct{})
	var out []Match
	for _, b := range boundaries {
		if b.Shape == nil {
			continue
		}
		for _, hit := range d.tree.SearchIntersect(b.Shape.Bounds()) {
			ic, ok := hit.(*indexedCell)
			if !ok {
				continue
			}
			if _, dup := seen[ic.idx]; dup {
				continue
			}
			if !d.intersects(ic, b) {
				continue
			}
			seen[ic.idx] = struct{}{}
			out = append(out, Match{Record: d.records[ic.idx], Boundary: b.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Record.Cell < out[j].Record.Cell })
	d.logger.Info("boundary search complete", "boundaries", len(boundaries), "cells", len(out))
	return out
}

func (d *Dataset) intersects(ic *indexedCell, b Boundary) bool {
	c := d.cells[ic.idx].Centroid
	if len(b.Geo) > 0 && planar.MultiPolygonContains(b.Geo, orb.Point{c.Lon, c.Lat}) {
		return true
	}
	inter := ic.Polygon.Intersection(b.Shape)
	if inter == nil {
		return false
	}
	return inter.Area() > 0
}
