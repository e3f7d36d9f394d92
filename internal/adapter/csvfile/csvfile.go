// Package csvfile writes the summary tables produced by the batch commands.
package csvfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/hex-coverage-etl/internal/aggregate"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
)

// Write creates path with a header row followed by rows.
func Write(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func num(v float64, prec int) string { return strconv.FormatFloat(v, 'f', prec, 64) }

// RadiusSummary is one row of the radius batch report.
type RadiusSummary struct {
	Location string
	Result   domain.RadiusResult
}

// WriteRadiusSummaries writes one row per queried location.
func WriteRadiusSummaries(path string, rows []RadiusSummary) error {
	header := []string{
		"location", "lat", "lon", "radius_km", "resolution", "rings", "hexes_found",
		"total_population", "weighted_population", "avg_population",
		"total_area_km2", "covered_area_km2", "avg_distance_km", "max_distance_km",
	}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		res := r.Result
		out = append(out, []string{
			r.Location,
			num(res.Query.Center.Lat, 6), num(res.Query.Center.Lon, 6), num(res.Query.RadiusKm, 3),
			strconv.Itoa(res.Resolution), strconv.Itoa(res.Rings), strconv.Itoa(res.MatchedCells),
			num(res.TotalPopulation, 0), num(res.WeightedPopulation, 0), num(res.AvgPopulation, 2),
			num(res.TotalAreaKm2, 3), num(res.CoveredAreaKm2, 3), num(res.AvgDistanceKm, 3), num(res.MaxDistanceKm, 3),
		})
	}
	return Write(path, header, out)
}

// WriteLocations writes distinct places with the label of their name column.
func WriteLocations(path, nameColumn string, locs []aggregate.Location) error {
	out := make([][]string, 0, len(locs))
	for _, l := range locs {
		out = append(out, []string{l.Name, l.State, strconv.Itoa(l.Cells)})
	}
	return Write(path, []string{nameColumn, "state", "hexes"}, out)
}

// WriteGroups writes a banded summary per group.
func WriteGroups(path string, groups []aggregate.Group) error {
	header := []string{"name", "state", "cells", "total_population"}
	for _, b := range domain.Bands {
		header = append(header, string(b)+"_population", string(b)+"_percent")
	}
	header = append(header, "no_data")

	out := make([][]string, 0, len(groups))
	for _, g := range groups {
		row := []string{g.Name, g.State, strconv.Itoa(g.Summary.Cells), num(g.Summary.TotalPopulation, 0)}
		for _, b := range domain.Bands {
			t := g.Summary.Band(b)
			row = append(row, num(t.Population, 0), num(t.Percent, 2))
		}
		row = append(row, strconv.FormatBool(g.Summary.NoData))
		out = append(out, row)
	}
	return Write(path, header, out)
}
