package main

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/hex-coverage-etl/internal/aggregate"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
)

func printRadiusSummaries(rows []csvfile.RadiusSummary) {
	fmt.Printf("%-28s %8s %8s %14s %14s %10s\n", "Location", "Radius", "Hexes", "Population", "Weighted", "Area km2")
	fmt.Println(strings.Repeat("-", 88))
	for _, r := range rows {
		res := r.Result
		fmt.Printf("%-28s %7.1fk %8d %14.0f %14.0f %10.1f\n",
			truncate(r.Location, 28), res.Query.RadiusKm, res.MatchedCells,
			res.TotalPopulation, res.WeightedPopulation, res.CoveredAreaKm2)
		if res.Skipped > 0 {
			fmt.Printf("  (%d cells skipped)\n", res.Skipped)
		}
	}
}

func printReport(r domain.CoverageReport) {
	fmt.Printf("\n%s (run %s)\n", r.Label, r.RunID)
	fmt.Printf("Signals read: %d, skipped: %d\n", r.SignalsRead, r.SignalsSkipped)
	printSummary(r.Summary)
}

func printSummary(s domain.BandSummary) {
	fmt.Printf("Joined cells: %d, population: %.0f\n", s.Cells, s.TotalPopulation)
	if s.NoData {
		fmt.Println("  no joined population")
		return
	}
	for _, b := range domain.Bands {
		t := s.Band(b)
		fmt.Printf("  %-6s %14.0f %6.2f%% (%d cells)\n", b, t.Population, t.Percent, t.Cells)
	}
}

func printGroups(groups []aggregate.Group) {
	fmt.Printf("%-24s %14s %8s %8s %8s\n", "Name", "Population", "great%", "good%", "poor%")
	fmt.Println(strings.Repeat("-", 66))
	for _, g := range groups {
		name := g.Name
		if g.State != "" && g.State != g.Name {
			name += ", " + g.State
		}
		s := g.Summary
		fmt.Printf("%-24s %14.0f %8.2f %8.2f %8.2f\n", truncate(name, 24), s.TotalPopulation,
			s.Band(domain.BandGreat).Percent, s.Band(domain.BandGood).Percent, s.Band(domain.BandPoor).Percent)
	}
}

func printWorst(records []domain.AggregatedRecord) {
	fmt.Printf("%-16s %12s %10s %-6s %s\n", "H3", "Population", "Signal", "Band", "Place")
	for _, r := range records {
		fmt.Printf("%-16s %12.0f %10.1f %-6s %s\n", r.Cell, r.Population, r.AvgSignal, r.Band, place(r.PlaceLabels))
	}
}

func printBoundarySummary(boundaries, hexes int, population float64) {
	fmt.Printf("Boundaries: %d\n", boundaries)
	fmt.Printf("Hexes: %d\n", hexes)
	fmt.Printf("Population: %.0f\n", population)
}

func place(p domain.PlaceLabels) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.City, p.County, p.State} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}
