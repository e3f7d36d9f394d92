package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/snapshot"
	"github.com/couchcryptid/hex-coverage-etl/internal/aggregate"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
)

func enrichCmd(flags *globalFlags) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Add centroids, density and place labels to the population snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(a.cfg.OutputDir, "enriched_hexes.parquet")
			}
			return runEnrich(cmd.Context(), a, out)
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "output parquet (default OUTPUT_DIR/enriched_hexes.parquet)")
	return cmd
}

func runEnrich(ctx context.Context, a *app, out string) error {
	records, err := a.loadPopulation(ctx)
	if err != nil {
		return err
	}
	labeler, err := a.labeler()
	if err != nil {
		return err
	}

	enriched := make([]domain.PopulationRecord, 0, len(records))
	labelled := 0
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		centroid, err := grid.Centroid(rec.Cell)
		if err != nil {
			a.logger.Warn("invalid cell, skipping", "cell", rec.Cell.String(), "error", err)
			a.metrics.CellsSkipped.WithLabelValues("enrich").Inc()
			continue
		}
		area, err := grid.AreaKm2(rec.Cell)
		if err != nil {
			a.logger.Warn("invalid cell, skipping", "cell", rec.Cell.String(), "error", err)
			a.metrics.CellsSkipped.WithLabelValues("enrich").Inc()
			continue
		}

		e, ok := domain.EnrichRecord(ctx, rec, centroid, grid.Resolution(rec.Cell), area, labeler, a.logger)
		if ok {
			labelled++
		}
		enriched = append(enriched, e)
		if (i+1)%10000 == 0 {
			a.logger.Info("enrich progress", "done", i+1, "total", len(records), "labelled", labelled)
		}
	}

	if err := snapshot.WritePopulation(out, enriched); err != nil {
		return err
	}
	a.logger.Info("enriched snapshot written", "path", out, "records", len(enriched), "labelled", labelled)
	return nil
}

func locationsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "locations",
		Short: "Write the distinct cities and counties of the population snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			records, err := a.loadPopulation(cmd.Context())
			if err != nil {
				return err
			}
			cities, counties := aggregate.UniqueLocations(records)
			if err := csvfile.WriteLocations(filepath.Join(a.cfg.OutputDir, "unique_cities.csv"), "city", cities); err != nil {
				return err
			}
			if err := csvfile.WriteLocations(filepath.Join(a.cfg.OutputDir, "unique_counties.csv"), "county", counties); err != nil {
				return err
			}
			a.logger.Info("locations written", "cities", len(cities), "counties", len(counties))
			return nil
		},
	}
}
