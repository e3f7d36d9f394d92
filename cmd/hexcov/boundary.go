package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/boundary"
	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/snapshot"
	"github.com/couchcryptid/hex-coverage-etl/internal/dataset"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
)

type boundaryOptions struct {
	shapefile string
	geojson   string
	stateFP   string
	name      string
	out       string
}

func boundaryCmd(flags *globalFlags) *cobra.Command {
	var opts boundaryOptions

	cmd := &cobra.Command{
		Use:   "boundary",
		Short: "Extract the hexes intersecting a shapefile or GeoJSON boundary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (opts.shapefile == "") == (opts.geojson == "") {
				return errors.New("exactly one of --shapefile or --geojson is required")
			}
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			return runBoundary(cmd.Context(), a, opts)
		},
	}

	cmd.Flags().StringVar(&opts.shapefile, "shapefile", "", "boundary shapefile (.shp)")
	cmd.Flags().StringVar(&opts.geojson, "geojson", "", "boundary GeoJSON FeatureCollection")
	cmd.Flags().StringVar(&opts.stateFP, "statefp", "", "keep shapefile records with this STATEFP")
	cmd.Flags().StringVar(&opts.name, "name", "", "keep boundaries with this NAME")
	cmd.Flags().StringVar(&opts.out, "out", "boundary", "output file stem")
	return cmd
}

func runBoundary(ctx context.Context, a *app, opts boundaryOptions) error {
	ds, projector, err := a.loadDataset(ctx)
	if err != nil {
		return err
	}

	var bounds []dataset.Boundary
	if opts.shapefile != "" {
		filter := boundary.ShapefileFilter{StateFP: opts.stateFP, Name: opts.name}
		bounds, err = boundary.ReadShapefile(opts.shapefile, filter, projector, a.logger, a.metrics)
	} else {
		bounds, err = boundary.ReadGeoJSON(opts.geojson, opts.name, projector, a.logger, a.metrics)
	}
	if err != nil {
		return err
	}
	if len(bounds) == 0 {
		return errors.New("no boundary matched the filters")
	}

	matches := ds.Intersecting(bounds)
	records := make([]domain.PopulationRecord, len(matches))
	var total float64
	for i, m := range matches {
		records[i] = m.Record
		total += m.Record.Population
	}

	stem := filepath.Join(a.cfg.OutputDir, slug(opts.out))
	if err := snapshot.WritePopulation(stem+"_hexes.parquet", records); err != nil {
		return err
	}
	if err := boundary.WriteCellsGeoJSON(stem+"_hexes.geojson", matches); err != nil {
		return err
	}

	printBoundarySummary(len(bounds), len(matches), total)
	a.logger.Info("boundary hexes written", "path", stem+"_hexes.parquet", "hexes", len(matches))
	return nil
}
