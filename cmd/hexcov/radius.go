package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/snapshot"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
)

// location is one named point of a radius batch.
type location struct {
	Name     string  `yaml:"name"`
	Lat      float64 `yaml:"lat"`
	Lon      float64 `yaml:"lon"`
	RadiusKm float64 `yaml:"radius_km"`
}

// locationFile is the YAML layout of a radius batch. A location without its
// own radius uses the file default.
type locationFile struct {
	RadiusKm  float64    `yaml:"radius_km"`
	Locations []location `yaml:"locations"`
}

func loadLocations(path string) ([]location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations: %w", err)
	}
	var f locationFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse locations %s: %w", path, err)
	}
	if len(f.Locations) == 0 {
		return nil, fmt.Errorf("%s lists no locations", path)
	}
	for i := range f.Locations {
		if f.Locations[i].RadiusKm == 0 {
			f.Locations[i].RadiusKm = f.RadiusKm
		}
		if f.Locations[i].Name == "" {
			f.Locations[i].Name = fmt.Sprintf("location %d", i+1)
		}
	}
	return f.Locations, nil
}

// slug turns a location name into a file name stem.
func slug(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func radiusCmd(flags *globalFlags) *cobra.Command {
	var (
		file   string
		single location
	)

	cmd := &cobra.Command{
		Use:   "radius",
		Short: "Report the population within a radius of one or more locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var locs []location
			switch {
			case file != "":
				var err error
				if locs, err = loadLocations(file); err != nil {
					return err
				}
			case cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon"):
				if single.Name == "" {
					single.Name = fmt.Sprintf("%.4f,%.4f", single.Lat, single.Lon)
				}
				locs = []location{single}
			default:
				return errors.New("either --locations or --lat and --lon are required")
			}

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			return runRadius(cmd.Context(), a, locs)
		},
	}

	cmd.Flags().StringVar(&file, "locations", "", "YAML file of named locations")
	cmd.Flags().Float64Var(&single.Lat, "lat", 0, "latitude of a single location")
	cmd.Flags().Float64Var(&single.Lon, "lon", 0, "longitude of a single location")
	cmd.Flags().Float64Var(&single.RadiusKm, "radius", 6, "radius in kilometres")
	cmd.Flags().StringVar(&single.Name, "name", "", "name of a single location")
	return cmd
}

func runRadius(ctx context.Context, a *app, locs []location) error {
	policy, err := a.policy()
	if err != nil {
		return err
	}
	ds, _, err := a.loadDataset(ctx)
	if err != nil {
		return err
	}

	dir := filepath.Join(a.cfg.OutputDir, "radius")
	rows := make([]csvfile.RadiusSummary, 0, len(locs))
	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return err
		}
		q := domain.RadiusQuery{Center: domain.Geo{Lat: loc.Lat, Lon: loc.Lon}, RadiusKm: loc.RadiusKm}
		res, err := ds.QueryRadius(q, policy)
		if err != nil {
			return fmt.Errorf("%s: %w", loc.Name, err)
		}
		if err := snapshot.WriteCellWeights(filepath.Join(dir, slug(loc.Name)+"_hexes.parquet"), res.Cells); err != nil {
			return fmt.Errorf("%s: %w", loc.Name, err)
		}
		rows = append(rows, csvfile.RadiusSummary{Location: loc.Name, Result: res})
	}

	summaryPath := filepath.Join(dir, "radius_summary.csv")
	if err := csvfile.WriteRadiusSummaries(summaryPath, rows); err != nil {
		return err
	}
	printRadiusSummaries(rows)
	a.logger.Info("radius report written", "path", summaryPath, "locations", len(rows))
	return nil
}
