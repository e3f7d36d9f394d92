// Command genmock writes a synthetic population snapshot and a matching
// signal snapshot around a center point, for local runs and demos. Signal
// strength falls off with distance from the center so every band is
// represented.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -lat 40.758 -lon -73.9855 -rings 12 \
//	  -pop-out data/us_hexes_res8.parquet \
//	  -signal-out data/signal/NY_US_hexes.parquet
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"

	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/snapshot"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
)

const (
	popResolution    = 8
	signalResolution = 9
)

type options struct {
	center    domain.Geo
	rings     int
	state     string
	seed      uint64
	popOut    string
	signalOut string
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var opts options
	flag.Float64Var(&opts.center.Lat, "lat", 40.758, "center latitude")
	flag.Float64Var(&opts.center.Lon, "lon", -73.9855, "center longitude")
	flag.IntVar(&opts.rings, "rings", 12, "population rings around the center cell")
	flag.StringVar(&opts.state, "state", "NY", "state label written on every population cell")
	flag.Uint64Var(&opts.seed, "seed", 42, "random seed")
	flag.StringVar(&opts.popOut, "pop-out", "", "output path for the population parquet")
	flag.StringVar(&opts.signalOut, "signal-out", "", "output path for the signal parquet")
	flag.Parse()

	if opts.popOut == "" || opts.signalOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -pop-out, -signal-out")
	}
	if opts.rings < 1 {
		return fmt.Errorf("-rings must be positive")
	}

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))

	pop, err := genPopulation(opts, rng)
	if err != nil {
		return fmt.Errorf("generating population: %w", err)
	}
	if err := snapshot.WritePopulation(opts.popOut, pop); err != nil {
		return err
	}
	log.Printf("wrote population: %s (%d cells)", opts.popOut, len(pop))

	signals, err := genSignals(opts, pop, rng)
	if err != nil {
		return fmt.Errorf("generating signals: %w", err)
	}
	if err := snapshot.WriteSignals(opts.signalOut, snapshot.DefaultSignalCellColumn, signals); err != nil {
		return err
	}
	log.Printf("wrote signals: %s (%d cells)", opts.signalOut, len(signals))

	printStats(pop, signals)
	return nil
}

// genPopulation builds a disk of coarse cells whose population decays away
// from the center.
func genPopulation(opts options, rng *rand.Rand) ([]domain.PopulationRecord, error) {
	origin, err := grid.CellAt(opts.center, popResolution)
	if err != nil {
		return nil, err
	}
	cells, err := grid.Disk(origin, opts.rings)
	if err != nil {
		return nil, err
	}

	out := make([]domain.PopulationRecord, 0, len(cells))
	for _, c := range cells {
		centroid, err := grid.Centroid(c)
		if err != nil {
			return nil, err
		}
		area, err := grid.AreaKm2(c)
		if err != nil {
			return nil, err
		}
		d := grid.DistanceKm(opts.center, centroid)
		people := math.Round(8000 * math.Exp(-d/5) * (0.5 + rng.Float64()))
		out = append(out, domain.PopulationRecord{
			Cell:        c,
			Population:  people,
			Density:     domain.DensityPerMi2(people, popResolution, area),
			Centroid:    centroid,
			PlaceLabels: domain.PlaceLabels{State: opts.state, Country: "US"},
		})
	}
	return out, nil
}

// genSignals builds fine cells under the population disk. Roughly one fine cell
// in ten is left out to mimic coverage gaps.
func genSignals(opts options, pop []domain.PopulationRecord, rng *rand.Rand) ([]domain.SignalRecord, error) {
	coarse := make(map[domain.Cell]struct{}, len(pop))
	for _, r := range pop {
		coarse[r.Cell] = struct{}{}
	}

	origin, err := grid.CellAt(opts.center, signalResolution)
	if err != nil {
		return nil, err
	}
	cells, err := grid.Disk(origin, opts.rings*3+2)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SignalRecord, 0, len(cells))
	for _, c := range cells {
		parent, err := grid.Parent(c, popResolution)
		if err != nil {
			return nil, err
		}
		if _, ok := coarse[parent]; !ok || rng.IntN(10) == 0 {
			continue
		}
		centroid, err := grid.Centroid(c)
		if err != nil {
			return nil, err
		}
		d := grid.DistanceKm(opts.center, centroid)
		dbm := -75 - 3*d + rng.NormFloat64()*4
		out = append(out, domain.SignalRecord{Cell: c, MinSignal: math.Round(dbm*10) / 10})
	}
	return out, nil
}

func printStats(pop []domain.PopulationRecord, signals []domain.SignalRecord) {
	var total float64
	for _, r := range pop {
		total += r.Population
	}
	counts := map[domain.Band]int{}
	for _, s := range signals {
		counts[domain.ClassifySignal(s.MinSignal)]++
	}

	fmt.Printf("Population cells: %d\n", len(pop))
	fmt.Printf("Total population: %.0f\n", total)
	fmt.Printf("Signal cells: %d\n", len(signals))
	for _, b := range domain.Bands {
		fmt.Printf("  %s: %d\n", b, counts[b])
	}
}
