package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/snapshot"
	"github.com/couchcryptid/hex-coverage-etl/internal/aggregate"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/pipeline"
)

func aggregateCmd(flags *globalFlags) *cobra.Command {
	var (
		label   string
		groupBy string
	)

	cmd := &cobra.Command{
		Use:   "aggregate [signal-file...]",
		Short: "Join signal snapshots with population and report coverage bands",
		Long: "Rolls each signal snapshot up to the population resolution, joins it with the\n" +
			"population snapshot and writes the joined cells. Without arguments every file\n" +
			"matching SIGNAL_GLOB is aggregated.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			key, err := aggregate.ParseGroupKey(groupBy)
			if err != nil {
				return err
			}
			sources, err := a.sources(args)
			if err != nil {
				return err
			}
			if label != "" && len(sources) != 1 {
				return fmt.Errorf("--label needs exactly one signal file, got %d", len(sources))
			}
			return runAggregate(cmd.Context(), a, label, key, sources)
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "report label (defaults to the signal file name)")
	cmd.Flags().StringVar(&groupBy, "group-by", string(aggregate.ByState), "summary grouping: state, county or city")
	return cmd
}

// sources opens the given signal files, or SIGNAL_GLOB when none are given.
func (a *app) sources(paths []string) ([]pipeline.SignalExtractor, error) {
	if len(paths) == 0 {
		srcs, err := snapshot.GlobSignalSources(a.cfg.SignalGlob, a.cfg.SignalCellColumn, a.logger, a.metrics)
		if err != nil {
			return nil, err
		}
		if len(srcs) == 0 {
			return nil, fmt.Errorf("no signal snapshots match %q", a.cfg.SignalGlob)
		}
		out := make([]pipeline.SignalExtractor, len(srcs))
		for i, s := range srcs {
			out[i] = s
		}
		return out, nil
	}
	out := make([]pipeline.SignalExtractor, len(paths))
	for i, p := range paths {
		out[i] = a.signalSource(p)
	}
	return out, nil
}

func runAggregate(ctx context.Context, a *app, label string, key aggregate.GroupKey, sources []pipeline.SignalExtractor) error {
	population, err := a.loadPopulation(ctx)
	if err != nil {
		return err
	}
	p, closeSinks, err := a.newPipeline(ctx, true)
	if err != nil {
		return err
	}
	defer closeSinks()

	var reports []domain.CoverageReport
	if label != "" {
		r, err := p.Run(ctx, label, population, sources[0])
		if err != nil {
			return err
		}
		reports = append(reports, r)
	} else if reports, err = p.RunAll(ctx, population, sources); err != nil {
		return err
	}

	for _, r := range reports {
		printReport(r)
		groups := aggregate.GroupBy(r.Records, key)
		path := filepath.Join(a.cfg.OutputDir, fmt.Sprintf("%s_by_%s.csv", r.Label, key))
		if err := csvfile.WriteGroups(path, groups); err != nil {
			return err
		}
	}
	return nil
}

func statesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "states [signal-dir]",
		Short: "Band report for every *_US_hexes.parquet state snapshot in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			a.cfg.SignalGlob = filepath.Join(args[0], "*_US_hexes.parquet")
			sources, err := a.sources(nil)
			if err != nil {
				return err
			}
			return runStates(cmd.Context(), a, sources)
		},
	}
}

func runStates(ctx context.Context, a *app, sources []pipeline.SignalExtractor) error {
	population, err := a.loadPopulation(ctx)
	if err != nil {
		return err
	}
	p, closeSinks, err := a.newPipeline(ctx, false)
	if err != nil {
		return err
	}
	defer closeSinks()

	reports, err := p.RunAll(ctx, population, sources)
	if err != nil {
		return err
	}
	if len(reports) < len(sources) {
		a.logger.Warn("some state snapshots failed", "succeeded", len(reports), "total", len(sources))
	}

	groups := make([]aggregate.Group, len(reports))
	for i, r := range reports {
		groups[i] = aggregate.Group{Name: r.Label, Summary: r.Summary}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	path := filepath.Join(a.cfg.OutputDir, "state_band_summary.csv")
	if err := csvfile.WriteGroups(path, groups); err != nil {
		return err
	}
	printGroups(groups)
	a.logger.Info("state report written", "path", path, "states", len(groups))
	return nil
}

func worstCmd(flags *globalFlags) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "worst [signal-file]",
		Short: "List the populated hexes with the weakest average signal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			population, err := a.loadPopulation(cmd.Context())
			if err != nil {
				return err
			}
			agg, err := aggregate.New(a.cfg.PopResolution, a.logger, a.metrics)
			if err != nil {
				return err
			}
			report, err := pipeline.New(agg, nil, a.logger, a.metrics).Run(cmd.Context(), "", population, a.signalSource(args[0]))
			if err != nil {
				return err
			}
			printWorst(aggregate.Worst(report.Records, n))
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "count", "n", 20, "number of hexes to list")
	return cmd
}
