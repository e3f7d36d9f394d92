package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/geobed"
	kafkaadapter "github.com/couchcryptid/hex-coverage-etl/internal/adapter/kafka"
	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/postgres"
	"github.com/couchcryptid/hex-coverage-etl/internal/adapter/snapshot"
	"github.com/couchcryptid/hex-coverage-etl/internal/aggregate"
	"github.com/couchcryptid/hex-coverage-etl/internal/config"
	"github.com/couchcryptid/hex-coverage-etl/internal/coverage"
	"github.com/couchcryptid/hex-coverage-etl/internal/dataset"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
	"github.com/couchcryptid/hex-coverage-etl/internal/pipeline"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	population string
	output     string
}

// app carries the configuration and ambient dependencies of one command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.population != "" {
		cfg.PopulationFile = flags.population
	}
	if flags.output != "" {
		cfg.OutputDir = flags.output
	}
	return &app{
		cfg:     cfg,
		logger:  observability.NewLogger(cfg),
		metrics: observability.NewMetrics(),
	}, nil
}

func (a *app) loadPopulation(ctx context.Context) ([]domain.PopulationRecord, error) {
	return snapshot.NewPopulationSource(a.cfg.PopulationFile, a.logger, a.metrics).ExtractPopulation(ctx)
}

func (a *app) loadDataset(ctx context.Context) (*dataset.Dataset, *coverage.Projector, error) {
	records, err := a.loadPopulation(ctx)
	if err != nil {
		return nil, nil, err
	}
	projector, err := coverage.NewProjector()
	if err != nil {
		return nil, nil, err
	}
	ds, err := dataset.New(records, a.cfg.PopResolution, projector, a.logger, a.metrics,
		dataset.WithMaxRadiusKm(a.cfg.MaxRadiusKm))
	if err != nil {
		return nil, nil, err
	}
	return ds, projector, nil
}

func (a *app) policy() (coverage.Policy, error) {
	return coverage.ParsePolicy(a.cfg.WeightingPolicy)
}

func (a *app) signalSource(path string) *snapshot.SignalSource {
	return snapshot.NewSignalSource(path, a.cfg.SignalCellColumn, a.logger, a.metrics)
}

// newPipeline wires the parquet report writer plus the optional Kafka and
// Postgres sinks. The returned func closes the sinks.
func (a *app) newPipeline(ctx context.Context, sinks bool) (*pipeline.Pipeline, func(), error) {
	agg, err := aggregate.New(a.cfg.PopResolution, a.logger, a.metrics)
	if err != nil {
		return nil, nil, err
	}

	loaders := []pipeline.ReportLoader{snapshot.NewReportWriter(a.cfg.OutputDir, a.logger, a.metrics)}
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				a.logger.Error("sink close error", "error", err)
			}
		}
	}

	if sinks && a.cfg.KafkaEnabled {
		w := kafkaadapter.NewWriter(a.cfg, a.metrics, a.logger)
		loaders = append(loaders, w)
		closers = append(closers, w.Close)
		a.logger.Info("kafka sink enabled", "topic", a.cfg.KafkaTopic)
	}
	if sinks && a.cfg.PostgresDSN != "" {
		s, err := postgres.Open(ctx, a.cfg.PostgresDSN, a.cfg.PostgresTable, a.metrics, a.logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, s.Close)
		if err := s.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		loaders = append(loaders, s)
		a.logger.Info("postgres sink enabled", "table", a.cfg.PostgresTable)
	}

	return pipeline.New(agg, loaders, a.logger, a.metrics), closeAll, nil
}

// labeler returns the configured place labeller, or nil when labelling is off.
func (a *app) labeler() (domain.Labeler, error) {
	switch a.cfg.Labeler {
	case config.LabelerMapbox:
		client := mapbox.NewClient(a.cfg.MapboxToken, a.cfg.MapboxTimeout, a.metrics, a.logger)
		a.logger.Info("mapbox labelling enabled", "cache_size", a.cfg.MapboxCacheSize, "timeout", a.cfg.MapboxTimeout)
		return mapbox.NewCachedLabeler(client, a.cfg.MapboxCacheSize, a.metrics), nil
	case config.LabelerGeobed:
		l, err := geobed.New(a.cfg.GeobedDataDir, a.cfg.GeobedCacheDir, a.metrics, a.logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		a.logger.Info("place labelling disabled")
		return nil, nil
	}
}
