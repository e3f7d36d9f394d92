package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Labeler names.
const (
	LabelerNone   = "none"
	LabelerGeobed = "geobed"
	LabelerMapbox = "mapbox"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Snapshot inputs and outputs.
	PopulationFile   string
	SignalGlob       string
	SignalCellColumn string
	OutputDir        string
	PopResolution    int
	SignalResolution int
	WeightingPolicy  string

	// MaxRadiusKm bounds every radius query.
	MaxRadiusKm float64

	// Optional Kafka sink for aggregated records.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaTopic         string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Optional Postgres sink; disabled when PostgresDSN is empty.
	PostgresDSN   string
	PostgresTable string

	// Place labelling for enrich.
	Labeler         string
	MapboxToken     string
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	GeobedDataDir   string
	GeobedCacheDir  string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s"))
	if err != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	popRes, err := parseResolution("POP_RESOLUTION", 8)
	if err != nil {
		return nil, err
	}
	sigRes, err := parseResolution("SIGNAL_RESOLUTION", 9)
	if err != nil {
		return nil, err
	}

	maxRadius, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("MAX_RADIUS_KM", "100"), 64)
	if err != nil || !(maxRadius > 0) || math.IsInf(maxRadius, 0) {
		return nil, errors.New("invalid MAX_RADIUS_KM: must be a positive number")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		PopulationFile:   sharedcfg.EnvOrDefault("POPULATION_FILE", "data/us_hexes_res8.parquet"),
		SignalGlob:       sharedcfg.EnvOrDefault("SIGNAL_GLOB", "data/signal/*.parquet"),
		SignalCellColumn: sharedcfg.EnvOrDefault("SIGNAL_CELL_COLUMN", "h3_res9_id"),
		OutputDir:        sharedcfg.EnvOrDefault("OUTPUT_DIR", "output"),
		PopResolution:    popRes,
		SignalResolution: sigRes,
		WeightingPolicy:  strings.ToLower(sharedcfg.EnvOrDefault("WEIGHTING_POLICY", "area")),
		MaxRadiusKm:      maxRadius,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         sharedcfg.EnvOrDefault("KAFKA_TOPIC", "hex-coverage"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		PostgresTable: sharedcfg.EnvOrDefault("POSTGRES_TABLE", "hex_coverage"),

		Labeler:         strings.ToLower(sharedcfg.EnvOrDefault("LABELER", LabelerGeobed)),
		MapboxToken:     os.Getenv("MAPBOX_TOKEN"),
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parsePositive("MAPBOX_CACHE_SIZE", 1000),
		GeobedDataDir:   os.Getenv("GEOBED_DATA_DIR"),
		GeobedCacheDir:  os.Getenv("GEOBED_CACHE_DIR"),
	}

	if cfg.SignalResolution <= cfg.PopResolution {
		return nil, errors.New("SIGNAL_RESOLUTION must be finer than POP_RESOLUTION")
	}
	if cfg.WeightingPolicy != "area" && cfg.WeightingPolicy != "binary" {
		return nil, fmt.Errorf("invalid WEIGHTING_POLICY %q: must be area or binary", cfg.WeightingPolicy)
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required")
		}
	}
	switch cfg.Labeler {
	case LabelerNone, LabelerGeobed:
	case LabelerMapbox:
		if cfg.MapboxToken == "" {
			return nil, errors.New("LABELER is mapbox but MAPBOX_TOKEN is not set")
		}
	default:
		return nil, fmt.Errorf("invalid LABELER %q: must be none, geobed or mapbox", cfg.Labeler)
	}

	return cfg, nil
}

func parseResolution(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 15 {
		return 0, fmt.Errorf("invalid %s: must be 0-15", key)
	}
	return n, nil
}

func parsePositive(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
