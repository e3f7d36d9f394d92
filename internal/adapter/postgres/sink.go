// Package postgres stores coverage reports in a Postgres table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

// columns in COPY order.
var columns = []string{
	"run_id", "label", "generated_at", "h3", "population", "density_per_mi2",
	"lat", "lon", "city", "county", "state", "avg_minsignal", "signal_samples", "band",
}

// Sink writes joined records with lib/pq's COPY support.
// It implements pipeline.ReportLoader.
type Sink struct {
	db      *sql.DB
	table   string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn, table string, metrics *observability.Metrics, logger *slog.Logger) (*Sink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Sink{db: db, table: table, metrics: metrics, logger: logger}, nil
}

func schemaSQL(table string) string {
	t := pq.QuoteIdentifier(table)
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id          TEXT             NOT NULL,
	label           TEXT             NOT NULL,
	generated_at    TIMESTAMPTZ      NOT NULL,
	h3              TEXT             NOT NULL,
	population      DOUBLE PRECISION NOT NULL,
	density_per_mi2 DOUBLE PRECISION,
	lat             DOUBLE PRECISION,
	lon             DOUBLE PRECISION,
	city            TEXT,
	county          TEXT,
	state           TEXT,
	avg_minsignal   DOUBLE PRECISION NOT NULL,
	signal_samples  INTEGER          NOT NULL,
	band            TEXT             NOT NULL,
	PRIMARY KEY (label, h3)
)`, t)
}

// EnsureSchema creates the table if it does not exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL(s.table)); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// LoadReport replaces the rows of report.Label with the report's records in
// one transaction.
func (s *Sink) LoadReport(ctx context.Context, report domain.CoverageReport) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback() //nolint:errcheck // already failing
		}
	}()

	del := fmt.Sprintf("DELETE FROM %s WHERE label = $1", pq.QuoteIdentifier(s.table))
	if _, err = tx.ExecContext(ctx, del, report.Label); err != nil {
		return fmt.Errorf("clear %s: %w", report.Label, err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(s.table, columns...))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	for i := range report.Records {
		if _, err = stmt.ExecContext(ctx, rowValues(report, report.Records[i])...); err != nil {
			stmt.Close()
			return fmt.Errorf("copy cell %s: %w", report.Records[i].Cell, err)
		}
	}
	if _, err = stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err = stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.metrics.RecordsPublished.WithLabelValues("postgres").Add(float64(len(report.Records)))
	s.logger.Info("coverage report stored", "table", s.table, "label", report.Label, "rows", len(report.Records))
	return nil
}

func rowValues(report domain.CoverageReport, r domain.AggregatedRecord) []any {
	return []any{
		report.RunID, report.Label, report.GeneratedAt, r.Cell.String(), r.Population, r.Density,
		r.Centroid.Lat, r.Centroid.Lon, r.City, r.County, r.State, r.AvgSignal, r.SignalSamples, string(r.Band),
	}
}

// CheckReadiness pings the database.
func (s *Sink) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Sink) Close() error {
	return s.db.Close()
}
