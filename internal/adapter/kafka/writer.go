package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/hex-coverage-etl/internal/config"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

// Message kinds carried in the "kind" header.
const (
	KindCell    = "cell"
	KindSummary = "summary"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces coverage reports to a Kafka topic.
// It implements pipeline.ReportLoader.
type Writer struct {
	writer    messageWriter
	batchSize int
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return &Writer{writer: w, batchSize: cfg.BatchSize, metrics: metrics, logger: logger}
}

// cellMessage is the value of a per-cell message.
type cellMessage struct {
	RunID       string    `json:"run_id"`
	Label       string    `json:"label"`
	GeneratedAt time.Time `json:"generated_at"`
	domain.AggregatedRecord
}

// LoadReport publishes one message per joined cell keyed by cell token, then
// a summary message keyed by the report label. Cells are sent in batches of
// the configured size.
func (w *Writer) LoadReport(ctx context.Context, report domain.CoverageReport) error {
	batch := make([]kafkago.Message, 0, w.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.writer.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("publish %d messages: %w", len(batch), err)
		}
		w.metrics.RecordsPublished.WithLabelValues("kafka").Add(float64(len(batch)))
		batch = batch[:0]
		return nil
	}

	for i := range report.Records {
		msg, err := serializeCell(report, report.Records[i])
		if err != nil {
			return err
		}
		batch = append(batch, msg)
		if len(batch) >= w.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	summary, err := serializeSummary(report)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, summary); err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	w.logger.Info("coverage report published", "run_id", report.RunID, "label", report.Label, "cells", len(report.Records))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func headers(report domain.CoverageReport, kind string) []kafkago.Header {
	return []kafkago.Header{
		{Key: "kind", Value: []byte(kind)},
		{Key: "run_id", Value: []byte(report.RunID)},
		{Key: "generated_at", Value: []byte(report.GeneratedAt.Format(time.RFC3339))},
	}
}

// serializeCell marshals one joined record into a Kafka message.
func serializeCell(report domain.CoverageReport, rec domain.AggregatedRecord) (kafkago.Message, error) {
	data, err := json.Marshal(cellMessage{
		RunID:            report.RunID,
		Label:            report.Label,
		GeneratedAt:      report.GeneratedAt,
		AggregatedRecord: rec,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize cell %s: %w", rec.Cell, err)
	}
	return kafkago.Message{
		Key:     []byte(rec.Cell.String()),
		Value:   data,
		Headers: append(headers(report, KindCell), kafkago.Header{Key: "band", Value: []byte(rec.Band)}),
	}, nil
}

// serializeSummary marshals the report header and band summary.
func serializeSummary(report domain.CoverageReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize summary: %w", err)
	}
	return kafkago.Message{
		Key:     []byte(KindSummary + ":" + report.Label),
		Value:   data,
		Headers: headers(report, KindSummary),
	}, nil
}
