package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/forecast-sync/internal/config"
	"github.com/couchcryptid/forecast-sync/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes sync reports to the sink topic.
// It implements pipeline.Loader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Load publishes one report keyed by its run id.
func (w *Writer) Load(ctx context.Context, report *domain.SyncReport) error {
	msg, err := serializeToMessage(report)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish sync report: %w", err)
	}
	w.logger.Debug("published sync report", "run_id", report.RunID, "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a SyncReport into a Kafka message.
func serializeToMessage(report *domain.SyncReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize sync report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "file", Value: []byte(report.File)},
			{Key: "latest_date", Value: []byte(report.LatestDate)},
			{Key: "predictions_inserted", Value: []byte(strconv.FormatInt(report.Predictions.Inserted, 10))},
			{Key: "completed_at", Value: []byte(report.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
