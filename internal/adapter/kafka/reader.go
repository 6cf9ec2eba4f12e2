package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/couchcryptid/forecast-sync/internal/config"
	"github.com/couchcryptid/forecast-sync/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// errEmptyPath is returned for notifications that do not name a file.
var errEmptyPath = errors.New("notification has no file path")

// Reader consumes file notifications from the trigger topic.
// It implements pipeline.Extractor.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a consumer-group reader for the configured source topic.
// Offsets are committed explicitly once a file has been handled.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaSourceTopic,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return &Reader{reader: r, logger: logger}
}

// Extract blocks until the next valid notification arrives. Messages that
// cannot be parsed are logged and committed so they are not redelivered.
func (r *Reader) Extract(ctx context.Context) (domain.FileNotification, error) {
	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			return domain.FileNotification{}, fmt.Errorf("fetch notification: %w", err)
		}

		n, err := mapMessageToNotification(msg)
		if err != nil {
			r.logger.Warn("skipping malformed notification",
				"error", err, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			if err := r.reader.CommitMessages(ctx, msg); err != nil {
				return domain.FileNotification{}, fmt.Errorf("commit malformed notification: %w", err)
			}
			continue
		}
		n.Commit = func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, msg)
		}
		return n, nil
	}
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

type notificationPayload struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// mapMessageToNotification parses a JSON {"path","name"} value, or treats a
// plain value as the file path.
func mapMessageToNotification(msg kafkago.Message) (domain.FileNotification, error) {
	var payload notificationPayload
	value := bytes.TrimSpace(msg.Value)
	if bytes.HasPrefix(value, []byte("{")) {
		if err := json.Unmarshal(value, &payload); err != nil {
			return domain.FileNotification{}, fmt.Errorf("decode notification: %w", err)
		}
	} else {
		payload.Path = string(value)
	}
	if payload.Path == "" {
		return domain.FileNotification{}, errEmptyPath
	}
	if payload.Name == "" {
		payload.Name = path.Base(payload.Path)
	}

	return domain.FileNotification{
		Path:      payload.Path,
		Name:      payload.Name,
		Key:       msg.Key,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}, nil
}
