package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-watch/internal/config"
	"github.com/couchcryptid/quake-watch/internal/display"
	"github.com/couchcryptid/quake-watch/internal/engine"
	"github.com/couchcryptid/quake-watch/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes every display view to the display topic.
// It implements engine.Publisher.
type Writer struct {
	writer  messageWriter
	key     []byte
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured display topic. All
// views share one key so they stay ordered on a single partition.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaDisplayTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
	}
	return &Writer{writer: w, key: []byte(cfg.KafkaGroupID), metrics: metrics, logger: logger}
}

// Publish serializes one view and writes it.
func (w *Writer) Publish(ctx context.Context, v engine.View) error {
	msg, err := serializeToMessage(w.key, v)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write display view: %w", err)
	}
	w.metrics.DisplayPublished.Inc()
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a view into a Kafka message.
func serializeToMessage(key []byte, v engine.View) (kafkago.Message, error) {
	data, err := json.Marshal(display.NewViewResponse(v))
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize display view: %w", err)
	}
	return kafkago.Message{
		Key:   key,
		Value: data,
		Headers: []kafkago.Header{
			{Key: "trigger", Value: []byte(v.Trigger)},
			{Key: "version", Value: []byte(strconv.FormatUint(v.Version, 10))},
			{Key: "updated_at", Value: []byte(v.UpdatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
