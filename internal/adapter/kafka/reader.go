package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/quake-watch/internal/config"
	"github.com/couchcryptid/quake-watch/internal/stream"
	kafkago "github.com/segmentio/kafka-go"
)

// Dialer consumes the push stream from a Kafka topic. Each message value is
// one full event payload. It implements stream.Dialer.
type Dialer struct {
	cfg    kafkago.ReaderConfig
	logger *slog.Logger
}

// NewDialer creates a dialer for the configured stream topic and consumer group.
func NewDialer(cfg *config.Config, logger *slog.Logger) *Dialer {
	return &Dialer{
		cfg: kafkago.ReaderConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaStreamTopic,
			GroupID:  cfg.KafkaGroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		},
		logger: logger,
	}
}

// Dial starts a consumer group reader. Broker errors surface on the first Read.
func (d *Dialer) Dial(_ context.Context) (stream.Conn, error) {
	if len(d.cfg.Brokers) == 0 {
		return nil, errors.New("kafka stream: no brokers configured")
	}
	d.logger.Debug("kafka stream reader starting", "topic", d.cfg.Topic, "group_id", d.cfg.GroupID)
	return &Conn{reader: kafkago.NewReader(d.cfg), logger: d.logger}, nil
}

// Conn reads payloads from a Kafka consumer group. Offsets are committed by
// the reader as messages are fetched, since every payload supersedes the last.
type Conn struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// Read returns the value of the next message.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("read kafka message: %w", err)
	}
	c.logger.Debug("kafka stream message",
		"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "bytes", len(msg.Value))
	return msg.Value, nil
}

// Close stops the reader and leaves the consumer group.
func (c *Conn) Close() error {
	return c.reader.Close()
}
