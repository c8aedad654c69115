package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/quake-watch/internal/config"
	"github.com/couchcryptid/quake-watch/internal/stream"
	"github.com/redis/go-redis/v9"
)

// Dialer subscribes to the push stream on a Redis pub/sub channel.
// It implements stream.Dialer.
type Dialer struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewDialer creates a dialer for the configured Redis channel. The client
// connects lazily on the first Dial.
func NewDialer(cfg *config.Config, logger *slog.Logger) *Dialer {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Dialer{client: client, channel: cfg.RedisChannel, logger: logger}
}

// Dial pings the server and subscribes, waiting for the subscription to be confirmed.
func (d *Dialer) Dial(ctx context.Context) (stream.Conn, error) {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	pubsub := d.client.Subscribe(ctx, d.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", d.channel, err)
	}
	d.logger.Debug("redis subscription confirmed", "channel", d.channel)
	return &Conn{pubsub: pubsub}, nil
}

// Close releases the client's connection pool.
func (d *Dialer) Close() error {
	return d.client.Close()
}

// Conn reads published payloads from one subscription.
type Conn struct {
	pubsub *redis.PubSub
}

// Read waits for the next published message and returns its payload.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	msg, err := c.pubsub.ReceiveMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("receive redis message: %w", err)
	}
	return []byte(msg.Payload), nil
}

// Close unsubscribes and closes the subscription connection.
func (c *Conn) Close() error {
	return c.pubsub.Close()
}
