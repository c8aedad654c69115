package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/quake-watch/internal/adapter/geoip"
	httpadapter "github.com/couchcryptid/quake-watch/internal/adapter/http"
	"github.com/couchcryptid/quake-watch/internal/adapter/iplocate"
	kafkaadapter "github.com/couchcryptid/quake-watch/internal/adapter/kafka"
	"github.com/couchcryptid/quake-watch/internal/adapter/mapbox"
	redisadapter "github.com/couchcryptid/quake-watch/internal/adapter/redis"
	"github.com/couchcryptid/quake-watch/internal/adapter/snapshot"
	wsadapter "github.com/couchcryptid/quake-watch/internal/adapter/websocket"
	"github.com/couchcryptid/quake-watch/internal/config"
	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/engine"
	"github.com/couchcryptid/quake-watch/internal/observability"
	"github.com/couchcryptid/quake-watch/internal/stream"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Observer label (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var labeler engine.Labeler
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		labeler = mapbox.NewCachedLabeler(client, cfg.MapboxCacheSize, metrics)
		metrics.LabelEnabled.Set(1)
		logger.Info("mapbox observer labels enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox observer labels disabled")
	}

	sensor, closeSensor, err := newSensor(cfg, logger)
	if err != nil {
		logger.Error("failed to create sensor", "error", err)
		os.Exit(1)
	}
	defer closeSensor.Close()

	fetcher := snapshot.NewClient(cfg.SnapshotURL, cfg.SnapshotTimeout, logger)
	eng, err := engine.New(fetcher, logger, metrics, engine.Options{
		RadiusKm:           cfg.RadiusKm,
		StaleSnapshotGuard: cfg.StaleSnapshotGuard,
		Labeler:            labeler,
		LabelTimeout:       cfg.MapboxTimeout,
	})
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	ready := httpadapter.AllReady{eng}

	var session *stream.Session
	dialer, closeDialer := newDialer(cfg, logger)
	defer closeDialer.Close()
	if dialer != nil {
		session = stream.NewSession(dialer, eng, logger, metrics, stream.Options{
			MinBackoff: cfg.StreamMinBackoff,
			MaxBackoff: cfg.StreamMaxBackoff,
		})
		ready = append(ready, session)
	} else {
		logger.Info("push stream disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, eng, ready, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Mirror views to Kafka when a display topic is configured.
	var writer *kafkaadapter.Writer
	if cfg.KafkaDisplayTopic != "" {
		writer = kafkaadapter.NewWriter(cfg, metrics, logger)
		views, unsubscribe := eng.Subscribe(64)
		defer unsubscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Forward(ctx, views, writer, logger)
		}()
		logger.Info("display publishing enabled", "topic", cfg.KafkaDisplayTopic)
	}

	// Start the push stream before the first fetch so no message is missed.
	if session != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := session.Run(ctx); err != nil {
				logger.Error("stream session error", "error", err)
			}
		}()
	}

	// Locate the observer once, then fetch the first snapshot.
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Start(ctx, sensor)
	}()

	if cfg.SnapshotRefreshInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng.RunRefresher(ctx, cfg.SnapshotRefreshInterval)
		}()
		logger.Info("periodic snapshot refresh enabled", "interval", cfg.SnapshotRefreshInterval)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	// Snapshot fetches outlive ctx; Close drops their results.
	eng.Close()
	waitGroup(shutdownCtx, &wg, logger)
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// waitGroup waits for background goroutines until the shutdown deadline.
func waitGroup(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("background workers still running at shutdown deadline")
	}
}

// newSensor builds the configured location source. The returned closer is
// always safe to call.
func newSensor(cfg *config.Config, logger *slog.Logger) (engine.Sensor, io.Closer, error) {
	switch cfg.Sensor {
	case config.SensorStatic:
		return domain.StaticSensor{Location: domain.Point{Lat: cfg.ObserverLat, Lon: cfg.ObserverLon}}, nopCloser{}, nil
	case config.SensorIP:
		return iplocate.NewSensor(cfg.IPLocateURL, cfg.SensorTimeout, logger), nopCloser{}, nil
	case config.SensorGeoIP:
		s, err := geoip.Open(cfg.GeoIPDBPath, cfg.GeoIPAddress, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return domain.NoSensor{}, nopCloser{}, nil
	}
}

// newDialer builds the configured stream transport, or nil when streaming is off.
func newDialer(cfg *config.Config, logger *slog.Logger) (stream.Dialer, io.Closer) {
	switch cfg.StreamTransport {
	case config.TransportWebSocket:
		return wsadapter.NewDialer(cfg.StreamURL, logger), nopCloser{}
	case config.TransportKafka:
		return kafkaadapter.NewDialer(cfg, logger), nopCloser{}
	case config.TransportRedis:
		d := redisadapter.NewDialer(cfg, logger)
		return d, d
	default:
		return nil, nopCloser{}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
