package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Stream transports.
const (
	TransportWebSocket = "websocket"
	TransportKafka     = "kafka"
	TransportRedis     = "redis"
	TransportNone      = "none"
)

// Sensor modes.
const (
	SensorNone   = "none"
	SensorStatic = "static"
	SensorIP     = "ip"
	SensorGeoIP  = "geoip"
)

const (
	minRadiusKm = 500
	maxRadiusKm = 10000
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Snapshot fetch.
	SnapshotURL             string
	SnapshotTimeout         time.Duration
	SnapshotRefreshInterval time.Duration // 0 disables periodic refresh
	StaleSnapshotGuard      bool

	RadiusKm float64

	// Push stream.
	StreamTransport  string
	StreamURL        string
	StreamMinBackoff time.Duration
	StreamMaxBackoff time.Duration

	KafkaBrokers      []string
	KafkaStreamTopic  string
	KafkaGroupID      string
	KafkaDisplayTopic string // empty disables the display writer

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	// Geolocation sensor.
	Sensor        string
	ObserverLat   float64
	ObserverLon   float64
	IPLocateURL   string
	SensorTimeout time.Duration
	GeoIPDBPath   string
	GeoIPAddress  string

	// Mapbox reverse geocoding for the observer label.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SnapshotURL:        strings.TrimRight(sharedcfg.EnvOrDefault("SNAPSHOT_URL", "http://localhost:8000"), "/"),
		StaleSnapshotGuard: os.Getenv("STALE_SNAPSHOT_GUARD") == "true",

		StreamTransport: strings.ToLower(sharedcfg.EnvOrDefault("STREAM_TRANSPORT", TransportWebSocket)),
		StreamURL:       sharedcfg.EnvOrDefault("STREAM_URL", "ws://localhost:8000/ws"),

		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaStreamTopic:  sharedcfg.EnvOrDefault("KAFKA_STREAM_TOPIC", "disaster-events"),
		KafkaGroupID:      sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "quake-watch"),
		KafkaDisplayTopic: os.Getenv("KAFKA_DISPLAY_TOPIC"),

		RedisAddr:     sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisChannel:  sharedcfg.EnvOrDefault("REDIS_CHANNEL", "disaster-events"),

		Sensor:      strings.ToLower(sharedcfg.EnvOrDefault("SENSOR", SensorNone)),
		IPLocateURL:  sharedcfg.EnvOrDefault("IPLOCATE_URL", "http://ip-api.com/json"),
		GeoIPDBPath:  os.Getenv("GEOIP_DB_PATH"),
		GeoIPAddress: os.Getenv("GEOIP_ADDRESS"),

		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if cfg.SnapshotTimeout, err = parsePositiveDuration("SNAPSHOT_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.StreamMinBackoff, err = parsePositiveDuration("STREAM_MIN_BACKOFF", "200ms"); err != nil {
		return nil, err
	}
	if cfg.StreamMaxBackoff, err = parsePositiveDuration("STREAM_MAX_BACKOFF", "5s"); err != nil {
		return nil, err
	}
	if cfg.SensorTimeout, err = parsePositiveDuration("SENSOR_TIMEOUT", "5s"); err != nil {
		return nil, err
	}
	if cfg.MapboxTimeout, err = parsePositiveDuration("MAPBOX_TIMEOUT", "5s"); err != nil {
		return nil, err
	}
	if cfg.SnapshotRefreshInterval, err = parseRefreshInterval(); err != nil {
		return nil, err
	}
	if cfg.RadiusKm, err = parseRadius(); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = parseRedisDB(); err != nil {
		return nil, err
	}

	if cfg.Sensor == SensorStatic {
		if cfg.ObserverLat, cfg.ObserverLon, err = parseObserver(); err != nil {
			return nil, err
		}
	}

	cfg.MapboxToken = os.Getenv("MAPBOX_TOKEN")
	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		cfg.MapboxEnabled = v == "true"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SnapshotURL == "" {
		return errors.New("SNAPSHOT_URL is required")
	}
	if c.StreamMaxBackoff < c.StreamMinBackoff {
		return errors.New("STREAM_MAX_BACKOFF must not be less than STREAM_MIN_BACKOFF")
	}

	switch c.StreamTransport {
	case TransportWebSocket:
		if c.StreamURL == "" {
			return errors.New("STREAM_URL is required for the websocket transport")
		}
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required for the kafka transport")
		}
		if c.KafkaStreamTopic == "" {
			return errors.New("KAFKA_STREAM_TOPIC is required for the kafka transport")
		}
	case TransportRedis:
		if c.RedisChannel == "" {
			return errors.New("REDIS_CHANNEL is required for the redis transport")
		}
	case TransportNone:
	default:
		return fmt.Errorf("invalid STREAM_TRANSPORT %q", c.StreamTransport)
	}

	if c.KafkaDisplayTopic != "" && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when KAFKA_DISPLAY_TOPIC is set")
	}

	switch c.Sensor {
	case SensorNone, SensorIP, SensorStatic:
	case SensorGeoIP:
		if c.GeoIPDBPath == "" || c.GeoIPAddress == "" {
			return errors.New("SENSOR=geoip requires GEOIP_DB_PATH and GEOIP_ADDRESS")
		}
	default:
		return fmt.Errorf("invalid SENSOR %q", c.Sensor)
	}

	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseRefreshInterval() (time.Duration, error) {
	s := os.Getenv("SNAPSHOT_REFRESH_INTERVAL")
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errors.New("invalid SNAPSHOT_REFRESH_INTERVAL")
	}
	return d, nil
}

func parseRadius() (float64, error) {
	s := sharedcfg.EnvOrDefault("RADIUS_KM", "2500")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < minRadiusKm || v > maxRadiusKm {
		return 0, fmt.Errorf("invalid RADIUS_KM: must be between %d and %d", minRadiusKm, maxRadiusKm)
	}
	return v, nil
}

func parseRedisDB() (int, error) {
	s := os.Getenv("REDIS_DB")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid REDIS_DB")
	}
	return n, nil
}

func parseObserver() (float64, float64, error) {
	lat, errLat := strconv.ParseFloat(os.Getenv("OBSERVER_LAT"), 64)
	lon, errLon := strconv.ParseFloat(os.Getenv("OBSERVER_LON"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, errors.New("SENSOR=static requires valid OBSERVER_LAT and OBSERVER_LON")
	}
	return lat, lon, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
