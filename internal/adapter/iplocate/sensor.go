package iplocate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
)

// ErrLookupFailed is returned when the service answers but cannot locate the caller.
var ErrLookupFailed = errors.New("ip geolocation lookup failed")

// Sensor approximates the observer position from the service's public IP
// using an ip-api.com compatible JSON endpoint. It implements engine.Sensor.
type Sensor struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSensor creates an IP geolocation sensor for url.
func NewSensor(url string, timeout time.Duration, logger *slog.Logger) *Sensor {
	return &Sensor{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type response struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	City    string   `json:"city"`
	Country string   `json:"country"`
}

// Locate performs one lookup.
func (s *Sensor) Locate(ctx context.Context) (domain.Point, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return domain.Point{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.Point{}, fmt.Errorf("ip geolocation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Point{}, fmt.Errorf("%w: status %d: %s", ErrLookupFailed, resp.StatusCode, body)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Point{}, fmt.Errorf("decode ip geolocation: %w", err)
	}
	if body.Status != "" && body.Status != "success" {
		return domain.Point{}, fmt.Errorf("%w: %s", ErrLookupFailed, body.Message)
	}
	if body.Lat == nil || body.Lon == nil {
		return domain.Point{}, fmt.Errorf("%w: no coordinates in response", ErrLookupFailed)
	}

	p := domain.Point{Lat: *body.Lat, Lon: *body.Lon}
	if !p.Valid() {
		return domain.Point{}, fmt.Errorf("%w: lat=%v lon=%v", domain.ErrInvalidCoordinates, p.Lat, p.Lon)
	}
	s.logger.Info("observer located by ip", "lat", p.Lat, "lon", p.Lon, "city", body.City, "country", body.Country)
	return p, nil
}
