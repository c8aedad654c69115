package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
)

// Client fetches the bulk event snapshot over HTTP.
// It implements engine.SnapshotFetcher.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a snapshot client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type response struct {
	Count  int             `json:"count"`
	Events json.RawMessage `json:"events"`
}

// FetchSnapshot requests GET /data. Position and radius are sent only when the
// observer location is known; otherwise the global snapshot is returned.
func (c *Client) FetchSnapshot(ctx context.Context, observer domain.ObserverSnapshot) ([]domain.Event, error) {
	u := c.baseURL + "/data"
	if params := query(observer); len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("snapshot API error: status %d: %s", resp.StatusCode, body)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	events, err := domain.DecodeEvents(body.Events)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot events: %w", err)
	}

	if body.Count != len(events) {
		c.logger.Debug("snapshot count differs from events", "count", body.Count, "events", len(events))
	}
	return events, nil
}

func query(observer domain.ObserverSnapshot) url.Values {
	if observer.Location == nil {
		return nil
	}
	params := url.Values{
		"lat": {strconv.FormatFloat(observer.Location.Lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(observer.Location.Lon, 'f', -1, 64)},
	}
	if observer.RadiusKm > 0 {
		params.Set("radius", strconv.FormatFloat(observer.RadiusKm, 'f', -1, 64))
	}
	return params
}
