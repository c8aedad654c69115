package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	c := NewClient(testToken, 5*time.Second, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = baseURL
	return c
}

func TestClient_Label_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/139.691700,35.689500.json", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))

		resp := response{Features: []feature{{PlaceName: "Shinjuku, Tokyo, Japan", Text: "Shinjuku"}}}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	label, err := c.Label(context.Background(), domain.Point{Lat: 35.6895, Lon: 139.6917})
	require.NoError(t, err)

	assert.Equal(t, "Shinjuku, Tokyo, Japan", label)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.LabelRequests.WithLabelValues("success")), 0)
}

func TestClient_Label_FallsBackToText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"features":[{"text":"Pacific Ocean"}]}`))
	}))
	defer srv.Close()

	label, err := testClient(srv.URL).Label(context.Background(), domain.Point{})
	require.NoError(t, err)
	assert.Equal(t, "Pacific Ocean", label)
}

func TestClient_Label_NoFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	label, err := c.Label(context.Background(), domain.Point{Lat: -60, Lon: 0})
	require.NoError(t, err)
	assert.Empty(t, label)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.LabelRequests.WithLabelValues("empty")), 0)
}

func TestClient_Label_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized - Invalid Token"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Label(context.Background(), domain.Point{Lat: 1, Lon: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.LabelRequests.WithLabelValues("error")), 0)
}

func TestClient_Label_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Label(context.Background(), domain.Point{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_Label_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL).Label(ctx, domain.Point{})
	require.Error(t, err)
}
