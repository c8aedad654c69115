package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/quake-watch/internal/display"
	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/engine"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Controller is the part of the engine the API drives.
type Controller interface {
	View() engine.View
	OnManualRelocate(lat, lon float64) error
	OnRadiusChange(km float64) error
	Refresh(ctx context.Context)
}

// Server exposes the display API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	ctrl       Controller
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the API, /healthz, /readyz, and /metrics routes.
func NewServer(addr string, ctrl Controller, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		ctrl:   ctrl,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /observer", s.handleRelocate)
	mux.HandleFunc("PUT /radius", s.handleRadius)
	mux.HandleFunc("POST /refresh", s.handleRefresh)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, display.NewViewResponse(s.ctrl.View()))
}

type relocateRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (s *Server) handleRelocate(w http.ResponseWriter, r *http.Request) {
	var req relocateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	if err := s.ctrl.OnManualRelocate(*req.Lat, *req.Lon); err != nil {
		s.writeControlError(w, err)
		return
	}
	s.logger.Debug("observer relocated", "lat", *req.Lat, "lon", *req.Lon)
	writeJSON(w, http.StatusOK, display.NewViewResponse(s.ctrl.View()))
}

type radiusRequest struct {
	RadiusKm *float64 `json:"radius_km"`
}

func (s *Server) handleRadius(w http.ResponseWriter, r *http.Request) {
	var req radiusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RadiusKm == nil {
		writeError(w, http.StatusBadRequest, "radius_km is required")
		return
	}

	if err := s.ctrl.OnRadiusChange(*req.RadiusKm); err != nil {
		s.writeControlError(w, err)
		return
	}
	s.logger.Debug("radius changed", "radius_km", *req.RadiusKm)
	writeJSON(w, http.StatusOK, display.NewViewResponse(s.ctrl.View()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Refresh(r.Context())
	writeJSON(w, http.StatusOK, display.NewViewResponse(s.ctrl.View()))
}

func (s *Server) writeControlError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrInvalidCoordinates) || errors.Is(err, domain.ErrRadiusOutOfRange) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("control request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
