package display

import (
	"strconv"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/engine"
)

// EventResponse is one displayed event. DistanceLabel is the distance
// rounded to two decimals for display; ordering always uses DistanceKm.
type EventResponse struct {
	domain.AnnotatedEvent
	DistanceLabel string `json:"distance_label,omitempty"`
	InRadius      bool   `json:"in_radius"`
}

// ViewResponse is the JSON form of an engine view, served by the API and
// published to the display topic.
type ViewResponse struct {
	Events     []EventResponse     `json:"events"`
	Count      int                 `json:"count"`
	InRadius   int                 `json:"in_radius"`
	RadiusKm   float64             `json:"radius_km"`
	Observer   *domain.Point       `json:"observer"`
	Label      string              `json:"label,omitempty"`
	Loading    bool                `json:"loading"`
	Notice     string              `json:"notice,omitempty"`
	RiskCounts map[domain.Risk]int `json:"risk_counts"`
	Trigger    engine.Trigger      `json:"trigger"`
	Version    uint64              `json:"version"`
	UpdatedAt  string              `json:"updated_at"`
}

// NewViewResponse converts an engine view to its JSON form.
func NewViewResponse(v engine.View) ViewResponse {
	events := make([]EventResponse, len(v.Events))
	for i, e := range v.Events {
		events[i] = EventResponse{
			AnnotatedEvent: e,
			InRadius:       v.Observer != nil && domain.InRadius(e, v.RadiusKm),
		}
		if e.DistanceKm != nil {
			events[i].DistanceLabel = FormatDistance(*e.DistanceKm)
		}
	}

	counts := make(map[domain.Risk]int, len(v.RiskCounts))
	for k, n := range v.RiskCounts {
		counts[k] = n
	}

	return ViewResponse{
		Events:     events,
		Count:      len(events),
		InRadius:   v.InRadius,
		RadiusKm:   v.RadiusKm,
		Observer:   v.Observer,
		Label:      v.Label,
		Loading:    v.Loading,
		Notice:     v.Notice,
		RiskCounts: counts,
		Trigger:    v.Trigger,
		Version:    v.Version,
		UpdatedAt:  v.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// FormatDistance renders kilometres with two decimals.
func FormatDistance(km float64) string {
	return strconv.FormatFloat(km, 'f', 2, 64)
}
