package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
)

// Trigger names what caused a view to be published.
type Trigger string

const (
	TriggerInit        Trigger = "init"
	TriggerSnapshot    Trigger = "snapshot"
	TriggerStream      Trigger = "stream"
	TriggerRelocate    Trigger = "relocate"
	TriggerRadius      Trigger = "radius"
	TriggerSensorFix   Trigger = "sensor_fix"
	TriggerSensorError Trigger = "sensor_error"
	TriggerRefresh     Trigger = "refresh"
	TriggerLabel       Trigger = "label"
)

// View is an immutable picture of the display state. Events and RiskCounts
// must not be modified by readers.
type View struct {
	Events     []domain.AnnotatedEvent
	Observer   *domain.Point
	RadiusKm   float64
	InRadius   int
	RiskCounts map[domain.Risk]int
	Loading    bool
	Notice     string
	Label      string
	Trigger    Trigger
	Version    uint64
	UpdatedAt  time.Time
}

// Publisher receives published views, for example to mirror them downstream.
type Publisher interface {
	Publish(ctx context.Context, v View) error
}

// Forward sends every view received on views to pub until views is closed or
// ctx is cancelled. Publish failures are logged and do not stop forwarding.
func Forward(ctx context.Context, views <-chan View, pub Publisher, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-views:
			if !ok {
				return
			}
			if err := pub.Publish(ctx, v); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("publish view failed", "version", v.Version, "trigger", v.Trigger, "error", err)
			}
		}
	}
}
