package domain

import "math"

// Risk is the upstream severity classification attached to every event.
type Risk string

const (
	RiskHigh    Risk = "High"
	RiskMedium  Risk = "Medium"
	RiskLow     Risk = "Low"
	RiskUnknown Risk = "Unknown"
)

// Event is a raw disaster event as delivered by the snapshot fetch or the
// push stream. Coordinates are pointers because upstream payloads may omit
// them; an absent coordinate is never treated as zero.
type Event struct {
	ID        string   `json:"id,omitempty"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Magnitude float64  `json:"magnitude"`
	Depth     float64  `json:"depth"`
	Time      int64    `json:"time"` // epoch milliseconds
	Place     string   `json:"place"`
	Risk      Risk     `json:"risk"`
}

// Point is a WGS-84 latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both coordinates are finite and within range.
func (p Point) Valid() bool {
	return validCoordinate(p.Lat, 90) && validCoordinate(p.Lon, 180)
}

// Coordinates returns the event position, or false when either coordinate is
// missing or invalid.
func (e Event) Coordinates() (Point, bool) {
	if e.Latitude == nil || e.Longitude == nil {
		return Point{}, false
	}
	p := Point{Lat: *e.Latitude, Lon: *e.Longitude}
	if !p.Valid() {
		return Point{}, false
	}
	return p, true
}

// AnnotatedEvent is an Event plus its distance from the observer at the time
// of annotation. DistanceKm is nil when no observer was known or the event has
// no usable coordinates.
type AnnotatedEvent struct {
	Event
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

func validCoordinate(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}
