package domain

import (
	"errors"
	"fmt"
	"math"
)

// Radius bounds and default for the user-adjustable search radius.
const (
	MinRadiusKm     = 500.0
	MaxRadiusKm     = 10000.0
	RadiusStepKm    = 500.0
	DefaultRadiusKm = 2500.0
)

var (
	// ErrInvalidCoordinates is returned for non-finite or out-of-range coordinates.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrRadiusOutOfRange is returned for a radius outside [MinRadiusKm, MaxRadiusKm].
	ErrRadiusOutOfRange = errors.New("radius out of range")
)

// ObserverState holds the best-known observer location and the active search
// radius. It is not safe for concurrent use; the engine serializes access.
type ObserverState struct {
	location *Point
	radiusKm float64
}

// ObserverSnapshot is a point-in-time copy of ObserverState.
type ObserverSnapshot struct {
	Location *Point
	RadiusKm float64
}

// NewObserverState returns a state with no location and the given radius.
func NewObserverState(radiusKm float64) (*ObserverState, error) {
	s := &ObserverState{}
	if err := s.SetRadius(radiusKm); err != nil {
		return nil, err
	}
	return s, nil
}

// SetLocation replaces both coordinates at once. Invalid input leaves the
// previous location in place.
func (s *ObserverState) SetLocation(lat, lon float64) error {
	p := Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinates, lat, lon)
	}
	s.location = &p
	return nil
}

// ClearLocation forgets the observer location.
func (s *ObserverState) ClearLocation() {
	s.location = nil
}

// SetRadius replaces the search radius. It does not re-annotate anything.
func (s *ObserverState) SetRadius(km float64) error {
	if math.IsNaN(km) || km < MinRadiusKm || km > MaxRadiusKm {
		return fmt.Errorf("%w: %v km not in [%v, %v]", ErrRadiusOutOfRange, km, MinRadiusKm, MaxRadiusKm)
	}
	s.radiusKm = km
	return nil
}

// Get returns a copy of the current state. The copy goes stale as soon as the
// location changes; re-read it at the point of use.
func (s *ObserverState) Get() ObserverSnapshot {
	snap := ObserverSnapshot{RadiusKm: s.radiusKm}
	if s.location != nil {
		loc := *s.location
		snap.Location = &loc
	}
	return snap
}
