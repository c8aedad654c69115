package domain

import (
	"context"
	"errors"
)

// ErrSensorUnsupported is returned by sensors that cannot provide a location at all.
var ErrSensorUnsupported = errors.New("geolocation is not supported")

// StaticSensor reports a fixed, configured location.
type StaticSensor struct {
	Location Point
}

// Locate returns the configured location, or ErrInvalidCoordinates if it is out of range.
func (s StaticSensor) Locate(_ context.Context) (Point, error) {
	if !s.Location.Valid() {
		return Point{}, ErrInvalidCoordinates
	}
	return s.Location, nil
}

// NoSensor is used when no location source is configured.
type NoSensor struct{}

// Locate always fails with ErrSensorUnsupported.
func (NoSensor) Locate(_ context.Context) (Point, error) {
	return Point{}, ErrSensorUnsupported
}
