package geoip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/oschwald/geoip2-golang"
)

// ErrNoLocation is returned when the database has no coordinates for the address.
var ErrNoLocation = errors.New("address not located in geoip database")

// Sensor locates the observer by looking up a fixed IP address in a local
// MaxMind City database. It implements engine.Sensor.
type Sensor struct {
	db     *geoip2.Reader
	ip     net.IP
	logger *slog.Logger
}

// Open loads the database at path for lookups of ip.
func Open(path, ip string, logger *slog.Logger) (*Sensor, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return nil, fmt.Errorf("invalid GEOIP_ADDRESS %q", ip)
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &Sensor{db: db, ip: addr, logger: logger}, nil
}

// Locate performs one database lookup.
func (s *Sensor) Locate(_ context.Context) (domain.Point, error) {
	record, err := s.db.City(s.ip)
	if err != nil {
		return domain.Point{}, fmt.Errorf("geoip lookup %s: %w", s.ip, err)
	}
	return pointFromCity(record, s.ip.String(), s.logger)
}

// Close releases the database.
func (s *Sensor) Close() error {
	return s.db.Close()
}

func pointFromCity(record *geoip2.City, ip string, logger *slog.Logger) (domain.Point, error) {
	if record == nil || (record.Location.Latitude == 0 && record.Location.Longitude == 0 && record.Location.AccuracyRadius == 0) {
		return domain.Point{}, fmt.Errorf("%w: %s", ErrNoLocation, ip)
	}
	p := domain.Point{Lat: record.Location.Latitude, Lon: record.Location.Longitude}
	if !p.Valid() {
		return domain.Point{}, fmt.Errorf("%w: lat=%v lon=%v", domain.ErrInvalidCoordinates, p.Lat, p.Lon)
	}
	logger.Info("observer located by geoip", "ip", ip, "lat", p.Lat, "lon", p.Lon,
		"city", record.City.Names["en"], "accuracy_km", record.Location.AccuracyRadius)
	return p, nil
}
