package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedPayload is returned when a payload is not a JSON array of event objects.
var ErrMalformedPayload = errors.New("malformed event payload")

// wireEvent mirrors Event with every field kept raw so that one event with a
// badly typed field does not reject its siblings.
type wireEvent struct {
	ID        json.RawMessage `json:"id"`
	Latitude  json.RawMessage `json:"latitude"`
	Longitude json.RawMessage `json:"longitude"`
	Magnitude json.RawMessage `json:"magnitude"`
	Depth     json.RawMessage `json:"depth"`
	Time      json.RawMessage `json:"time"`
	Place     json.RawMessage `json:"place"`
	Risk      json.RawMessage `json:"risk"`
}

// ParseEvents decodes a full event batch: a JSON array of event objects.
// Missing or unparseable coordinates become nil; unparseable magnitude, depth
// and time become zero; non-string id, place and risk become empty.
func ParseEvents(payload []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected JSON array", ErrMalformedPayload)
	}

	var wire []wireEvent
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return fromWire(wire), nil
}

// DecodeEvents is ParseEvents for an already-extracted JSON value, used when
// the batch is embedded in a larger document.
func DecodeEvents(raw json.RawMessage) ([]Event, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return []Event{}, nil
	}
	return ParseEvents(raw)
}

// fromWire converts decoded wire events into domain events.
func fromWire(wire []wireEvent) []Event {
	events := make([]Event, 0, len(wire))
	for i := range wire {
		w := &wire[i]
		e := Event{
			ID:    parseString(w.ID),
			Place: parseString(w.Place),
			Risk:  NormalizeRisk(parseString(w.Risk)),
		}
		if v, ok := parseNumber(w.Latitude); ok {
			e.Latitude = &v
		}
		if v, ok := parseNumber(w.Longitude); ok {
			e.Longitude = &v
		}
		if v, ok := parseNumber(w.Magnitude); ok {
			e.Magnitude = v
		}
		if v, ok := parseNumber(w.Depth); ok {
			e.Depth = v
		}
		if v, ok := parseNumber(w.Time); ok && v >= math.MinInt64 && v < math.MaxInt64 {
			e.Time = int64(v)
		}
		events = append(events, e)
	}
	return events
}

// NormalizeRisk maps the upstream risk label onto the known levels; anything
// else is RiskUnknown.
func NormalizeRisk(value string) Risk {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return RiskHigh
	case "medium":
		return RiskMedium
	case "low":
		return RiskLow
	default:
		return RiskUnknown
	}
}

// parseNumber accepts a JSON number or a numeric string. null, absent and
// non-finite values are rejected.
func parseNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		s = strings.TrimSpace(s)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseString returns a JSON string value, or "" for anything else.
func parseString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
