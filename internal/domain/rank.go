package domain

import (
	"cmp"
	"slices"
)

// Rank orders events for display and returns a new slice.
//
// Without an observer events are sorted by Time, most recent first. With an
// observer, events within radiusKm come first and everything else (farther, or
// with no known distance) follows; each partition is sorted by Time, most
// recent first. No event is dropped. The sort is stable, so equal times keep
// their input order.
func Rank(events []AnnotatedEvent, observer *Point, radiusKm float64) []AnnotatedEvent {
	out := slices.Clone(events)
	if out == nil {
		out = []AnnotatedEvent{}
	}

	if observer == nil {
		slices.SortStableFunc(out, byRecency)
		return out
	}

	slices.SortStableFunc(out, func(a, b AnnotatedEvent) int {
		aIn, bIn := InRadius(a, radiusKm), InRadius(b, radiusKm)
		if aIn != bIn {
			if aIn {
				return -1
			}
			return 1
		}
		return byRecency(a, b)
	})
	return out
}

// InRadius reports whether the event has a known distance no greater than radiusKm.
func InRadius(e AnnotatedEvent, radiusKm float64) bool {
	return e.DistanceKm != nil && *e.DistanceKm <= radiusKm
}

// CountInRadius returns how many events are within radiusKm.
func CountInRadius(events []AnnotatedEvent, radiusKm float64) int {
	n := 0
	for i := range events {
		if InRadius(events[i], radiusKm) {
			n++
		}
	}
	return n
}

// CountByRisk tallies events per risk level.
func CountByRisk(events []AnnotatedEvent) map[Risk]int {
	counts := make(map[Risk]int, 4)
	for i := range events {
		counts[events[i].Risk]++
	}
	return counts
}

func byRecency(a, b AnnotatedEvent) int {
	return cmp.Compare(b.Time, a.Time)
}
