package domain

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// kmPerDegree is the length of one degree of longitude on the equator.
var kmPerDegree = EarthRadiusKm * math.Pi / 180

// equatorEvent places an event on the equator km kilometers east of (0,0).
func equatorEvent(id string, km float64, t int64) Event {
	lat, lon := 0.0, km/kmPerDegree
	return Event{ID: id, Latitude: &lat, Longitude: &lon, Time: t, Risk: RiskLow}
}

func ids(events []AnnotatedEvent) []string {
	out := make([]string, len(events))
	for i := range events {
		out[i] = events[i].ID
	}
	return out
}

func ptr(v float64) *float64 { return &v }

func TestAnnotate(t *testing.T) {
	observer := &Point{0, 0}
	noCoords := Event{ID: "no-coords", Time: 5}
	badLat := 123.0
	lon := 10.0
	invalid := Event{ID: "invalid", Latitude: &badLat, Longitude: &lon, Time: 6}

	events := []Event{equatorEvent("a", 200, 1), noCoords, invalid, equatorEvent("b", 0, 2)}
	out := Annotate(events, observer)

	require.Len(t, out, 4)
	assert.Equal(t, []string{"a", "no-coords", "invalid", "b"}, ids(out), "order preserved, nothing dropped")
	require.NotNil(t, out[0].DistanceKm)
	assert.InDelta(t, 200, *out[0].DistanceKm, 1e-6)
	assert.Nil(t, out[1].DistanceKm)
	assert.Nil(t, out[2].DistanceKm)
	require.NotNil(t, out[3].DistanceKm, "zero distance is a distance")
	assert.Zero(t, *out[3].DistanceKm)
}

func TestAnnotate_NoObserver(t *testing.T) {
	out := Annotate([]Event{equatorEvent("a", 200, 1)}, nil)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].DistanceKm)
}

func TestAnnotate_Idempotent(t *testing.T) {
	observer := &Point{12.5, -40.25}
	events := []Event{equatorEvent("a", 200, 1), equatorEvent("b", 4321, 2)}

	first := Annotate(events, observer)
	second := Annotate(events, observer)
	for i := range first {
		assert.Equal(t, *first[i].DistanceKm, *second[i].DistanceKm)
	}
}

func TestReannotate_ReplacesDistances(t *testing.T) {
	events := []Event{equatorEvent("a", 200, 1), equatorEvent("b", 800, 2)}
	atOrigin := Annotate(events, &Point{0, 0})

	moved := &Point{10, 10}
	re := Reannotate(atOrigin, moved)
	for i := range re {
		pos, ok := events[i].Coordinates()
		require.True(t, ok)
		assert.Equal(t, Distance(*moved, pos), *re[i].DistanceKm)
		assert.NotEqual(t, *atOrigin[i].DistanceKm, *re[i].DistanceKm)
	}

	cleared := Reannotate(atOrigin, nil)
	for i := range cleared {
		assert.Nil(t, cleared[i].DistanceKm, "no stale distance without an observer")
	}
}

func TestRank_NoObserverSortsByRecency(t *testing.T) {
	events := []AnnotatedEvent{
		{Event: Event{ID: "t10", Time: 10}},
		{Event: Event{ID: "t30", Time: 30}},
		{Event: Event{ID: "t20", Time: 20}},
	}

	got := Rank(events, nil, DefaultRadiusKm)
	assert.Equal(t, []string{"t30", "t20", "t10"}, ids(got))
	assert.Equal(t, []string{"t10", "t30", "t20"}, ids(events), "input untouched")
}

func TestRank_InRadiusFirstThenRecency(t *testing.T) {
	const t0, t2, t1 = 100, 200, 300 // T1 > T2 > T0
	observer := &Point{0, 0}
	events := Annotate([]Event{
		equatorEvent("200km", 200, t0),
		equatorEvent("1500km", 1500, t1),
		equatorEvent("800km", 800, t2),
	}, observer)

	got := Rank(events, observer, 1000)
	if diff := cmp.Diff([]string{"800km", "200km", "1500km"}, ids(got)); diff != "" {
		t.Fatalf("rank order mismatch (-want +got):\n%s", diff)
	}
}

func TestRank_MissingDistanceRankedOutside(t *testing.T) {
	observer := &Point{0, 0}
	events := []AnnotatedEvent{
		{Event: Event{ID: "unknown-newest", Time: 999}},
		{Event: Event{ID: "near-old", Time: 1}, DistanceKm: ptr(10)},
		{Event: Event{ID: "far", Time: 500}, DistanceKm: ptr(5000)},
	}

	got := Rank(events, observer, 1000)
	assert.Equal(t, []string{"near-old", "unknown-newest", "far"}, ids(got))
}

func TestRank_NumericComparison(t *testing.T) {
	observer := &Point{0, 0}
	events := []AnnotatedEvent{
		{Event: Event{ID: "100", Time: 1}, DistanceKm: ptr(100)},
		{Event: Event{ID: "20", Time: 2}, DistanceKm: ptr(20)},
		{Event: Event{ID: "1000.5", Time: 3}, DistanceKm: ptr(1000.5)},
	}

	got := Rank(events, observer, 500)
	assert.Equal(t, []string{"20", "100", "1000.5"}, ids(got))
}

func TestRank_BoundaryIsInside(t *testing.T) {
	observer := &Point{0, 0}
	events := []AnnotatedEvent{
		{Event: Event{ID: "newer-outside", Time: 2}, DistanceKm: ptr(1000.0001)},
		{Event: Event{ID: "edge", Time: 1}, DistanceKm: ptr(1000)},
	}
	got := Rank(events, observer, 1000)
	assert.Equal(t, []string{"edge", "newer-outside"}, ids(got))
}

func TestRank_StableForEqualTimes(t *testing.T) {
	events := []AnnotatedEvent{
		{Event: Event{ID: "a", Time: 5}},
		{Event: Event{ID: "b", Time: 5}},
		{Event: Event{ID: "c", Time: 5}},
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids(Rank(events, nil, DefaultRadiusKm)))
}

func TestRank_PartitionAndRecencyProperties(t *testing.T) {
	observer := &Point{20.5937, 78.9629}
	var raw []Event
	for i := 0; i < 60; i++ {
		lat := float64((i*37)%170) - 85
		lon := float64((i*91)%360) - 180
		raw = append(raw, Event{ID: string(rune('A' + i)), Latitude: &lat, Longitude: &lon, Time: int64((i * 7919) % 101)})
	}
	raw = append(raw, Event{ID: "no-coords", Time: 50})

	const radius = 5000.0
	got := Rank(Annotate(raw, observer), observer, radius)
	require.Len(t, got, len(raw))

	seenOutside := false
	for i, e := range got {
		in := InRadius(e, radius)
		if !in {
			seenOutside = true
		}
		assert.False(t, in && seenOutside, "in-radius event %s after an outside event", e.ID)

		if i > 0 && InRadius(got[i-1], radius) == in {
			assert.GreaterOrEqual(t, got[i-1].Time, e.Time, "recency within partition at %d", i)
		}
	}
}

func TestRank_RadiusWidening(t *testing.T) {
	observer := &Point{0, 0}
	events := Annotate([]Event{
		equatorEvent("far", 12000, 3),
		equatorEvent("mid", 6000, 1),
		equatorEvent("near", 100, 2),
	}, observer)

	narrow := Rank(events, observer, 2500)
	assert.Equal(t, []string{"near", "far", "mid"}, ids(narrow))

	wide := Rank(events, observer, 10000)
	assert.Equal(t, []string{"near", "mid", "far"}, ids(wide), "mid moves ahead of the still-farther event")
}

func TestCountInRadius(t *testing.T) {
	events := []AnnotatedEvent{
		{DistanceKm: ptr(10)},
		{DistanceKm: ptr(1000)},
		{DistanceKm: ptr(1001)},
		{},
	}
	assert.Equal(t, 2, CountInRadius(events, 1000))
}

func TestCountByRisk(t *testing.T) {
	events := []AnnotatedEvent{
		{Event: Event{Risk: RiskHigh}},
		{Event: Event{Risk: RiskLow}},
		{Event: Event{Risk: RiskLow}},
	}
	counts := CountByRisk(events)
	assert.Equal(t, 1, counts[RiskHigh])
	assert.Equal(t, 2, counts[RiskLow])
	assert.Zero(t, counts[RiskMedium])
}
