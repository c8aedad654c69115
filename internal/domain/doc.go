// Package domain models disaster events (earthquakes) and the pure parts of
// keeping a distance-ranked view of them.
//
// # Event Payloads
//
// Both the snapshot endpoint and the push stream deliver batches of events as
// JSON arrays. Each element carries:
//
//	place      display label, e.g. "12 km SSW of Searles Valley, CA"
//	magnitude  numeric severity
//	depth      kilometers
//	time       epoch milliseconds, used for recency ordering
//	latitude   degrees, may be absent or invalid
//	longitude  degrees, may be absent or invalid
//	risk       High, Medium or Low, classified upstream
//
// Risk classification happens upstream (magnitude >= 6 High, >= 4.5 Medium,
// otherwise Low). Unrecognized labels are kept as Unknown rather than dropped.
// Any distance_km sent upstream is ignored: distance depends on the observer
// and is always recomputed locally. See [ParseEvents].
//
// # Observer
//
// The observer is an optional [Point]. A nil observer means "no location
// known", which is distinct from an observer standing at (0, 0).
//
// # Distance
//
// [DistanceKm] is the haversine great-circle distance on a sphere of radius
// 6371 km. Events without usable coordinates get no distance at all, never a
// zero distance.
//
// # Ranking
//
// [Rank] puts events within the search radius first and everything else after,
// sorting each group by time with the most recent first. Without an observer
// it sorts by time only. Outside events are kept so that widening the radius
// needs no new fetch.
package domain
