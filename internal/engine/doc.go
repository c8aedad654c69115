// Package engine keeps the displayed event set consistent across snapshot
// fetches, stream pushes, sensor readings, manual relocation, and radius
// changes.
//
// All triggers run under one mutex and each performs annotate, rank, and
// replace as a single step; readers see whole views via View or Subscribe.
// Calls to collaborators happen outside the lock and the observer is re-read
// afterwards. After Close, late results are ignored.
package engine
