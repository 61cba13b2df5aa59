// Package safepoint tracks whether the collector currently holds exclusive
// access to the heap. Exclusivity is structural: mutators are expected to be
// parked by the caller, the package only records and asserts it.
package safepoint

import "sync/atomic"

var depth atomic.Int32

// Begin ...
func Begin() {
	depth.Add(1)
}

// End ...
func End() {
	if depth.Add(-1) < 0 {
		panic("safepoint: End without Begin")
	}
}

// InProgress ...
func InProgress() bool {
	return depth.Load() > 0
}

// Guarantee panics with msg unless a safepoint is in progress.
func Guarantee(msg string) {
	if !InProgress() {
		panic("safepoint required: " + msg)
	}
}

// Run executes fn with the safepoint held.
func Run(fn func()) {
	Begin()
	defer End()
	fn()
}
