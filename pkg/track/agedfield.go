// Package track maintains the canonical per-target aircraft state derived
// from decoded downlink messages, and the timestamped optional-value
// primitive the state model is built from.
package track

// Clock returns the current time in milliseconds since the Unix epoch.
// Components take a Clock so tests can drive time explicitly.
type Clock func() uint64

// StaleMillis is the age beyond which a field value is treated as unknown
// for reporting decisions.
const StaleMillis = 30000

// AgedField wraps an optional value with the time its content last changed
// and the time an update (changed or not) was last received.
//
// Invariant: Changed() <= Updated() <= now for every update sequence, and
// Valid() is false until the first update arrives.
type AgedField[T comparable] struct {
	value   T
	valid   bool
	changed uint64
	updated uint64
}

// Update records a received value. The changed stamp moves only when the
// value differs from the current one (or on the first update).
func (f *AgedField[T]) Update(v T, now uint64) {
	if !f.valid || f.value != v {
		f.changed = now
	}
	f.value = v
	f.valid = true
	f.updated = now
}

// Valid reports whether any update has arrived.
func (f AgedField[T]) Valid() bool { return f.valid }

// Value returns the current value. The zero value is returned before the
// first update; callers gate on Valid.
func (f AgedField[T]) Value() T { return f.value }

// Changed returns the time the content last changed, 0 if never updated.
func (f AgedField[T]) Changed() uint64 { return f.changed }

// Updated returns the time an update was last received, 0 if never updated.
func (f AgedField[T]) Updated() uint64 { return f.updated }

// UpdateAge returns now minus the last update time. A field that has never
// been updated reports the maximum age so staleness checks treat it as
// unknown.
func (f AgedField[T]) UpdateAge(now uint64) uint64 {
	if !f.valid {
		return ^uint64(0)
	}
	if now < f.updated {
		return 0
	}
	return now - f.updated
}

// Stale reports whether the value should be treated as unknown because no
// update has been received within StaleMillis.
func (f AgedField[T]) Stale(now uint64) bool {
	return f.UpdateAge(now) >= StaleMillis
}
