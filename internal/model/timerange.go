package model

import "time"

// TimeRange is a half-open interval [From, To).  All overlap and
// availability logic in the application works with half-open semantics so
// that two bookings touching at an endpoint (one ending exactly when the
// other begins) do not conflict.
//
// Fields:
//
//	From – start instant (inclusive).
//	To   – end instant (exclusive).  Must be strictly after From.
type TimeRange struct {
	From time.Time // inclusive start
	To   time.Time // exclusive end
}

// Valid reports whether the range is well formed, i.e. From is strictly
// before To.  Zero-length and inverted ranges are invalid.
func (r TimeRange) Valid() bool {
	return r.From.Before(r.To)
}

// Overlaps reports whether two ranges share at least one instant under
// half-open semantics: r and o overlap iff r.From < o.To && o.From < r.To.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.From.Before(o.To) && o.From.Before(r.To)
}

// WholeHours returns the number of complete hours the range spans,
// truncating any partial hour.  A 90 minute range yields 1; a 45 minute
// range yields 0.
func (r TimeRange) WholeHours() int64 {
	return int64(r.To.Sub(r.From) / time.Hour)
}
