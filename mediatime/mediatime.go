// Package mediatime implements the rational presentation-time type shared by
// every stage of the playback pipeline: demuxed packets, decoded frames, the
// shared clock and the render sessions all exchange timestamps as a Time
// value rather than a bare duration, so that precision is never lost to an
// arbitrary fixed timebase.
package mediatime

import "fmt"

// Time is a rational timestamp: Value/Scale seconds. Scale is always > 0 for
// a valid Time; a zero Scale marks Invalid.
type Time struct {
	Value int64
	Scale uint32
}

// Sentinels.
var (
	// Invalid marks "no timestamp" / "unknown".
	Invalid = Time{Value: 0, Scale: 0}
	// Begin is the start of the timeline.
	Begin = Time{Value: 0, Scale: 1}
	// End marks "past the end of stream".
	End = Time{Value: 1, Scale: 0}
)

// New builds a Time from value/scale. Scale must not be 0; use Invalid for that.
func New(value int64, scale uint32) Time {
	if scale == 0 {
		return Invalid
	}
	return Time{Value: value, Scale: scale}
}

// FromMicroseconds builds a Time with a microsecond timebase.
func FromMicroseconds(us int64) Time {
	return Time{Value: us, Scale: 1000000}
}

// FromSeconds builds a Time with a microsecond timebase from a float.
func FromSeconds(s float64) Time {
	return Time{Value: int64(s * 1000000), Scale: 1000000}
}

// IsValid reports whether t carries a real timestamp.
func (t Time) IsValid() bool { return t.Scale != 0 }

// Seconds returns t as floating-point seconds. Invalid returns 0.
func (t Time) Seconds() float64 {
	if !t.IsValid() {
		return 0
	}
	return float64(t.Value) / float64(t.Scale)
}

// Microseconds returns t rescaled to a 1e6 timebase, truncating any
// fractional microsecond. Invalid returns 0.
func (t Time) Microseconds() int64 {
	if !t.IsValid() {
		return 0
	}
	if t.Scale == 1000000 {
		return t.Value
	}
	return t.Value * 1000000 / int64(t.Scale)
}

func gcd(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

func lcm(a, b uint32) uint32 {
	g := gcd(int64(a), int64(b))
	return uint32(int64(a) / g * int64(b))
}

// reduce divides out the gcd of Value and Scale so equal rationals compare
// and print identically regardless of how they were derived.
func reduce(value int64, scale uint32) Time {
	if value == 0 {
		return Time{Value: 0, Scale: 1}
	}
	g := gcd(value, int64(scale))
	if g > 1 {
		value /= g
		scale = uint32(int64(scale) / g)
	}
	return Time{Value: value, Scale: scale}
}

// Add returns t+o, rescaling both to their least common timebase.
func (t Time) Add(o Time) Time {
	if !t.IsValid() || !o.IsValid() {
		return Invalid
	}
	s := lcm(t.Scale, o.Scale)
	v := t.Value*int64(s/t.Scale) + o.Value*int64(s/o.Scale)
	return reduce(v, s)
}

// Sub returns t-o, rescaling both to their least common timebase.
func (t Time) Sub(o Time) Time {
	if !t.IsValid() || !o.IsValid() {
		return Invalid
	}
	s := lcm(t.Scale, o.Scale)
	v := t.Value*int64(s/t.Scale) - o.Value*int64(s/o.Scale)
	return reduce(v, s)
}

// Compare returns -1, 0 or 1 as t is less than, equal to, or greater than o,
// computed by cross-multiplication so no rescaling is needed.
func (t Time) Compare(o Time) int {
	lhs := t.Value * int64(o.Scale)
	rhs := o.Value * int64(t.Scale)
	switch {
	case lhs < rhs:
		return -1
	case lhs > rhs:
		return 1
	default:
		return 0
	}
}

func (t Time) Equal(o Time) bool        { return t.IsValid() == o.IsValid() && (!t.IsValid() || t.Compare(o) == 0) }
func (t Time) Less(o Time) bool         { return t.IsValid() && o.IsValid() && t.Compare(o) < 0 }
func (t Time) LessEqual(o Time) bool    { return t.IsValid() && o.IsValid() && t.Compare(o) <= 0 }
func (t Time) Greater(o Time) bool      { return t.IsValid() && o.IsValid() && t.Compare(o) > 0 }
func (t Time) GreaterEqual(o Time) bool { return t.IsValid() && o.IsValid() && t.Compare(o) >= 0 }

func (t Time) String() string {
	if !t.IsValid() {
		return "Time(invalid)"
	}
	return fmt.Sprintf("Time(%d/%d=%.6fs)", t.Value, t.Scale, t.Seconds())
}
