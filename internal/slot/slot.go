// Package slot encodes physical slot identities to and from their
// canonical string keys.  A slot is one bookable unit inside a zone of a
// resource; the key is the value stored on reservations and used for
// equality queries, so the encoding must be injective over the valid
// domain.
package slot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// MaxIndex is the highest slot index a zone may declare.
const MaxIndex = 1000

// ErrInvalidSlot is returned by Encode when the zone code or index falls
// outside the valid domain.
var ErrInvalidSlot = errors.New("invalid slot")

// ErrMalformedKey is returned by Decode when the string does not match
// the canonical key pattern.
var ErrMalformedKey = errors.New("malformed slot key")

// zonePattern matches valid zone codes: one to three uppercase ASCII letters.
var zonePattern = regexp.MustCompile(`^[A-Z]{1,3}$`)

// keyPattern matches canonical keys: zone code, a single space, and a
// four digit zero-padded index.
var keyPattern = regexp.MustCompile(`^([A-Z]{1,3}) (\d{4})$`)

// Slot identifies one physical unit: a zone code plus a 1-based index
// within that zone.  The index ceiling against the zone's declared
// capacity is enforced by the booking engine, not here; this package only
// guards the encodable domain.
type Slot struct {
	Zone  string
	Index uint32
}

// New validates the pair and returns a Slot.  It fails with
// ErrInvalidSlot when the zone does not match ^[A-Z]{1,3}$ or the index
// is outside [1, MaxIndex].
func New(zone string, index uint32) (Slot, error) {
	if !zonePattern.MatchString(zone) {
		return Slot{}, fmt.Errorf("%w: zone %q", ErrInvalidSlot, zone)
	}
	if index < 1 || index > MaxIndex {
		return Slot{}, fmt.Errorf("%w: index %d out of range [1,%d]", ErrInvalidSlot, index, MaxIndex)
	}
	return Slot{Zone: zone, Index: index}, nil
}

// Encode returns the canonical key for the slot, e.g. ("A", 7) -> "A 0007".
// The zero-padded fixed-width index keeps keys lexicographically ordered
// within a zone and makes the encoding injective.
func Encode(zone string, index uint32) (string, error) {
	s, err := New(zone, index)
	if err != nil {
		return "", err
	}
	return s.Key(), nil
}

// Key returns the canonical key of an already-validated slot.
func (s Slot) Key() string {
	return fmt.Sprintf("%s %04d", s.Zone, s.Index)
}

// Decode parses a canonical key back into its slot.  It fails with
// ErrMalformedKey when the string does not match the expected pattern or
// the embedded index is outside the valid range.
func Decode(key string) (Slot, error) {
	m := keyPattern.FindStringSubmatch(key)
	if m == nil {
		return Slot{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	n, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil || n < 1 || n > MaxIndex {
		return Slot{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return Slot{Zone: m[1], Index: uint32(n)}, nil
}
