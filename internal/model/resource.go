package model

import "time"

// ResourceKind names the category of a bookable resource.  All kinds share
// the same reservation engine; the kind is descriptive data, never a
// dispatch tag.
type ResourceKind string

const (
	KindGarage    ResourceKind = "GARAGE"
	KindParking   ResourceKind = "PARKING"
	KindResidence ResourceKind = "RESIDENCE"
)

// ValidKind reports whether k is one of the supported resource kinds.
func ValidKind(k ResourceKind) bool {
	switch k {
	case KindGarage, KindParking, KindResidence:
		return true
	}
	return false
}

// DayWindow describes the opening window of a resource on one weekday.
// Times are "HH:MM" strings in the resource's local convention.  When
// Is24Hours is set the Open/Close times are ignored for that day.
//
// Fields:
//
//	Day       – three letter weekday code (SUN..SAT).
//	IsOpen    – whether the resource opens at all on this day.
//	OpenTime  – opening time, "HH:MM" (unused when Is24Hours).
//	CloseTime – closing time, "HH:MM" (unused when Is24Hours).
//	Is24Hours – open for the whole day.
type DayWindow struct {
	Day       string `json:"day"`
	IsOpen    bool   `json:"is_open"`
	OpenTime  string `json:"open_time,omitempty"`
	CloseTime string `json:"close_time,omitempty"`
	Is24Hours bool   `json:"is_24_hours"`
}

// Resource is a bookable property (garage, parking lot or residence)
// registered by a merchant.  Its zones partition the physical space into
// groups of interchangeable slots with a shared capacity; individual
// slots are derived from CapacityByZone rather than stored as rows.
// This struct corresponds to a row in the `resources` table joined with
// its `resource_zones` rows.
//
// Fields:
//
//	ID               – primary key identifier.
//	OwnerID          – merchant user ID owning the resource.
//	Kind             – GARAGE, PARKING or RESIDENCE.
//	Name             – display name.
//	Address          – street address.
//	ContactNumber    – merchant contact number.
//	RatePerHourCents – hourly rental rate in cents.
//	Is24x7           – open around the clock; overrides OpeningHours.
//	OpeningHours     – per-day opening windows.
//	CapacityByZone   – zone code -> number of slots in that zone.
//	IsActive         – whether the resource accepts bookings.
//	CreatedAt        – creation timestamp.
//	UpdatedAt        – last update timestamp.
type Resource struct {
	ID               uint64            // resources.id
	OwnerID          uint64            // resources.owner_id
	Kind             ResourceKind      // resources.kind
	Name             string            // resources.name
	Address          string            // resources.address
	ContactNumber    string            // resources.contact_number
	RatePerHourCents int64             // resources.rate_per_hour_cents
	Is24x7           bool              // resources.is_24x7
	OpeningHours     []DayWindow       // resources.opening_hours (JSON)
	CapacityByZone   map[string]uint32 // resource_zones rows
	IsActive         bool              // resources.is_active
	CreatedAt        time.Time         // resources.created_at
	UpdatedAt        time.Time         // resources.updated_at
}

// Capacity returns the declared slot count for the given zone, or zero
// when the zone does not exist on this resource.
func (r *Resource) Capacity(zone string) uint32 {
	return r.CapacityByZone[zone]
}

// OpenAt reports whether the resource is open at the given instant.  A
// 24x7 resource is always open.  Otherwise the weekday's window is
// consulted; a missing or closed window means the resource is closed.
// Open/close times are compared as "HH:MM" strings, which orders
// correctly for zero-padded 24h clock values.
func (r *Resource) OpenAt(t time.Time) bool {
	if r.Is24x7 {
		return true
	}
	day := weekdayCode(t.UTC().Weekday())
	for _, w := range r.OpeningHours {
		if w.Day != day {
			continue
		}
		if !w.IsOpen {
			return false
		}
		if w.Is24Hours {
			return true
		}
		hm := t.UTC().Format("15:04")
		return w.OpenTime <= hm && hm < w.CloseTime
	}
	return false
}

// weekdayCode maps time.Weekday to the three letter codes stored in
// opening-hours windows.
func weekdayCode(d time.Weekday) string {
	switch d {
	case time.Sunday:
		return "SUN"
	case time.Monday:
		return "MON"
	case time.Tuesday:
		return "TUE"
	case time.Wednesday:
		return "WED"
	case time.Thursday:
		return "THU"
	case time.Friday:
		return "FRI"
	case time.Saturday:
		return "SAT"
	}
	return ""
}
