package model

import "time"

// ReservationStatus is the payment/lifecycle state of a reservation.
// The only legal transitions are PENDING -> SUCCESS and PENDING ->
// FAILED; both targets are terminal.
type ReservationStatus string

const (
	StatusPending ReservationStatus = "PENDING"
	StatusSuccess ReservationStatus = "SUCCESS"
	StatusFailed  ReservationStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s ReservationStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal
// state-machine step.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	return s == StatusPending && (next == StatusSuccess || next == StatusFailed)
}

// Pricing captures the charge breakdown computed at checkout time.  The
// amounts are locked when the reservation is created; confirm charges
// AmountDueCents as persisted, regardless of later rate changes.
//
// Fields:
//
//	BaseAmountCents – whole hours * hourly rate.
//	DiscountCents   – coupon discount applied to the base amount.
//	AmountDueCents  – base minus discount, never negative.
type Pricing struct {
	BaseAmountCents int64 `json:"base_amount_cents"`
	DiscountCents   int64 `json:"discount_cents"`
	AmountDueCents  int64 `json:"amount_due_cents"`
}

// Reservation is a customer's claim on one slot of a resource for a
// time range.  A reservation is created in PENDING state by checkout and
// only holds the slot once a payment confirmation moves it to SUCCESS.
// SUCCESS rows are never deleted; they are the audit trail and the
// uniqueness axis for the overlap invariant: no two SUCCESS reservations
// for the same (ResourceID, SlotKey) may have overlapping periods.
// This struct corresponds to a row in the `reservations` table.
//
// Fields:
//
//	ID            – opaque UUID assigned at creation.
//	ResourceID    – owning resource.
//	ZoneCode      – zone portion of the slot, denormalised for grouping.
//	SlotKey       – canonical slot key (see internal/slot).
//	CustomerID    – user who made the reservation.
//	Period        – rental interval, half-open.
//	Pricing       – charge breakdown locked at checkout.
//	CouponCode    – coupon applied at checkout, if any.
//	VehicleNumber – optional vehicle registration supplied at checkout.
//	Status        – PENDING, SUCCESS or FAILED.
//	PaymentRef    – gateway transaction reference once confirmed.
//	PaidAt        – when payment was confirmed.
//	CreatedAt     – creation timestamp.
//	UpdatedAt     – last update timestamp.
type Reservation struct {
	ID            string            // reservations.id
	ResourceID    uint64            // reservations.resource_id
	ZoneCode      string            // reservations.zone_code
	SlotKey       string            // reservations.slot_key
	CustomerID    uint64            // reservations.customer_id
	Period        TimeRange         // reservations.period_from / period_to
	Pricing       Pricing           // reservations.*_cents
	CouponCode    *string           // reservations.coupon_code (nullable)
	VehicleNumber *string           // reservations.vehicle_number (nullable)
	Status        ReservationStatus // reservations.status
	PaymentRef    *string           // reservations.payment_ref (nullable)
	PaidAt        *time.Time        // reservations.paid_at (nullable)
	CreatedAt     time.Time         // reservations.created_at
	UpdatedAt     time.Time         // reservations.updated_at
}
