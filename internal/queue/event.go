// Package queue defines message payloads exchanged over the message broker.
package queue

// BookingConfirmedEvent is published when a reservation is paid and
// confirmed.  It carries enough information for downstream consumers to
// log, notify, or feed analytics without querying the primary database.
type BookingConfirmedEvent struct {
	ReservationID  string `json:"reservation_id"`
	CustomerID     uint64 `json:"customer_id"`
	ResourceID     uint64 `json:"resource_id"`
	ResourceName   string `json:"resource_name"`
	SlotKey        string `json:"slot_key"`
	PeriodFrom     string `json:"period_from"`
	PeriodTo       string `json:"period_to"`
	AmountDueCents int64  `json:"amount_due_cents"`
	ConfirmedAt    string `json:"confirmed_at"`
}
