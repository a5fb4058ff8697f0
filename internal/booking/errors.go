// Package booking implements the slot reservation engine: checkout,
// payment confirmation, cancellation, expiry and availability, written
// once against narrow interfaces so every resource kind (garage, parking
// lot, residence) shares the same transactional guarantees.
package booking

import "errors"

// Sentinel errors forming the engine's failure taxonomy.  Handlers
// translate these into HTTP status codes; callers inside the module
// compare with errors.Is.
var (
	// ErrValidation indicates malformed input: an invalid time range,
	// a slot index above the zone capacity, or a missing field.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates an unknown resource or reservation.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the caller does not own the
	// reservation it is trying to act on.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSlotUnavailable indicates a conflicting SUCCESS reservation
	// exists for the requested slot and period.  From the confirm path
	// this is terminal for the attempt and never retried.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrAlreadyFinalized indicates confirm was called on a
	// reservation that is no longer PENDING.
	ErrAlreadyFinalized = errors.New("reservation already finalized")

	// ErrPaymentRejected indicates the payment gateway declined the
	// charge or did not answer within its deadline (fail-closed).
	ErrPaymentRejected = errors.New("payment rejected")

	// ErrInvalidTransition indicates an illegal state-machine move,
	// such as cancelling a SUCCESS reservation.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStorageConflict is returned by the store when the transaction
	// coordinator detects a write conflict (deadlock, lock wait
	// timeout).  The engine retries the whole atomic unit a bounded
	// number of times; it never escapes to callers.
	ErrStorageConflict = errors.New("storage conflict")

	// ErrStorage indicates the transaction could not commit after
	// retries were exhausted.  Surfaced to callers as retryable.
	ErrStorage = errors.New("storage failure")
)
