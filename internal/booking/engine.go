package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/spotmarket/slot-reservation/internal/model"
	"github.com/spotmarket/slot-reservation/internal/pricing"
	"github.com/spotmarket/slot-reservation/internal/slot"
)

// confirmAttempts bounds how many times the confirm unit is re-executed
// after a detected storage conflict before surfacing ErrStorage.
const confirmAttempts = 3

// Store is the persistence contract the engine runs against.  The SQL
// implementation lives in internal/repository; tests substitute an
// in-memory store.  Implementations must map "row absent" conditions to
// ErrNotFound and transaction write conflicts to ErrStorageConflict.
type Store interface {
	// CreateReservation inserts a new reservation row and fills in
	// storage-assigned timestamps.
	CreateReservation(ctx context.Context, r *model.Reservation) error

	// GetReservation loads a reservation by ID, ErrNotFound if absent.
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)

	// ListByCustomer returns all reservations of a customer, newest first.
	ListByCustomer(ctx context.Context, customerID uint64) ([]model.Reservation, error)

	// HasConflict reports whether any reservation on (resourceID,
	// slotKey) with a status in statuses overlaps period, excluding the
	// reservation with excludeID (empty string excludes nothing).
	HasConflict(ctx context.Context, resourceID uint64, slotKey string, period model.TimeRange, statuses []model.ReservationStatus, excludeID string) (bool, error)

	// CountOverlappingByZone counts SUCCESS reservations overlapping
	// period for every zone of the resource in one pass.
	CountOverlappingByZone(ctx context.Context, resourceID uint64, period model.TimeRange) (map[string]int, error)

	// FinalizeReservation moves a reservation to a terminal status.
	FinalizeReservation(ctx context.Context, id string, status model.ReservationStatus, paymentRef *string, paidAt *time.Time) error

	// FailStalePending marks every PENDING reservation created before
	// cutoff as FAILED and returns how many rows changed.
	FailStalePending(ctx context.Context, cutoff time.Time) (int64, error)

	// WithSlotLock runs fn inside a transaction while holding an
	// exclusive advisory lock named lockKey.  The Store passed to fn is
	// bound to that transaction; any error from fn rolls it back and is
	// returned unchanged.
	WithSlotLock(ctx context.Context, lockKey string, fn func(ctx context.Context, s Store) error) error
}

// ResourceProvider supplies resource metadata (capacity per zone, rate,
// opening hours).  It is consulted on every request so rate or capacity
// changes take effect immediately; implementations must not cache.
type ResourceProvider interface {
	GetByID(ctx context.Context, id uint64) (*model.Resource, error)
}

// PaymentGateway charges a payment reference for an amount.  Calls must
// be bounded in time; a timeout is an error and the engine treats every
// gateway error as a rejected payment.
type PaymentGateway interface {
	Charge(ctx context.Context, paymentRef string, amountCents int64) error
}

// CouponValidator resolves a coupon code for a customer into a discount
// outcome.  An error or an invalid outcome simply yields no discount.
type CouponValidator interface {
	Validate(ctx context.Context, code string, customerID uint64) (pricing.CouponOutcome, error)
}

// Engine binds the reservation state machine to its collaborators.  One
// engine serves all resource kinds.
type Engine struct {
	store     Store
	resources ResourceProvider
	gateway   PaymentGateway
	coupons   CouponValidator // may be nil; no discounts then
	holdTTL   time.Duration   // how long a PENDING reservation is kept before expiry
	now       func() time.Time
}

// New constructs an Engine.  store, resources and gateway must be
// non-nil; coupons may be nil to disable discounts.  holdTTL controls
// when unpaid PENDING reservations become eligible for expiry.
func New(store Store, resources ResourceProvider, gateway PaymentGateway, coupons CouponValidator, holdTTL time.Duration) *Engine {
	if store == nil || resources == nil || gateway == nil {
		panic("nil dependency passed to booking.New")
	}
	return &Engine{
		store:     store,
		resources: resources,
		gateway:   gateway,
		coupons:   coupons,
		holdTTL:   holdTTL,
		now:       time.Now,
	}
}

// SlotLockKey names the advisory lock serialising confirms for one
// physical slot.
func SlotLockKey(resourceID uint64, slotKey string) string {
	return fmt.Sprintf("slot:%d:%s", resourceID, slotKey)
}

// CheckoutInput carries everything a customer supplies to start a
// reservation.
type CheckoutInput struct {
	ResourceID    uint64
	Zone          string
	Index         uint32
	Period        model.TimeRange
	CustomerID    uint64
	CouponCode    string
	VehicleNumber string
}

// Checkout creates a PENDING reservation for one slot and period.  It
// validates the slot against the resource's declared capacity, runs an
// advisory conflict check against confirmed reservations, prices the
// period and writes the new row.  The conflict check here is best-effort
// early rejection only: concurrent checkouts may create overlapping
// PENDING reservations, and only Confirm decides ownership.
func (e *Engine) Checkout(ctx context.Context, in CheckoutInput) (*model.Reservation, error) {
	if !in.Period.Valid() {
		return nil, fmt.Errorf("%w: booking period start must be before end", ErrValidation)
	}
	s, err := slot.New(in.Zone, in.Index)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	res, err := e.resources.GetByID(ctx, in.ResourceID)
	if err != nil {
		return nil, err
	}
	if !res.IsActive {
		return nil, fmt.Errorf("%w: resource is not accepting bookings", ErrValidation)
	}
	capacity := res.Capacity(s.Zone)
	if capacity == 0 || s.Index > capacity {
		return nil, fmt.Errorf("%w: slot %s exceeds zone capacity %d", ErrValidation, s.Key(), capacity)
	}

	// Advisory read, no lock: a stale answer is acceptable because
	// Confirm re-checks inside the transaction coordinator.
	conflict, err := e.store.HasConflict(ctx, in.ResourceID, s.Key(), in.Period, []model.ReservationStatus{model.StatusSuccess}, "")
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, fmt.Errorf("%w: slot %s is booked for the requested period", ErrSlotUnavailable, s.Key())
	}

	var outcome *pricing.CouponOutcome
	if in.CouponCode != "" && e.coupons != nil {
		o, err := e.coupons.Validate(ctx, in.CouponCode, in.CustomerID)
		if err != nil {
			// Unknown or invalid coupon: proceed without a discount.
			log.Printf("booking: coupon %q not applied: %v", in.CouponCode, err)
		} else {
			outcome = &o
		}
	}
	quote := pricing.Quote(in.Period, res.RatePerHourCents, outcome)

	r := &model.Reservation{
		ID:         uuid.NewString(),
		ResourceID: in.ResourceID,
		ZoneCode:   s.Zone,
		SlotKey:    s.Key(),
		CustomerID: in.CustomerID,
		Period:     in.Period,
		Pricing:    quote,
		Status:     model.StatusPending,
	}
	if in.CouponCode != "" && outcome != nil && outcome.Valid {
		code := in.CouponCode
		r.CouponCode = &code
	}
	if in.VehicleNumber != "" {
		v := in.VehicleNumber
		r.VehicleNumber = &v
	}
	if err := e.store.CreateReservation(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Confirm is the authoritative gate deciding slot ownership.  The
// conflict re-check, the gateway charge and the SUCCESS write execute as
// one atomic unit under a per-slot advisory lock, so among concurrent
// confirms for overlapping periods on the same slot at most one can
// succeed; the rest observe ErrSlotUnavailable.  A detected storage
// conflict re-executes the whole unit from the read step, a bounded
// number of times.
func (e *Engine) Confirm(ctx context.Context, reservationID, paymentRef string) (*model.Reservation, error) {
	if paymentRef == "" {
		return nil, fmt.Errorf("%w: payment reference is required", ErrValidation)
	}
	for attempt := 1; ; attempt++ {
		r, err := e.confirmOnce(ctx, reservationID, paymentRef)
		if !errors.Is(err, ErrStorageConflict) {
			return r, err
		}
		if attempt >= confirmAttempts {
			return nil, fmt.Errorf("%w: confirm conflicted %d times", ErrStorage, attempt)
		}
		log.Printf("booking: confirm %s hit a write conflict (attempt %d/%d), retrying", reservationID, attempt, confirmAttempts)
	}
}

func (e *Engine) confirmOnce(ctx context.Context, reservationID, paymentRef string) (*model.Reservation, error) {
	// Cheap pre-checks outside the lock; both are re-validated inside.
	r, err := e.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrAlreadyFinalized, r.Status)
	}

	var confirmed *model.Reservation
	var expired bool
	err = e.store.WithSlotLock(ctx, SlotLockKey(r.ResourceID, r.SlotKey), func(ctx context.Context, s Store) error {
		cur, err := s.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusPending {
			return fmt.Errorf("%w: status is %s", ErrAlreadyFinalized, cur.Status)
		}
		if e.now().UTC().After(cur.CreatedAt.Add(e.holdTTL)) {
			// The hold aged out before payment arrived.  Fail it here
			// rather than waiting for the background sweep.  The unit
			// must return nil so the FAILED write commits; the caller's
			// error is raised outside the lock.
			expired = true
			return s.FinalizeReservation(ctx, cur.ID, model.StatusFailed, nil, nil)
		}
		conflict, err := s.HasConflict(ctx, cur.ResourceID, cur.SlotKey, cur.Period, []model.ReservationStatus{model.StatusSuccess}, cur.ID)
		if err != nil {
			return err
		}
		if conflict {
			// A concurrent winner already holds the interval; this
			// reservation stays PENDING for the caller to retry
			// elsewhere or cancel.
			return fmt.Errorf("%w: a confirmed booking overlaps this period", ErrSlotUnavailable)
		}
		if err := e.gateway.Charge(ctx, paymentRef, cur.Pricing.AmountDueCents); err != nil {
			return fmt.Errorf("%w: %s", ErrPaymentRejected, err)
		}
		now := e.now().UTC()
		ref := paymentRef
		if err := s.FinalizeReservation(ctx, cur.ID, model.StatusSuccess, &ref, &now); err != nil {
			return err
		}
		cur.Status = model.StatusSuccess
		cur.PaymentRef = &ref
		cur.PaidAt = &now
		cur.UpdatedAt = now
		confirmed = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, fmt.Errorf("%w: hold expired before payment", ErrAlreadyFinalized)
	}
	return confirmed, nil
}

// Cancel moves a customer's own PENDING reservation to FAILED.  A
// reservation that is already FAILED is left untouched (idempotent);
// cancelling a paid SUCCESS reservation is an illegal transition.
func (e *Engine) Cancel(ctx context.Context, reservationID string, customerID uint64) (*model.Reservation, error) {
	r, err := e.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.CustomerID != customerID {
		return nil, fmt.Errorf("%w: reservation belongs to another customer", ErrUnauthorized)
	}
	switch r.Status {
	case model.StatusFailed:
		return r, nil
	case model.StatusSuccess:
		return nil, fmt.Errorf("%w: cannot cancel a paid reservation", ErrInvalidTransition)
	}
	if err := e.store.FinalizeReservation(ctx, r.ID, model.StatusFailed, nil, nil); err != nil {
		return nil, err
	}
	r.Status = model.StatusFailed
	return r, nil
}

// Expire moves one stale PENDING reservation to FAILED.  It is a no-op
// on reservations already in a terminal state and on PENDING
// reservations still inside their hold window, so repeated or concurrent
// runs are safe.  PENDING never held the slot, so nothing is released.
func (e *Engine) Expire(ctx context.Context, reservationID string) (*model.Reservation, error) {
	r, err := e.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return r, nil
	}
	if e.now().UTC().Before(r.CreatedAt.Add(e.holdTTL)) {
		return r, nil
	}
	if err := e.store.FinalizeReservation(ctx, r.ID, model.StatusFailed, nil, nil); err != nil {
		return nil, err
	}
	r.Status = model.StatusFailed
	return r, nil
}

// ExpireStale fails every PENDING reservation older than the hold TTL in
// one pass.  Used by the background expiry worker.
func (e *Engine) ExpireStale(ctx context.Context) (int64, error) {
	cutoff := e.now().UTC().Add(-e.holdTTL)
	return e.store.FailStalePending(ctx, cutoff)
}

// Availability reports how many slots remain free per zone of a resource
// over a period, plus whether the resource is currently open.  The
// answer is derived by counting confirmed reservations, never from a
// maintained counter, and may be stale by the time a client acts on it;
// Confirm remains the authoritative check.
type Availability struct {
	AvailableByZone map[string]int
	Open            bool
}

func (e *Engine) Availability(ctx context.Context, resourceID uint64, period model.TimeRange) (*Availability, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("%w: period start must be before end", ErrValidation)
	}
	res, err := e.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	taken, err := e.store.CountOverlappingByZone(ctx, resourceID, period)
	if err != nil {
		return nil, err
	}
	avail := make(map[string]int, len(res.CapacityByZone))
	for zone, capacity := range res.CapacityByZone {
		n := int(capacity) - taken[zone]
		if n < 0 {
			// The overlap invariant should make this impossible.
			log.Printf("booking: zone %s of resource %d reports negative availability (%d)", zone, resourceID, n)
			n = 0
		}
		avail[zone] = n
	}
	return &Availability{AvailableByZone: avail, Open: res.OpenAt(e.now())}, nil
}

// Reservation returns a reservation visible to its owner.
func (e *Engine) Reservation(ctx context.Context, reservationID string, customerID uint64) (*model.Reservation, error) {
	r, err := e.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.CustomerID != customerID {
		return nil, fmt.Errorf("%w: reservation belongs to another customer", ErrUnauthorized)
	}
	return r, nil
}

// ReservationsByCustomer lists a customer's reservations, newest first.
func (e *Engine) ReservationsByCustomer(ctx context.Context, customerID uint64) ([]model.Reservation, error) {
	return e.store.ListByCustomer(ctx, customerID)
}
