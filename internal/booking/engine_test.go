package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spotmarket/slot-reservation/internal/model"
	"github.com/spotmarket/slot-reservation/internal/pricing"
)

// memStore is an in-memory Store.  WithSlotLock serialises callers on a
// per-key mutex and, like the SQL implementation, rolls back every row
// change made inside the unit when fn returns an error.
type memStore struct {
	mu           sync.Mutex
	rows         map[string]*model.Reservation
	locks        map[string]*sync.Mutex
	lockFailures int // WithSlotLock returns ErrStorageConflict this many times
}

func newMemStore() *memStore {
	return &memStore{
		rows:  make(map[string]*model.Reservation),
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *memStore) CreateReservation(_ context.Context, r *model.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	cp := *r
	m.rows[r.ID] = &cp
	return nil
}

func (m *memStore) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: reservation %s", ErrNotFound, id)
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListByCustomer(_ context.Context, customerID uint64) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Reservation
	for _, r := range m.rows {
		if r.CustomerID == customerID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) HasConflict(_ context.Context, resourceID uint64, slotKey string, period model.TimeRange, statuses []model.ReservationStatus, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[model.ReservationStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	for _, r := range m.rows {
		if r.ID == excludeID || r.ResourceID != resourceID || r.SlotKey != slotKey {
			continue
		}
		if want[r.Status] && r.Period.Overlaps(period) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CountOverlappingByZone(_ context.Context, resourceID uint64, period model.TimeRange) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range m.rows {
		if r.ResourceID == resourceID && r.Status == model.StatusSuccess && r.Period.Overlaps(period) {
			counts[r.ZoneCode]++
		}
	}
	return counts, nil
}

func (m *memStore) FinalizeReservation(_ context.Context, id string, status model.ReservationStatus, paymentRef *string, paidAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("%w: reservation %s", ErrNotFound, id)
	}
	r.Status = status
	r.PaymentRef = paymentRef
	r.PaidAt = paidAt
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) FailStalePending(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.Status == model.StatusPending && r.CreatedAt.Before(cutoff) {
			r.Status = model.StatusFailed
			n++
		}
	}
	return n, nil
}

func (m *memStore) WithSlotLock(ctx context.Context, lockKey string, fn func(ctx context.Context, s Store) error) error {
	m.mu.Lock()
	if m.lockFailures > 0 {
		m.lockFailures--
		m.mu.Unlock()
		return fmt.Errorf("%w: injected", ErrStorageConflict)
	}
	lk, ok := m.locks[lockKey]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[lockKey] = lk
	}
	m.mu.Unlock()
	lk.Lock()
	defer lk.Unlock()

	// Snapshot for rollback: an fn error must leave the rows exactly as
	// they were, matching the SQL coordinator's transaction.
	m.mu.Lock()
	before := make(map[string]*model.Reservation, len(m.rows))
	for id, r := range m.rows {
		cp := *r
		before[id] = &cp
	}
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.rows = before
		m.mu.Unlock()
		return err
	}
	return nil
}

// staticProvider returns one fixed resource for every lookup.
type staticProvider struct{ res *model.Resource }

func (p staticProvider) GetByID(_ context.Context, id uint64) (*model.Resource, error) {
	if p.res == nil || p.res.ID != id {
		return nil, fmt.Errorf("%w: resource %d", ErrNotFound, id)
	}
	return p.res, nil
}

// gatewayFunc adapts a function to PaymentGateway.
type gatewayFunc func(ctx context.Context, ref string, amount int64) error

func (f gatewayFunc) Charge(ctx context.Context, ref string, amount int64) error {
	return f(ctx, ref, amount)
}

func acceptAll(context.Context, string, int64) error { return nil }

// couponFunc adapts a function to CouponValidator.
type couponFunc func(ctx context.Context, code string, customerID uint64) (pricing.CouponOutcome, error)

func (f couponFunc) Validate(ctx context.Context, code string, customerID uint64) (pricing.CouponOutcome, error) {
	return f(ctx, code, customerID)
}

func testResource() *model.Resource {
	return &model.Resource{
		ID:               1,
		OwnerID:          9,
		Kind:             model.KindGarage,
		Name:             "Central Garage",
		RatePerHourCents: 500,
		Is24x7:           true,
		CapacityByZone:   map[string]uint32{"A": 1, "B": 5},
		IsActive:         true,
	}
}

func newTestEngine(store *memStore, gw PaymentGateway) *Engine {
	if gw == nil {
		gw = gatewayFunc(acceptAll)
	}
	return New(store, staticProvider{res: testResource()}, gw, nil, 15*time.Minute)
}

func hour(h int) time.Time {
	return time.Date(2025, 6, 1, h, 0, 0, 0, time.UTC)
}

func checkoutAt(t *testing.T, e *Engine, customer uint64, from, to int) *model.Reservation {
	t.Helper()
	r, err := e.Checkout(context.Background(), CheckoutInput{
		ResourceID: 1,
		Zone:       "A",
		Index:      1,
		Period:     model.TimeRange{From: hour(from), To: hour(to)},
		CustomerID: customer,
	})
	if err != nil {
		t.Fatalf("checkout [%d,%d) for customer %d: %v", from, to, customer, err)
	}
	return r
}

func TestCheckoutCreatesPending(t *testing.T) {
	e := newTestEngine(newMemStore(), nil)
	r := checkoutAt(t, e, 100, 10, 12)
	if r.Status != model.StatusPending {
		t.Errorf("status = %s, want PENDING", r.Status)
	}
	if r.SlotKey != "A 0001" {
		t.Errorf("slot key = %q, want %q", r.SlotKey, "A 0001")
	}
	if r.Pricing.AmountDueCents != 1000 {
		t.Errorf("amount due = %d, want 1000 (2h * 500)", r.Pricing.AmountDueCents)
	}
	if r.ID == "" {
		t.Error("reservation ID not assigned")
	}
}

func TestCheckoutValidation(t *testing.T) {
	e := newTestEngine(newMemStore(), nil)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CheckoutInput
		want error
	}{
		{
			"inverted period",
			CheckoutInput{ResourceID: 1, Zone: "A", Index: 1, CustomerID: 1,
				Period: model.TimeRange{From: hour(12), To: hour(10)}},
			ErrValidation,
		},
		{
			"index above zone capacity",
			CheckoutInput{ResourceID: 1, Zone: "A", Index: 2, CustomerID: 1,
				Period: model.TimeRange{From: hour(10), To: hour(12)}},
			ErrValidation,
		},
		{
			"unknown zone",
			CheckoutInput{ResourceID: 1, Zone: "Z", Index: 1, CustomerID: 1,
				Period: model.TimeRange{From: hour(10), To: hour(12)}},
			ErrValidation,
		},
		{
			"lowercase zone",
			CheckoutInput{ResourceID: 1, Zone: "a", Index: 1, CustomerID: 1,
				Period: model.TimeRange{From: hour(10), To: hour(12)}},
			ErrValidation,
		},
		{
			"unknown resource",
			CheckoutInput{ResourceID: 77, Zone: "A", Index: 1, CustomerID: 1,
				Period: model.TimeRange{From: hour(10), To: hour(12)}},
			ErrNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.Checkout(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

// Two customers may hold overlapping PENDING reservations; the first to
// confirm wins the slot and the loser gets ErrSlotUnavailable.
func TestConfirmOverlapLoserRejected(t *testing.T) {
	e := newTestEngine(newMemStore(), nil)
	ctx := context.Background()

	x := checkoutAt(t, e, 100, 10, 12)
	y := checkoutAt(t, e, 200, 11, 13) // overlapping checkout does not block

	got, err := e.Confirm(ctx, x.ID, "txn_x")
	if err != nil {
		t.Fatalf("confirm X: %v", err)
	}
	if got.Status != model.StatusSuccess || got.PaymentRef == nil || *got.PaymentRef != "txn_x" {
		t.Fatalf("confirm X returned %+v", got)
	}

	if _, err := e.Confirm(ctx, y.ID, "txn_y"); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("confirm Y err = %v, want ErrSlotUnavailable", err)
	}
	// The loser stays PENDING so the customer can cancel or rebook.
	after, err := e.store.GetReservation(ctx, y.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != model.StatusPending {
		t.Errorf("loser status = %s, want PENDING", after.Status)
	}
}

// Touching endpoints do not conflict under half-open semantics.
func TestConfirmAdjacentPeriodsBothSucceed(t *testing.T) {
	e := newTestEngine(newMemStore(), nil)
	ctx := context.Background()

	a := checkoutAt(t, e, 100, 9, 10)
	b := checkoutAt(t, e, 200, 10, 11)

	if _, err := e.Confirm(ctx, a.ID, "txn_a"); err != nil {
		t.Fatalf("confirm [9,10): %v", err)
	}
	if _, err := e.Confirm(ctx, b.ID, "txn_b"); err != nil {
		t.Fatalf("confirm [10,11): %v", err)
	}
}

func TestConfirmTwiceAlreadyFinalized(t *testing.T) {
	e := newTestEngine(newMemStore(), nil)
	ctx := context.Background()

	r := checkoutAt(t, e, 100, 10, 12)
	if _, err := e.Confirm(ctx, r.ID, "txn_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Confirm(ctx, r.ID, "txn_2"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("second confirm err = %v, want ErrAlreadyFinalized", err)
	}
	after, _ := e.store.GetReservation(ctx, r.ID)
	if after.PaymentRef == nil || *after.PaymentRef != "txn_1" {
		t.Errorf("payment ref changed by failed second confirm: %+v", after.PaymentRef)
	}
}

// N concurrent confirms with pairwise-overlapping periods on one slot:
// exactly one wins, every other caller sees ErrSlotUnavailable.
func TestConfirmConcurrentSingleWinner(t *testing.T) {
	e := newTestEngine(newMemStore(), nil)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		// [10+i, 20+i) all overlap each other.
		r, err := e.Checkout(ctx, CheckoutInput{
			ResourceID: 1, Zone: "A", Index: 1, CustomerID: uint64(100 + i),
			Period: model.TimeRange{From: hour(10 + i), To: hour(20 + i)},
		})
		if err != nil {
			t.Fatalf("checkout %d: %v", i, err)
		}
		ids[i] = r.ID
	}

	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.Confirm(ctx, ids[i], fmt.Sprintf("txn_%d", i))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotUnavailable):
			losses++
		default:
			t.Errorf("unexpected confirm error: %v", err)
		}
	}
	if wins != 1 || losses != n-1 {
		t.Fatalf("wins = %d, losses = %d, want 1 and %d", wins, losses, n-1)
	}
}

func TestConfirmPaymentRejectedLeavesPending(t *testing.T) {
	declined := gatewayFunc(func(context.Context, string, int64) error {
		return errors.New("card declined")
	})
	e := newTestEngine(newMemStore(), declined)
	ctx := context.Background()

	r := checkoutAt(t, e, 100, 10, 12)
	if _, err := e.Confirm(ctx, r.ID, "txn_bad"); !errors.Is(err, ErrPaymentRejected) {
		t.Fatalf("err = %v, want ErrPaymentRejected", err)
	}
	after, _ := e.store.GetReservation(ctx, r.ID)
	if after.Status != model.StatusPending {
		t.Errorf("status = %s, want PENDING after rejected payment", after.Status)
	}
}

func TestConfirmRetriesStorageConflict(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(store, nil)
	ctx := context.Background()

	r := checkoutAt(t, e, 100, 10, 12)
	store.lockFailures = 2 // both retry budget uses, then succeed
	got, err := e.Confirm(ctx, r.ID, "txn_retry")
	if err != nil {
		t.Fatalf("confirm after transient conflicts: %v", err)
	}
	if got.Status != model.StatusSuccess {
		t.Errorf("status = %s, want SUCCESS", got.Status)
	}

	// Exhausted retries surface ErrStorage.
	r2 := checkoutAt(t, e, 200, 14, 15)
	store.lockFailures = confirmAttempts
	if _, err := e.Confirm(ctx, r2.ID, "txn_fail"); !errors.Is(err, ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage after retry exhaustion", err)
	}
}

func TestConfirmUnknownReservation(t *testing.T) {
	e := newTestEngine(newMemStore(), nil)
	if _, err := e.Confirm(context.Background(), "no-such-id", "txn"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCancel(t *testing.T) {
	e := newTestEngine(newMemStore(), nil)
	ctx := context.Background()

	r := checkoutAt(t, e, 100, 10, 12)

	if _, err := e.Cancel(ctx, r.ID, 999); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("cancel by stranger err = %v, want ErrUnauthorized", err)
	}

	got, err := e.Cancel(ctx, r.ID, 100)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Errorf("status = %s, want FAILED", got.Status)
	}

	// Cancelling again is a no-op, not an error.
	if _, err := e.Cancel(ctx, r.ID, 100); err != nil {
		t.Errorf("second cancel: %v", err)
	}

	// A paid reservation cannot be cancelled.
	paid := checkoutAt(t, e, 100, 14, 16)
	if _, err := e.Confirm(ctx, paid.ID, "txn_p"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Cancel(ctx, paid.ID, 100); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel paid err = %v, want ErrInvalidTransition", err)
	}
}

func TestExpireIdempotent(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(store, nil)
	ctx := context.Background()

	r := checkoutAt(t, e, 100, 10, 12)

	// Not yet stale: expire leaves it PENDING.
	got, err := e.Expire(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("fresh reservation expired: %s", got.Status)
	}

	// Move the clock past the hold TTL.
	e.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	got, err = e.Expire(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}

	// Second expire: same end state, no error.
	again, err := e.Expire(ctx, r.ID)
	if err != nil {
		t.Fatalf("second expire: %v", err)
	}
	if again.Status != model.StatusFailed {
		t.Errorf("status = %s, want FAILED", again.Status)
	}
}

func TestExpireStaleBatch(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(store, nil)
	ctx := context.Background()

	old := checkoutAt(t, e, 100, 10, 12)
	confirmed := checkoutAt(t, e, 200, 14, 16)
	if _, err := e.Confirm(ctx, confirmed.ID, "txn_c"); err != nil {
		t.Fatal(err)
	}

	e.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	n, err := e.ExpireStale(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expired %d rows, want 1", n)
	}
	after, _ := store.GetReservation(ctx, old.ID)
	if after.Status != model.StatusFailed {
		t.Errorf("stale pending status = %s, want FAILED", after.Status)
	}
	kept, _ := store.GetReservation(ctx, confirmed.ID)
	if kept.Status != model.StatusSuccess {
		t.Errorf("confirmed reservation touched by expiry: %s", kept.Status)
	}
}

func TestAvailability(t *testing.T) {
	e := newTestEngine(newMemStore(), nil)
	ctx := context.Background()

	r := checkoutAt(t, e, 100, 10, 12)
	if _, err := e.Confirm(ctx, r.ID, "txn_a"); err != nil {
		t.Fatal(err)
	}

	// Overlapping window: zone A's single slot is taken.
	got, err := e.Availability(ctx, 1, model.TimeRange{From: hour(11), To: hour(13)})
	if err != nil {
		t.Fatal(err)
	}
	if got.AvailableByZone["A"] != 0 {
		t.Errorf("zone A availability = %d, want 0", got.AvailableByZone["A"])
	}
	if got.AvailableByZone["B"] != 5 {
		t.Errorf("zone B availability = %d, want 5", got.AvailableByZone["B"])
	}
	if !got.Open {
		t.Error("24x7 resource reported closed")
	}

	// Disjoint window: everything free again.
	got, err = e.Availability(ctx, 1, model.TimeRange{From: hour(12), To: hour(14)})
	if err != nil {
		t.Fatal(err)
	}
	if got.AvailableByZone["A"] != 1 {
		t.Errorf("zone A availability = %d, want 1 for non-overlapping window", got.AvailableByZone["A"])
	}
}

func TestCheckoutAppliesCoupon(t *testing.T) {
	store := newMemStore()
	coupons := couponFunc(func(_ context.Context, code string, _ uint64) (pricing.CouponOutcome, error) {
		if code == "DISC10" {
			return pricing.CouponOutcome{Valid: true, DiscountFraction: 0.10}, nil
		}
		return pricing.CouponOutcome{}, errors.New("unknown coupon")
	})
	e := New(store, staticProvider{res: testResource()}, gatewayFunc(acceptAll), coupons, 15*time.Minute)
	ctx := context.Background()

	r, err := e.Checkout(ctx, CheckoutInput{
		ResourceID: 1, Zone: "A", Index: 1, CustomerID: 100,
		Period:     model.TimeRange{From: hour(10), To: hour(12)},
		CouponCode: "DISC10",
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Pricing.DiscountCents != 100 || r.Pricing.AmountDueCents != 900 {
		t.Errorf("coupon pricing = %+v", r.Pricing)
	}
	if r.CouponCode == nil || *r.CouponCode != "DISC10" {
		t.Errorf("coupon code not recorded: %v", r.CouponCode)
	}

	// Unknown coupon: no discount, checkout still succeeds.
	r, err = e.Checkout(ctx, CheckoutInput{
		ResourceID: 1, Zone: "B", Index: 1, CustomerID: 100,
		Period:     model.TimeRange{From: hour(10), To: hour(12)},
		CouponCode: "NOPE",
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Pricing.DiscountCents != 0 || r.CouponCode != nil {
		t.Errorf("unknown coupon applied: %+v, code %v", r.Pricing, r.CouponCode)
	}
}

// A hold that outlives its TTL cannot be paid; confirm fails it on the
// spot instead of waiting for the background sweep.
func TestConfirmExpiredHoldFails(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(store, nil)
	ctx := context.Background()
	r := checkoutAt(t, e, 100, 10, 12)

	e.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	if _, err := e.Confirm(ctx, r.ID, "txn_late"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("err = %v, want ErrAlreadyFinalized", err)
	}
	after, err := store.GetReservation(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != model.StatusFailed {
		t.Errorf("status = %s, want FAILED", after.Status)
	}
}
