package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spotmarket/slot-reservation/internal/booking"
	"github.com/spotmarket/slot-reservation/internal/model"
)

// slotLockWaitSecs bounds how long GET_LOCK waits for a contended slot
// lock before the attempt is reported as a storage conflict.
const slotLockWaitSecs = 5

// releaseLockTimeout bounds the RELEASE_LOCK round trip issued while the
// unit unwinds.
const releaseLockTimeout = 2 * time.Second

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// letting every query method run either standalone or inside the
// transaction opened by WithSlotLock.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReservationRepo provides persistence for reservations and implements
// booking.Store.  A repo is either bound to the pool or, when handed to
// a WithSlotLock callback, to the transaction holding the per-slot
// advisory lock.  All timestamps are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
	tx *sql.Tx // non-nil when transaction-bound
}

// NewReservationRepo returns a ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

func (r *ReservationRepo) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// DB exposes the underlying pool for wiring.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

// CreateReservation inserts a new reservation row.  The caller supplies
// the UUID; the database assigns created_at/updated_at, which are read
// back onto the struct.
func (r *ReservationRepo) CreateReservation(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations
	           (id, resource_id, zone_code, slot_key, customer_id, period_from, period_to,
	            base_amount_cents, discount_cents, amount_due_cents, coupon_code, vehicle_number, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q().ExecContext(ctx, q,
		res.ID, res.ResourceID, res.ZoneCode, res.SlotKey, res.CustomerID,
		res.Period.From.UTC(), res.Period.To.UTC(),
		res.Pricing.BaseAmountCents, res.Pricing.DiscountCents, res.Pricing.AmountDueCents,
		res.CouponCode, res.VehicleNumber, string(res.Status),
	)
	if err != nil {
		return mapStorageErr(err)
	}
	// Query back the row to populate database-assigned timestamps.
	const sel = `SELECT created_at, updated_at FROM reservations WHERE id = ?`
	if err := r.q().QueryRowContext(ctx, sel, res.ID).Scan(&res.CreatedAt, &res.UpdatedAt); err != nil {
		return mapStorageErr(err)
	}
	return nil
}

// reservationColumns is the scan order shared by every SELECT here.
const reservationColumns = `id, resource_id, zone_code, slot_key, customer_id,
	period_from, period_to, base_amount_cents, discount_cents, amount_due_cents,
	coupon_code, vehicle_number, status, payment_ref, paid_at, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
	var res model.Reservation
	var status string
	var coupon, vehicle, payRef sql.NullString
	var paidAt sql.NullTime
	err := row.Scan(
		&res.ID, &res.ResourceID, &res.ZoneCode, &res.SlotKey, &res.CustomerID,
		&res.Period.From, &res.Period.To,
		&res.Pricing.BaseAmountCents, &res.Pricing.DiscountCents, &res.Pricing.AmountDueCents,
		&coupon, &vehicle, &status, &payRef, &paidAt, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	res.Status = model.ReservationStatus(status)
	if coupon.Valid {
		c := coupon.String
		res.CouponCode = &c
	}
	if vehicle.Valid {
		v := vehicle.String
		res.VehicleNumber = &v
	}
	if payRef.Valid {
		p := payRef.String
		res.PaymentRef = &p
	}
	if paidAt.Valid {
		t := paidAt.Time
		res.PaidAt = &t
	}
	return &res, nil
}

// GetReservation loads one reservation by ID.
func (r *ReservationRepo) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	res, err := scanReservation(r.q().QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: reservation %s", booking.ErrNotFound, id)
		}
		return nil, mapStorageErr(err)
	}
	return res, nil
}

// ListByCustomer returns all reservations of one customer, newest first.
func (r *ReservationRepo) ListByCustomer(ctx context.Context, customerID uint64) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE customer_id = ? ORDER BY created_at DESC`
	rows, err := r.q().QueryContext(ctx, q, customerID)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageErr(err)
	}
	return out, nil
}

// HasConflict reports whether any reservation on (resourceID, slotKey)
// with a status in statuses overlaps the half-open period, excluding
// excludeID when non-empty.  Overlap predicate: from1 < to2 AND from2 < to1.
func (r *ReservationRepo) HasConflict(ctx context.Context, resourceID uint64, slotKey string, period model.TimeRange, statuses []model.ReservationStatus, excludeID string) (bool, error) {
	if len(statuses) == 0 {
		return false, nil
	}
	placeholders := make([]string, len(statuses))
	args := []any{resourceID, slotKey}
	for i, s := range statuses {
		placeholders[i] = "?"
		args = append(args, string(s))
	}
	q := `SELECT EXISTS(
	        SELECT 1 FROM reservations
	        WHERE resource_id = ? AND slot_key = ?
	          AND status IN (` + strings.Join(placeholders, ",") + `)
	          AND period_from < ? AND period_to > ?`
	args = append(args, period.To.UTC(), period.From.UTC())
	if excludeID != "" {
		q += ` AND id <> ?`
		args = append(args, excludeID)
	}
	q += `)`
	var exists bool
	if err := r.q().QueryRowContext(ctx, q, args...).Scan(&exists); err != nil {
		return false, mapStorageErr(err)
	}
	return exists, nil
}

// CountOverlappingByZone counts confirmed reservations overlapping the
// period, grouped by zone, in a single query.
func (r *ReservationRepo) CountOverlappingByZone(ctx context.Context, resourceID uint64, period model.TimeRange) (map[string]int, error) {
	const q = `SELECT zone_code, COUNT(*)
	           FROM reservations
	           WHERE resource_id = ? AND status = ?
	             AND period_from < ? AND period_to > ?
	           GROUP BY zone_code`
	rows, err := r.q().QueryContext(ctx, q, resourceID, string(model.StatusSuccess), period.To.UTC(), period.From.UTC())
	if err != nil {
		return nil, mapStorageErr(err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var zone string
		var n int
		if err := rows.Scan(&zone, &n); err != nil {
			return nil, err
		}
		counts[zone] = n
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageErr(err)
	}
	return counts, nil
}

// FinalizeReservation moves a PENDING reservation to a terminal status.
// The status guard in the WHERE clause makes the write safe even if a
// competing writer finalized the row first; that case surfaces as
// booking.ErrAlreadyFinalized.
func (r *ReservationRepo) FinalizeReservation(ctx context.Context, id string, status model.ReservationStatus, paymentRef *string, paidAt *time.Time) error {
	const q = `UPDATE reservations
	           SET status = ?, payment_ref = ?, paid_at = ?, updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND status = ?`
	var paid any
	if paidAt != nil {
		paid = paidAt.UTC()
	}
	result, err := r.q().ExecContext(ctx, q, string(status), paymentRef, paid, id, string(model.StatusPending))
	if err != nil {
		return mapStorageErr(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return mapStorageErr(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: reservation %s is no longer pending", booking.ErrAlreadyFinalized, id)
	}
	return nil
}

// FailStalePending fails every PENDING reservation created before cutoff.
func (r *ReservationRepo) FailStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `UPDATE reservations
	           SET status = ?, updated_at = UTC_TIMESTAMP()
	           WHERE status = ? AND created_at < ?`
	result, err := r.q().ExecContext(ctx, q, string(model.StatusFailed), string(model.StatusPending), cutoff.UTC())
	if err != nil {
		return 0, mapStorageErr(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, mapStorageErr(err)
	}
	return n, nil
}

// WithSlotLock runs fn inside a transaction while holding the named
// MySQL advisory lock (GET_LOCK).  The lock lives on the session, not
// the transaction, so a dedicated connection is pinned for the whole
// unit and the lock is only released after commit or rollback.  Two
// concurrent confirms for the same slot therefore serialize, and the
// second sees the first's committed rows.  Lock acquisition waits a
// bounded time; failure to acquire is a storage conflict the engine may
// retry.
func (r *ReservationRepo) WithSlotLock(ctx context.Context, lockKey string, fn func(ctx context.Context, s booking.Store) error) error {
	if r.tx != nil {
		return errors.New("nested WithSlotLock is not supported")
	}
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return mapStorageErr(err)
	}
	defer conn.Close()

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, lockKey, slotLockWaitSecs).Scan(&got); err != nil {
		return mapStorageErr(err)
	}
	if !got.Valid || got.Int64 != 1 {
		return fmt.Errorf("%w: could not acquire lock %s", booking.ErrStorageConflict, lockKey)
	}
	defer func() {
		// Runs after commit/rollback, before the connection returns to
		// the pool.  The release uses its own context: the request
		// context may already be canceled (client disconnect mid-unit),
		// and releasing with it would silently return a pooled session
		// that still holds the lock, stalling every later confirm for
		// this slot until the connection ages out.
		rctx, cancel := context.WithTimeout(context.Background(), releaseLockTimeout)
		defer cancel()
		var released sql.NullInt64
		if err := conn.QueryRowContext(rctx, `SELECT RELEASE_LOCK(?)`, lockKey).Scan(&released); err != nil {
			// Could not confirm the release; poison the session so the
			// pool discards it and MySQL frees the lock with it.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return mapStorageErr(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	bound := &ReservationRepo{db: r.db, tx: tx}
	if err := fn(ctx, bound); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapStorageErr(err)
	}
	committed = true
	return nil
}
