package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spotmarket/slot-reservation/internal/pricing"
)

// CouponRepo resolves coupon codes against the coupons table and
// implements booking.CouponValidator.
type CouponRepo struct {
	db *sql.DB
}

// NewCouponRepo returns a new CouponRepo bound to the given database.
func NewCouponRepo(db *sql.DB) *CouponRepo { return &CouponRepo{db: db} }

// Validate looks up an active coupon by code and returns its discount as
// a fraction of the base amount.  An unknown or inactive code yields an
// error; the caller treats that as "no discount".
func (r *CouponRepo) Validate(ctx context.Context, code string, customerID uint64) (pricing.CouponOutcome, error) {
	const q = `SELECT discount_percent FROM coupons WHERE code = ? AND is_active = 1`
	var pct float64
	err := r.db.QueryRowContext(ctx, q, code).Scan(&pct)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pricing.CouponOutcome{}, fmt.Errorf("coupon %q not found or inactive", code)
		}
		return pricing.CouponOutcome{}, mapStorageErr(err)
	}
	if pct <= 0 || pct > 100 {
		return pricing.CouponOutcome{}, fmt.Errorf("coupon %q has out-of-range discount %.2f", code, pct)
	}
	return pricing.CouponOutcome{Valid: true, DiscountFraction: pct / 100}, nil
}
