// Package pricing computes the charge for a reservation from its period,
// the resource's hourly rate and an optional coupon outcome.  The
// calculation is a pure function of its inputs so it can be re-run and
// audited; no clock or storage access happens here.
package pricing

import (
	"log"
	"math"

	"github.com/spotmarket/slot-reservation/internal/model"
)

// CouponOutcome is the result of validating a coupon code against the
// coupon subsystem.  The engine only consumes the produced fraction; the
// business rules that decide validity live elsewhere.
//
// Fields:
//
//	Valid            – whether the coupon applies.
//	DiscountFraction – fraction of the base amount to deduct, e.g. 0.10.
type CouponOutcome struct {
	Valid            bool
	DiscountFraction float64
}

// Quote prices a period at the given hourly rate.  Billing is by whole
// hours elapsed (partial hours are not charged), matching the
// pay-for-hours-consumed policy.  When a valid coupon outcome is
// supplied, its fraction of the base amount is deducted.  AmountDueCents
// is clamped at zero; a discount exceeding the base amount indicates a
// misconfigured coupon and is logged.
func Quote(period model.TimeRange, ratePerHourCents int64, coupon *CouponOutcome) model.Pricing {
	hours := period.WholeHours()
	base := hours * ratePerHourCents
	var discount int64
	if coupon != nil && coupon.Valid {
		discount = int64(math.Round(float64(base) * coupon.DiscountFraction))
	}
	due := base - discount
	if due < 0 {
		log.Printf("pricing: discount %d exceeds base %d, clamping amount due to 0", discount, base)
		due = 0
	}
	return model.Pricing{
		BaseAmountCents: base,
		DiscountCents:   discount,
		AmountDueCents:  due,
	}
}
