// Package pricing computes the payable amount of a purchase from the base
// price, quantity, an optional coupon discount and requested point
// redemption. All amounts are integers in the smallest currency unit.
package pricing

import (
	"ticketly/internal/apperror"
)

// Quote is the resolved breakdown of a purchase.
type Quote struct {
	BasePrice      int64 `json:"base_price"`
	Qty            int64 `json:"qty"`
	BaseTotal      int64 `json:"base_total"`
	CouponDiscount int64 `json:"coupon_discount"`
	PointsApplied  int64 `json:"points_applied"`
	Total          int64 `json:"total"`
}

// Resolve applies the pricing rules in order: coupon first, then points.
// Points can never exceed what is owed after the coupon, never exceed the
// caller's effective balance and never exceed the amount requested. A
// negative unit price or discount is a configuration error and fails the
// whole operation rather than silently rounding.
func Resolve(unitPrice, qty, couponDiscount, requestedPoints, availableBalance int64) (Quote, error) {
	if unitPrice < 0 {
		return Quote{}, apperror.Validation("invalid ticket price: price must be a non-negative integer")
	}
	if qty < 1 {
		return Quote{}, apperror.Validation("qty must be at least 1")
	}
	if couponDiscount < 0 {
		return Quote{}, apperror.Validation("invalid discount amount: must be a non-negative integer")
	}
	if requestedPoints < 0 {
		return Quote{}, apperror.Validation("points_used must be an integer and >= 0")
	}

	baseTotal := unitPrice * qty
	payableAfterCoupon := max64(0, baseTotal-couponDiscount)
	pointsApplied := min64(requestedPoints, min64(availableBalance, payableAfterCoupon))
	if pointsApplied < 0 {
		pointsApplied = 0
	}

	return Quote{
		BasePrice:      unitPrice,
		Qty:            qty,
		BaseTotal:      baseTotal,
		CouponDiscount: couponDiscount,
		PointsApplied:  pointsApplied,
		Total:          max64(0, payableAfterCoupon-pointsApplied),
	}, nil
}

// EarnedPoints is the loyalty award for a paid transaction:
// floor((baseTotal - couponDiscount) / 1000), never negative.
func EarnedPoints(baseTotal, couponDiscount int64) int64 {
	paid := max64(0, baseTotal-couponDiscount)
	return paid / 1000
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
