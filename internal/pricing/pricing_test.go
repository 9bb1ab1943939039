package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ticketly/internal/pricing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name            string
		unitPrice       int64
		qty             int64
		couponDiscount  int64
		requestedPoints int64
		balance         int64
		wantTotal       int64
		wantPoints      int64
	}{
		{
			name:      "plain purchase",
			unitPrice: 100, qty: 2,
			wantTotal: 200, wantPoints: 0,
		},
		{
			name:      "coupon discount",
			unitPrice: 100, qty: 2, couponDiscount: 50,
			wantTotal: 150, wantPoints: 0,
		},
		{
			name:      "points clamped to balance",
			unitPrice: 100, qty: 2, couponDiscount: 50,
			requestedPoints: 50, balance: 30,
			wantTotal: 120, wantPoints: 30,
		},
		{
			name:      "points clamped to payable",
			unitPrice: 10, qty: 1,
			requestedPoints: 500, balance: 500,
			wantTotal: 0, wantPoints: 10,
		},
		{
			name:      "coupon larger than total",
			unitPrice: 10, qty: 2, couponDiscount: 100,
			wantTotal: 0, wantPoints: 0,
		},
		{
			name:      "points on fully discounted purchase",
			unitPrice: 10, qty: 1, couponDiscount: 10,
			requestedPoints: 5, balance: 5,
			wantTotal: 0, wantPoints: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := pricing.Resolve(tt.unitPrice, tt.qty, tt.couponDiscount, tt.requestedPoints, tt.balance)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantTotal, quote.Total)
			assert.Equal(t, tt.wantPoints, quote.PointsApplied)
			assert.Equal(t, tt.unitPrice*tt.qty, quote.BaseTotal)
		})
	}
}

func TestResolveRejectsInvalidInput(t *testing.T) {
	_, err := pricing.Resolve(-1, 1, 0, 0, 0)
	assert.Error(t, err)

	_, err = pricing.Resolve(100, 0, 0, 0, 0)
	assert.Error(t, err)

	_, err = pricing.Resolve(100, 1, -5, 0, 0)
	assert.Error(t, err)

	_, err = pricing.Resolve(100, 1, 0, -5, 0)
	assert.Error(t, err)
}

func TestEarnedPoints(t *testing.T) {
	assert.Equal(t, int64(0), pricing.EarnedPoints(999, 0))
	assert.Equal(t, int64(1), pricing.EarnedPoints(1000, 0))
	assert.Equal(t, int64(1), pricing.EarnedPoints(1999, 0))
	assert.Equal(t, int64(1), pricing.EarnedPoints(2500, 1000))
	assert.Equal(t, int64(0), pricing.EarnedPoints(500, 1000))
}
