// Package points owns the loyalty point read-model and the point
// operations that are not part of the purchase flow itself.
package points

import (
	"context"
	"time"

	"ticketly/internal/ledger"
)

// Calculator derives a user's spendable balance from the append-only point
// ledger. The cached users.points_balance column and the Redis copy are
// advisory only; every decision reads the ledger.
type Calculator struct {
	Cache *Cache
}

func NewCalculator(cache *Cache) *Calculator {
	return &Calculator{Cache: cache}
}

// EffectiveBalance = max(0, sum(non-expired EARN/REFERRAL/ROLLBACK_REDEEM)
// + sum(all REDEEM)). Pass the store bound to the surrounding transaction
// when the result gates a write: read balance, validate redemption and
// write the REDEEM entry must share one atomic scope.
func (c *Calculator) EffectiveBalance(ctx context.Context, store *ledger.Store, userID string, now time.Time) (int64, error) {
	pos, err := store.SumActivePositive(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	neg, err := store.SumRedeemed(ctx, userID)
	if err != nil {
		return 0, err
	}
	balance := pos + neg
	if balance < 0 {
		balance = 0
	}
	return balance, nil
}

// RefreshBalanceCache recomputes the balance, writes it to the user row
// inside the given store scope and mirrors it to Redis best-effort.
// Returns the fresh balance.
func (c *Calculator) RefreshBalanceCache(ctx context.Context, store *ledger.Store, userID string, now time.Time) (int64, error) {
	balance, err := c.EffectiveBalance(ctx, store, userID, now)
	if err != nil {
		return 0, err
	}
	if err := store.UpdateUserBalance(ctx, userID, balance); err != nil {
		return 0, err
	}
	if c.Cache != nil {
		c.Cache.SetBalance(ctx, userID, balance)
	}
	return balance, nil
}
