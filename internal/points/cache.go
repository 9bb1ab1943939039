package points

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ticketly/internal/logger"
)

const balanceTTL = 10 * time.Minute

// Cache mirrors the advisory balance into Redis so read-heavy callers skip
// the ledger aggregate. Misses and errors fall through to the ledger.
type Cache struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewCache(client *redis.Client, log *logger.Logger) *Cache {
	return &Cache{Client: client, Logger: log}
}

func balanceKey(userID string) string {
	return fmt.Sprintf("points:balance:%s", userID)
}

// GetBalance returns (balance, true) on a cache hit.
func (c *Cache) GetBalance(ctx context.Context, userID string) (int64, bool) {
	if c == nil || c.Client == nil {
		return 0, false
	}
	val, err := c.Client.Get(ctx, balanceKey(userID)).Int64()
	if err != nil {
		return 0, false
	}
	return val, true
}

// SetBalance is best-effort; a failed write only logs.
func (c *Cache) SetBalance(ctx context.Context, userID string, balance int64) {
	if c == nil || c.Client == nil {
		return
	}
	if err := c.Client.Set(ctx, balanceKey(userID), balance, balanceTTL).Err(); err != nil && c.Logger != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("failed to cache balance for %s: %v", userID, err))
	}
}

// Invalidate drops the cached balance after a ledger write the cache did
// not observe.
func (c *Cache) Invalidate(ctx context.Context, userID string) {
	if c == nil || c.Client == nil {
		return
	}
	if err := c.Client.Del(ctx, balanceKey(userID)).Err(); err != nil && c.Logger != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("failed to invalidate balance for %s: %v", userID, err))
	}
}
