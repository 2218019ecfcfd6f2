package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Budget resources with independent rate windows
const (
	ResourceScoring   = "scoring"
	ResourceSynthesis = "synthesis"
)

// BudgetCache enforces the cooperative rate budgets shared by all workers.
// The counters live in Redis, not process memory, because independent
// executions must draw from the same budget.
type BudgetCache interface {
	// TryAcquire consumes one unit of the resource's fixed window. Returns
	// false when the window is exhausted; callers wait and retry rather
	// than dropping work.
	TryAcquire(ctx context.Context, resource string, limit int, window time.Duration) (bool, error)
}

type budgetCache struct {
	client *redis.Client
}

// NewBudgetCache creates a new budget cache
func NewBudgetCache(client *redis.Client) BudgetCache {
	return &budgetCache{client: client}
}

func (c *budgetCache) key(resource string, window time.Duration) string {
	slot := time.Now().Unix() / int64(window.Seconds())
	return fmt.Sprintf("budget:%s:%d", resource, slot)
}

func (c *budgetCache) TryAcquire(ctx context.Context, resource string, limit int, window time.Duration) (bool, error) {
	key := c.key(resource, window)

	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		// First consumer of this window sets the expiry; a second expire
		// after a lost race is harmless.
		c.client.Expire(ctx, key, window+time.Second)
	}
	return count <= int64(limit), nil
}
