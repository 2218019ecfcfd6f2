package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LeaseCache hands out short-lived per-report scrape leases so that at most
// one execution pages the provider for a report at a time. The lease is an
// optimization, not a correctness lock: ingestion stays idempotent without it.
type LeaseCache interface {
	Acquire(ctx context.Context, reportID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, reportID string) error
}

type leaseCache struct {
	client *redis.Client
}

// NewLeaseCache creates a new lease cache
func NewLeaseCache(client *redis.Client) LeaseCache {
	return &leaseCache{client: client}
}

func (c *leaseCache) key(reportID string) string {
	return fmt.Sprintf("report:%s:scrape_lease", reportID)
}

func (c *leaseCache) Acquire(ctx context.Context, reportID string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, c.key(reportID), 1, ttl).Result()
}

func (c *leaseCache) Release(ctx context.Context, reportID string) error {
	return c.client.Del(ctx, c.key(reportID)).Err()
}
