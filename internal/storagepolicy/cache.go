package storagepolicy

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mergetree-writer/internal/logging"
)

// freeSpaceCache is the collaborator Reserver consults before hitting a
// volume's live DiskUsage call. Redis unavailability or a cache miss is
// never a reservation failure; it only costs a live lookup.
type freeSpaceCache interface {
	Get(ctx context.Context, volume string) (free int64, ok bool)
	Set(ctx context.Context, volume string, free int64)
}

// NoCache disables caching; every lookup goes straight to the volume.
type NoCache struct{}

func (NoCache) Get(context.Context, string) (int64, bool) { return 0, false }
func (NoCache) Set(context.Context, string, int64)        {}

// RedisFreeSpaceCache mirrors free-space readings in Redis with a short
// TTL: reads are best-effort and a Redis error degrades to a cache miss
// rather than an error, keeping Redis an optimization rather than a
// dependency of reservation correctness.
type RedisFreeSpaceCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger logging.Logger
}

// NewRedisFreeSpaceCache builds a cache backed by client, with entries
// expiring after ttl.
func NewRedisFreeSpaceCache(client *redis.Client, ttl time.Duration, logger logging.Logger) *RedisFreeSpaceCache {
	return &RedisFreeSpaceCache{client: client, prefix: "mergetree:freespace:", ttl: ttl, logger: logger}
}

func (c *RedisFreeSpaceCache) Get(ctx context.Context, volume string) (int64, bool) {
	val, err := c.client.Get(ctx, c.prefix+volume).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("free space cache read failed", "volume", volume, "error", err.Error())
		}
		return 0, false
	}
	free, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return free, true
}

func (c *RedisFreeSpaceCache) Set(ctx context.Context, volume string, free int64) {
	if err := c.client.Set(ctx, c.prefix+volume, free, c.ttl).Err(); err != nil {
		c.logger.Warn("free space cache write failed", "volume", volume, "error", err.Error())
	}
}
