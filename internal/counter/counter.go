// Package counter implements the writer's process-local monotonic
// counters: the temp_index sequence that makes every temporary
// directory name unique, and the lock-free event counters surfaced on
// the admin metrics endpoint.
package counter

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"mergetree-writer/internal/logging"
)

// TempIndex is a process-local monotonic counter: every call to Next
// returns a value higher than any value previously returned in this
// process, used as the suffix that keeps two parts started in the same
// instant from colliding on name.
//
// When a Redis client is attached, Next also increments a shared Redis
// counter as a mirror. The returned value always comes from the local
// atomic counter, so values are unique only within one process; Redis
// failures are logged and never block an insert.
type TempIndex struct {
	local  atomic.Int64
	redis  *redis.Client
	key    string
	logger logging.Logger
}

// NewTempIndex returns a counter seeded at start. rdb may be nil, in
// which case the counter is purely process-local.
func NewTempIndex(start int64, rdb *redis.Client, key string, logger logging.Logger) *TempIndex {
	c := &TempIndex{redis: rdb, key: key, logger: logger}
	c.local.Store(start)
	return c
}

// Next returns the next value in the sequence.
func (c *TempIndex) Next(ctx context.Context) int64 {
	v := c.local.Add(1)
	if c.redis != nil {
		if err := c.redis.Incr(ctx, c.key).Err(); err != nil {
			c.logger.Warn("temp index redis mirror failed", "error", err.Error())
		}
	}
	return v
}

// Load returns the current value without advancing it.
func (c *TempIndex) Load() int64 {
	return c.local.Load()
}

// EventCounters are lock-free accumulators for the admin metrics
// endpoint: counts of parts written, rows inserted, and rejections by
// kind, incremented from the hot insert path without a mutex.
type EventCounters struct {
	PartsWritten      atomic.Int64
	RowsInserted      atomic.Int64
	TooManyPartsCount atomic.Int64
	ReservationFails  atomic.Int64
	IOErrors          atomic.Int64
}

// Snapshot is a point-in-time read of EventCounters suitable for
// serializing onto the metrics endpoint.
type Snapshot struct {
	PartsWritten      int64 `json:"parts_written"`
	RowsInserted      int64 `json:"rows_inserted"`
	TooManyPartsCount int64 `json:"too_many_parts_count"`
	ReservationFails  int64 `json:"reservation_fails"`
	IOErrors          int64 `json:"io_errors"`
}

// Snapshot reads every counter without blocking writers.
func (c *EventCounters) Snapshot() Snapshot {
	return Snapshot{
		PartsWritten:      c.PartsWritten.Load(),
		RowsInserted:      c.RowsInserted.Load(),
		TooManyPartsCount: c.TooManyPartsCount.Load(),
		ReservationFails:  c.ReservationFails.Load(),
		IOErrors:          c.IOErrors.Load(),
	}
}
