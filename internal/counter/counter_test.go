package counter

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"mergetree-writer/internal/logging"
)

func TestTempIndexMonotonic(t *testing.T) {
	c := NewTempIndex(0, nil, "", &logging.NoOpLogger{})
	ctx := context.Background()
	var prev int64
	for i := 0; i < 100; i++ {
		v := c.Next(ctx)
		assert.Greater(t, v, prev)
		prev = v
	}
}

func TestTempIndexConcurrentUnique(t *testing.T) {
	c := NewTempIndex(0, nil, "", &logging.NoOpLogger{})
	ctx := context.Background()
	const n = 200
	seen := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- c.Next(ctx)
		}()
	}
	wg.Wait()
	close(seen)

	values := make(map[int64]bool, n)
	for v := range seen {
		assert.False(t, values[v], "duplicate temp index value %d", v)
		values[v] = true
	}
	assert.Len(t, values, n)
}

func TestEventCountersSnapshot(t *testing.T) {
	var c EventCounters
	c.PartsWritten.Add(3)
	c.RowsInserted.Add(150)
	c.TooManyPartsCount.Add(1)

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap.PartsWritten)
	assert.Equal(t, int64(150), snap.RowsInserted)
	assert.Equal(t, int64(1), snap.TooManyPartsCount)
}
