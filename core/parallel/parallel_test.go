package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelizeCoversRange(t *testing.T) {
	for _, tc := range []struct{ items, workers int }{
		{0, 4}, {1, 4}, {7, 3}, {100, 0}, {100, 1}, {5, 10},
	} {
		seen := make([]int32, tc.items)
		Parallelize(tc.items, tc.workers, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, n := range seen {
			assert.Equal(t, int32(1), n, "items=%d workers=%d index=%d", tc.items, tc.workers, i)
		}
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	var mu sync.Mutex
	var calls [][2]int
	ParallelizeWithThreshold(10, 50, func(start, end int) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, [2]int{start, end})
	})
	assert.Equal(t, [][2]int{{0, 10}}, calls)

	calls = nil
	ParallelizeWithThreshold(0, 50, func(start, end int) {
		calls = append(calls, [2]int{start, end})
	})
	assert.Empty(t, calls)
}
