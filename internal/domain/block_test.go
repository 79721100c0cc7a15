package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockTracker_StaleUntilRefreshed(t *testing.T) {
	tr := NewBlockTracker()
	tr.Observe(100)
	assert.Equal(t, BlockContext{Number: 100, Stale: true}, tr.Snapshot())

	assert.True(t, tr.MarkRefreshed(100))
	assert.Equal(t, BlockContext{Number: 100, Stale: false}, tr.Snapshot())

	tr.Observe(101)
	assert.True(t, tr.Snapshot().Stale)
}

func TestBlockTracker_Monotonic(t *testing.T) {
	tr := NewBlockTracker()
	tr.Observe(50)
	tr.Observe(40)
	assert.Equal(t, uint64(50), tr.Snapshot().Number)

	assert.True(t, tr.MarkRefreshed(50))
	assert.False(t, tr.MarkRefreshed(50), "second refresh at the same block is rejected")
	assert.False(t, tr.MarkRefreshed(49))
	assert.Equal(t, uint64(50), tr.LastRefreshed())
}

func TestBlockTracker_ConcurrentObserve(t *testing.T) {
	tr := NewBlockTracker()
	var wg sync.WaitGroup
	for i := 1; i <= 64; i++ {
		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			tr.Observe(n)
		}(uint64(i))
	}
	wg.Wait()
	assert.Equal(t, uint64(64), tr.Snapshot().Number)
}
