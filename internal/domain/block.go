package domain

import "sync"

// BlockContext is passed into every detection call. Stale is true when the
// reserve snapshot was taken at an older block than Number.
type BlockContext struct {
	Number uint64
	Stale  bool
}

// BlockTracker holds the latest observed block and the block the reserve
// snapshot was last refreshed at. Both only move forward.
type BlockTracker struct {
	mu            sync.RWMutex
	latest        uint64
	lastRefreshed uint64
}

// NewBlockTracker returns a tracker with nothing observed.
func NewBlockTracker() *BlockTracker {
	return &BlockTracker{}
}

// Observe records a new head. Older heads are ignored.
func (t *BlockTracker) Observe(number uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if number > t.latest {
		t.latest = number
	}
}

// MarkRefreshed records that reserves reflect the given block. It returns
// false when a refresh at this block or a later one was already recorded.
func (t *BlockTracker) MarkRefreshed(number uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if number <= t.lastRefreshed && t.lastRefreshed != 0 {
		return false
	}
	t.lastRefreshed = number
	if number > t.latest {
		t.latest = number
	}
	return true
}

// Snapshot returns the current block context.
func (t *BlockTracker) Snapshot() BlockContext {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return BlockContext{
		Number: t.latest,
		Stale:  t.latest != t.lastRefreshed,
	}
}

// LastRefreshed returns the block reserves were last refreshed at.
func (t *BlockTracker) LastRefreshed() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastRefreshed
}
