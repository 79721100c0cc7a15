package executor

import (
	"sync"
	"time"
)

// Dedup remembers keys for a TTL. It is safe for concurrent use.
type Dedup struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	ttl   time.Duration
	nowFn func() time.Time
}

// NewDedup creates a Dedup with the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen:  make(map[string]time.Time),
		ttl:   ttl,
		nowFn: time.Now,
	}
}

// IsDuplicate reports whether key was seen within the TTL. Unseen or expired
// keys are recorded and reported as new.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.nowFn()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// Cleanup drops expired keys.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.nowFn()
	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
}

// Len returns the number of remembered keys.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
