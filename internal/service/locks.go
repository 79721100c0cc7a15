package service

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// LocalLocks is an in-process domain.LockManager used when Redis is not
// configured. Expired holds are treated as free.
type LocalLocks struct {
	mu    sync.Mutex
	held  map[string]time.Time
	nowFn func() time.Time
}

// NewLocalLocks creates an empty LocalLocks.
func NewLocalLocks() *LocalLocks {
	return &LocalLocks{held: make(map[string]time.Time), nowFn: time.Now}
}

// Acquire takes key for ttl or returns domain.ErrLockHeld.
func (l *LocalLocks) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, domain.ErrLockHeld
	}
	until := now.Add(ttl)
	l.held[key] = until

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key].Equal(until) {
				delete(l.held, key)
			}
		})
	}, nil
}

var _ domain.LockManager = (*LocalLocks)(nil)
