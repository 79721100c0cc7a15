package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ReserveSnapshot is the cached reserve state of one pair.
type ReserveSnapshot struct {
	Pair     common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
	Block    uint64
}

// ReserveCache mirrors pair reserves outside the process.
type ReserveCache interface {
	SetReserves(ctx context.Context, snaps []ReserveSnapshot) error
	GetReserves(ctx context.Context, pair common.Address) (ReserveSnapshot, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides sliding-window rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Signal bus channel names.
const (
	ChannelOpportunity = "ch:opportunity"
	ChannelBundle      = "ch:bundle"
	ChannelBlock       = "ch:block"

	StreamOpportunities = "stream:opportunities"
	StreamBundles       = "stream:bundles"
)
