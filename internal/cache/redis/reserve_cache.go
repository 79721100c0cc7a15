package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// ReserveCache stores pair reserves as hashes at "reserves:<pair>" with
// fields r0, r1 (decimal wei) and block.
type ReserveCache struct {
	c   *Client
	ttl time.Duration
}

// NewReserveCache creates a ReserveCache. Entries expire after ttl; zero
// keeps them forever.
func NewReserveCache(c *Client, ttl time.Duration) *ReserveCache {
	return &ReserveCache{c: c, ttl: ttl}
}

func (rc *ReserveCache) key(pair common.Address) string {
	return rc.c.Key("reserves:", pair.Hex())
}

// SetReserves writes all snapshots in one pipeline.
func (rc *ReserveCache) SetReserves(ctx context.Context, snaps []domain.ReserveSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	pipe := rc.c.rdb.Pipeline()
	for _, s := range snaps {
		k := rc.key(s.Pair)
		pipe.HSet(ctx, k, encodeSnapshot(s))
		if rc.ttl > 0 {
			pipe.Expire(ctx, k, rc.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set reserves (%d pairs): %w", len(snaps), err)
	}
	return nil
}

// GetReserves returns the cached snapshot or domain.ErrNotFound.
func (rc *ReserveCache) GetReserves(ctx context.Context, pair common.Address) (domain.ReserveSnapshot, error) {
	vals, err := rc.c.rdb.HGetAll(ctx, rc.key(pair)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.ReserveSnapshot{}, fmt.Errorf("redis: get reserves %s: %w", pair.Hex(), err)
	}
	if len(vals) == 0 {
		return domain.ReserveSnapshot{}, domain.ErrNotFound
	}
	snap, err := decodeSnapshot(pair, vals)
	if err != nil {
		return domain.ReserveSnapshot{}, fmt.Errorf("redis: get reserves %s: %w", pair.Hex(), err)
	}
	return snap, nil
}

func encodeSnapshot(s domain.ReserveSnapshot) map[string]any {
	return map[string]any{
		"r0":    s.Reserve0.String(),
		"r1":    s.Reserve1.String(),
		"block": strconv.FormatUint(s.Block, 10),
	}
}

func decodeSnapshot(pair common.Address, vals map[string]string) (domain.ReserveSnapshot, error) {
	r0, ok := new(big.Int).SetString(vals["r0"], 10)
	if !ok {
		return domain.ReserveSnapshot{}, fmt.Errorf("bad r0 %q", vals["r0"])
	}
	r1, ok := new(big.Int).SetString(vals["r1"], 10)
	if !ok {
		return domain.ReserveSnapshot{}, fmt.Errorf("bad r1 %q", vals["r1"])
	}
	block, err := strconv.ParseUint(vals["block"], 10, 64)
	if err != nil {
		return domain.ReserveSnapshot{}, fmt.Errorf("bad block: %w", err)
	}
	return domain.ReserveSnapshot{Pair: pair, Reserve0: r0, Reserve1: r1, Block: block}, nil
}

var _ domain.ReserveCache = (*ReserveCache)(nil)
