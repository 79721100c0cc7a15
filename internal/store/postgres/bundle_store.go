package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// BundleStore implements domain.BundleStore.
type BundleStore struct {
	pool *pgxpool.Pool
}

// NewBundleStore creates a BundleStore.
func NewBundleStore(pool *pgxpool.Pool) *BundleStore {
	return &BundleStore{pool: pool}
}

const bundleCols = `id, opportunity_id, block, target_blocks, bundle_hash, state, reason,
	miner_reward::text, coinbase_diff::text, gas_used, created_at`

// Insert stores one attempt outcome.
func (s *BundleStore) Insert(ctx context.Context, rec domain.BundleRecord) error {
	const query = `
		INSERT INTO bundles (id, opportunity_id, block, target_blocks, bundle_hash, state, reason,
			miner_reward, coinbase_diff, gas_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10, $11)`

	targets := make([]int64, len(rec.TargetBlocks))
	for i, b := range rec.TargetBlocks {
		targets[i] = int64(b)
	}
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.OpportunityID, int64(rec.Block), targets, rec.BundleHash,
		string(rec.State), rec.Reason, numericOrZero(rec.MinerReward), numericOrZero(rec.CoinbaseDiff),
		int64(rec.GasUsed), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bundle %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns the newest limit attempts.
func (s *BundleStore) ListRecent(ctx context.Context, limit int) ([]domain.BundleRecord, error) {
	q := newListQuery(`SELECT `+bundleCols+` FROM bundles`, "created_at").
		page(domain.ListOpts{Limit: limit})
	return s.query(ctx, q)
}

// ListBefore returns every attempt created before the cutoff, oldest first.
func (s *BundleStore) ListBefore(ctx context.Context, before time.Time) ([]domain.BundleRecord, error) {
	q := newListQuery(`SELECT `+bundleCols+` FROM bundles`, "created_at").
		before(before).
		ascending()
	return s.query(ctx, q)
}

// CountSubmitted counts submitted bundles since t.
func (s *BundleStore) CountSubmitted(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bundles WHERE state = $1 AND created_at >= $2`,
		string(domain.AttemptSubmitted), since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count submitted bundles: %w", err)
	}
	return n, nil
}

func (s *BundleStore) query(ctx context.Context, q *listQuery) ([]domain.BundleRecord, error) {
	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bundles: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.BundleRecord, error) {
		var (
			r       domain.BundleRecord
			block   int64
			targets []int64
			state   string
			gas     int64
		)
		err := row.Scan(&r.ID, &r.OpportunityID, &block, &targets, &r.BundleHash, &state, &r.Reason,
			&r.MinerReward, &r.CoinbaseDiff, &gas, &r.CreatedAt)
		r.Block = uint64(block)
		r.State = domain.AttemptState(state)
		r.GasUsed = uint64(gas)
		for _, t := range targets {
			r.TargetBlocks = append(r.TargetBlocks, uint64(t))
		}
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bundles: %w", err)
	}
	return recs, nil
}

func numericOrZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

var _ domain.BundleStore = (*BundleStore)(nil)
