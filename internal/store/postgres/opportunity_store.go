package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, block, source, intent_id, token, buy_from, sell_to,
	volume::text, profit::text, detected_at`

// Insert stores rec. Duplicate IDs are ignored.
func (s *OpportunityStore) Insert(ctx context.Context, rec domain.OpportunityRecord) error {
	const query = `
		INSERT INTO opportunities (id, block, source, intent_id, token, buy_from, sell_to, volume, profit, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, int64(rec.Block), string(rec.Source), rec.IntentID, rec.Token,
		rec.BuyFrom, rec.SellTo, rec.Volume, rec.Profit, rec.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns the newest limit records.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.OpportunityRecord, error) {
	q := newListQuery(`SELECT `+opportunityCols+` FROM opportunities`, "detected_at").
		page(domain.ListOpts{Limit: limit})
	return s.query(ctx, q)
}

// ListBefore returns every record detected before the cutoff, oldest first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.OpportunityRecord, error) {
	q := newListQuery(`SELECT `+opportunityCols+` FROM opportunities`, "detected_at").
		before(before).
		ascending()
	return s.query(ctx, q)
}

func (s *OpportunityStore) query(ctx context.Context, q *listQuery) ([]domain.OpportunityRecord, error) {
	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OpportunityRecord, error) {
		var (
			r      domain.OpportunityRecord
			block  int64
			source string
		)
		err := row.Scan(&r.ID, &block, &source, &r.IntentID, &r.Token, &r.BuyFrom, &r.SellTo,
			&r.Volume, &r.Profit, &r.DetectedAt)
		r.Block = uint64(block)
		r.Source = domain.OpportunitySource(source)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities: %w", err)
	}
	return recs, nil
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)
