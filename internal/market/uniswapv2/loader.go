package uniswapv2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

const (
	// DefaultBatchSize is the number of pairs read per FlashQuery call.
	DefaultBatchSize = 1000
	// DefaultBatchLimit caps discovery at BatchSize*BatchLimit pairs per factory.
	DefaultBatchLimit = 100
)

// ContractCaller is the eth_call subset of an RPC client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	FlashQuery  common.Address
	BatchSize   int
	BatchLimit  int
	CallTimeout time.Duration
	Cache       domain.ReserveCache // optional mirror
	Logger      *slog.Logger
}

// Loader discovers pairs and refreshes their reserves.
type Loader struct {
	caller ContractCaller
	cfg    LoaderConfig
	logger *slog.Logger
}

// NewLoader creates a loader reading through caller.
func NewLoader(caller ContractCaller, cfg LoaderConfig) *Loader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		caller: caller,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "uniswapv2_loader")),
	}
}

// Universe is the discovered market set.
type Universe struct {
	ByToken domain.MarketsByToken
	Pairs   []*Pair
}

// Discover lists every pair of each factory that trades base, groups them by
// the other token and keeps only tokens traded on more than one pair.
// Blacklisted tokens are skipped. Reserves are loaded at block before
// returning; pairs the cache already holds at that block are not re-read.
func (l *Loader) Discover(ctx context.Context, factories []common.Address, base common.Address, blacklist map[common.Address]bool, block uint64) (*Universe, error) {
	byToken := make(map[common.Address][]*Pair)
	var order []common.Address

	for _, factory := range factories {
		pairs, err := l.factoryPairs(ctx, factory, base, blacklist)
		if err != nil {
			return nil, err
		}
		l.logger.InfoContext(ctx, "factory pairs loaded",
			slog.String("factory", factory.Hex()),
			slog.Int("pairs", len(pairs)),
		)
		for _, p := range pairs {
			token, _ := p.other(base)
			if _, ok := byToken[token]; !ok {
				order = append(order, token)
			}
			byToken[token] = append(byToken[token], p)
		}
	}

	u := &Universe{ByToken: make(domain.MarketsByToken)}
	for _, token := range order {
		pairs := byToken[token]
		if len(pairs) < 2 {
			continue
		}
		for _, p := range pairs {
			u.ByToken[token] = append(u.ByToken[token], p)
			u.Pairs = append(u.Pairs, p)
		}
	}

	missing := l.warmFromCache(ctx, u.Pairs, block)
	if len(missing) > 0 {
		if err := l.RefreshReserves(ctx, missing, block); err != nil {
			return nil, err
		}
	}
	l.logger.InfoContext(ctx, "markets discovered",
		slog.Int("tokens", len(u.ByToken)),
		slog.Int("pairs", len(u.Pairs)),
	)
	return u, nil
}

func (l *Loader) factoryPairs(ctx context.Context, factory, base common.Address, blacklist map[common.Address]bool) ([]*Pair, error) {
	var out []*Pair
	size := l.cfg.BatchSize
	for i := 0; i < size*l.cfg.BatchLimit; i += size {
		raw, err := l.call(ctx, "getPairsByIndexRange", nil, factory, big.NewInt(int64(i)), big.NewInt(int64(i+size)))
		if err != nil {
			return nil, fmt.Errorf("uniswapv2: pairs of factory %s from %d: %w", factory.Hex(), i, err)
		}
		var rows [][3]common.Address
		if err := unpackInto(raw, "getPairsByIndexRange", &rows); err != nil {
			return nil, err
		}
		for _, row := range rows {
			token0, token1, address := row[0], row[1], row[2]
			var token common.Address
			switch base {
			case token0:
				token = token1
			case token1:
				token = token0
			default:
				continue
			}
			if blacklist[token] {
				continue
			}
			out = append(out, NewPair(address, token0, token1, ""))
		}
		if len(rows) < size {
			break
		}
	}
	return out, nil
}

// warmFromCache applies cached reserves recorded at exactly block and
// returns the pairs still to be read.
func (l *Loader) warmFromCache(ctx context.Context, pairs []*Pair, block uint64) []*Pair {
	if l.cfg.Cache == nil || block == 0 {
		return pairs
	}
	var missing []*Pair
	for _, p := range pairs {
		snap, err := l.cfg.Cache.GetReserves(ctx, p.Address())
		if err != nil || snap.Block != block {
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				l.logger.WarnContext(ctx, "reserve cache read failed",
					slog.String("pair", p.Address().Hex()),
					slog.String("error", err.Error()),
				)
			}
			missing = append(missing, p)
			continue
		}
		p.SetReserves(snap.Reserve0, snap.Reserve1)
	}
	if warmed := len(pairs) - len(missing); warmed > 0 {
		l.logger.InfoContext(ctx, "reserves warmed from cache",
			slog.Int("pairs", warmed),
			slog.Uint64("block", block),
		)
	}
	return missing
}

// RefreshReserves reads reserves for all pairs in BatchSize chunks and
// applies them. A non-zero block pins the read to that block and is recorded
// in the cache mirror; zero reads the latest state.
func (l *Loader) RefreshReserves(ctx context.Context, pairs []*Pair, block uint64) error {
	start := time.Now()
	var at *big.Int
	if block > 0 {
		at = new(big.Int).SetUint64(block)
	}
	snaps := make([]domain.ReserveSnapshot, 0, len(pairs))
	for i := 0; i < len(pairs); i += l.cfg.BatchSize {
		end := min(i+l.cfg.BatchSize, len(pairs))
		chunk := pairs[i:end]
		addrs := make([]common.Address, len(chunk))
		for j, p := range chunk {
			addrs[j] = p.Address()
		}
		raw, err := l.call(ctx, "getReservesByPairs", at, addrs)
		if err != nil {
			return fmt.Errorf("uniswapv2: refresh reserves: %w", err)
		}
		var rows [][3]*big.Int
		if err := unpackInto(raw, "getReservesByPairs", &rows); err != nil {
			return err
		}
		if len(rows) != len(chunk) {
			return fmt.Errorf("uniswapv2: refresh reserves: got %d rows for %d pairs", len(rows), len(chunk))
		}
		for j, p := range chunk {
			p.SetReserves(rows[j][0], rows[j][1])
			snaps = append(snaps, domain.ReserveSnapshot{
				Pair:     p.Address(),
				Reserve0: rows[j][0],
				Reserve1: rows[j][1],
				Block:    block,
			})
		}
	}

	if l.cfg.Cache != nil && len(snaps) > 0 {
		if err := l.cfg.Cache.SetReserves(ctx, snaps); err != nil {
			l.logger.WarnContext(ctx, "reserve cache update failed", slog.String("error", err.Error()))
		}
	}
	l.logger.DebugContext(ctx, "reserves refreshed",
		slog.Int("pairs", len(pairs)),
		slog.Uint64("block", block),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

func (l *Loader) call(ctx context.Context, method string, block *big.Int, args ...any) ([]byte, error) {
	data, err := flashQueryABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("uniswapv2: pack %s: %w", method, err)
	}
	to := l.cfg.FlashQuery
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	defer cancel()
	return l.caller.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, block)
}

func unpackInto(raw []byte, method string, dst any) error {
	values, err := flashQueryABI.Unpack(method, raw)
	if err != nil {
		return fmt.Errorf("uniswapv2: unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return fmt.Errorf("uniswapv2: unpack %s: %d values", method, len(values))
	}
	abi.ConvertType(values[0], dst)
	return nil
}
