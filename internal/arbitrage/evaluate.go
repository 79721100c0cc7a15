package arbitrage

import (
	"context"
	"log/slog"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

type pricedMarket struct {
	market    domain.Market
	buyPrice  *big.Int // token paid to receive QuoteVolume of base
	sellPrice *big.Int // token received for QuoteVolume of base
}

// CrossedPairs prices every market at QuoteVolume and returns each ordered
// pair (a, b) where b pays more token for that amount than a charges to buy
// it back. Markets that cannot quote are left out.
func CrossedPairs(markets []domain.Market, base, token common.Address) []CrossedPair {
	priced := make([]pricedMarket, 0, len(markets))
	for _, m := range markets {
		buy, err := m.QuoteIn(token, base, QuoteVolume)
		if err != nil {
			continue
		}
		sell, err := m.QuoteOut(base, token, QuoteVolume)
		if err != nil {
			continue
		}
		priced = append(priced, pricedMarket{market: m, buyPrice: buy, sellPrice: sell})
	}

	var pairs []CrossedPair
	for _, a := range priced {
		for _, b := range priced {
			if b.sellPrice.Cmp(a.buyPrice) > 0 {
				pairs = append(pairs, CrossedPair{SellTo: a.market, BuyFrom: b.market})
			}
		}
	}
	return pairs
}

// EvaluateForToken returns the best opportunity for token, or nil when none
// clears MinProfit.
func (o *Orchestrator) EvaluateForToken(ctx context.Context, token common.Address, markets domain.MarketsByToken, block domain.BlockContext) *domain.CrossedMarket {
	pairs := CrossedPairs(markets[token], o.base, token)
	if len(pairs) == 0 {
		return nil
	}
	best := FindBestCross(o.searcher, pairs, o.base, token)
	if best == nil || best.Profit.Cmp(MinProfit) <= 0 {
		return nil
	}
	o.logger.DebugContext(ctx, "crossed market found",
		slog.Uint64("block", block.Number),
		slog.Bool("stale", block.Stale),
		slog.String("token", token.Hex()),
		slog.Int("crossed_pairs", len(pairs)),
		slog.String("profit", best.Profit.String()),
	)
	return best
}

// EvaluateAll evaluates every token and returns the opportunities sorted by
// decreasing profit. Equal profits keep token order.
func (o *Orchestrator) EvaluateAll(ctx context.Context, markets domain.MarketsByToken, block domain.BlockContext) []domain.CrossedMarket {
	tokens := make([]common.Address, 0, len(markets))
	for token := range markets {
		tokens = append(tokens, token)
	}
	// Map order is random; fix it so ties resolve the same way every block.
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Cmp(tokens[j]) < 0
	})

	var out []domain.CrossedMarket
	for _, token := range tokens {
		if ctx.Err() != nil {
			break
		}
		if best := o.EvaluateForToken(ctx, token, markets, block); best != nil {
			out = append(out, *best)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Profit.Cmp(out[j].Profit) > 0
	})
	return out
}
