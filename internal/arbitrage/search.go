package arbitrage

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

var unit = big.NewInt(1e18)

// TestVolumes are the ascending base-asset sizes StepSearch tries, in wei:
// 1/100, 1/10, 1/6, 1/4, 1/2, 1, 2, 5 and 10 units.
var TestVolumes = []*big.Int{
	new(big.Int).Quo(unit, big.NewInt(100)),
	new(big.Int).Quo(unit, big.NewInt(10)),
	new(big.Int).Quo(unit, big.NewInt(6)),
	new(big.Int).Quo(unit, big.NewInt(4)),
	new(big.Int).Quo(unit, big.NewInt(2)),
	new(big.Int).Set(unit),
	new(big.Int).Mul(unit, big.NewInt(2)),
	new(big.Int).Mul(unit, big.NewInt(5)),
	new(big.Int).Mul(unit, big.NewInt(10)),
}

var (
	// QuoteVolume is the base-asset amount used to price every market.
	QuoteVolume = new(big.Int).Quo(unit, big.NewInt(100))
	// MinProfit is the exclusive lower bound for a reported opportunity.
	MinProfit = new(big.Int).Quo(unit, big.NewInt(1000))
)

// CrossedPair is an ordered market pair where buying the token on BuyFrom
// and selling on SellTo is profitable at the quote size.
type CrossedPair struct {
	SellTo  domain.Market
	BuyFrom domain.Market
}

// profitCurve returns the profit function for base → token on BuyFrom and
// token → base on SellTo.
func profitCurve(pair CrossedPair, base, token common.Address) ProfitFunc {
	return func(volume *big.Int) (*big.Int, error) {
		inter, err := pair.BuyFrom.QuoteOut(base, token, volume)
		if err != nil {
			return nil, err
		}
		proceeds, err := pair.SellTo.QuoteOut(token, base, inter)
		if err != nil {
			return nil, err
		}
		return proceeds.Sub(proceeds, volume), nil
	}
}

// FindBestCross runs searcher over every crossed pair and returns the best
// sized trade, or nil when no pair produced one. Pairs whose quotes fail are
// skipped.
func FindBestCross(searcher VolumeSearcher, pairs []CrossedPair, base, token common.Address) *domain.CrossedMarket {
	var (
		best   *Candidate
		result *domain.CrossedMarket
	)
	for _, pair := range pairs {
		next, fromPair, err := searcher.BestVolume(profitCurve(pair, base, token), best)
		if err != nil {
			continue
		}
		best = next
		if fromPair {
			result = &domain.CrossedMarket{
				Profit:  best.Profit,
				Volume:  best.Volume,
				Token:   token,
				BuyFrom: pair.BuyFrom,
				SellTo:  pair.SellTo,
			}
		}
	}
	return result
}

// StepSearch walks TestVolumes upward and stops at the first size that earns
// less than the best so far, after one more try at the midpoint between that
// size and the best volume. The best carries over between pairs, so a later
// pair is only kept when it keeps pace with the incumbent.
type StepSearch struct {
	Volumes []*big.Int
}

// NewStepSearch returns a StepSearch over TestVolumes.
func NewStepSearch() *StepSearch {
	return &StepSearch{Volumes: TestVolumes}
}

func (s *StepSearch) Name() string { return "step" }

func (s *StepSearch) BestVolume(profit ProfitFunc, best *Candidate) (*Candidate, bool, error) {
	fromPair := false
	for _, size := range s.Volumes {
		p, err := profit(size)
		if err != nil {
			if fromPair {
				return best, true, nil
			}
			return best, false, err
		}
		if best != nil && p.Cmp(best.Profit) < 0 {
			mid := new(big.Int).Add(size, best.Volume)
			mid.Quo(mid, big.NewInt(2))
			midProfit, err := profit(mid)
			if err == nil && midProfit.Cmp(best.Profit) > 0 {
				best = &Candidate{Volume: mid, Profit: midProfit}
				fromPair = true
			}
			break
		}
		best = &Candidate{Volume: new(big.Int).Set(size), Profit: p}
		fromPair = true
	}
	return best, fromPair, nil
}
