package arbitrage

import (
	"math/big"
)

// TernarySearchConfig configures TernarySearch.
type TernarySearchConfig struct {
	Min       *big.Int // lower size bound in wei
	Max       *big.Int // upper size bound in wei
	Tolerance *big.Int // stop once the bracket is narrower than this
	MaxSteps  int
}

// TernarySearch maximises a pair's profit curve over [Min, Max]. Constant
// product curves are concave in volume so the bracket converges on the peak.
// Unlike StepSearch, a pair replaces the incumbent only with strictly higher
// profit.
type TernarySearch struct {
	cfg TernarySearchConfig
}

// NewTernarySearch fills unset bounds from TestVolumes and defaults the
// tolerance to 1e12 wei.
func NewTernarySearch(cfg TernarySearchConfig) *TernarySearch {
	if cfg.Min == nil {
		cfg.Min = TestVolumes[0]
	}
	if cfg.Max == nil {
		cfg.Max = TestVolumes[len(TestVolumes)-1]
	}
	if cfg.Tolerance == nil || cfg.Tolerance.Sign() <= 0 {
		cfg.Tolerance = big.NewInt(1e12)
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 128
	}
	return &TernarySearch{cfg: cfg}
}

func (s *TernarySearch) Name() string { return "ternary" }

func (s *TernarySearch) BestVolume(profit ProfitFunc, best *Candidate) (*Candidate, bool, error) {
	lo := new(big.Int).Set(s.cfg.Min)
	hi := new(big.Int).Set(s.cfg.Max)
	three := big.NewInt(3)

	for step := 0; step < s.cfg.MaxSteps; step++ {
		width := new(big.Int).Sub(hi, lo)
		if width.Cmp(s.cfg.Tolerance) <= 0 {
			break
		}
		third := width.Quo(width, three)
		m1 := new(big.Int).Add(lo, third)
		m2 := new(big.Int).Sub(hi, third)
		p1, err := profit(m1)
		if err != nil {
			return best, false, err
		}
		p2, err := profit(m2)
		if err != nil {
			return best, false, err
		}
		if p1.Cmp(p2) < 0 {
			lo = m1
		} else {
			hi = m2
		}
	}

	// Check the bracket and both bounds; the peak may sit on an edge.
	var local *Candidate
	for _, v := range []*big.Int{lo, hi, s.cfg.Min, s.cfg.Max} {
		p, err := profit(v)
		if err != nil {
			return best, false, err
		}
		if local == nil || p.Cmp(local.Profit) > 0 {
			local = &Candidate{Volume: new(big.Int).Set(v), Profit: p}
		}
	}
	if best == nil || local.Profit.Cmp(best.Profit) > 0 {
		return local, true, nil
	}
	return best, false, nil
}
