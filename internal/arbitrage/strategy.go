// Package arbitrage finds crossed constant-product markets, sizes the trade,
// and turns the best candidates into signed bundles for a private relay.
package arbitrage

import "math/big"

// ProfitFunc is the profit curve of one crossed pair: base-asset proceeds of
// buying with volume on BuyFrom and selling on SellTo, minus volume.
type ProfitFunc func(volume *big.Int) (*big.Int, error)

// Candidate is a sized trade on a profit curve.
type Candidate struct {
	Volume *big.Int
	Profit *big.Int
}

// VolumeSearcher picks the trade size for one crossed pair.
type VolumeSearcher interface {
	Name() string
	// BestVolume searches profit given the best candidate found on earlier
	// pairs (nil if none). It returns the new best and whether that best was
	// produced by this curve. A false return hands back best unchanged.
	BestVolume(profit ProfitFunc, best *Candidate) (*Candidate, bool, error)
}
