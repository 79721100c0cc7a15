// Package uniswapv2 implements domain.Market for constant-product pairs with
// the Uniswap V2 0.3% fee, plus reserve refresh and pair discovery through a
// FlashQuery helper contract.
package uniswapv2

import (
	"math/big"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

var (
	feeNumerator   = big.NewInt(997)
	feeDenominator = big.NewInt(1000)
	bpsDenominator = big.NewInt(10_000)
)

// GetAmountOut is the V2 router formula:
//
//	amountOut = amountIn*997*reserveOut / (reserveIn*1000 + amountIn*997)
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int)
	}
	withFee := new(big.Int).Mul(amountIn, feeNumerator)
	numerator := new(big.Int).Mul(withFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDenominator)
	denominator.Add(denominator, withFee)
	return numerator.Quo(numerator, denominator)
}

// GetAmountIn is the inverse of GetAmountOut, rounded up by one wei:
//
//	amountIn = reserveIn*amountOut*1000 / ((reserveOut-amountOut)*997) + 1
//
// It fails when the pair cannot pay out amountOut.
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return new(big.Int), nil
	}
	if reserveIn.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, domain.ErrInsufficientLiquidity
	}
	numerator := new(big.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, feeDenominator)
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, feeNumerator)
	amountIn := numerator.Quo(numerator, denominator)
	return amountIn.Add(amountIn, big.NewInt(1)), nil
}
