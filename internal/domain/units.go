package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatEther renders a wei amount as a decimal ether string. Nil is "0".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}

// ParseEther converts a decimal ether string to wei, truncating below 1 wei.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return d.Shift(18).BigInt(), nil
}
