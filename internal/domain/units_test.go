package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatEther(t *testing.T) {
	tests := []struct {
		name string
		wei  *big.Int
		want string
	}{
		{"nil", nil, "0"},
		{"one ether", big.NewInt(1e18), "1"},
		{"quote size", big.NewInt(1e16), "0.01"},
		{"min profit", big.NewInt(1e15), "0.001"},
		{"one wei", big.NewInt(1), "0.000000000000000001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatEther(tt.wei))
		})
	}
}

func TestParseEther(t *testing.T) {
	wei, err := ParseEther("1.5")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(15e17), wei)

	_, err = ParseEther("abc")
	require.Error(t, err)
}
