package redis

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "ammarb:lock:refresh:12", joinKey("ammarb:", "lock:", "refresh:12"))
	assert.Equal(t, "ch:block", joinKey("", "ch:block"))
}

func TestSnapshotEncoding(t *testing.T) {
	pair := common.HexToAddress("0x01")
	r0, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	in := domain.ReserveSnapshot{Pair: pair, Reserve0: r0, Reserve1: big.NewInt(7), Block: 19_000_000}

	enc := encodeSnapshot(in)
	vals := make(map[string]string, len(enc))
	for k, v := range enc {
		vals[k] = v.(string)
	}
	out, err := decodeSnapshot(pair, vals)
	require.NoError(t, err)
	assert.Equal(t, 0, in.Reserve0.Cmp(out.Reserve0))
	assert.Equal(t, 0, in.Reserve1.Cmp(out.Reserve1))
	assert.Equal(t, in.Block, out.Block)

	_, err = decodeSnapshot(pair, map[string]string{"r0": "x", "r1": "1", "block": "1"})
	require.Error(t, err)
}
