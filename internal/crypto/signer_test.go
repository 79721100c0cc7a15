package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_SignTx(t *testing.T) {
	s, err := NewSignerFromSource(KeySource{Raw: testKeyHex}, big.NewInt(1))
	require.NoError(t, err)

	to := common.HexToAddress("0x01")
	tx := types.NewTx(&types.LegacyTx{Nonce: 3, GasPrice: new(big.Int), Gas: 21_000, To: &to, Value: new(big.Int)})
	signed, err := s.SignTx(tx)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)
}

func TestSigner_DigestOnly(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	s := NewSigner(key, nil)

	_, err = s.SignTx(types.NewTx(&types.LegacyTx{}))
	require.Error(t, err)

	digest := ethcrypto.Keccak256([]byte("payload"))
	sig, err := s.SignDigest(digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	pub, err := ethcrypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), ethcrypto.PubkeyToAddress(*pub))

	_, err = s.SignDigest([]byte("short"))
	require.Error(t, err)
}
