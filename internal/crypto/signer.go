package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer holds one secp256k1 key. The wallet signer signs executor
// transactions; the relay signer only signs request digests.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	txSigner   types.Signer
}

// NewSigner wraps key for chainID. A nil chainID gives a digest-only signer.
func NewSigner(key *ecdsa.PrivateKey, chainID *big.Int) *Signer {
	s := &Signer{
		privateKey: key,
		address:    ethcrypto.PubkeyToAddress(key.PublicKey),
	}
	if chainID != nil {
		s.txSigner = types.LatestSignerForChainID(chainID)
	}
	return s
}

// NewSignerFromSource loads the key described by src.
func NewSignerFromSource(src KeySource, chainID *big.Int) (*Signer, error) {
	key, err := LoadKey(src)
	if err != nil {
		return nil, err
	}
	return NewSigner(key, chainID), nil
}

// Address returns the address derived from the key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx signs tx for the configured chain.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	if s.txSigner == nil {
		return nil, fmt.Errorf("crypto/signer: %s has no chain id", s.address.Hex())
	}
	signed, err := types.SignTx(tx, s.txSigner, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: sign tx: %w", err)
	}
	return signed, nil
}

// SignDigest returns the 65-byte [R || S || V] signature of a 32-byte
// digest, V in {0, 1}.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("crypto/signer: digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: sign digest: %w", err)
	}
	return sig, nil
}
