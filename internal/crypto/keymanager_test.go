package crypto

import (
	"os"
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)
}

func TestEncryptKey_Rejects(t *testing.T) {
	_, err := EncryptKey(testKeyHex, "")
	require.Error(t, err)
	_, err = EncryptKey("abcd", "pw")
	require.Error(t, err)
	_, err = EncryptKey("zz", "pw")
	require.Error(t, err)
}

func TestLoadKey_Sources(t *testing.T) {
	want, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	raw, err := LoadKey(KeySource{Raw: "0x" + testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, want.D, raw.D)

	blob, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	fromFile, err := LoadKey(KeySource{FilePath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, want.D, fromFile.D)

	_, err = LoadKey(KeySource{})
	require.ErrorIs(t, err, ErrNoKeySource)
}

func TestKeySource_Empty(t *testing.T) {
	assert.True(t, KeySource{Raw: "  "}.Empty())
	assert.False(t, KeySource{Raw: testKeyHex}.Empty())
	assert.False(t, KeySource{FilePath: "/k"}.Empty())
}
