package crypto

import (
	"os"
	"path/filepath"
	"testing"

	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "voter.key")
	key, addr, err := GenerateKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, eth_crypto.PubkeyToAddress(key.PublicKey), addr)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	loaded, err := LoadKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, key.D, loaded.D)

	_, _, err = GenerateKeyFile(path)
	assert.ErrorIs(t, err, ErrKeyExists)
}

func TestLoadKeyFilePrefixed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owner_priv_key")
	require.NoError(t, os.WriteFile(path, []byte("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318\n"), 0o600))
	key, err := LoadKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", eth_crypto.PubkeyToAddress(key.PublicKey).Hex())

	require.NoError(t, os.WriteFile(path, []byte("zz"), 0o600))
	_, err = LoadKeyFile(path)
	assert.Error(t, err)
}
