// Package crypto stores the secp256k1 keys voters and creators sign txs with.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

var ErrKeyExists = errors.New("key file already exists")

// LoadKeyFile reads a hex encoded private key, with or without 0x prefix.
func LoadKeyFile(path string) (*ecdsa.PrivateKey, error) {
	dat, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := strings.TrimPrefix(strings.TrimSpace(string(dat)), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key %s: %w", path, err)
	}
	return eth_crypto.ToECDSA(raw)
}

func SaveKeyFile(path string, key *ecdsa.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(eth_crypto.FromECDSA(key))), 0o600)
}

// GenerateKeyFile writes a fresh key to path unless one is already there.
func GenerateKeyFile(path string) (key *ecdsa.PrivateKey, addr common.Address, err error) {
	if _, err = os.Stat(path); err == nil {
		return nil, addr, fmt.Errorf("%w: %s", ErrKeyExists, path)
	}
	if key, err = eth_crypto.GenerateKey(); err != nil {
		return
	}
	if err = SaveKeyFile(path, key); err != nil {
		return
	}
	addr = eth_crypto.PubkeyToAddress(key.PublicKey)
	return
}
