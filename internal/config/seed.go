package config

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

// DefaultMnemonic is the well-known test mnemonic of the emulated device. Never
// use it for real funds.
const DefaultMnemonic = "glory promote mansion idle axis finger extra february uncover one trip resource lawn turtle enact monster seven myth punch hobby comfort wild raise skin"

const (
	mnemonicRounds  = 2048
	mnemonicSeedLen = 64
	minRawSeed      = 16
)

// LoadSeed returns the HD seed. SeedFile wins over Seed, which wins over
// DefaultMnemonic. A value that decodes as hex of at least 16 bytes is taken as
// the raw seed; anything else is a BIP-39 mnemonic stretched with the
// passphrase.
func (c Config) LoadSeed() ([]byte, error) {
	src := c.Seed
	if c.SeedFile != "" {
		data, err := os.ReadFile(c.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("read seed file: %w", err)
		}
		src = string(data)
	}
	src = strings.TrimSpace(src)
	if src == "" {
		src = DefaultMnemonic
	}

	if raw, err := hex.DecodeString(strings.TrimPrefix(src, "0x")); err == nil {
		if len(raw) < minRawSeed {
			return nil, fmt.Errorf("raw seed of %d bytes is shorter than %d", len(raw), minRawSeed)
		}
		return raw, nil
	}
	return MnemonicToSeed(src, c.SeedPassphrase), nil
}

// MnemonicToSeed applies the BIP-39 seed function: PBKDF2-HMAC-SHA512 over
// the NFKD-normalized mnemonic, salted with "mnemonic" ‖ passphrase.
func MnemonicToSeed(mnemonic, passphrase string) []byte {
	words := strings.Join(strings.Fields(mnemonic), " ")
	password := norm.NFKD.Bytes([]byte(words))
	salt := norm.NFKD.Bytes([]byte("mnemonic" + passphrase))
	return pbkdf2.Key(password, salt, mnemonicRounds, mnemonicSeedLen, sha512.New)
}
