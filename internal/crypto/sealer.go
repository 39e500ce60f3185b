// Package crypto seals key material at rest for the persistent key store.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	sha256 "github.com/minio/sha256-simd"
	"golang.org/x/crypto/hkdf"
)

const kekInfo = "cxemu keystore kek v1"

// ErrOpen is returned when a sealed blob fails authentication.
var ErrOpen = errors.New("sealed key failed authentication")

// DeriveKey derives length bytes from rootKey with HKDF-SHA256, using context
// as the info parameter.
func DeriveKey(rootKey, context []byte, length int) ([]byte, error) {
	if length <= 0 || length > 64 {
		return nil, fmt.Errorf("invalid derived key length: %d (must be 1-64)", length)
	}
	derived := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, rootKey, nil, context), derived); err != nil {
		return nil, fmt.Errorf("hkdf derive: %w", err)
	}
	return derived, nil
}

// Sealer encrypts private keys with AES-256-GCM under a key-encryption key
// derived from the device seed. Each blob is bound to its key ID as AAD, so a
// blob moved to another entry fails to open.
//
// Layout: nonce ‖ ciphertext ‖ tag.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(seed []byte) (*Sealer, error) {
	if len(seed) == 0 {
		return nil, errors.New("sealer needs a non-empty seed")
	}
	kek, err := DeriveKey(seed, []byte(kekInfo), 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("aes new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(keyID string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(keyID)), nil
}

func (s *Sealer) Open(keyID string, sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, fmt.Errorf("sealed blob of %d bytes: %w", len(sealed), ErrOpen)
	}
	pt, err := s.aead.Open(nil, sealed[:n], sealed[n:], []byte(keyID))
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", keyID, ErrOpen)
	}
	return pt, nil
}
