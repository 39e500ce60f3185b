package hd

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	sha256 "github.com/minio/sha256-simd"
	"golang.org/x/crypto/hkdf"

	"github.com/glinharesb/cxemu/internal/bn"
	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/cxerr"
)

const (
	// EIP2333MinSeed is the shortest seed accepted for a BLS master key.
	EIP2333MinSeed = 32

	blsKeySize = 32
	lamportLen = 255
	keygenOKM  = 48
	keygenSalt = "BLS-SIG-KEYGEN-SALT-"
)

func blsOrder() (*big.Int, error) {
	d, err := curve.Lookup(curve.BLS12381G1)
	if err != nil {
		return nil, err
	}
	return d.N, nil
}

// hkdfModR is KeyGen from the BLS signature draft: HKDF-SHA256 output reduced
// modulo r, with the salt re-hashed until the result is non-zero.
func hkdfModR(ikm, info []byte) ([]byte, error) {
	r, err := blsOrder()
	if err != nil {
		return nil, err
	}
	secret := append(append([]byte(nil), ikm...), 0x00)
	label := binary.BigEndian.AppendUint16(append([]byte(nil), info...), keygenOKM)

	salt := []byte(keygenSalt)
	sk := new(big.Int)
	okm := make([]byte, keygenOKM)
	for sk.Sign() == 0 {
		h := sha256.Sum256(salt)
		salt = h[:]
		if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, label), okm); err != nil {
			return nil, fmt.Errorf("hkdf: %v: %w", err, cxerr.ErrArithmetic)
		}
		sk.SetBytes(okm).Mod(sk, r)
	}
	return bn.MustBytes(sk, blsKeySize), nil
}

// EIP2333Master returns the 32-byte big-endian master secret of seed.
func EIP2333Master(seed []byte) ([]byte, error) {
	if len(seed) < EIP2333MinSeed {
		return nil, fmt.Errorf("eip2333 seed of %d bytes: %w", len(seed), cxerr.ErrInvalidParameterSize)
	}
	return hkdfModR(seed, nil)
}

// EIP2333Child derives the child secret at index from a 32-byte parent secret.
func EIP2333Child(parent []byte, index uint32) ([]byte, error) {
	if len(parent) != blsKeySize {
		return nil, fmt.Errorf("eip2333 parent of %d bytes: %w", len(parent), cxerr.ErrInvalidParameterSize)
	}
	pk, err := lamportPublic(parent, index)
	if err != nil {
		return nil, err
	}
	return hkdfModR(pk, nil)
}

// lamportPublic is parent_SK_to_lamport_PK: two chains of 255 HKDF-expanded
// chunks, one from the parent and one from its complement, each chunk hashed
// and the concatenation hashed once more.
func lamportPublic(parent []byte, index uint32) ([]byte, error) {
	salt := binary.BigEndian.AppendUint32(nil, index)
	flipped := make([]byte, len(parent))
	for i, b := range parent {
		flipped[i] = ^b
	}

	out := sha256.New()
	chunks := make([]byte, 32*lamportLen)
	for _, ikm := range [][]byte{parent, flipped} {
		if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, nil), chunks); err != nil {
			return nil, fmt.Errorf("hkdf: %v: %w", err, cxerr.ErrArithmetic)
		}
		for i := 0; i < lamportLen; i++ {
			h := sha256.Sum256(chunks[32*i : 32*(i+1)])
			out.Write(h[:])
		}
	}
	return out.Sum(nil), nil
}

// EIP2333 derives the BLS secret at path from seed. Indices are used as-is;
// the scheme has no hardened levels.
func EIP2333(seed []byte, path Path) ([]byte, error) {
	sk, err := EIP2333Master(seed)
	if err != nil {
		return nil, err
	}
	for _, idx := range path {
		if sk, err = EIP2333Child(sk, idx); err != nil {
			return nil, err
		}
	}
	return sk, nil
}
