package hd

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"filippo.io/edwards25519"

	"github.com/glinharesb/cxemu/internal/bn"
	"github.com/glinharesb/cxemu/internal/cxerr"
	"github.com/glinharesb/cxemu/internal/hashes"
)

var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

// BIP32Ed25519 derives path from seed following Khovratovich and Law. The
// node key is the 64-byte extended key kL ‖ kR, both halves little-endian.
// Indices are serialized little-endian.
func BIP32Ed25519(seed []byte, path Path) (*Node, error) {
	tag := []byte(ed25519SeedTag)
	chain := hashes.HMACSHA256(tag, []byte{0x01}, seed)

	I := hashes.HMACSHA512(tag, seed)
	for I[31]&0x20 != 0 {
		I = hashes.HMACSHA512(tag, I)
	}
	I[0] &= 0xf8
	I[31] &= 0x7f
	I[31] |= 0x40
	kL, kR := I[:32], I[32:]

	for _, idx := range path {
		ib := binary.LittleEndian.AppendUint32(nil, idx)
		var z, c []byte
		if idx&Hardened != 0 {
			z = hashes.HMACSHA512(chain, []byte{0x00}, kL, kR, ib)
			c = hashes.HMACSHA512(chain, []byte{0x01}, kL, kR, ib)
		} else {
			A, err := ed25519Public(kL)
			if err != nil {
				return nil, err
			}
			z = hashes.HMACSHA512(chain, []byte{0x02}, A, ib)
			c = hashes.HMACSHA512(chain, []byte{0x03}, A, ib)
		}

		l := new(big.Int).Lsh(bn.FromLittleEndian(z[:28]), 3)
		l.Add(l, bn.FromLittleEndian(kL))
		if l.BitLen() > 256 {
			return nil, fmt.Errorf("bip32-ed25519 kL overflow at %v: %w", Path{idx}, cxerr.ErrArithmetic)
		}
		r := new(big.Int).Add(bn.FromLittleEndian(z[32:]), bn.FromLittleEndian(kR))
		r.Mod(r, two256)

		kL, kR = bn.ToLittleEndian(l, 32), bn.ToLittleEndian(r, 32)
		chain = c[32:]
	}

	key := make([]byte, 0, 64)
	key = append(key, kL...)
	return &Node{Key: append(key, kR...), ChainCode: chain}, nil
}

// ed25519Public returns the RFC 8032 encoding of kL·B.
func ed25519Public(kL []byte) ([]byte, error) {
	var wide [64]byte
	copy(wide[:], kL)
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		return nil, fmt.Errorf("reduce kL: %w", cxerr.ErrArithmetic)
	}
	return new(edwards25519.Point).ScalarBaseMult(s).Bytes(), nil
}
