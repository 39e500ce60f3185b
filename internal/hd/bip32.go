package hd

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/glinharesb/cxemu/internal/bn"
	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/cxerr"
	"github.com/glinharesb/cxemu/internal/hashes"
)

// HMAC keys of the master node per curve.
var bip32Tags = map[curve.ID]string{
	curve.Secp256k1: "Bitcoin seed",
	curve.Secp256r1: "Nist256p1 seed",
}

// BIP32 derives path from seed on secp256k1 or secp256r1. Invalid
// intermediate keys are re-rolled as SLIP-10 prescribes rather than skipped.
func BIP32(id curve.ID, seed []byte, path Path) (*Node, error) {
	tag, ok := bip32Tags[id]
	if !ok {
		return nil, fmt.Errorf("bip32 on %v: %w", id, cxerr.ErrInvalidParameter)
	}
	dom, err := curve.Lookup(id)
	if err != nil {
		return nil, err
	}
	c, err := curve.NewWeierstrass(dom)
	if err != nil {
		return nil, err
	}
	n := dom.N

	I := hashes.HMACSHA512([]byte(tag), seed)
	for !validScalar(bn.Int(I[:32]), n) {
		I = hashes.HMACSHA512([]byte(tag), I)
	}
	key, chain := bn.Int(I[:32]), I[32:]

	for _, idx := range path {
		var data []byte
		if idx&Hardened != 0 {
			data = append([]byte{0x00}, bn.MustBytes(key, dom.Length)...)
		} else {
			data, err = compressedPublic(c, key)
			if err != nil {
				return nil, err
			}
		}
		I = hashes.HMACSHA512(chain, binary.BigEndian.AppendUint32(data, idx))
		for {
			il := bn.Int(I[:32])
			if il.Cmp(n) < 0 {
				il.Add(il, key).Mod(il, n)
				if il.Sign() != 0 {
					key = il
					break
				}
			}
			retry := append([]byte{0x01}, I[32:]...)
			I = hashes.HMACSHA512(chain, binary.BigEndian.AppendUint32(retry, idx))
		}
		chain = I[32:]
	}
	return &Node{Key: bn.MustBytes(key, dom.Length), ChainCode: chain}, nil
}

func validScalar(k, n *big.Int) bool {
	return k.Sign() != 0 && k.Cmp(n) < 0
}

// compressedPublic returns the SEC1 compressed public key of a parent scalar.
func compressedPublic(c *curve.WeierstrassCurve, key *big.Int) ([]byte, error) {
	d := c.Domain()
	if d.ID == curve.Secp256k1 {
		priv := secp256k1.PrivKeyFromBytes(bn.MustBytes(key, d.Length))
		return priv.PubKey().SerializeCompressed(), nil
	}
	P, err := c.ScalarBaseMul(key.Bytes())
	if err != nil {
		return nil, err
	}
	return c.CompressSEC(P)
}
