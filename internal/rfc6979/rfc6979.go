// Package rfc6979 derives deterministic ECDSA nonces (RFC 6979 section 3.2)
// over any fixed-size digest of the hash provider.
package rfc6979

import (
	"fmt"
	"math/big"

	"github.com/glinharesb/cxemu/internal/bn"
	"github.com/glinharesb/cxemu/internal/cxerr"
	"github.com/glinharesb/cxemu/internal/hashes"
)

// MaxOrderLength bounds the group order in bytes. Orders of 66 bytes or more,
// such as secp521r1, are refused.
const MaxOrderLength = 65

// Generator is the HMAC_DRBG state of one signing operation. Successive calls
// to Next return the sequence of candidates k1, k2, ... used when a candidate
// yields r = 0 or s = 0.
type Generator struct {
	alg     hashes.Algorithm
	q       *big.Int
	qlen    int
	rlen    int
	k, v    []byte
	started bool
}

// New seeds a generator from the private scalar x and the message digest h1
// for a group of order q.
func New(alg hashes.Algorithm, q, x, h1 []byte) (*Generator, error) {
	size := hashes.OutputSize(alg)
	if size == 0 {
		return nil, fmt.Errorf("rfc6979 over %v: %w", alg, cxerr.ErrUnsupportedHash)
	}
	qi := bn.Int(q)
	if qi.Sign() == 0 {
		return nil, fmt.Errorf("rfc6979 with zero order: %w", cxerr.ErrInvalidParameter)
	}
	if (qi.BitLen()+7)/8 > MaxOrderLength {
		return nil, fmt.Errorf("rfc6979 with %d-bit order: %w", qi.BitLen(), cxerr.ErrInvalidParameterSize)
	}

	g := &Generator{
		alg:  alg,
		q:    qi,
		qlen: qi.BitLen(),
		rlen: (qi.BitLen() + 7) / 8,
	}
	g.v = make([]byte, size)
	for i := range g.v {
		g.v[i] = 0x01
	}
	g.k = make([]byte, size)

	seed := append(g.int2octets(x), g.bits2octets(h1)...)
	g.k = g.mac(g.v, []byte{0x00}, seed)
	g.v = g.mac(g.v)
	g.k = g.mac(g.v, []byte{0x01}, seed)
	g.v = g.mac(g.v)
	return g, nil
}

// Next returns the next nonce candidate as an rlen-byte big-endian integer in
// [1, q).
func (g *Generator) Next() []byte {
	if g.started {
		g.reseed()
	}
	g.started = true
	for {
		t := make([]byte, 0, g.rlen+len(g.v))
		for len(t) < g.rlen {
			g.v = g.mac(g.v)
			t = append(t, g.v...)
		}
		k := g.bits2int(t)
		if k.Sign() > 0 && k.Cmp(g.q) < 0 {
			return bn.MustBytes(k, g.rlen)
		}
		g.reseed()
	}
}

func (g *Generator) reseed() {
	g.k = g.mac(g.v, []byte{0x00})
	g.v = g.mac(g.v)
}

func (g *Generator) mac(parts ...[]byte) []byte {
	out, err := hashes.HMAC(g.alg, g.k, parts...)
	if err != nil {
		// alg was validated by New.
		panic(err)
	}
	return out
}

// bits2int keeps the leftmost qlen bits of b.
func (g *Generator) bits2int(b []byte) *big.Int {
	v := bn.Int(b)
	if blen := 8 * len(b); blen > g.qlen {
		v.Rsh(v, uint(blen-g.qlen))
	}
	return v
}

// int2octets left-pads x to rlen bytes, dropping excess high-order bytes.
func (g *Generator) int2octets(x []byte) []byte {
	if len(x) >= g.rlen {
		return append([]byte(nil), x[len(x)-g.rlen:]...)
	}
	out := make([]byte, g.rlen)
	copy(out[g.rlen-len(x):], x)
	return out
}

func (g *Generator) bits2octets(h []byte) []byte {
	z := g.bits2int(h)
	if z.Cmp(g.q) >= 0 {
		z.Sub(z, g.q)
	}
	return bn.MustBytes(z, g.rlen)
}

// Bits2Int exposes the digest truncation shared with ECDSA: the leftmost
// bitlen(q) bits of b as an integer.
func Bits2Int(b []byte, q *big.Int) *big.Int {
	g := &Generator{qlen: q.BitLen()}
	return g.bits2int(b)
}
