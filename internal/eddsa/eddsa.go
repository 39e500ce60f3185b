// Package eddsa implements pure Ed25519 (RFC 8032). The digest is a parameter
// of every call but only SHA-512 is accepted.
package eddsa

import (
	"fmt"
	"math/big"

	"github.com/glinharesb/cxemu/internal/bn"
	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/cxerr"
	"github.com/glinharesb/cxemu/internal/hashes"
)

// SignatureSize is the length of R ‖ S.
const SignatureSize = 64

type engine struct {
	c   *curve.EdwardsCurve
	d   *curve.Domain
	alg hashes.Algorithm
}

func newEngine(id curve.ID, alg hashes.Algorithm) (*engine, error) {
	dom, err := curve.Lookup(id)
	if err != nil {
		return nil, err
	}
	if dom.Kind != curve.TwistedEdwards {
		return nil, fmt.Errorf("eddsa on %s: %w", dom.Name, cxerr.ErrInvalidParameter)
	}
	if alg != hashes.SHA512 {
		return nil, fmt.Errorf("eddsa with %v: %w", alg, cxerr.ErrUnsupportedHash)
	}
	c, err := curve.NewEdwards(dom)
	if err != nil {
		return nil, err
	}
	return &engine{c: c, d: dom, alg: alg}, nil
}

// expand returns the secret scalar a (big-endian) and the nonce prefix. A
// 64-byte key is already expanded: kL is the scalar and kR the prefix.
func (e *engine) expand(key *curve.PrivateKey) (a *big.Int, prefix []byte, err error) {
	l := e.d.Length
	switch len(key.D) {
	case 2 * l:
		return bn.FromLittleEndian(key.D[:l]), append([]byte(nil), key.D[l:]...), nil
	case l:
		h, err := hashes.Sum(e.alg, key.D)
		if err != nil {
			return nil, nil, err
		}
		return bn.FromLittleEndian(Clamp(h[:l])), h[l:], nil
	default:
		return nil, nil, fmt.Errorf("eddsa key of %d bytes: %w", len(key.D), cxerr.ErrInvalidParameterSize)
	}
}

// Clamp applies the X25519/Ed25519 scalar clamping to a copy of b.
func Clamp(b []byte) []byte {
	out := append([]byte(nil), b...)
	out[0] &= 0xf8
	out[len(out)-1] &= 0x7f
	out[len(out)-1] |= 0x40
	return out
}

// reduce interprets a digest as a little-endian integer modulo the group order.
func (e *engine) reduce(h []byte) *big.Int {
	v := bn.FromLittleEndian(h)
	return v.Mod(v, e.d.N)
}

func (e *engine) public(a *big.Int) (*curve.Point, error) {
	return e.c.ScalarBaseMul(a.Bytes())
}

// PublicKey derives the public key of key, encoded uncompressed as
// 0x04 ‖ be(x) ‖ be(y).
func PublicKey(key *curve.PrivateKey, alg hashes.Algorithm) (*curve.PublicKey, error) {
	if key == nil {
		return nil, fmt.Errorf("nil private key: %w", cxerr.ErrInvalidParameter)
	}
	e, err := newEngine(key.Curve, alg)
	if err != nil {
		return nil, err
	}
	a, _, err := e.expand(key)
	if err != nil {
		return nil, err
	}
	A, err := e.public(a)
	if err != nil {
		return nil, err
	}
	w, err := e.c.Encode(A, false)
	if err != nil {
		return nil, err
	}
	return &curve.PublicKey{Curve: key.Curve, W: w}, nil
}

// CompressPublicKey returns the bare 32-byte RFC 8032 encoding of pub.
func CompressPublicKey(pub *curve.PublicKey) ([]byte, error) {
	c, A, err := decodePublic(pub)
	if err != nil {
		return nil, err
	}
	return c.Compress(A), nil
}

func decodePublic(pub *curve.PublicKey) (*curve.EdwardsCurve, *curve.Point, error) {
	if pub == nil {
		return nil, nil, fmt.Errorf("nil public key: %w", cxerr.ErrInvalidParameter)
	}
	dom, err := curve.Lookup(pub.Curve)
	if err != nil {
		return nil, nil, err
	}
	c, err := curve.NewEdwards(dom)
	if err != nil {
		return nil, nil, err
	}
	A, err := pub.Point()
	if err != nil {
		return nil, nil, err
	}
	return c, A, nil
}

// Sign returns R ‖ S over msg.
func Sign(key *curve.PrivateKey, alg hashes.Algorithm, msg []byte) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("nil private key: %w", cxerr.ErrInvalidParameter)
	}
	e, err := newEngine(key.Curve, alg)
	if err != nil {
		return nil, err
	}
	a, prefix, err := e.expand(key)
	if err != nil {
		return nil, err
	}
	A, err := e.public(a)
	if err != nil {
		return nil, err
	}
	encA := e.c.Compress(A)

	h, err := hashes.Sum(e.alg, prefix, msg)
	if err != nil {
		return nil, err
	}
	r := e.reduce(h)
	R, err := e.c.ScalarBaseMul(r.Bytes())
	if err != nil {
		return nil, err
	}
	encR := e.c.Compress(R)

	h, err = hashes.Sum(e.alg, encR, encA, msg)
	if err != nil {
		return nil, err
	}
	k := e.reduce(h)
	s := new(big.Int).Mul(k, a)
	s.Add(s, r)
	s.Mod(s, e.d.N)

	sig := make([]byte, 0, 2*e.d.Length)
	sig = append(sig, encR...)
	return append(sig, bn.ToLittleEndian(s, e.d.Length)...), nil
}

// Verify checks sig over msg with the cofactorless equation [S]B = R + [k]A.
// Malformed signatures verify as false.
func Verify(pub *curve.PublicKey, alg hashes.Algorithm, msg, sig []byte) (bool, error) {
	c, A, err := decodePublic(pub)
	if err != nil {
		return false, err
	}
	e, err := newEngine(pub.Curve, alg)
	if err != nil {
		return false, err
	}
	l := e.d.Length
	if len(sig) != 2*l {
		return false, nil
	}
	R, err := c.Decompress(sig[:l])
	if err != nil {
		return false, nil
	}
	s := bn.FromLittleEndian(sig[l:])
	if s.Cmp(e.d.N) >= 0 {
		return false, nil
	}

	h, err := hashes.Sum(e.alg, sig[:l], c.Compress(A), msg)
	if err != nil {
		return false, err
	}
	k := e.reduce(h)

	lhs, err := c.ScalarBaseMul(s.Bytes())
	if err != nil {
		return false, err
	}
	kA, err := c.ScalarMul(k.Bytes(), A)
	if err != nil {
		return false, err
	}
	rhs, err := c.Add(R, kA)
	if err != nil {
		return false, err
	}
	return lhs.Equal(rhs), nil
}
