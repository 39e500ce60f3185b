// Package ecdsa signs and verifies digests on the short Weierstrass curves of
// the curve registry. Signatures travel DER encoded with an info byte that
// records the parity of R.y and whether R.x overflowed the group order, which
// is enough to recover the signer's public key.
package ecdsa

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/glinharesb/cxemu/internal/bn"
	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/cxerr"
	"github.com/glinharesb/cxemu/internal/der"
	"github.com/glinharesb/cxemu/internal/hashes"
	"github.com/glinharesb/cxemu/internal/rfc6979"
)

// Mode selects the nonce source.
type Mode int

const (
	// ModeRFC6979 derives k deterministically and needs a fixed-size hash.
	ModeRFC6979 Mode = iota + 1
	// ModeTRNG draws k from the random source, except that a fixed-size hash
	// of at most 64 bytes still selects RFC 6979, as the device firmware does.
	ModeTRNG
)

func (m Mode) String() string {
	switch m {
	case ModeRFC6979:
		return "rfc6979"
	case ModeTRNG:
		return "trng"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Info carries recovery hints next to the signature.
type Info byte

const (
	InfoParityOdd     Info = 1 << 0
	InfoXGreaterThanN Info = 1 << 1
)

// SignOptions configures Sign. Signatures are canonical (s <= n/2) unless
// NonCanonical is set. Rand defaults to crypto/rand.
type SignOptions struct {
	Hash         hashes.Algorithm
	Mode         Mode
	NonCanonical bool
	Rand         io.Reader
}

// Signature is a DER signature plus its recovery hints. R and S are the raw
// components on the curve's byte length.
type Signature struct {
	DER  []byte
	R, S []byte
	Info Info
}

type signer struct {
	c     *curve.WeierstrassCurve
	d     *curve.Domain
	order []byte
}

func newSigner(id curve.ID) (*signer, error) {
	dom, err := curve.Lookup(id)
	if err != nil {
		return nil, err
	}
	if dom.Kind != curve.Weierstrass {
		return nil, fmt.Errorf("ecdsa on %s: %w", dom.Name, cxerr.ErrInvalidParameter)
	}
	c, err := curve.NewWeierstrass(dom)
	if err != nil {
		return nil, err
	}
	return &signer{c: c, d: dom, order: dom.OrderBytes()}, nil
}

// nonceSource yields candidate nonces on the order's byte length.
type nonceSource func() ([]byte, error)

func (sg *signer) nonces(opts SignOptions, x, digest []byte) (nonceSource, error) {
	size := hashes.OutputSize(opts.Hash)
	switch {
	case opts.Mode == ModeRFC6979 && size == 0:
		return nil, fmt.Errorf("rfc6979 needs a fixed-size hash, got %v: %w", opts.Hash, cxerr.ErrInvalidParameter)
	case opts.Mode == ModeRFC6979, opts.Mode == ModeTRNG && size > 0 && size <= 64:
		g, err := rfc6979.New(opts.Hash, sg.order, x, digest)
		if err != nil {
			return nil, err
		}
		return func() ([]byte, error) { return g.Next(), nil }, nil
	case opts.Mode == ModeTRNG:
		r := opts.Rand
		if r == nil {
			r = rand.Reader
		}
		return func() ([]byte, error) { return randomScalar(r, sg.order) }, nil
	default:
		return nil, fmt.Errorf("signing mode %v: %w", opts.Mode, cxerr.ErrInvalidParameter)
	}
}

func randomScalar(r io.Reader, n []byte) ([]byte, error) {
	buf := make([]byte, len(n))
	excess := uint(8*len(n) - bn.BitLen(n))
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read entropy: %w", err)
		}
		buf[0] &= 0xff >> excess
		if !bn.IsZero(buf) && bn.Cmp(buf, n) < 0 {
			return buf, nil
		}
	}
}

// Sign produces a signature of digest with key. The digest is truncated to the
// bit length of the group order.
func Sign(key *curve.PrivateKey, opts SignOptions, digest []byte) (*Signature, error) {
	if key == nil {
		return nil, fmt.Errorf("nil private key: %w", cxerr.ErrInvalidParameter)
	}
	sg, err := newSigner(key.Curve)
	if err != nil {
		return nil, err
	}
	n := sg.order
	if bn.IsZero(key.D) || bn.Cmp(key.D, n) >= 0 {
		return nil, fmt.Errorf("private scalar out of range on %s: %w", sg.d.Name, cxerr.ErrInvalidParameter)
	}
	next, err := sg.nonces(opts, key.D, digest)
	if err != nil {
		return nil, err
	}
	e := sg.truncate(digest)
	half := bn.ShiftRight(n, 1)

	for {
		k, err := next()
		if err != nil {
			return nil, err
		}
		R, err := sg.c.ScalarBaseMul(k)
		if err != nil {
			return nil, err
		}
		if sg.c.IsAtInfinity(R) {
			continue
		}
		var info Info
		if R.Y.Bit(0) == 1 {
			info |= InfoParityOdd
		}
		x := R.X.Bytes()
		if bn.Cmp(x, n) >= 0 {
			info |= InfoXGreaterThanN
		}
		r, err := bn.Mod(x, n)
		if err != nil {
			return nil, err
		}
		if bn.IsZero(r) {
			continue
		}
		s, err := sg.signScalar(r, key.D, e, k)
		if err != nil {
			return nil, err
		}
		if bn.IsZero(s) {
			continue
		}
		if !opts.NonCanonical && bn.Cmp(s, half) > 0 {
			if s, _, err = bn.Sub(n, s); err != nil {
				return nil, err
			}
			info ^= InfoParityOdd
		}
		enc, err := der.Encode(r, s)
		if err != nil {
			return nil, err
		}
		return &Signature{DER: enc, R: r, S: s, Info: info}, nil
	}
}

// truncate maps digest onto an integer on the order's byte length.
func (sg *signer) truncate(digest []byte) []byte {
	return bn.MustBytes(rfc6979.Bits2Int(digest, sg.d.N), len(sg.order))
}

// signScalar returns k⁻¹·(e + r·d) mod n.
func (sg *signer) signScalar(r, d, e, k []byte) ([]byte, error) {
	n := sg.order
	kinv, err := bn.InvMod(k, n)
	if err != nil {
		return nil, fmt.Errorf("nonce inverse: %w", err)
	}
	rd, err := bn.MulMod(r, d, n)
	if err != nil {
		return nil, err
	}
	s, err := bn.AddMod(e, rd, n)
	if err != nil {
		return nil, err
	}
	return bn.MulMod(s, kinv, n)
}

// Verify checks a DER signature over digest. Malformed signatures and
// components outside [1, n) verify as false; a malformed public key is an
// error.
func Verify(pub *curve.PublicKey, digest, sig []byte) (bool, error) {
	if pub == nil {
		return false, fmt.Errorf("nil public key: %w", cxerr.ErrInvalidParameter)
	}
	sg, err := newSigner(pub.Curve)
	if err != nil {
		return false, err
	}
	q, err := pub.Point()
	if err != nil {
		return false, err
	}
	n := sg.order
	r, s, err := der.DecodeFixed(sig, len(n))
	if err != nil {
		return false, nil
	}
	if bn.Cmp(r, n) >= 0 || bn.Cmp(s, n) >= 0 {
		return false, nil
	}
	w, err := bn.InvMod(s, n)
	if err != nil {
		return false, nil
	}
	u1, err := bn.MulMod(sg.truncate(digest), w, n)
	if err != nil {
		return false, err
	}
	u2, err := bn.MulMod(r, w, n)
	if err != nil {
		return false, err
	}

	X, err := sg.combine(u1, u2, q)
	if err != nil {
		return false, err
	}
	if sg.c.IsAtInfinity(X) {
		return false, nil
	}
	v, err := bn.Mod(X.X.Bytes(), n)
	if err != nil {
		return false, err
	}
	return bytes.Equal(v, r), nil
}

// combine returns u1·G + u2·q.
func (sg *signer) combine(u1, u2 []byte, q *curve.Point) (*curve.Point, error) {
	a, err := sg.c.ScalarBaseMul(u1)
	if err != nil {
		return nil, err
	}
	b, err := sg.c.ScalarMul(u2, q)
	if err != nil {
		return nil, err
	}
	return sg.c.Add(a, b)
}

// ErrNotRecoverable is returned when no public key matches the signature and
// recovery hints.
var ErrNotRecoverable = errors.New("public key not recoverable")

// Recoverable reports whether r and the info byte pin down R on curve id.
// That needs p < 2n, which rules out BLS12-381 G1 where R.x may exceed the
// order many times over.
func Recoverable(id curve.ID) bool {
	dom, err := curve.Lookup(id)
	if err != nil || dom.Kind != curve.Weierstrass {
		return false
	}
	return dom.P.Cmp(new(big.Int).Lsh(dom.N, 1)) < 0
}

// RecoverPublicKey returns the public key that produced sig over digest, using
// the info hints emitted by Sign.
func RecoverPublicKey(id curve.ID, digest, sig []byte, info Info) (*curve.PublicKey, error) {
	sg, err := newSigner(id)
	if err != nil {
		return nil, err
	}
	if !Recoverable(id) {
		return nil, fmt.Errorf("%w on %s: %w", ErrNotRecoverable, sg.d.Name, cxerr.ErrInvalidParameter)
	}
	n := sg.order
	r, s, err := der.DecodeFixed(sig, len(n))
	if err != nil {
		return nil, err
	}
	if bn.Cmp(r, n) >= 0 || bn.Cmp(s, n) >= 0 {
		return nil, fmt.Errorf("signature component out of range: %w", cxerr.ErrInvalidParameter)
	}
	x := r
	if info&InfoXGreaterThanN != 0 {
		sum, carry, err := bn.Add(r, n)
		if err != nil {
			return nil, err
		}
		if carry {
			return nil, fmt.Errorf("%w: abscissa overflows the field", ErrNotRecoverable)
		}
		x = sum
	}
	R, err := sg.c.LiftX(bn.Int(x), info&InfoParityOdd != 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotRecoverable, err)
	}

	// Q = r⁻¹·(s·R - e·G)
	rinv, err := bn.InvMod(r, n)
	if err != nil {
		return nil, err
	}
	ne, err := bn.SubMod(make([]byte, len(n)), sg.truncate(digest), n)
	if err != nil {
		return nil, err
	}
	u1, err := bn.MulMod(ne, rinv, n)
	if err != nil {
		return nil, err
	}
	u2, err := bn.MulMod(s, rinv, n)
	if err != nil {
		return nil, err
	}
	Q, err := sg.combine(u1, u2, R)
	if err != nil {
		return nil, err
	}
	if sg.c.IsAtInfinity(Q) {
		return nil, ErrNotRecoverable
	}
	w, err := sg.c.Encode(Q, false)
	if err != nil {
		return nil, err
	}
	return &curve.PublicKey{Curve: id, W: w}, nil
}
