package curve

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/curve25519"

	"github.com/glinharesb/cxemu/internal/bn"
	"github.com/glinharesb/cxemu/internal/cxerr"
)

// MontgomeryCurve carries u-only points. Scalar multiplication is the X25519
// ladder, so scalars are clamped the RFC 7748 way and point addition is not
// offered. Points encode as 0x02 ‖ be(u).
type MontgomeryCurve struct {
	d *Domain
}

func NewMontgomery(d *Domain) (*MontgomeryCurve, error) {
	if err := checkDomain(d, Montgomery); err != nil {
		return nil, err
	}
	if d.ID != Curve25519 {
		return nil, fmt.Errorf("montgomery ladder for %s: %w", d.Name, cxerr.ErrUnknownCurve)
	}
	return &MontgomeryCurve{d: d}, nil
}

func (c *MontgomeryCurve) Domain() *Domain { return c.d }

func (c *MontgomeryCurve) Generator() *Point { return NewPoint(c.d.ID, c.d.Gx, nil) }

func (c *MontgomeryCurve) Identity() *Point { return infinity(c.d.ID) }

func (c *MontgomeryCurve) IsAtInfinity(p *Point) bool { return p != nil && p.inf }

// IsOnCurve only checks that u is a field element: every u lies on the curve
// or its twist and the ladder accepts both.
func (c *MontgomeryCurve) IsOnCurve(p *Point) bool {
	return checkPoint(c.d, p) == nil && !p.inf && inField(p.X, c.d.P)
}

func (c *MontgomeryCurve) Add(p, q *Point) (*Point, error) {
	return nil, fmt.Errorf("point addition on %s: %w", c.d.Name, cxerr.ErrInvalidParameter)
}

// ScalarMul runs X25519 with the big-endian scalar k. A result of u = 0 means
// p was a low-order point.
func (c *MontgomeryCurve) ScalarMul(k []byte, p *Point) (*Point, error) {
	if err := checkPoint(c.d, p); err != nil {
		return nil, err
	}
	if !c.IsOnCurve(p) {
		return nil, fmt.Errorf("scalar multiplication on %s: %w", c.d.Name, cxerr.ErrInvalidPoint)
	}
	scalar, err := bn.Bytes(new(big.Int).SetBytes(k), c.d.Length)
	if err != nil {
		return nil, err
	}
	out, err := curve25519.X25519(bn.Reverse(scalar), bn.ToLittleEndian(p.X, c.d.Length))
	if err != nil {
		return nil, fmt.Errorf("x25519: %v: %w", err, cxerr.ErrInvalidPoint)
	}
	return &Point{Curve: c.d.ID, X: bn.FromLittleEndian(out)}, nil
}

func (c *MontgomeryCurve) ScalarBaseMul(k []byte) (*Point, error) {
	return c.ScalarMul(k, c.Generator())
}

// Encode writes 0x02 ‖ be(u). There is no uncompressed form.
func (c *MontgomeryCurve) Encode(p *Point, compressed bool) ([]byte, error) {
	if err := checkPoint(c.d, p); err != nil {
		return nil, err
	}
	if !compressed {
		return nil, fmt.Errorf("uncompressed encoding on %s: %w", c.d.Name, cxerr.ErrInvalidParameter)
	}
	if p.inf {
		return nil, fmt.Errorf("encode point at infinity: %w", cxerr.ErrInvalidPoint)
	}
	out := make([]byte, 0, 1+c.d.Length)
	out = append(out, 0x02)
	return append(out, encodeCoord(p.X, c.d.Length)...), nil
}

func (c *MontgomeryCurve) Decode(raw []byte) (*Point, error) {
	if err := validateEncoding(c.d, raw); err != nil {
		return nil, err
	}
	p := &Point{Curve: c.d.ID, X: new(big.Int).SetBytes(raw[1:])}
	if !c.IsOnCurve(p) {
		return nil, fmt.Errorf("decode on %s: %w", c.d.Name, cxerr.ErrInvalidPoint)
	}
	return p, nil
}
