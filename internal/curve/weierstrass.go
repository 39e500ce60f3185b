package curve

import (
	"fmt"
	"math/big"

	"github.com/glinharesb/cxemu/internal/cxerr"
)

// WeierstrassCurve is affine arithmetic on y² = x³ + a·x + b over any prime
// field, so new domains work without curve-specific code.
type WeierstrassCurve struct {
	d *Domain
}

// NewWeierstrass wraps a short Weierstrass domain. The domain need not be
// registered, which lets tests exercise toy curves.
func NewWeierstrass(d *Domain) (*WeierstrassCurve, error) {
	if err := checkDomain(d, Weierstrass); err != nil {
		return nil, err
	}
	if d.B == nil || d.Gy == nil {
		return nil, fmt.Errorf("%s: missing b or Gy: %w", d.Name, cxerr.ErrInvalidParameter)
	}
	return &WeierstrassCurve{d: d}, nil
}

func (c *WeierstrassCurve) Domain() *Domain { return c.d }

func (c *WeierstrassCurve) Generator() *Point { return NewPoint(c.d.ID, c.d.Gx, c.d.Gy) }

func (c *WeierstrassCurve) Identity() *Point { return infinity(c.d.ID) }

func (c *WeierstrassCurve) IsAtInfinity(p *Point) bool { return p != nil && p.inf }

// IsOnCurve checks the curve equation for an affine point with reduced
// coordinates. The point at infinity has no affine form and is reported false.
func (c *WeierstrassCurve) IsOnCurve(p *Point) bool {
	if checkPoint(c.d, p) != nil || p.inf {
		return false
	}
	if !inField(p.X, c.d.P) || !inField(p.Y, c.d.P) {
		return false
	}
	return c.rhs(p.X).Cmp(c.mod(new(big.Int).Mul(p.Y, p.Y))) == 0
}

// rhs returns x³ + a·x + b mod p.
func (c *WeierstrassCurve) rhs(x *big.Int) *big.Int {
	x3 := new(big.Int).Mul(x, x)
	x3.Mul(x3, x)
	ax := new(big.Int).Mul(c.d.A, x)
	x3.Add(x3, ax)
	x3.Add(x3, c.d.B)
	return c.mod(x3)
}

func (c *WeierstrassCurve) mod(v *big.Int) *big.Int {
	return v.Mod(v, c.d.P)
}

func (c *WeierstrassCurve) inverse(v *big.Int) (*big.Int, error) {
	inv := new(big.Int).ModInverse(v, c.d.P)
	if inv == nil {
		return nil, fmt.Errorf("inverse in %s field: %w", c.d.Name, cxerr.ErrArithmetic)
	}
	return inv, nil
}

func (c *WeierstrassCurve) Add(p, q *Point) (*Point, error) {
	if err := checkPoint(c.d, p); err != nil {
		return nil, err
	}
	if err := checkPoint(c.d, q); err != nil {
		return nil, err
	}
	return c.add(p, q)
}

func (c *WeierstrassCurve) add(p, q *Point) (*Point, error) {
	switch {
	case p.inf:
		return q.clone(), nil
	case q.inf:
		return p.clone(), nil
	}
	if p.X.Cmp(q.X) == 0 {
		sum := new(big.Int).Add(p.Y, q.Y)
		if c.mod(sum).Sign() == 0 {
			return c.Identity(), nil
		}
		return c.double(p)
	}
	num := new(big.Int).Sub(q.Y, p.Y)
	den := c.mod(new(big.Int).Sub(q.X, p.X))
	inv, err := c.inverse(den)
	if err != nil {
		return nil, err
	}
	return c.chord(c.mod(num.Mul(num, inv)), p, q.X), nil
}

func (c *WeierstrassCurve) double(p *Point) (*Point, error) {
	if p.inf || p.Y.Sign() == 0 {
		return c.Identity(), nil
	}
	num := new(big.Int).Mul(p.X, p.X)
	num.Mul(num, big.NewInt(3))
	num.Add(num, c.d.A)
	den := new(big.Int).Lsh(p.Y, 1)
	inv, err := c.inverse(c.mod(den))
	if err != nil {
		return nil, err
	}
	return c.chord(c.mod(num.Mul(num, inv)), p, p.X), nil
}

// chord finishes an addition with slope l through p and a second point with
// abscissa x2.
func (c *WeierstrassCurve) chord(l *big.Int, p *Point, x2 *big.Int) *Point {
	x3 := new(big.Int).Mul(l, l)
	x3.Sub(x3, p.X)
	x3.Sub(x3, x2)
	c.mod(x3)
	y3 := new(big.Int).Sub(p.X, x3)
	y3.Mul(y3, l)
	y3.Sub(y3, p.Y)
	c.mod(y3)
	return &Point{Curve: c.d.ID, X: x3, Y: y3}
}

// ScalarMul computes k·p by left-to-right double and add. A zero scalar yields
// the identity; p must be on the curve.
func (c *WeierstrassCurve) ScalarMul(k []byte, p *Point) (*Point, error) {
	if err := checkPoint(c.d, p); err != nil {
		return nil, err
	}
	if !p.inf && !c.IsOnCurve(p) {
		return nil, fmt.Errorf("scalar multiplication on %s: %w", c.d.Name, cxerr.ErrInvalidPoint)
	}
	kk := new(big.Int).SetBytes(k)
	r := c.Identity()
	for i := kk.BitLen() - 1; i >= 0; i-- {
		var err error
		if r, err = c.double(r); err != nil {
			return nil, err
		}
		if kk.Bit(i) == 1 {
			if r, err = c.add(r, p); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func (c *WeierstrassCurve) ScalarBaseMul(k []byte) (*Point, error) {
	return c.ScalarMul(k, c.Generator())
}

// Encode writes 0x04 ‖ x ‖ y. Compressed output is refused.
func (c *WeierstrassCurve) Encode(p *Point, compressed bool) ([]byte, error) {
	if err := checkPoint(c.d, p); err != nil {
		return nil, err
	}
	if compressed {
		return nil, fmt.Errorf("compressed encoding on %s: %w", c.d.Name, cxerr.ErrInvalidParameter)
	}
	if p.inf {
		return nil, fmt.Errorf("encode point at infinity: %w", cxerr.ErrInvalidPoint)
	}
	out := make([]byte, 0, 1+2*c.d.Length)
	out = append(out, 0x04)
	out = append(out, encodeCoord(p.X, c.d.Length)...)
	return append(out, encodeCoord(p.Y, c.d.Length)...), nil
}

// Decode parses 0x04 ‖ x ‖ y and checks curve membership.
func (c *WeierstrassCurve) Decode(raw []byte) (*Point, error) {
	if err := validateEncoding(c.d, raw); err != nil {
		return nil, err
	}
	l := c.d.Length
	p := &Point{
		Curve: c.d.ID,
		X:     new(big.Int).SetBytes(raw[1 : 1+l]),
		Y:     new(big.Int).SetBytes(raw[1+l:]),
	}
	if !c.IsOnCurve(p) {
		return nil, fmt.Errorf("decode on %s: %w", c.d.Name, cxerr.ErrInvalidPoint)
	}
	return p, nil
}

// LiftX returns the curve point with abscissa x whose ordinate has the given
// parity.
func (c *WeierstrassCurve) LiftX(x *big.Int, odd bool) (*Point, error) {
	if !inField(x, c.d.P) {
		return nil, fmt.Errorf("abscissa out of field: %w", cxerr.ErrInvalidPoint)
	}
	y := new(big.Int).ModSqrt(c.rhs(x), c.d.P)
	if y == nil {
		return nil, fmt.Errorf("no point with this abscissa on %s: %w", c.d.Name, cxerr.ErrInvalidPoint)
	}
	if (y.Bit(0) == 1) != odd && y.Sign() != 0 {
		y.Sub(c.d.P, y)
	}
	return &Point{Curve: c.d.ID, X: new(big.Int).Set(x), Y: y}, nil
}

// CompressSEC returns the SEC1 compressed form 0x02|0x03 ‖ x. The engine never
// accepts this form as input; it exists for key fingerprints and BIP32
// derivation.
func (c *WeierstrassCurve) CompressSEC(p *Point) ([]byte, error) {
	if err := checkPoint(c.d, p); err != nil {
		return nil, err
	}
	if p.inf {
		return nil, fmt.Errorf("compress point at infinity: %w", cxerr.ErrInvalidPoint)
	}
	out := make([]byte, 0, 1+c.d.Length)
	out = append(out, 0x02|byte(p.Y.Bit(0)))
	return append(out, encodeCoord(p.X, c.d.Length)...), nil
}
