package curve

import (
	"fmt"
	"math/big"

	"github.com/glinharesb/cxemu/internal/bn"
	"github.com/glinharesb/cxemu/internal/cxerr"
)

// EdwardsCurve is affine arithmetic on a·x² + y² = 1 + d·x²·y² using the
// unified addition law.
//
// Points encode either uncompressed as 0x04 ‖ be(x) ‖ be(y), or compressed as
// 0x02 ‖ le(y) with the parity of x in the top bit of the last byte, which is
// the RFC 8032 encoding behind a one byte prefix.
type EdwardsCurve struct {
	d *Domain
}

func NewEdwards(d *Domain) (*EdwardsCurve, error) {
	if err := checkDomain(d, TwistedEdwards); err != nil {
		return nil, err
	}
	if d.D == nil || d.Gy == nil {
		return nil, fmt.Errorf("%s: missing d or Gy: %w", d.Name, cxerr.ErrInvalidParameter)
	}
	return &EdwardsCurve{d: d}, nil
}

func (c *EdwardsCurve) Domain() *Domain { return c.d }

func (c *EdwardsCurve) Generator() *Point { return NewPoint(c.d.ID, c.d.Gx, c.d.Gy) }

func (c *EdwardsCurve) Identity() *Point {
	return &Point{Curve: c.d.ID, X: big.NewInt(0), Y: big.NewInt(1)}
}

func (c *EdwardsCurve) IsAtInfinity(p *Point) bool {
	return p != nil && !p.inf && p.X != nil && p.Y != nil && p.X.Sign() == 0 && p.Y.Cmp(big.NewInt(1)) == 0
}

func (c *EdwardsCurve) IsOnCurve(p *Point) bool {
	if checkPoint(c.d, p) != nil || p.inf {
		return false
	}
	if !inField(p.X, c.d.P) || !inField(p.Y, c.d.P) {
		return false
	}
	x2 := c.mod(new(big.Int).Mul(p.X, p.X))
	y2 := c.mod(new(big.Int).Mul(p.Y, p.Y))
	lhs := new(big.Int).Mul(c.d.A, x2)
	lhs.Add(lhs, y2)
	rhs := new(big.Int).Mul(c.d.D, x2)
	rhs.Mul(rhs, y2)
	rhs.Add(rhs, big.NewInt(1))
	return c.mod(lhs).Cmp(c.mod(rhs)) == 0
}

func (c *EdwardsCurve) mod(v *big.Int) *big.Int {
	return v.Mod(v, c.d.P)
}

func (c *EdwardsCurve) Add(p, q *Point) (*Point, error) {
	if err := checkPoint(c.d, p); err != nil {
		return nil, err
	}
	if err := checkPoint(c.d, q); err != nil {
		return nil, err
	}
	if p.inf || q.inf {
		return nil, fmt.Errorf("edwards point without coordinates: %w", cxerr.ErrInvalidPoint)
	}
	return c.add(p, q)
}

// add applies x3 = (x1y2 + y1x2) / (1 + d·x1x2y1y2) and
// y3 = (y1y2 - a·x1x2) / (1 - d·x1x2y1y2).
func (c *EdwardsCurve) add(p, q *Point) (*Point, error) {
	x1x2 := new(big.Int).Mul(p.X, q.X)
	y1y2 := new(big.Int).Mul(p.Y, q.Y)
	t := new(big.Int).Mul(x1x2, y1y2)
	t.Mul(t, c.d.D)
	c.mod(t)

	xn := new(big.Int).Mul(p.X, q.Y)
	xn.Add(xn, new(big.Int).Mul(p.Y, q.X))
	xd := new(big.Int).Add(big.NewInt(1), t)

	yn := new(big.Int).Mul(c.d.A, x1x2)
	yn.Sub(y1y2, yn)
	yd := new(big.Int).Sub(big.NewInt(1), t)

	xdi := new(big.Int).ModInverse(c.mod(xd), c.d.P)
	ydi := new(big.Int).ModInverse(c.mod(yd), c.d.P)
	if xdi == nil || ydi == nil {
		return nil, fmt.Errorf("edwards addition on %s: %w", c.d.Name, cxerr.ErrArithmetic)
	}
	x3 := c.mod(xn.Mul(xn, xdi))
	y3 := c.mod(yn.Mul(yn, ydi))
	return &Point{Curve: c.d.ID, X: x3, Y: y3}, nil
}

func (c *EdwardsCurve) ScalarMul(k []byte, p *Point) (*Point, error) {
	if err := checkPoint(c.d, p); err != nil {
		return nil, err
	}
	if !c.IsOnCurve(p) {
		return nil, fmt.Errorf("scalar multiplication on %s: %w", c.d.Name, cxerr.ErrInvalidPoint)
	}
	kk := new(big.Int).SetBytes(k)
	r := c.Identity()
	for i := kk.BitLen() - 1; i >= 0; i-- {
		var err error
		if r, err = c.add(r, r); err != nil {
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

func (c *EdwardsCurve) ScalarBaseMul(k []byte) (*Point, error) {
	return c.ScalarMul(k, c.Generator())
}

func (c *EdwardsCurve) Encode(p *Point, compressed bool) ([]byte, error) {
	if err := checkPoint(c.d, p); err != nil {
		return nil, err
	}
	if p.inf || p.X == nil || p.Y == nil {
		return nil, fmt.Errorf("edwards point without coordinates: %w", cxerr.ErrInvalidPoint)
	}
	l := c.d.Length
	if compressed {
		out := make([]byte, 0, 1+l)
		out = append(out, 0x02)
		return append(out, c.Compress(p)...), nil
	}
	out := make([]byte, 0, 1+2*l)
	out = append(out, 0x04)
	out = append(out, encodeCoord(p.X, l)...)
	return append(out, encodeCoord(p.Y, l)...), nil
}

func (c *EdwardsCurve) Decode(raw []byte) (*Point, error) {
	if err := validateEncoding(c.d, raw); err != nil {
		return nil, err
	}
	if raw[0] != 0x04 {
		return c.Decompress(raw[1:])
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

// Compress returns le(y) with the parity of x in the most significant bit, the
// bare RFC 8032 point encoding.
func (c *EdwardsCurve) Compress(p *Point) []byte {
	out := bn.ToLittleEndian(p.Y, c.d.Length)
	out[len(out)-1] |= byte(p.X.Bit(0)) << 7
	return out
}

// Decompress parses an RFC 8032 point encoding.
func (c *EdwardsCurve) Decompress(b []byte) (*Point, error) {
	if len(b) != c.d.Length {
		return nil, fmt.Errorf("compressed point of %d bytes on %s: %w", len(b), c.d.Name, cxerr.ErrInvalidParameterSize)
	}
	raw := make([]byte, len(b))
	copy(raw, b)
	sign := uint(raw[len(raw)-1] >> 7)
	raw[len(raw)-1] &= 0x7f
	y := bn.FromLittleEndian(raw)
	if y.Cmp(c.d.P) >= 0 {
		return nil, fmt.Errorf("non-canonical y on %s: %w", c.d.Name, cxerr.ErrInvalidPoint)
	}
	x, err := edwardsRecoverX(c.d, y, sign)
	if err != nil {
		return nil, err
	}
	return &Point{Curve: c.d.ID, X: x, Y: y}, nil
}

// edwardsRecoverX solves the curve equation for x given y and the parity of x:
// x² = (y² - 1) / (d·y² - a).
func edwardsRecoverX(d *Domain, y *big.Int, sign uint) (*big.Int, error) {
	p := d.P
	y2 := new(big.Int).Mul(y, y)
	y2.Mod(y2, p)
	u := new(big.Int).Sub(y2, big.NewInt(1))
	u.Mod(u, p)
	v := new(big.Int).Mul(d.D, y2)
	v.Sub(v, d.A)
	v.Mod(v, p)
	vi := new(big.Int).ModInverse(v, p)
	if vi == nil {
		return nil, fmt.Errorf("decompress on %s: %w", d.Name, cxerr.ErrInvalidPoint)
	}
	w := u.Mul(u, vi)
	w.Mod(w, p)

	x, ok := sqrtModP(w, p)
	if !ok {
		return nil, fmt.Errorf("no square root on %s: %w", d.Name, cxerr.ErrInvalidPoint)
	}
	if x.Sign() == 0 && sign == 1 {
		return nil, fmt.Errorf("x = 0 with sign bit on %s: %w", d.Name, cxerr.ErrInvalidPoint)
	}
	if x.Bit(0) != sign {
		x.Sub(p, x)
	}
	return x, nil
}

// sqrtModP uses the p ≡ 5 (mod 8) shortcut of RFC 8032 and falls back to the
// general algorithm for other primes.
func sqrtModP(w, p *big.Int) (*big.Int, bool) {
	eight := big.NewInt(8)
	if new(big.Int).Mod(p, eight).Int64() != 5 {
		x := new(big.Int).ModSqrt(w, p)
		return x, x != nil
	}
	e := new(big.Int).Add(p, big.NewInt(3))
	e.Rsh(e, 3)
	x := new(big.Int).Exp(w, e, p)
	if squares(x, w, p) {
		return x, true
	}
	// Multiply by sqrt(-1) = 2^((p-1)/4).
	e.Sub(p, big.NewInt(1))
	e.Rsh(e, 2)
	x.Mul(x, new(big.Int).Exp(big.NewInt(2), e, p))
	x.Mod(x, p)
	return x, squares(x, w, p)
}

func squares(x, w, p *big.Int) bool {
	x2 := new(big.Int).Mul(x, x)
	return x2.Mod(x2, p).Cmp(w) == 0
}
