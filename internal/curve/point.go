package curve

import "math/big"

// Point is an affine point tagged with its curve. Montgomery points carry only
// the u coordinate in X. The Weierstrass and Montgomery identities have no
// affine form and are flagged instead; the Edwards identity is (0, 1).
type Point struct {
	Curve ID
	X, Y  *big.Int
	inf   bool
}

// NewPoint builds an affine point. It does not check curve membership.
func NewPoint(id ID, x, y *big.Int) *Point {
	p := &Point{Curve: id, X: new(big.Int).Set(x)}
	if y != nil {
		p.Y = new(big.Int).Set(y)
	}
	return p
}

func infinity(id ID) *Point {
	return &Point{Curve: id, inf: true}
}

// Equal reports whether p and q are the same point on the same curve.
func (p *Point) Equal(q *Point) bool {
	if p == nil || q == nil {
		return p == q
	}
	if p.Curve != q.Curve || p.inf != q.inf {
		return false
	}
	if p.inf {
		return true
	}
	return p.X.Cmp(q.X) == 0 && eqOrNil(p.Y, q.Y)
}

func eqOrNil(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

func (p *Point) clone() *Point {
	if p.inf {
		return infinity(p.Curve)
	}
	return NewPoint(p.Curve, p.X, p.Y)
}
