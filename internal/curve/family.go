package curve

import (
	"fmt"
	"math/big"

	"github.com/glinharesb/cxemu/internal/cxerr"
)

// Family is the point arithmetic of one curve. Every method rejects points
// that belong to a different curve with ErrInvalidParameter.
type Family interface {
	Domain() *Domain
	Generator() *Point
	Identity() *Point
	IsAtInfinity(p *Point) bool
	IsOnCurve(p *Point) bool
	Add(p, q *Point) (*Point, error)
	// ScalarMul computes k·p for a big-endian scalar k.
	ScalarMul(k []byte, p *Point) (*Point, error)
	ScalarBaseMul(k []byte) (*Point, error)
	// Encode serializes p with the family's prefix convention. Families
	// without a native compressed form reject compressed = true.
	Encode(p *Point, compressed bool) ([]byte, error)
	Decode(raw []byte) (*Point, error)
}

// FamilyOf returns the arithmetic for a registered curve.
func FamilyOf(id ID) (Family, error) {
	d, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	switch d.Kind {
	case Weierstrass:
		c, err := NewWeierstrass(d)
		if err != nil {
			return nil, err
		}
		return c, nil
	case TwistedEdwards:
		c, err := NewEdwards(d)
		if err != nil {
			return nil, err
		}
		return c, nil
	case Montgomery:
		c, err := NewMontgomery(d)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("curve %v: %w", id, cxerr.ErrUnknownCurve)
	}
}

func checkDomain(d *Domain, want Kind) error {
	if d == nil || d.P == nil || d.N == nil || d.A == nil || d.Gx == nil {
		return fmt.Errorf("incomplete domain: %w", cxerr.ErrInvalidParameter)
	}
	if d.Kind != want {
		return fmt.Errorf("%s is %v, not %v: %w", d.Name, d.Kind, want, cxerr.ErrInvalidParameter)
	}
	if d.Length <= 0 {
		return fmt.Errorf("%s has no byte length: %w", d.Name, cxerr.ErrInvalidParameterSize)
	}
	return nil
}

func checkPoint(d *Domain, p *Point) error {
	if p == nil {
		return fmt.Errorf("nil point: %w", cxerr.ErrInvalidParameter)
	}
	if p.Curve != d.ID {
		return fmt.Errorf("point on %v used with %s: %w", p.Curve, d.Name, cxerr.ErrInvalidParameter)
	}
	return nil
}

// inField reports whether 0 <= v < p.
func inField(v, p *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(p) < 0
}

func encodeCoord(v *big.Int, length int) []byte {
	return v.FillBytes(make([]byte, length))
}
