// Package curve models the coprocessor's elliptic curve domains and the point
// arithmetic of its three curve families: short Weierstrass, twisted Edwards
// and Montgomery.
package curve

import (
	"fmt"
	"math/big"

	"github.com/glinharesb/cxemu/internal/cxerr"
)

// ID is a curve identifier using the device numbering. The numeric range of an
// identifier determines its family.
type ID uint32

const (
	None       ID = 0
	Secp256k1  ID = 0x21
	Secp256r1  ID = 0x22
	Secp384r1  ID = 0x23
	Secp521r1  ID = 0x24
	BLS12381G1 ID = 0x39
	Ed25519    ID = 0x71
	Curve25519 ID = 0x81
)

const (
	weierstrassStart = 0x20
	weierstrassEnd   = 0x6F
	edwardsStart     = 0x70
	edwardsEnd       = 0x7F
	montgomeryStart  = 0x80
	montgomeryEnd    = 0x8F
)

// Kind is a curve family tag.
type Kind int

const (
	Weierstrass Kind = iota + 1
	TwistedEdwards
	Montgomery
)

func (k Kind) String() string {
	switch k {
	case Weierstrass:
		return "weierstrass"
	case TwistedEdwards:
		return "twisted-edwards"
	case Montgomery:
		return "montgomery"
	default:
		return "unknown"
	}
}

// Kind classifies id into its family from its numeric range alone; the curve
// does not need to be registered.
func (id ID) Kind() (Kind, error) {
	switch {
	case id > weierstrassStart && id < weierstrassEnd:
		return Weierstrass, nil
	case id > edwardsStart && id < edwardsEnd:
		return TwistedEdwards, nil
	case id > montgomeryStart && id < montgomeryEnd:
		return Montgomery, nil
	default:
		return 0, fmt.Errorf("curve %#x: %w", uint32(id), cxerr.ErrUnknownCurve)
	}
}

func (id ID) String() string {
	if d, ok := registry[id]; ok {
		return d.Name
	}
	return fmt.Sprintf("curve(%#x)", uint32(id))
}

// Domain holds a curve's parameters. Domains come from the registry and are
// shared process-wide; callers must treat every field as read-only.
//
// Weierstrass curves are y² = x³ + A·x + B, twisted Edwards curves are
// A·x² + y² = 1 + D·x²·y², Montgomery curves are v² = u³ + A·u² + u.
type Domain struct {
	ID      ID
	Kind    Kind
	Name    string
	BitSize int
	Length  int
	P       *big.Int
	A       *big.Int
	B       *big.Int
	D       *big.Int
	Gx, Gy  *big.Int
	N       *big.Int
	H       int
}

// OrderBytes returns the big-endian group order on its minimal byte length.
func (d *Domain) OrderBytes() []byte {
	return d.N.FillBytes(make([]byte, (d.N.BitLen()+7)/8))
}
