// Package ecdh computes Diffie-Hellman shared secrets with static coprocessor
// keys. The private scalar never leaves the engine; only the shared point or
// its abscissa is returned.
package ecdh

import (
	"fmt"
	"math/big"

	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/cxerr"
)

// Mode selects the output format.
type Mode int

const (
	// ModePoint returns the full shared point 0x04 ‖ x ‖ y.
	ModePoint Mode = iota + 1
	// ModeX returns only the shared abscissa (u on Montgomery curves).
	ModeX
)

func (m Mode) String() string {
	switch m {
	case ModePoint:
		return "point"
	case ModeX:
		return "x"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Agree multiplies the peer's encoded public point by key's scalar.
// Montgomery curves only support ModeX and Edwards curves are refused.
func Agree(key *curve.PrivateKey, mode Mode, peer []byte) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("nil private key: %w", cxerr.ErrInvalidParameter)
	}
	if mode != ModePoint && mode != ModeX {
		return nil, fmt.Errorf("ecdh mode %v: %w", mode, cxerr.ErrInvalidParameter)
	}
	f, err := curve.FamilyOf(key.Curve)
	if err != nil {
		return nil, err
	}
	dom := f.Domain()
	switch dom.Kind {
	case curve.Weierstrass:
		d := new(big.Int).SetBytes(key.D)
		if d.Sign() == 0 || d.Cmp(dom.N) >= 0 {
			return nil, fmt.Errorf("private scalar out of range on %s: %w", dom.Name, cxerr.ErrInvalidParameter)
		}
	case curve.Montgomery:
		if mode == ModePoint {
			return nil, fmt.Errorf("point output on %s: %w", dom.Name, cxerr.ErrInvalidParameter)
		}
	default:
		return nil, fmt.Errorf("ecdh on %s: %w", dom.Name, cxerr.ErrInvalidParameter)
	}

	q, err := f.Decode(peer)
	if err != nil {
		return nil, err
	}
	s, err := f.ScalarMul(key.D, q)
	if err != nil {
		return nil, err
	}
	if f.IsAtInfinity(s) {
		return nil, fmt.Errorf("shared point at infinity: %w", cxerr.ErrInvalidPoint)
	}
	if mode == ModePoint {
		return f.Encode(s, false)
	}
	return s.X.FillBytes(make([]byte, dom.Length)), nil
}
