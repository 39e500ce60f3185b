// Package bn implements fixed-width, big-endian integer arithmetic over byte
// buffers. Results are always left-padded to the width of the modulus (or of
// the operands for plain add/sub), matching the coprocessor's math syscalls.
package bn

import (
	"fmt"
	"math/big"

	"github.com/glinharesb/cxemu/internal/cxerr"
)

// Int interprets b as an unsigned big-endian integer.
func Int(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// Bytes encodes v into exactly width big-endian bytes.
func Bytes(v *big.Int, width int) ([]byte, error) {
	if v.Sign() < 0 || (v.BitLen()+7)/8 > width {
		return nil, fmt.Errorf("%d-bit value into %d bytes: %w", v.BitLen(), width, cxerr.ErrInvalidParameterSize)
	}
	return v.FillBytes(make([]byte, width)), nil
}

// MustBytes is Bytes for values already known to fit, such as results reduced
// modulo a width-sized modulus.
func MustBytes(v *big.Int, width int) []byte {
	out, err := Bytes(v, width)
	if err != nil {
		panic(err)
	}
	return out
}

// Cmp compares a and b as unsigned integers regardless of their widths.
func Cmp(a, b []byte) int {
	return Int(a).Cmp(Int(b))
}

// IsZero reports whether every byte of a is zero.
func IsZero(a []byte) bool {
	for _, c := range a {
		if c != 0 {
			return false
		}
	}
	return true
}

// BitLen returns the bit length of a once leading zero bytes are stripped.
func BitLen(a []byte) int {
	return Int(a).BitLen()
}

// Add returns a+b truncated to len(a) bytes and the carry out.
func Add(a, b []byte) ([]byte, bool, error) {
	if len(a) != len(b) {
		return nil, false, fmt.Errorf("add %d and %d bytes: %w", len(a), len(b), cxerr.ErrInvalidParameterSize)
	}
	r := new(big.Int).Add(Int(a), Int(b))
	carry := r.BitLen() > 8*len(a)
	if carry {
		r.SetBit(r, 8*len(a), 0)
	}
	return MustBytes(r, len(a)), carry, nil
}

// Sub returns a-b modulo 2^(8·len(a)) and the borrow out.
func Sub(a, b []byte) ([]byte, bool, error) {
	if len(a) != len(b) {
		return nil, false, fmt.Errorf("sub %d and %d bytes: %w", len(a), len(b), cxerr.ErrInvalidParameterSize)
	}
	r := new(big.Int).Sub(Int(a), Int(b))
	borrow := r.Sign() < 0
	if borrow {
		r.Add(r, new(big.Int).Lsh(big.NewInt(1), uint(8*len(a))))
	}
	return MustBytes(r, len(a)), borrow, nil
}

// Mul returns the full product a·b on len(a)+len(b) bytes.
func Mul(a, b []byte) []byte {
	return MustBytes(new(big.Int).Mul(Int(a), Int(b)), len(a)+len(b))
}

func modulus(m []byte) (*big.Int, error) {
	n := Int(m)
	if n.Sign() == 0 {
		return nil, fmt.Errorf("zero modulus: %w", cxerr.ErrInvalidParameter)
	}
	return n, nil
}

// Mod reduces a modulo m, output on len(m) bytes.
func Mod(a, m []byte) ([]byte, error) {
	n, err := modulus(m)
	if err != nil {
		return nil, err
	}
	return MustBytes(new(big.Int).Mod(Int(a), n), len(m)), nil
}

// AddMod returns (a+b) mod m.
func AddMod(a, b, m []byte) ([]byte, error) {
	n, err := modulus(m)
	if err != nil {
		return nil, err
	}
	r := new(big.Int).Add(Int(a), Int(b))
	return MustBytes(r.Mod(r, n), len(m)), nil
}

// SubMod returns (a-b) mod m.
func SubMod(a, b, m []byte) ([]byte, error) {
	n, err := modulus(m)
	if err != nil {
		return nil, err
	}
	r := new(big.Int).Sub(Int(a), Int(b))
	return MustBytes(r.Mod(r, n), len(m)), nil
}

// MulMod returns (a·b) mod m.
func MulMod(a, b, m []byte) ([]byte, error) {
	n, err := modulus(m)
	if err != nil {
		return nil, err
	}
	r := new(big.Int).Mul(Int(a), Int(b))
	return MustBytes(r.Mod(r, n), len(m)), nil
}

// PowMod returns a^e mod m.
func PowMod(a, e, m []byte) ([]byte, error) {
	n, err := modulus(m)
	if err != nil {
		return nil, err
	}
	return MustBytes(new(big.Int).Exp(Int(a), Int(e), n), len(m)), nil
}

// InvMod returns a⁻¹ mod m, failing with cxerr.ErrArithmetic when a has no
// inverse.
func InvMod(a, m []byte) ([]byte, error) {
	n, err := modulus(m)
	if err != nil {
		return nil, err
	}
	r := new(big.Int).ModInverse(Int(a), n)
	if r == nil {
		return nil, fmt.Errorf("inverse mod %d-bit modulus: %w", n.BitLen(), cxerr.ErrArithmetic)
	}
	return MustBytes(r, len(m)), nil
}

// ShiftRight shifts a right by n bits keeping its width.
func ShiftRight(a []byte, n uint) []byte {
	return MustBytes(new(big.Int).Rsh(Int(a), n), len(a))
}
