package hsm

import (
	"fmt"

	"github.com/glinharesb/cxemu/internal/bn"
	"github.com/glinharesb/cxemu/internal/cxerr"
)

// MathOp is one of the coprocessor's big-number syscalls.
type MathOp int

const (
	MathAdd MathOp = iota + 1
	MathSub
	MathMult
	MathModM
	MathAddM
	MathSubM
	MathMultM
	MathPowM
	MathInvM
	MathCmp
)

var mathOpNames = map[MathOp]string{
	MathAdd:   "add",
	MathSub:   "sub",
	MathMult:  "mult",
	MathModM:  "modm",
	MathAddM:  "addm",
	MathSubM:  "subm",
	MathMultM: "multm",
	MathPowM:  "powm",
	MathInvM:  "invm",
	MathCmp:   "cmp",
}

func (o MathOp) String() string {
	if s, ok := mathOpNames[o]; ok {
		return s
	}
	return fmt.Sprintf("MathOp(%d)", int(o))
}

// ParseMathOp maps a syscall name such as "multm" to its op.
func ParseMathOp(name string) (MathOp, error) {
	for op, s := range mathOpNames {
		if s == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("math op %q: %w", name, cxerr.ErrInvalidParameter)
}

// MathResult is a syscall's output. Carry is the carry of add or the borrow
// of sub. Cmp is only set by MathCmp.
type MathResult struct {
	Value []byte
	Carry bool
	Cmp   int
}

// Math runs op over big-endian operands. Modular ops take their modulus from
// m and answer on len(m) bytes; add and sub need operands of equal width.
func (s *SoftwareHSM) Math(op MathOp, a, b, m []byte) (*MathResult, error) {
	res, err := compute(op, a, b, m)
	trace("math", err, "op", op, "width", len(a))
	return res, err
}

func compute(op MathOp, a, b, m []byte) (*MathResult, error) {
	var (
		res MathResult
		err error
	)
	switch op {
	case MathAdd:
		res.Value, res.Carry, err = bn.Add(a, b)
	case MathSub:
		res.Value, res.Carry, err = bn.Sub(a, b)
	case MathMult:
		res.Value = bn.Mul(a, b)
	case MathModM:
		res.Value, err = bn.Mod(a, m)
	case MathAddM:
		res.Value, err = bn.AddMod(a, b, m)
	case MathSubM:
		res.Value, err = bn.SubMod(a, b, m)
	case MathMultM:
		res.Value, err = bn.MulMod(a, b, m)
	case MathPowM:
		res.Value, err = bn.PowMod(a, b, m)
	case MathInvM:
		res.Value, err = bn.InvMod(a, m)
	case MathCmp:
		res.Cmp = bn.Cmp(a, b)
	default:
		return nil, fmt.Errorf("math op %v: %w", op, cxerr.ErrInvalidParameter)
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}
