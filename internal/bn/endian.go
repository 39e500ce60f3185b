package bn

import "math/big"

// Reverse returns a reversed copy of b.
func Reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// FromLittleEndian interprets b as an unsigned little-endian integer.
func FromLittleEndian(b []byte) *big.Int {
	return new(big.Int).SetBytes(Reverse(b))
}

// ToLittleEndian encodes v on width little-endian bytes. v must fit.
func ToLittleEndian(v *big.Int, width int) []byte {
	return Reverse(MustBytes(v, width))
}
