// Package der encodes ECDSA signatures as SEQUENCE { INTEGER r, INTEGER s }.
package der

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/glinharesb/cxemu/internal/bn"
	"github.com/glinharesb/cxemu/internal/cxerr"
)

// Encode serializes big-endian r and s with minimal INTEGER encodings.
func Encode(r, s []byte) ([]byte, error) {
	ri, si := bn.Int(r), bn.Int(s)
	if ri.Sign() == 0 || si.Sign() == 0 {
		return nil, fmt.Errorf("zero signature component: %w", cxerr.ErrInvalidParameter)
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(ri)
		b.AddASN1BigInt(si)
	})
	out, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("der encode: %v: %w", err, cxerr.ErrInvalidParameter)
	}
	return out, nil
}

// Decode parses a strict DER signature. Trailing bytes, non-minimal integers
// and non-positive components are refused.
func Decode(sig []byte) (r, s *big.Int, err error) {
	var (
		inner cryptobyte.String
		input = cryptobyte.String(sig)
	)
	r, s = new(big.Int), new(big.Int)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) || !input.Empty() ||
		!inner.ReadASN1Integer(r) || !inner.ReadASN1Integer(s) || !inner.Empty() {
		return nil, nil, fmt.Errorf("malformed der signature: %w", cxerr.ErrInvalidParameter)
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, nil, fmt.Errorf("non-positive signature component: %w", cxerr.ErrInvalidParameter)
	}
	return r, s, nil
}

// DecodeFixed parses sig and returns r and s on width bytes each.
func DecodeFixed(sig []byte, width int) (r, s []byte, err error) {
	ri, si, err := Decode(sig)
	if err != nil {
		return nil, nil, err
	}
	if r, err = bn.Bytes(ri, width); err != nil {
		return nil, nil, err
	}
	if s, err = bn.Bytes(si, width); err != nil {
		return nil, nil, err
	}
	return r, s, nil
}
