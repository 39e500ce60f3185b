package curve

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/glinharesb/cxemu/internal/cxerr"
)

// PrivateKey is a big-endian scalar bound to a curve. Ed25519 keys are either
// a 32-byte RFC 8032 seed or a 64-byte extended key kL ‖ kR as produced by
// BIP32-Ed25519 derivation.
type PrivateKey struct {
	Curve ID
	D     []byte
}

// PublicKey is an encoded point bound to a curve. An empty W is an
// uninitialised key.
type PublicKey struct {
	Curve ID
	W     []byte
}

func NewPrivateKey(id ID, d []byte) (*PrivateKey, error) {
	dom, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	switch {
	case len(d) == dom.Length:
	case len(d) == 2*dom.Length && dom.Kind == TwistedEdwards:
	case len(d) == len(dom.OrderBytes()) && dom.Kind == Weierstrass:
		// Scalars sized to the order, such as 32-byte EIP-2333 keys on
		// BLS12-381, are widened to the field length.
		d = new(big.Int).SetBytes(d).FillBytes(make([]byte, dom.Length))
	default:
		return nil, fmt.Errorf("private key of %d bytes on %s: %w", len(d), dom.Name, cxerr.ErrInvalidParameterSize)
	}
	return &PrivateKey{Curve: id, D: append([]byte(nil), d...)}, nil
}

func NewPublicKey(id ID, w []byte) (*PublicKey, error) {
	if err := ValidatePublicKeyEncoding(id, w); err != nil {
		return nil, err
	}
	return &PublicKey{Curve: id, W: append([]byte(nil), w...)}, nil
}

// Extended reports whether k is a 64-byte Ed25519 extended key.
func (k *PrivateKey) Extended() bool {
	d, err := Lookup(k.Curve)
	return err == nil && len(k.D) == 2*d.Length
}

// Point decodes the public key.
func (k *PublicKey) Point() (*Point, error) {
	if len(k.W) == 0 {
		return nil, fmt.Errorf("uninitialised public key: %w", cxerr.ErrInvalidParameter)
	}
	f, err := FamilyOf(k.Curve)
	if err != nil {
		return nil, err
	}
	return f.Decode(k.W)
}

// GeneratePrivateKey draws a fresh key from r, or crypto/rand when r is nil.
// Weierstrass scalars are sampled uniformly in [1, n).
func GeneratePrivateKey(id ID, r io.Reader) (*PrivateKey, error) {
	dom, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = rand.Reader
	}
	if dom.Kind != Weierstrass {
		buf := make([]byte, dom.Length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read entropy: %w", err)
		}
		return &PrivateKey{Curve: id, D: buf}, nil
	}
	// Sample on the order's bit length, then pad to the field length.
	width := (dom.N.BitLen() + 7) / 8
	excess := uint(8*width - dom.N.BitLen())
	buf := make([]byte, width)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read entropy: %w", err)
		}
		buf[0] &= 0xff >> excess
		d := new(big.Int).SetBytes(buf)
		if d.Sign() > 0 && d.Cmp(dom.N) < 0 {
			return &PrivateKey{Curve: id, D: d.FillBytes(make([]byte, dom.Length))}, nil
		}
	}
}

// PublicFromPrivate computes the encoded public key d·G for Weierstrass and
// Montgomery curves. Edwards public keys depend on the signature scheme and
// are derived by the eddsa package.
func PublicFromPrivate(k *PrivateKey) (*PublicKey, error) {
	f, err := FamilyOf(k.Curve)
	if err != nil {
		return nil, err
	}
	dom := f.Domain()
	if dom.Kind == TwistedEdwards {
		return nil, fmt.Errorf("edwards public key without a hash: %w", cxerr.ErrInvalidParameter)
	}
	if dom.Kind == Weierstrass {
		d := new(big.Int).SetBytes(k.D)
		if d.Sign() == 0 || d.Cmp(dom.N) >= 0 {
			return nil, fmt.Errorf("private scalar out of range on %s: %w", dom.Name, cxerr.ErrInvalidParameter)
		}
	}
	p, err := f.ScalarBaseMul(k.D)
	if err != nil {
		return nil, err
	}
	w, err := f.Encode(p, dom.Kind == Montgomery)
	if err != nil {
		return nil, err
	}
	return &PublicKey{Curve: k.Curve, W: w}, nil
}
