package hsm

import (
	"encoding/binary"
	"fmt"

	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/cxerr"
	"github.com/glinharesb/cxemu/internal/hd"
)

// Capacities of the key structures in application memory.
const (
	PrivateKeyCap         = 64
	ExtendedPrivateKeyCap = 128
	PublicKeyCap          = 129
	MaxPathLevels         = 10

	headerSize = 8
)

// Key structures are laid out as {curve u32, length u32, bytes[cap]} in
// little-endian order and padded to a 4-byte boundary.
func structSize(capacity int) int {
	return (headerSize + capacity + 3) &^ 3
}

func privateCap(id curve.ID) (int, error) {
	kind, err := id.Kind()
	if err != nil {
		return 0, err
	}
	if kind == curve.TwistedEdwards {
		return ExtendedPrivateKeyCap, nil
	}
	return PrivateKeyCap, nil
}

// PrivateKeySize is the size of the private key structure for curve id.
func PrivateKeySize(id curve.ID) (int, error) {
	c, err := privateCap(id)
	if err != nil {
		return 0, err
	}
	return structSize(c), nil
}

// PublicKeySize is the size of every public key structure.
func PublicKeySize() int { return structSize(PublicKeyCap) }

func marshal(id curve.ID, payload []byte, capacity int) []byte {
	out := make([]byte, structSize(capacity))
	binary.LittleEndian.PutUint32(out[0:], uint32(id))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(payload)))
	copy(out[headerSize:], payload)
	return out
}

func unmarshal(b []byte, capacity int) (curve.ID, []byte, error) {
	if len(b) != structSize(capacity) {
		return 0, nil, fmt.Errorf("key structure of %d bytes, want %d: %w", len(b), structSize(capacity), cxerr.ErrInvalidParameterSize)
	}
	id := curve.ID(binary.LittleEndian.Uint32(b[0:]))
	n := binary.LittleEndian.Uint32(b[4:])
	if n > uint32(capacity) {
		return 0, nil, fmt.Errorf("key length %d exceeds %d: %w", n, capacity, cxerr.ErrInvalidParameterSize)
	}
	return id, append([]byte(nil), b[headerSize:headerSize+int(n)]...), nil
}

// MarshalPrivateKey lays k out as the device's private key structure.
func MarshalPrivateKey(k *curve.PrivateKey) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("nil private key: %w", cxerr.ErrInvalidParameter)
	}
	c, err := privateCap(k.Curve)
	if err != nil {
		return nil, err
	}
	if len(k.D) > c {
		return nil, fmt.Errorf("private key of %d bytes: %w", len(k.D), cxerr.ErrInvalidParameterSize)
	}
	return marshal(k.Curve, k.D, c), nil
}

// UnmarshalPrivateKey parses a private key structure and validates its length
// against the curve.
func UnmarshalPrivateKey(b []byte) (*curve.PrivateKey, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("key structure of %d bytes: %w", len(b), cxerr.ErrInvalidParameterSize)
	}
	c, err := privateCap(curve.ID(binary.LittleEndian.Uint32(b)))
	if err != nil {
		return nil, err
	}
	id, d, err := unmarshal(b, c)
	if err != nil {
		return nil, err
	}
	return curve.NewPrivateKey(id, d)
}

// MarshalPublicKey lays k out as the device's public key structure.
func MarshalPublicKey(k *curve.PublicKey) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("nil public key: %w", cxerr.ErrInvalidParameter)
	}
	if len(k.W) > PublicKeyCap {
		return nil, fmt.Errorf("public key of %d bytes: %w", len(k.W), cxerr.ErrInvalidParameterSize)
	}
	return marshal(k.Curve, k.W, PublicKeyCap), nil
}

// UnmarshalPublicKey parses a public key structure. A zero length is an
// uninitialised key and is accepted.
func UnmarshalPublicKey(b []byte) (*curve.PublicKey, error) {
	id, w, err := unmarshal(b, PublicKeyCap)
	if err != nil {
		return nil, err
	}
	return curve.NewPublicKey(id, w)
}

// MarshalPath encodes p as consecutive big-endian u32 values.
func MarshalPath(p hd.Path) []byte {
	out := make([]byte, 0, 4*len(p))
	for _, idx := range p {
		out = binary.BigEndian.AppendUint32(out, idx)
	}
	return out
}

// UnmarshalPath decodes a derivation path passed as big-endian u32 values.
func UnmarshalPath(b []byte) (hd.Path, error) {
	if len(b)%4 != 0 || len(b)/4 > MaxPathLevels {
		return nil, fmt.Errorf("path of %d bytes: %w", len(b), cxerr.ErrInvalidParameterSize)
	}
	p := make(hd.Path, len(b)/4)
	for i := range p {
		p[i] = binary.BigEndian.Uint32(b[4*i:])
	}
	return p, nil
}

// DERSignatureSize is the buffer applications reserve for an ECDSA signature
// on curve id.
func DERSignatureSize(id curve.ID) (int, error) {
	d, err := curve.Lookup(id)
	if err != nil {
		return 0, err
	}
	return 2*d.Length + 8, nil
}
