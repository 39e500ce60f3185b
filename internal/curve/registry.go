package curve

import (
	"crypto/elliptic"
	"fmt"
	"math/big"
	"slices"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/glinharesb/cxemu/internal/cxerr"
)

var registry = map[ID]*Domain{}

func init() {
	for _, d := range []*Domain{
		fromCurveParams(Secp256k1, "secp256k1", secp256k1.S256().Params(), big.NewInt(0)),
		fromCurveParams(Secp256r1, "secp256r1", elliptic.P256().Params(), nil),
		fromCurveParams(Secp384r1, "secp384r1", elliptic.P384().Params(), nil),
		fromCurveParams(Secp521r1, "secp521r1", elliptic.P521().Params(), nil),
		bls12381G1(),
		ed25519Domain(),
		curve25519Domain(),
	} {
		registry[d.ID] = d
	}
}

// fromCurveParams builds a Weierstrass domain from Go's parameter set. A nil a
// means the NIST convention a = -3.
func fromCurveParams(id ID, name string, p *elliptic.CurveParams, a *big.Int) *Domain {
	if a == nil {
		a = new(big.Int).Sub(p.P, big.NewInt(3))
	}
	return &Domain{
		ID:      id,
		Kind:    Weierstrass,
		Name:    name,
		BitSize: p.BitSize,
		Length:  (p.BitSize + 7) / 8,
		P:       new(big.Int).Set(p.P),
		A:       a,
		B:       new(big.Int).Set(p.B),
		Gx:      new(big.Int).Set(p.Gx),
		Gy:      new(big.Int).Set(p.Gy),
		N:       new(big.Int).Set(p.N),
		H:       1,
	}
}

func bls12381G1() *Domain {
	return &Domain{
		ID:      BLS12381G1,
		Kind:    Weierstrass,
		Name:    "bls12-381-g1",
		BitSize: 381,
		Length:  48,
		P:       hexInt("1a0111ea397fe69a4b1ba7b6434bacd764774b84f38512bf6730d2a0f6b0f6241eabfffeb153ffffb9feffffffffaaab"),
		A:       big.NewInt(0),
		B:       big.NewInt(4),
		Gx:      hexInt("17f1d3a73197d7942695638c4fa9ac0fc3688c4f9774b905a14e3a3f171bac586c55e83ff97a1aeffb3af00adb22c6bb"),
		Gy:      hexInt("08b3f481e3aaa0f1a09e30ed741d8ae4fcf5e095d5d00af600db18cb2c04b3edd03cc744a2888ae40caa232946c5e7e1"),
		N:       hexInt("73eda753299d7d483339d80809a1d80553bda402fffe5bfeffffffff00000001"),
		H:       1,
	}
}

// p25519 is 2^255 - 19, shared by Ed25519 and Curve25519.
func p25519() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 255)
	return p.Sub(p, big.NewInt(19))
}

// l25519 is the prime order of the Ed25519 / Curve25519 base point subgroup.
func l25519() *big.Int {
	l := new(big.Int).Lsh(big.NewInt(1), 252)
	return l.Add(l, decInt("27742317777372353535851937790883648493"))
}

func ed25519Domain() *Domain {
	p := p25519()
	// d = -121665/121666, Gy = 4/5.
	d := new(big.Int).ModInverse(big.NewInt(121666), p)
	d.Mul(d, big.NewInt(-121665)).Mod(d, p)
	gy := new(big.Int).ModInverse(big.NewInt(5), p)
	gy.Mul(gy, big.NewInt(4)).Mod(gy, p)

	dom := &Domain{
		ID:      Ed25519,
		Kind:    TwistedEdwards,
		Name:    "ed25519",
		BitSize: 255,
		Length:  32,
		P:       p,
		A:       new(big.Int).Sub(p, big.NewInt(1)),
		D:       d,
		Gy:      gy,
		N:       l25519(),
		H:       8,
	}
	gx, err := edwardsRecoverX(dom, gy, 0)
	if err != nil {
		panic(fmt.Sprintf("ed25519 base point: %v", err))
	}
	dom.Gx = gx
	return dom
}

func curve25519Domain() *Domain {
	return &Domain{
		ID:      Curve25519,
		Kind:    Montgomery,
		Name:    "curve25519",
		BitSize: 255,
		Length:  32,
		P:       p25519(),
		A:       big.NewInt(486662),
		Gx:      big.NewInt(9),
		N:       l25519(),
		H:       8,
	}
}

func hexInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("bad hex constant " + s)
	}
	return v
}

func decInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad decimal constant " + s)
	}
	return v
}

// Lookup returns the registered domain for id.
func Lookup(id ID) (*Domain, error) {
	d, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("curve %#x: %w", uint32(id), cxerr.ErrUnknownCurve)
	}
	return d, nil
}

// IDs lists every registered curve in ascending order.
func IDs() []ID {
	ids := make([]ID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ValidatePublicKeyEncoding checks that raw is a plausible public key for id:
// compressed prefixes are refused on Weierstrass curves, the uncompressed
// prefix on Montgomery curves, and the length must match the prefix. An empty
// buffer is accepted as an uninitialised key.
func ValidatePublicKeyEncoding(id ID, raw []byte) error {
	d, err := Lookup(id)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	return validateEncoding(d, raw)
}

func validateEncoding(d *Domain, raw []byte) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty point on %s: %w", d.Name, cxerr.ErrInvalidParameterSize)
	}
	var want int
	switch raw[0] {
	case 0x02, 0x03:
		if d.Kind == Weierstrass {
			return fmt.Errorf("compressed key on %s: %w", d.Name, cxerr.ErrInvalidParameter)
		}
		want = 1 + d.Length
	case 0x04:
		if d.Kind == Montgomery {
			return fmt.Errorf("uncompressed key on %s: %w", d.Name, cxerr.ErrInvalidParameter)
		}
		want = 1 + 2*d.Length
	default:
		return fmt.Errorf("public key prefix %#02x: %w", raw[0], cxerr.ErrInvalidParameter)
	}
	if len(raw) != want {
		return fmt.Errorf("public key of %d bytes on %s, want %d: %w", len(raw), d.Name, want, cxerr.ErrInvalidParameterSize)
	}
	return nil
}
