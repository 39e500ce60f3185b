// Package hsm exposes the coprocessor engines as one provider, the way the
// emulated device's syscalls see them, together with the fixed-size key
// structures that cross the syscall boundary.
package hsm

import (
	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/ecdh"
	"github.com/glinharesb/cxemu/internal/ecdsa"
	"github.com/glinharesb/cxemu/internal/hashes"
	"github.com/glinharesb/cxemu/internal/hd"
)

// Provider abstracts the cryptographic coprocessor. Keys derived from the
// device seed never leave it except as curve.PrivateKey values handed back to
// the caller that derived them.
type Provider interface {
	DeriveNode(mode hd.Mode, id curve.ID, path hd.Path) (*hd.Node, error)
	DeriveKey(mode hd.Mode, id curve.ID, path hd.Path) (*curve.PrivateKey, error)
	GenerateKey(id curve.ID) (*curve.PrivateKey, error)
	PublicKey(key *curve.PrivateKey) (*curve.PublicKey, error)

	SignECDSA(key *curve.PrivateKey, opts ecdsa.SignOptions, digest []byte) (*ecdsa.Signature, error)
	VerifyECDSA(pub *curve.PublicKey, digest, sig []byte) (bool, error)
	RecoverECDSA(id curve.ID, digest, sig []byte, info ecdsa.Info) (*curve.PublicKey, error)
	SignEdDSA(key *curve.PrivateKey, alg hashes.Algorithm, msg []byte) ([]byte, error)
	VerifyEdDSA(pub *curve.PublicKey, alg hashes.Algorithm, msg, sig []byte) (bool, error)
	ECDH(key *curve.PrivateKey, mode ecdh.Mode, peer []byte) ([]byte, error)

	SLIP21(label []byte) ([]byte, error)
	EIP2333(path hd.Path) ([]byte, error)

	Math(op MathOp, a, b, m []byte) (*MathResult, error)
}
