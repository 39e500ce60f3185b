package hsm

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"

	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/cxerr"
	"github.com/glinharesb/cxemu/internal/ecdh"
	"github.com/glinharesb/cxemu/internal/ecdsa"
	"github.com/glinharesb/cxemu/internal/eddsa"
	"github.com/glinharesb/cxemu/internal/hashes"
	"github.com/glinharesb/cxemu/internal/hd"
)

var _ Provider = (*SoftwareHSM)(nil)

// SoftwareHSM runs the coprocessor engines in process, keyed by one device
// seed.
type SoftwareHSM struct {
	seed []byte
	rand io.Reader
}

// NewSoftwareHSM returns a provider for seed. A nil random source means
// crypto/rand.
func NewSoftwareHSM(seed []byte, random io.Reader) *SoftwareHSM {
	if random == nil {
		random = rand.Reader
	}
	return &SoftwareHSM{seed: append([]byte(nil), seed...), rand: random}
}

func trace(op string, err error, attrs ...any) {
	if err != nil {
		attrs = append(attrs, "error", err, "code", fmt.Sprintf("%#08x", cxerr.Code(err)))
	}
	slog.Debug(op, attrs...)
}

func (s *SoftwareHSM) DeriveNode(mode hd.Mode, id curve.ID, path hd.Path) (*hd.Node, error) {
	n, err := hd.Derive(mode, id, s.seed, path)
	trace("derive_node", err, "mode", mode, "curve", id, "path", path)
	return n, err
}

func (s *SoftwareHSM) DeriveKey(mode hd.Mode, id curve.ID, path hd.Path) (*curve.PrivateKey, error) {
	n, err := s.DeriveNode(mode, id, path)
	if err != nil {
		return nil, err
	}
	return n.PrivateKey(id)
}

func (s *SoftwareHSM) GenerateKey(id curve.ID) (*curve.PrivateKey, error) {
	k, err := curve.GeneratePrivateKey(id, s.rand)
	trace("generate_pair", err, "curve", id)
	return k, err
}

// PublicKey derives the public key of key. Edwards keys go through RFC 8032
// expansion.
func (s *SoftwareHSM) PublicKey(key *curve.PrivateKey) (*curve.PublicKey, error) {
	if key == nil {
		return nil, fmt.Errorf("nil private key: %w", cxerr.ErrInvalidParameter)
	}
	var (
		pub *curve.PublicKey
		err error
	)
	if kind, kerr := key.Curve.Kind(); kerr == nil && kind == curve.TwistedEdwards {
		pub, err = eddsa.PublicKey(key, hashes.SHA512)
	} else {
		pub, err = curve.PublicFromPrivate(key)
	}
	trace("public_key", err, Redacted(key))
	return pub, err
}

func (s *SoftwareHSM) SignECDSA(key *curve.PrivateKey, opts ecdsa.SignOptions, digest []byte) (*ecdsa.Signature, error) {
	if opts.Rand == nil {
		opts.Rand = s.rand
	}
	sig, err := ecdsa.Sign(key, opts, digest)
	trace("ecdsa_sign", err, Redacted(key), "hash", opts.Hash, "mode", opts.Mode)
	return sig, err
}

func (s *SoftwareHSM) VerifyECDSA(pub *curve.PublicKey, digest, sig []byte) (bool, error) {
	ok, err := ecdsa.Verify(pub, digest, sig)
	trace("ecdsa_verify", err, "curve", curveOf(pub), "valid", ok)
	return ok, err
}

// RecoverECDSA rebuilds the signer's public key from a signature and its info
// byte.
func (s *SoftwareHSM) RecoverECDSA(id curve.ID, digest, sig []byte, info ecdsa.Info) (*curve.PublicKey, error) {
	pub, err := ecdsa.RecoverPublicKey(id, digest, sig, info)
	trace("ecdsa_recover", err, "curve", id, "info", int(info))
	return pub, err
}

func (s *SoftwareHSM) SignEdDSA(key *curve.PrivateKey, alg hashes.Algorithm, msg []byte) ([]byte, error) {
	sig, err := eddsa.Sign(key, alg, msg)
	trace("eddsa_sign", err, Redacted(key), "hash", alg, "len", len(msg))
	return sig, err
}

func (s *SoftwareHSM) VerifyEdDSA(pub *curve.PublicKey, alg hashes.Algorithm, msg, sig []byte) (bool, error) {
	ok, err := eddsa.Verify(pub, alg, msg, sig)
	trace("eddsa_verify", err, "curve", curveOf(pub), "valid", ok)
	return ok, err
}

func (s *SoftwareHSM) ECDH(key *curve.PrivateKey, mode ecdh.Mode, peer []byte) ([]byte, error) {
	secret, err := ecdh.Agree(key, mode, peer)
	trace("ecdh", err, Redacted(key), "mode", mode)
	return secret, err
}

func (s *SoftwareHSM) SLIP21(label []byte) ([]byte, error) {
	key, err := hd.SLIP21(s.seed, label)
	trace("slip21", err, "label_len", len(label))
	return key, err
}

func (s *SoftwareHSM) EIP2333(path hd.Path) ([]byte, error) {
	key, err := hd.EIP2333(s.seed, path)
	trace("eip2333", err, "path", path)
	return key, err
}

func curveOf(pub *curve.PublicKey) curve.ID {
	if pub == nil {
		return 0
	}
	return pub.Curve
}

// Redacted describes key for logs without its secret bytes.
func Redacted(key *curve.PrivateKey) slog.Attr {
	if key == nil {
		return slog.String("key", "<nil>")
	}
	return slog.Group("key",
		slog.String("curve", key.Curve.String()),
		slog.Int("len", len(key.D)),
	)
}
