package server

import (
	"context"
	"encoding/hex"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/cxerr"
	"github.com/glinharesb/cxemu/internal/ecdsa"
	"github.com/glinharesb/cxemu/internal/hashes"
	"github.com/glinharesb/cxemu/internal/hsm"
	"github.com/glinharesb/cxemu/internal/keystore"
)

// signPlan is a validated signing request minus its payload. ECDSA signs
// digests and EdDSA signs messages.
type signPlan struct {
	key  *curve.PrivateKey
	kind curve.Kind
	opts ecdsa.SignOptions

	// limit is the output buffer for DER signatures.
	limit int
}

func newSignPlan(entry *keystore.KeyEntry, in *structpb.Struct) (*signPlan, error) {
	kind, err := entry.Curve.Kind()
	if err != nil {
		return nil, err
	}
	p := &signPlan{key: entry.PrivateKey, kind: kind}
	if p.opts.Hash, err = hashOf(in, kind); err != nil {
		return nil, err
	}
	switch kind {
	case curve.Weierstrass:
		if p.opts.Mode, err = parseSignMode(in); err != nil {
			return nil, err
		}
		p.opts.NonCanonical = boolField(in, "non_canonical")
		if p.limit, err = hsm.DERSignatureSize(entry.Curve); err != nil {
			return nil, err
		}
		if n := intField(in, "buffer_size"); n > 0 {
			p.limit = n
		}
	case curve.TwistedEdwards:
	default:
		return nil, fmt.Errorf("signing with %s: %w", entry.Curve, cxerr.ErrInvalidParameter)
	}
	return p, nil
}

func hashOf(in *structpb.Struct, kind curve.Kind) (hashes.Algorithm, error) {
	name := stringField(in, "hash")
	if name == "" {
		if kind == curve.TwistedEdwards {
			return hashes.SHA512, nil
		}
		return hashes.SHA256, nil
	}
	return hashes.Parse(name)
}

// payload picks the bytes to sign or verify. A message sent for ECDSA is
// hashed with the plan's algorithm first.
func payload(in *structpb.Struct, kind curve.Kind, alg hashes.Algorithm) ([]byte, error) {
	if kind == curve.TwistedEdwards {
		return hexField(in, "message")
	}
	if stringField(in, "digest") != "" {
		return hexField(in, "digest")
	}
	msg, err := requireHex(in, "message")
	if err != nil {
		return nil, badField("digest", "digest or message required")
	}
	return hashes.Sum(alg, msg)
}

func (p *signPlan) sign(h hsm.Provider, data []byte) (map[string]any, error) {
	if p.kind == curve.TwistedEdwards {
		sig, err := h.SignEdDSA(p.key, p.opts.Hash, data)
		if err != nil {
			return nil, err
		}
		return map[string]any{"signature": hex.EncodeToString(sig)}, nil
	}
	sig, err := h.SignECDSA(p.key, p.opts, data)
	if err != nil {
		return nil, err
	}
	if len(sig.DER) > p.limit {
		return nil, fmt.Errorf("der signature of %d bytes into a %d-byte buffer: %w", len(sig.DER), p.limit, cxerr.ErrInvalidParameterSize)
	}
	return map[string]any{
		"signature": hex.EncodeToString(sig.DER),
		"r":         hex.EncodeToString(sig.R),
		"s":         hex.EncodeToString(sig.S),
		"info":      float64(sig.Info),
	}, nil
}

// Sign signs one digest (ECDSA) or message (EdDSA) with an active handle.
func (s *Server) Sign(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	keyID := stringField(in, "key_id")
	resp, c, err := s.sign(in)
	s.audit.Record("Sign", keyID, c, peerAddr(ctx), err, map[string]string{"hash": stringField(in, "hash")})
	return resp, err
}

func (s *Server) sign(in *structpb.Struct) (*structpb.Struct, string, error) {
	entry, err := s.lookup(in, true)
	if err != nil {
		return nil, "", err
	}
	c := entry.Curve.String()
	plan, err := newSignPlan(entry, in)
	if err != nil {
		return nil, c, err
	}
	data, err := payload(in, plan.kind, plan.opts.Hash)
	if err != nil {
		return nil, c, err
	}
	fields, err := plan.sign(s.hsm, data)
	if err != nil {
		return nil, c, err
	}
	resp, err := reply(fields)
	return resp, c, err
}

// BatchSign signs every item of the "items" list concurrently. Failures are
// reported per item; the call itself only fails on a bad key or request.
func (s *Server) BatchSign(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	keyID := stringField(in, "key_id")
	resp, c, n, err := s.batchSign(ctx, in)
	s.audit.Record("BatchSign", keyID, c, peerAddr(ctx), err, map[string]string{"items": fmt.Sprint(n)})
	return resp, err
}

func (s *Server) batchSign(ctx context.Context, in *structpb.Struct) (*structpb.Struct, string, int, error) {
	entry, err := s.lookup(in, true)
	if err != nil {
		return nil, "", 0, err
	}
	c := entry.Curve.String()
	plan, err := newSignPlan(entry, in)
	if err != nil {
		return nil, c, 0, err
	}
	items, err := hexList(in, "items")
	if err != nil {
		return nil, c, 0, err
	}

	results := make([]any, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fields, err := plan.sign(s.hsm, item)
			if err != nil {
				fields = map[string]any{"error": err.Error(), "code": float64(cxerr.Code(err))}
			}
			results[i] = fields
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, c, len(items), err
	}
	resp, err := reply(map[string]any{"results": results})
	return resp, c, len(items), err
}

// Verify checks a signature against a handle's public key or against an
// explicit curve and public_key pair.
func (s *Server) Verify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	valid, c, err := s.verify(in)
	s.audit.Record("Verify", stringField(in, "key_id"), c, peerAddr(ctx), err, nil)
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"valid": valid})
}

func (s *Server) verify(in *structpb.Struct) (bool, string, error) {
	pub, err := s.verifyingKey(in)
	if err != nil {
		return false, stringField(in, "curve"), err
	}
	c := pub.Curve.String()
	kind, err := pub.Curve.Kind()
	if err != nil {
		return false, c, err
	}
	alg, err := hashOf(in, kind)
	if err != nil {
		return false, c, err
	}
	data, err := payload(in, kind, alg)
	if err != nil {
		return false, c, err
	}
	sig, err := requireHex(in, "signature")
	if err != nil {
		return false, c, err
	}
	switch kind {
	case curve.Weierstrass:
		ok, err := s.hsm.VerifyECDSA(pub, data, sig)
		return ok, c, err
	case curve.TwistedEdwards:
		ok, err := s.hsm.VerifyEdDSA(pub, alg, data, sig)
		return ok, c, err
	default:
		return false, c, fmt.Errorf("verifying with %s: %w", pub.Curve, cxerr.ErrInvalidParameter)
	}
}

func (s *Server) verifyingKey(in *structpb.Struct) (*curve.PublicKey, error) {
	if stringField(in, "key_id") != "" {
		entry, err := s.lookup(in, false)
		if err != nil {
			return nil, err
		}
		return s.hsm.PublicKey(entry.PrivateKey)
	}
	return publicKeyField(in)
}

// Recover rebuilds the public key behind an ECDSA signature from the info
// value returned by Sign.
func (s *Server) Recover(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	pub, err := s.recover(in)
	s.audit.Record("Recover", "", stringField(in, "curve"), peerAddr(ctx), err, map[string]string{"hash": stringField(in, "hash")})
	if err != nil {
		return nil, err
	}
	fields := map[string]any{"public_key": hex.EncodeToString(pub.W)}
	compressed, err := compress(pub)
	if err != nil {
		return nil, err
	}
	fields["compressed"] = hex.EncodeToString(compressed)
	return reply(fields)
}

func (s *Server) recover(in *structpb.Struct) (*curve.PublicKey, error) {
	id, err := parseCurve(in)
	if err != nil {
		return nil, err
	}
	kind, err := id.Kind()
	if err != nil {
		return nil, err
	}
	if kind != curve.Weierstrass {
		return nil, badField("curve", "%s has no ecdsa key recovery", id)
	}
	alg, err := hashOf(in, kind)
	if err != nil {
		return nil, err
	}
	digest, err := payload(in, kind, alg)
	if err != nil {
		return nil, err
	}
	sig, err := requireHex(in, "signature")
	if err != nil {
		return nil, err
	}
	info := intField(in, "info")
	if info < 0 || info > int(ecdsa.InfoParityOdd|ecdsa.InfoXGreaterThanN) {
		return nil, badField("info", "out of range")
	}
	return s.hsm.RecoverECDSA(id, digest, sig, ecdsa.Info(info))
}

// Agree runs ECDH between an active handle and the peer's public point.
func (s *Server) Agree(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	secret, c, err := s.agree(in)
	s.audit.Record("Agree", stringField(in, "key_id"), c, peerAddr(ctx), err, map[string]string{"mode": stringField(in, "mode")})
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"secret": hex.EncodeToString(secret)})
}

func (s *Server) agree(in *structpb.Struct) ([]byte, string, error) {
	entry, err := s.lookup(in, true)
	if err != nil {
		return nil, "", err
	}
	c := entry.Curve.String()
	mode, err := parseAgreeMode(in)
	if err != nil {
		return nil, c, err
	}
	peer, err := requireHex(in, "peer")
	if err != nil {
		return nil, c, err
	}
	secret, err := s.hsm.ECDH(entry.PrivateKey, mode, peer)
	return secret, c, err
}
