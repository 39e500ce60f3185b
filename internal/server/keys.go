package server

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/eddsa"
	"github.com/glinharesb/cxemu/internal/hd"
	"github.com/glinharesb/cxemu/internal/hsm"
	"github.com/glinharesb/cxemu/internal/keystore"
)

// storeKey saves key under a fresh handle and returns its description.
func (s *Server) storeKey(key *curve.PrivateKey, scheme keystore.Scheme, path hd.Path, labels map[string]string) (*keystore.KeyEntry, map[string]any, error) {
	pub, err := s.hsm.PublicKey(key)
	if err != nil {
		return nil, nil, err
	}
	entry := &keystore.KeyEntry{
		ID:         uuid.NewString(),
		Curve:      key.Curve,
		Scheme:     scheme,
		Path:       path,
		Status:     keystore.StatusActive,
		PrivateKey: key,
		CreatedAt:  time.Now(),
		Labels:     labels,
	}
	if err := s.store.Put(entry); err != nil {
		return nil, nil, fmt.Errorf("store key: %w", err)
	}
	return entry, keyFields(entry, pub), nil
}

// DeriveKey derives a key from the device seed along path and keeps it as a
// new handle.
func (s *Server) DeriveKey(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	resp, entry, err := s.deriveKey(in)
	s.audit.Record("DeriveKey", entryID(entry), stringField(in, "curve"), peerAddr(ctx), err,
		map[string]string{"path": stringField(in, "path"), "mode": stringField(in, "mode")})
	return resp, err
}

func (s *Server) deriveKey(in *structpb.Struct) (*structpb.Struct, *keystore.KeyEntry, error) {
	id, err := parseCurve(in)
	if err != nil {
		return nil, nil, err
	}
	mode, err := parseDeriveMode(in)
	if err != nil {
		return nil, nil, err
	}
	path, err := pathField(in)
	if err != nil {
		return nil, nil, err
	}
	key, err := s.hsm.DeriveKey(mode, id, path)
	if err != nil {
		return nil, nil, err
	}
	entry, fields, err := s.storeKey(key, keystore.SchemeFor(mode), path, labelsField(in))
	if err != nil {
		return nil, nil, err
	}
	resp, err := reply(fields)
	return resp, entry, err
}

// ImportKey stores caller-supplied private key bytes, given raw with a curve
// or as a device key structure.
func (s *Server) ImportKey(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	resp, entry, err := s.importKey(in)
	s.audit.Record("ImportKey", entryID(entry), entryCurve(entry), peerAddr(ctx), err, nil)
	return resp, err
}

func (s *Server) importKey(in *structpb.Struct) (*structpb.Struct, *keystore.KeyEntry, error) {
	key, err := privateKeyField(in)
	if err != nil {
		return nil, nil, err
	}
	entry, fields, err := s.storeKey(key, keystore.SchemeImported, nil, labelsField(in))
	if err != nil {
		return nil, nil, err
	}
	resp, err := reply(fields)
	return resp, entry, err
}

// GenerateKey draws a fresh private key from the provider's random source.
func (s *Server) GenerateKey(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	resp, entry, err := s.generateKey(in)
	s.audit.Record("GenerateKey", entryID(entry), stringField(in, "curve"), peerAddr(ctx), err, nil)
	return resp, err
}

func (s *Server) generateKey(in *structpb.Struct) (*structpb.Struct, *keystore.KeyEntry, error) {
	id, err := parseCurve(in)
	if err != nil {
		return nil, nil, err
	}
	key, err := s.hsm.GenerateKey(id)
	if err != nil {
		return nil, nil, err
	}
	entry, fields, err := s.storeKey(key, keystore.SchemeImported, nil, labelsField(in))
	if err != nil {
		return nil, nil, err
	}
	resp, err := reply(fields)
	return resp, entry, err
}

// GetPublicKey returns the uncompressed public key of a handle and, where the
// curve has one, its compressed form.
func (s *Server) GetPublicKey(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	entry, err := s.lookup(in, false)
	if err != nil {
		return nil, err
	}
	pub, err := s.hsm.PublicKey(entry.PrivateKey)
	if err != nil {
		return nil, err
	}
	fields := keyFields(entry, pub)
	abi, err := hsm.MarshalPublicKey(pub)
	if err != nil {
		return nil, err
	}
	fields["public_key_abi"] = hex.EncodeToString(abi)
	compressed, err := compress(pub)
	if err != nil {
		return nil, err
	}
	if compressed != nil {
		fields["compressed"] = hex.EncodeToString(compressed)
	}
	return reply(fields)
}

func compress(pub *curve.PublicKey) ([]byte, error) {
	kind, err := pub.Curve.Kind()
	if err != nil {
		return nil, err
	}
	switch kind {
	case curve.Weierstrass:
		dom, err := curve.Lookup(pub.Curve)
		if err != nil {
			return nil, err
		}
		c, err := curve.NewWeierstrass(dom)
		if err != nil {
			return nil, err
		}
		p, err := pub.Point()
		if err != nil {
			return nil, err
		}
		return c.CompressSEC(p)
	case curve.TwistedEdwards:
		return eddsa.CompressPublicKey(pub)
	default:
		return nil, nil
	}
}

// ExportKey returns a handle's private key as the device key structure that
// applications receive from the derivation syscalls.
func (s *Server) ExportKey(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	entry, err := s.lookup(in, true)
	var resp *structpb.Struct
	if err == nil {
		resp, err = exportKey(entry)
	}
	s.audit.Record("ExportKey", stringField(in, "key_id"), entryCurve(entry), peerAddr(ctx), err, nil)
	return resp, err
}

func exportKey(e *keystore.KeyEntry) (*structpb.Struct, error) {
	abi, err := hsm.MarshalPrivateKey(e.PrivateKey)
	if err != nil {
		return nil, err
	}
	size, err := hsm.PrivateKeySize(e.Curve)
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{
		"key_id":          e.ID,
		"curve":           e.Curve.String(),
		"private_key_abi": hex.EncodeToString(abi),
		"size":            float64(size),
	})
}

// ListKeys lists handles, optionally filtered by status, curve and labels.
func (s *Server) ListKeys(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := keystore.Filter{
		Status: keystore.ParseStatus(stringField(in, "status")),
		Labels: labelsField(in),
	}
	if stringField(in, "curve") != "" {
		id, err := parseCurve(in)
		if err != nil {
			return nil, err
		}
		f.Curve = id
	}
	entries, err := s.store.List(f)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	keys := make([]any, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, keyFields(e, nil))
	}
	return reply(map[string]any{"keys": keys})
}

// DeactivateKey disables a handle for signing and agreement.
func (s *Server) DeactivateKey(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	keyID := stringField(in, "key_id")
	err := s.store.UpdateStatus(keyID, keystore.StatusDeactivated)
	s.audit.Record("DeactivateKey", keyID, "", peerAddr(ctx), err, nil)
	if err != nil {
		return nil, fmt.Errorf("deactivate %s: %w", keyID, err)
	}
	entry, err := s.store.Get(keyID)
	if err != nil {
		return nil, err
	}
	return reply(keyFields(entry, nil))
}

// DeleteKey forgets a handle.
func (s *Server) DeleteKey(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	keyID := stringField(in, "key_id")
	err := s.store.Delete(keyID)
	s.audit.Record("DeleteKey", keyID, "", peerAddr(ctx), err, nil)
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", keyID, err)
	}
	return reply(map[string]any{"key_id": keyID})
}

// lookup resolves the key_id field. Inactive keys are refused when
// activeOnly is set.
func (s *Server) lookup(in *structpb.Struct, activeOnly bool) (*keystore.KeyEntry, error) {
	keyID, err := requireString(in, "key_id")
	if err != nil {
		return nil, err
	}
	entry, err := s.store.Get(keyID)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", keyID, err)
	}
	if activeOnly && entry.Status != keystore.StatusActive {
		return nil, fmt.Errorf("key %s is %s: %w", keyID, entry.Status, keystore.ErrKeyInactive)
	}
	return entry, nil
}

func entryID(e *keystore.KeyEntry) string {
	if e == nil {
		return ""
	}
	return e.ID
}

func entryCurve(e *keystore.KeyEntry) string {
	if e == nil {
		return ""
	}
	return e.Curve.String()
}
