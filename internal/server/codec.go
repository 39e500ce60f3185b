package server

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/peer"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/cxemu/internal/audit"
	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/cxerr"
	"github.com/glinharesb/cxemu/internal/ecdh"
	"github.com/glinharesb/cxemu/internal/ecdsa"
	"github.com/glinharesb/cxemu/internal/hd"
	"github.com/glinharesb/cxemu/internal/hsm"
	"github.com/glinharesb/cxemu/internal/keystore"
)

// Request and response messages are structpb.Struct values. Byte strings
// travel hex encoded, enums as their lowercase names.

func badField(name string, format string, args ...any) error {
	return fmt.Errorf("field %q: %s: %w", name, fmt.Sprintf(format, args...), cxerr.ErrInvalidParameter)
}

func stringField(in *structpb.Struct, name string) string {
	v, ok := in.GetFields()[name]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func requireString(in *structpb.Struct, name string) (string, error) {
	s := stringField(in, name)
	if s == "" {
		return "", badField(name, "required")
	}
	return s, nil
}

func boolField(in *structpb.Struct, name string) bool {
	return in.GetFields()[name].GetBoolValue()
}

func intField(in *structpb.Struct, name string) int {
	return int(in.GetFields()[name].GetNumberValue())
}

func hexField(in *structpb.Struct, name string) ([]byte, error) {
	s := strings.TrimPrefix(stringField(in, name), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, badField(name, "not hex")
	}
	return b, nil
}

func requireHex(in *structpb.Struct, name string) ([]byte, error) {
	if stringField(in, name) == "" {
		return nil, badField(name, "required")
	}
	return hexField(in, name)
}

func hexList(in *structpb.Struct, name string) ([][]byte, error) {
	values := in.GetFields()[name].GetListValue().GetValues()
	out := make([][]byte, len(values))
	for i, v := range values {
		b, err := hex.DecodeString(strings.TrimPrefix(v.GetStringValue(), "0x"))
		if err != nil {
			return nil, badField(name, "item %d not hex", i)
		}
		out[i] = b
	}
	return out, nil
}

func labelsField(in *structpb.Struct) map[string]string {
	fields := in.GetFields()["labels"].GetStructValue().GetFields()
	if len(fields) == 0 {
		return nil
	}
	labels := make(map[string]string, len(fields))
	for k, v := range fields {
		labels[k] = v.GetStringValue()
	}
	return labels
}

// pathField reads a derivation path, either as text in "path" or as the
// device's big-endian u32 array in "path_abi".
func pathField(in *structpb.Struct) (hd.Path, error) {
	if stringField(in, "path_abi") == "" {
		raw, err := requireString(in, "path")
		if err != nil {
			return nil, err
		}
		return hd.ParsePath(raw)
	}
	b, err := hexField(in, "path_abi")
	if err != nil {
		return nil, err
	}
	return hsm.UnmarshalPath(b)
}

// privateKeyField reads a private key from a curve and raw scalar, or from
// the device's key structure in "private_key_abi".
func privateKeyField(in *structpb.Struct) (*curve.PrivateKey, error) {
	if stringField(in, "private_key_abi") != "" {
		b, err := hexField(in, "private_key_abi")
		if err != nil {
			return nil, err
		}
		return hsm.UnmarshalPrivateKey(b)
	}
	id, err := parseCurve(in)
	if err != nil {
		return nil, err
	}
	d, err := requireHex(in, "private_key")
	if err != nil {
		return nil, err
	}
	return curve.NewPrivateKey(id, d)
}

// publicKeyField reads a public key from a curve and encoded point, or from
// the device's key structure in "public_key_abi".
func publicKeyField(in *structpb.Struct) (*curve.PublicKey, error) {
	if stringField(in, "public_key_abi") != "" {
		b, err := hexField(in, "public_key_abi")
		if err != nil {
			return nil, err
		}
		if len(b) != hsm.PublicKeySize() {
			return nil, fmt.Errorf("field %q: %d bytes, want %d: %w", "public_key_abi", len(b), hsm.PublicKeySize(), cxerr.ErrInvalidParameterSize)
		}
		return hsm.UnmarshalPublicKey(b)
	}
	id, err := parseCurve(in)
	if err != nil {
		return nil, err
	}
	w, err := requireHex(in, "public_key")
	if err != nil {
		return nil, err
	}
	return curve.NewPublicKey(id, w)
}

func timeField(in *structpb.Struct, name string) (time.Time, error) {
	s := stringField(in, name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, badField(name, "not RFC 3339")
	}
	return t, nil
}

func parseCurve(in *structpb.Struct) (curve.ID, error) {
	name, err := requireString(in, "curve")
	if err != nil {
		return 0, err
	}
	for _, id := range curve.IDs() {
		if id.String() == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("curve %q: %w", name, cxerr.ErrUnknownCurve)
}

func parseDeriveMode(in *structpb.Struct) (hd.Mode, error) {
	switch s := stringField(in, "mode"); s {
	case "", hd.ModeNormal.String():
		return hd.ModeNormal, nil
	case hd.ModeEd25519SLIP10.String():
		return hd.ModeEd25519SLIP10, nil
	default:
		return 0, badField("mode", "unknown derivation mode %q", s)
	}
}

func parseSignMode(in *structpb.Struct) (ecdsa.Mode, error) {
	switch s := stringField(in, "mode"); s {
	case "", ecdsa.ModeRFC6979.String():
		return ecdsa.ModeRFC6979, nil
	case ecdsa.ModeTRNG.String():
		return ecdsa.ModeTRNG, nil
	default:
		return 0, badField("mode", "unknown nonce mode %q", s)
	}
}

func parseAgreeMode(in *structpb.Struct) (ecdh.Mode, error) {
	switch s := stringField(in, "mode"); s {
	case "", ecdh.ModeX.String():
		return ecdh.ModeX, nil
	case ecdh.ModePoint.String():
		return ecdh.ModePoint, nil
	default:
		return 0, badField("mode", "unknown agreement mode %q", s)
	}
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

func keyFields(e *keystore.KeyEntry, pub *curve.PublicKey) map[string]any {
	m := map[string]any{
		"key_id":     e.ID,
		"curve":      e.Curve.String(),
		"scheme":     e.Scheme.String(),
		"status":     e.Status.String(),
		"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if e.Path != nil {
		m["path"] = e.Path.String()
		m["path_abi"] = hex.EncodeToString(hsm.MarshalPath(e.Path))
	}
	if len(e.Labels) > 0 {
		labels := make(map[string]any, len(e.Labels))
		for k, v := range e.Labels {
			labels[k] = v
		}
		m["labels"] = labels
	}
	if pub != nil {
		m["public_key"] = hex.EncodeToString(pub.W)
	}
	return m
}

func auditFields(e audit.Entry) map[string]any {
	m := map[string]any{
		"id":        e.ID,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"operation": e.Operation,
		"code":      float64(e.Code),
	}
	for k, v := range map[string]string{"key_id": e.KeyID, "curve": e.Curve, "error": e.Error, "peer": e.PeerAddress} {
		if v != "" {
			m[k] = v
		}
	}
	if len(e.Metadata) > 0 {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		m["metadata"] = md
	}
	return m
}
