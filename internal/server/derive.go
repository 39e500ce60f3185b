package server

import (
	"context"
	"encoding/hex"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/cxemu/internal/curve"
)

// DeriveSymmetric returns the SLIP-21 key for a label. The label is sent as
// text and prefixed with the mandatory zero byte here.
func (s *Server) DeriveSymmetric(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	label := stringField(in, "label")
	key, err := s.deriveSymmetric(label)
	s.audit.Record("DeriveSymmetric", "", "", peerAddr(ctx), err, map[string]string{"label": label})
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"key": hex.EncodeToString(key)})
}

func (s *Server) deriveSymmetric(label string) ([]byte, error) {
	if label == "" {
		return nil, badField("label", "required")
	}
	return s.hsm.SLIP21(append([]byte{0x00}, label...))
}

// DeriveBLS returns the EIP-2333 secret key at path and its G1 public key.
func (s *Server) DeriveBLS(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.deriveBLS(in)
	s.audit.Record("DeriveBLS", "", curve.BLS12381G1.String(), peerAddr(ctx), err, map[string]string{"path": stringField(in, "path")})
	return resp, err
}

func (s *Server) deriveBLS(in *structpb.Struct) (*structpb.Struct, error) {
	path, err := pathField(in)
	if err != nil {
		return nil, err
	}
	sk, err := s.hsm.EIP2333(path)
	if err != nil {
		return nil, err
	}
	key, err := curve.NewPrivateKey(curve.BLS12381G1, sk)
	if err != nil {
		return nil, err
	}
	pub, err := s.hsm.PublicKey(key)
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{
		"secret_key": hex.EncodeToString(sk),
		"public_key": hex.EncodeToString(pub.W),
	})
}
