package server

import (
	"context"
	"encoding/hex"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/cxemu/internal/hsm"
)

// Math runs one of the device's big-number syscalls over hex operands a, b
// and modulus m.
func (s *Server) Math(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.math(in)
	s.audit.Record("Math", "", "", peerAddr(ctx), err, map[string]string{"op": stringField(in, "op")})
	return resp, err
}

func (s *Server) math(in *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(in, "op")
	if err != nil {
		return nil, err
	}
	op, err := hsm.ParseMathOp(name)
	if err != nil {
		return nil, err
	}
	var operands [3][]byte
	for i, field := range []string{"a", "b", "m"} {
		if operands[i], err = hexField(in, field); err != nil {
			return nil, err
		}
	}
	res, err := s.hsm.Math(op, operands[0], operands[1], operands[2])
	if err != nil {
		return nil, err
	}
	switch op {
	case hsm.MathCmp:
		return reply(map[string]any{"cmp": float64(res.Cmp)})
	case hsm.MathAdd, hsm.MathSub:
		return reply(map[string]any{"result": hex.EncodeToString(res.Value), "carry": res.Carry})
	default:
		return reply(map[string]any{"result": hex.EncodeToString(res.Value)})
	}
}
