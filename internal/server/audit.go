package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/cxemu/internal/audit"
)

func auditFilter(in *structpb.Struct) (audit.Filter, error) {
	start, err := timeField(in, "start")
	if err != nil {
		return audit.Filter{}, err
	}
	end, err := timeField(in, "end")
	if err != nil {
		return audit.Filter{}, err
	}
	return audit.Filter{
		KeyID:     stringField(in, "key_id"),
		Operation: stringField(in, "operation"),
		Start:     start,
		End:       end,
		Limit:     intField(in, "limit"),
	}, nil
}

// QueryAudit returns recorded calls, newest first.
func (s *Server) QueryAudit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f, err := auditFilter(in)
	if err != nil {
		return nil, err
	}
	entries := s.audit.Query(f)
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditFields(e))
	}
	return reply(map[string]any{"entries": out})
}

// StreamAudit streams calls recorded after subscription that match the
// request's key_id and operation. Headers are sent once the subscription is
// live.
func (s *Server) StreamAudit(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	f, err := auditFilter(in)
	if err != nil {
		return err
	}
	sub := s.audit.Subscribe()
	defer s.audit.Unsubscribe(sub)
	if err := stream.SendHeader(metadata.Pairs("x-audit-subscribed", "1")); err != nil {
		return err
	}

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case entry, ok := <-sub.C:
			if !ok {
				return nil
			}
			if !f.Match(entry) {
				continue
			}
			msg, err := reply(auditFields(entry))
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}
