package interceptor

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func logCall(ctx context.Context, kind, method string, start time.Time, err error) {
	attrs := []any{
		"method", method,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	}
	if p, ok := peer.FromContext(ctx); ok {
		attrs = append(attrs, "peer", p.Addr.String())
	}
	if err != nil {
		slog.Warn(kind, append(attrs, "error", status.Convert(err).Message())...)
		return
	}
	slog.Info(kind, attrs...)
}

// LoggingUnary logs unary RPC calls with method, duration, and status code.
func LoggingUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(ctx, "unary", info.FullMethod, start, err)
		return resp, err
	}
}

// LoggingStream logs stream RPC calls.
func LoggingStream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(ss.Context(), "stream", info.FullMethod, start, err)
		return err
	}
}
