package interceptor

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/glinharesb/cxemu/internal/crypto"
	"github.com/glinharesb/cxemu/internal/cxerr"
	"github.com/glinharesb/cxemu/internal/keystore"
)

// ToStatus converts an engine or store error into a gRPC status carrying the
// device status word in its message. Errors that already are statuses pass
// through.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch {
	case errors.Is(err, keystore.ErrKeyNotFound):
		code = codes.NotFound
	case errors.Is(err, keystore.ErrKeyExists):
		code = codes.AlreadyExists
	case errors.Is(err, keystore.ErrKeyInactive):
		code = codes.FailedPrecondition
	case errors.Is(err, crypto.ErrOpen), errors.Is(err, cxerr.ErrArithmetic):
		code = codes.Internal
	case errors.Is(err, cxerr.ErrUnknownCurve),
		errors.Is(err, cxerr.ErrInvalidParameter),
		errors.Is(err, cxerr.ErrInvalidParameterSize),
		errors.Is(err, cxerr.ErrInvalidPoint):
		code = codes.InvalidArgument
	default:
		code = codes.Internal
	}
	return status.Error(code, fmt.Sprintf("%v (sw %#08x)", err, cxerr.Code(err)))
}

// ErrorsUnary maps handler errors with ToStatus.
func ErrorsUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		return resp, ToStatus(err)
	}
}

// ErrorsStream maps stream handler errors with ToStatus.
func ErrorsStream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return ToStatus(handler(srv, ss))
	}
}
