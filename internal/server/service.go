// Package server exposes the coprocessor over gRPC as the cxemu.v1.Coprocessor
// service. Messages are google.protobuf.Struct values, so any gRPC client can
// drive the emulator without generated stubs.
package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/cxemu/internal/audit"
	"github.com/glinharesb/cxemu/internal/hsm"
	"github.com/glinharesb/cxemu/internal/keystore"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "cxemu.v1.Coprocessor"

// CoprocessorServer is the server API of the service.
type CoprocessorServer interface {
	DeriveKey(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ImportKey(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GenerateKey(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPublicKey(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportKey(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListKeys(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeactivateKey(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteKey(context.Context, *structpb.Struct) (*structpb.Struct, error)

	Sign(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BatchSign(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Verify(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Recover(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Agree(context.Context, *structpb.Struct) (*structpb.Struct, error)

	DeriveSymmetric(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeriveBLS(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Math(context.Context, *structpb.Struct) (*structpb.Struct, error)

	QueryAudit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamAudit(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

type unaryMethod func(CoprocessorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CoprocessorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(CoprocessorServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func streamAuditHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CoprocessorServer).StreamAudit(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc describes the service for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CoprocessorServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("DeriveKey", CoprocessorServer.DeriveKey),
		unaryHandler("ImportKey", CoprocessorServer.ImportKey),
		unaryHandler("GenerateKey", CoprocessorServer.GenerateKey),
		unaryHandler("GetPublicKey", CoprocessorServer.GetPublicKey),
		unaryHandler("ExportKey", CoprocessorServer.ExportKey),
		unaryHandler("ListKeys", CoprocessorServer.ListKeys),
		unaryHandler("DeactivateKey", CoprocessorServer.DeactivateKey),
		unaryHandler("DeleteKey", CoprocessorServer.DeleteKey),
		unaryHandler("Sign", CoprocessorServer.Sign),
		unaryHandler("BatchSign", CoprocessorServer.BatchSign),
		unaryHandler("Verify", CoprocessorServer.Verify),
		unaryHandler("Recover", CoprocessorServer.Recover),
		unaryHandler("Agree", CoprocessorServer.Agree),
		unaryHandler("DeriveSymmetric", CoprocessorServer.DeriveSymmetric),
		unaryHandler("DeriveBLS", CoprocessorServer.DeriveBLS),
		unaryHandler("Math", CoprocessorServer.Math),
		unaryHandler("QueryAudit", CoprocessorServer.QueryAudit),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamAudit",
			Handler:       streamAuditHandler,
			ServerStreams: true,
		},
	},
	Metadata: "cxemu/v1/coprocessor.proto",
}

// Register adds srv to r.
func Register(r grpc.ServiceRegistrar, srv CoprocessorServer) {
	r.RegisterService(&ServiceDesc, srv)
}

var _ CoprocessorServer = (*Server)(nil)

// Server implements CoprocessorServer over a key store and an HSM provider,
// auditing every call.
type Server struct {
	store keystore.Store
	hsm   hsm.Provider
	audit *audit.Logger
}

// New returns a Server.
func New(store keystore.Store, h hsm.Provider, a *audit.Logger) *Server {
	return &Server{store: store, hsm: h, audit: a}
}

func reply(fields map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(fields)
}
