// Package adminrpc exposes the operator controls over gRPC. Messages are
// protobuf well-known types, so no generated code is required.
package adminrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "adaptivepolicy.admin.v1.AdminService"

// #region server-interface

// AdminServer is the server API for the admin service.
type AdminServer interface {
	Freeze(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Unfreeze(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// Rollback targets the given version; 0 means the previous one. The
	// response carries the newly created version number.
	Rollback(context.Context, *wrapperspb.Int64Value) (*wrapperspb.Int64Value, error)
	Kill(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	RunCycle(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Health(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// #endregion server-interface

// #region service-desc

func empty() proto.Message { return new(emptypb.Empty) }

// ServiceDesc describes the admin service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		method("Freeze", empty, func(s AdminServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Freeze(ctx, in.(*emptypb.Empty))
		}),
		method("Unfreeze", empty, func(s AdminServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Unfreeze(ctx, in.(*emptypb.Empty))
		}),
		method("Rollback", func() proto.Message { return new(wrapperspb.Int64Value) },
			func(s AdminServer, ctx context.Context, in proto.Message) (proto.Message, error) {
				return s.Rollback(ctx, in.(*wrapperspb.Int64Value))
			}),
		method("Kill", func() proto.Message { return new(wrapperspb.StringValue) },
			func(s AdminServer, ctx context.Context, in proto.Message) (proto.Message, error) {
				return s.Kill(ctx, in.(*wrapperspb.StringValue))
			}),
		method("Status", empty, func(s AdminServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Status(ctx, in.(*emptypb.Empty))
		}),
		method("RunCycle", empty, func(s AdminServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.RunCycle(ctx, in.(*emptypb.Empty))
		}),
		method("Health", empty, func(s AdminServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Health(ctx, in.(*emptypb.Empty))
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "adminrpc/service.go",
}

// RegisterAdminServer registers srv on s.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// method builds a unary MethodDesc that decodes into newReq and dispatches
// through call, honoring any server interceptor.
func method(name string, newReq func() proto.Message, call func(AdminServer, context.Context, proto.Message) (proto.Message, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				out, err := call(srv.(AdminServer), ctx, req.(proto.Message))
				if err != nil {
					return nil, err
				}
				return out, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// #endregion service-desc
