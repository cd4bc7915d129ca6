package grpc

import (
	"context"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	IdentityServiceName = "docchat.identity.v1.Identity"
	WhoAmIMethod        = "/" + IdentityServiceName + "/WhoAmI"
)

// IdentityServer answers who the caller's access token belongs to.
type IdentityServer interface {
	WhoAmI(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

func whoAmIHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IdentityServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WhoAmIMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IdentityServer).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// IdentityServiceDesc describes the Identity service. The messages are
// protobuf well-known types, so no generated code is needed.
var IdentityServiceDesc = grpc.ServiceDesc{
	ServiceName: IdentityServiceName,
	HandlerType: (*IdentityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docchat/identity/v1/identity.proto",
}

func (s *GRPCServer) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	user, ok := services.UserFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	out, err := structpb.NewStruct(map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	})
	if err != nil {
		s.logger.Error(ctx, "encode identity", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// WhoAmI calls the Identity service over conn. The access token travels in
// the outgoing authorization metadata of ctx.
func WhoAmI(ctx context.Context, conn grpc.ClientConnInterface) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, WhoAmIMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}
