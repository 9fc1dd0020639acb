package grpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/remlyo/remlyo-api/internal/application"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
)

const serviceName = "remlyo.internal.v1.InternalService"

// InternalService lets sibling services resolve Remlyo bearer tokens without HTTP.
type InternalService interface {
	ValidateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetFlowStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPublicKeys(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// KeySource publishes the verification half of the token signing key.
type KeySource interface {
	KeySet() []ports.JWK
}

type InternalServer struct {
	service *application.Service
	keys    KeySource
}

func NewInternalServer(service *application.Service, keys KeySource) *InternalServer {
	return &InternalServer{service: service, keys: keys}
}

// NewServer builds a gRPC server with the internal service and the standard health service registered.
func NewServer(svc InternalService) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor))
	Register(server, svc)
	hs := health.NewServer()
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return server, hs
}

func Register(server grpc.ServiceRegistrar, svc InternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*InternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ValidateToken",
				Handler:    unaryHandler("ValidateToken", func() *structpb.Struct { return &structpb.Struct{} }, svc.ValidateToken),
			},
			{
				MethodName: "GetFlowStatus",
				Handler:    unaryHandler("GetFlowStatus", func() *structpb.Struct { return &structpb.Struct{} }, svc.GetFlowStatus),
			},
			{
				MethodName: "GetPublicKeys",
				Handler:    unaryHandler("GetPublicKeys", func() *emptypb.Empty { return &emptypb.Empty{} }, svc.GetPublicKeys),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "remlyo/internal/v1/internal.proto",
	}, svc)
}

func (s *InternalServer) ValidateToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.authenticate(ctx, req)
	if err != nil {
		return nil, err
	}
	return buildStruct(map[string]any{
		"valid":      true,
		"user_id":    p.UserID.String(),
		"email":      p.Email,
		"role":       string(p.Role),
		"session_id": p.SessionID.String(),
		"expires_at": p.ExpiresAt.Unix(),
	})
}

func (s *InternalServer) GetFlowStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.authenticate(ctx, req)
	if err != nil {
		return nil, err
	}
	flow, err := s.service.FlowStatus(ctx, &p)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "flow status: %v", err)
	}
	return buildStruct(map[string]any{
		"user_id": p.UserID.String(),
		"status":  string(flow),
		"target":  flow.Target(),
	})
}

func (s *InternalServer) GetPublicKeys(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.keys == nil {
		return nil, status.Error(codes.Unimplemented, "public keys not published")
	}
	keys := s.keys.KeySet()
	list := make([]any, 0, len(keys))
	for _, k := range keys {
		list = append(list, map[string]any{
			"kid": k.KeyID, "kty": k.KeyType, "alg": k.Algorithm, "use": k.Use, "n": k.Modulus, "e": k.Exponent,
		})
	}
	return buildStruct(map[string]any{"keys": list})
}

func (s *InternalServer) authenticate(ctx context.Context, req *structpb.Struct) (application.Principal, error) {
	token := req.GetFields()["token"].GetStringValue()
	if token == "" {
		return application.Principal{}, status.Error(codes.InvalidArgument, "missing token")
	}
	p, err := s.service.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrSessionRevoked) || errors.Is(err, domain.ErrSessionExpired) {
			return application.Principal{}, status.Error(codes.Unauthenticated, "invalid token")
		}
		return application.Principal{}, status.Errorf(codes.Internal, "authenticate: %v", err)
	}
	return p, nil
}

func buildStruct(fields map[string]any) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func unaryHandler[Req proto.Message](method string, newReq func() Req, call func(context.Context, Req) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := newReq()
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(Req)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	outcome := "success"
	level := slog.LevelDebug
	if err != nil {
		outcome = "failure"
		level = slog.LevelWarn
	}
	slog.Default().Log(ctx, level, "grpc request completed",
		"service", "remlyo-api",
		"module", "grpc",
		"layer", "adapter",
		"operation", info.FullMethod,
		"outcome", outcome,
		"code", status.Code(err).String(),
	)
	return resp, err
}
