package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tokenguard/internal/server/models"
	"github.com/dmitrijs2005/tokenguard/internal/server/services"
	"github.com/dmitrijs2005/tokenguard/internal/token"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// The user service speaks protobuf well-known types: requests and responses
// are google.protobuf.Struct objects with the same field names as the HTTP
// JSON API, Me takes google.protobuf.Empty.
const (
	userServiceName = "tokenguard.v1.UserService"
	methodRegister  = "/" + userServiceName + "/Register"
	methodLogin     = "/" + userServiceName + "/Login"
	methodMe        = "/" + userServiceName + "/Me"
)

type userServiceServer interface {
	Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Me(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

var userServiceDesc = grpc.ServiceDesc{
	ServiceName: userServiceName,
	HandlerType: (*userServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler(methodRegister, userServiceServer.Register)},
		{MethodName: "Login", Handler: unaryHandler(methodLogin, userServiceServer.Login)},
		{MethodName: "Me", Handler: unaryHandler(methodMe, userServiceServer.Me)},
	},
	Streams: []grpc.StreamDesc{},
}

// unaryHandler adapts a typed method to grpc.MethodDesc the way generated
// code does.
func unaryHandler[Req proto.Message, Resp any](
	fullMethod string,
	call func(userServiceServer, context.Context, Req) (Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		var in Req
		in = in.ProtoReflect().Type().New().Interface().(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(userServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(userServiceServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := services.RegisterInput{
		Email:        stringField(req, "email"),
		Password:     stringField(req, "password"),
		FirstName:    optionalField(req, "first_name"),
		LastName:     optionalField(req, "last_name"),
		LanguageCode: stringField(req, "language_code"),
	}
	if in.Email == "" || in.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "email and password are required")
	}

	user, tok, created, err := s.users.Register(ctx, in)
	if err != nil {
		s.logger.Info(ctx, "registration failed", "error", err)
		return nil, statusError(err)
	}

	if err := grpc.SetHeader(ctx, tokenMetadata(tok)); err != nil {
		s.logger.Warn(ctx, "failed to set token header", "error", err)
	}

	return authStruct(user, tok, created)
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email, password := stringField(req, "email"), stringField(req, "password")
	if email == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "email and password are required")
	}

	user, tok, err := s.users.Login(ctx, email, password)
	if err != nil {
		s.logger.Info(ctx, "login failed", "error", err)
		return nil, statusError(err)
	}

	if err := grpc.SetHeader(ctx, tokenMetadata(tok)); err != nil {
		s.logger.Warn(ctx, "failed to set token header", "error", err)
	}

	return authStruct(user, tok, false)
}

func (s *GRPCServer) Me(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, msgUnauthorized)
	}

	user, err := s.users.Profile(ctx, identity.UserID)
	if err != nil {
		return nil, statusError(err)
	}

	return structpb.NewStruct(userFields(user))
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func optionalField(s *structpb.Struct, name string) *string {
	v, ok := s.GetFields()[name]
	if !ok {
		return nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil
	}
	str := v.GetStringValue()
	return &str
}

func userFields(u *models.User) map[string]any {
	m := map[string]any{
		"id":            u.ID.String(),
		"email":         u.Email,
		"language_code": u.LanguageCode,
		"created_at":    u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if u.FirstName != nil {
		m["first_name"] = *u.FirstName
	}
	if u.LastName != nil {
		m["last_name"] = *u.LastName
	}
	return m
}

func authStruct(u *models.User, tok token.Response, created bool) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"user":    userFields(u),
		"created": created,
		"token": map[string]any{
			"token":      tok.Token,
			"expires_at": tok.ExpiresAt.UTC().Format(time.RFC3339),
			"refresh_at": tok.RefreshAt.UTC().Format(time.RFC3339),
		},
	})
}
