package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/dmitrijs2005/tokenguard/internal/token"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const identityKey ctxKey = "identity"

// publicPrefixes are methods callable without an access token.
var publicPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
	methodRegister,
	methodLogin,
}

func isPublic(fullMethod string) bool {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(fullMethod, p) {
			return true
		}
	}
	return false
}

// IdentityFromContext returns the identity set by the access token
// interceptor.
func IdentityFromContext(ctx context.Context) (token.Identity, bool) {
	id, ok := ctx.Value(identityKey).(token.Identity)
	return id, ok
}

// accessTokenInterceptor authenticates the access_token metadata of every
// non-public call and sends the token to keep using back as header metadata.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if isPublic(info.FullMethod) {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, msgUnauthorized)
	}

	res, err := s.auth.Authenticate(ctx, accessToken)
	if err != nil {
		s.logger.Debug(ctx, "authentication failed", "method", info.FullMethod, "error", err)
		return nil, statusError(err)
	}

	if err := grpc.SetHeader(ctx, tokenMetadata(res.Token)); err != nil {
		s.logger.Warn(ctx, "failed to set token header", "error", err)
	}

	ctx = context.WithValue(ctx, identityKey, res.Identity)

	return handler(ctx, req)
}

func tokenMetadata(t token.Response) metadata.MD {
	return metadata.Pairs(
		common.AccessTokenHeaderName, t.Token,
		common.ExpiresAtMetadataName, t.ExpiresAt.UTC().Format(time.RFC3339),
		common.RefreshAtMetadataName, t.RefreshAt.UTC().Format(time.RFC3339),
	)
}
