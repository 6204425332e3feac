package grpc

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/dmitrijs2005/tokenguard/internal/logging"
	"github.com/dmitrijs2005/tokenguard/internal/server/auth"
	"github.com/dmitrijs2005/tokenguard/internal/token"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type fakeAuthenticator struct {
	res   auth.Result
	err   error
	calls int
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, raw string) (auth.Result, error) {
	f.calls++
	if f.err != nil {
		return auth.Result{}, f.err
	}
	res := f.res
	if res.Token.Token == "" {
		res.Token.Token = raw
	}
	return res, nil
}

func newTestServer(a TokenAuthenticator) *GRPCServer {
	s, _ := NewGRPCServer("127.0.0.1:0", logging.Nop{}, nil, a)
	return s
}

func TestInterceptor_PublicMethodsSkipAuth(t *testing.T) {
	fa := &fakeAuthenticator{err: common.ErrorUnauthorized}
	s := newTestServer(fa)

	for _, m := range []string{methodRegister, methodLogin, "/grpc.health.v1.Health/Check"} {
		called := false
		h := func(ctx context.Context, req interface{}) (interface{}, error) {
			called = true
			return "ok", nil
		}

		resp, err := s.accessTokenInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: m}, h)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", m, err)
		}
		if !called || resp != "ok" {
			t.Fatalf("%s: handler not called", m)
		}
	}
	if fa.calls != 0 {
		t.Fatalf("authenticator called %d times for public methods", fa.calls)
	}
}

func TestInterceptor_MissingToken(t *testing.T) {
	s := newTestServer(&fakeAuthenticator{})

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: methodMe}, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
	}
	if status.Convert(err).Message() != msgUnauthorized {
		t.Fatalf("unexpected message %q", status.Convert(err).Message())
	}
}

func TestInterceptor_AuthErrors(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{common.ErrInvalidTokenFormat, codes.Unauthenticated},
		{common.ErrorUnauthorized, codes.Unauthenticated},
		{common.ErrStoredTokenCorrupt, codes.Internal},
		{common.ErrEncoding, codes.Internal},
		{fmt.Errorf("%w: refused", common.ErrStoreUnavailable), codes.Unavailable},
	}

	for _, tt := range tests {
		s := newTestServer(&fakeAuthenticator{err: tt.err})
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AccessTokenHeaderName, "tok"))

		h := func(ctx context.Context, req interface{}) (interface{}, error) {
			t.Fatal("handler should not be called")
			return nil, nil
		}

		_, err := s.accessTokenInterceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: methodMe}, h)
		if status.Code(err) != tt.want {
			t.Fatalf("%v: got %v, want %v", tt.err, status.Code(err), tt.want)
		}
	}
}

func TestInterceptor_ValidToken_SetsIdentity(t *testing.T) {
	id := uuid.New()
	fa := &fakeAuthenticator{res: auth.Result{
		Identity: token.Identity{UserID: id},
		Token:    token.Response{ExpiresAt: time.Now().Add(time.Hour), RefreshAt: time.Now().Add(2 * time.Hour)},
	}}
	s := newTestServer(fa)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AccessTokenHeaderName, "tok"))

	var got token.Identity
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		got, _ = IdentityFromContext(ctx)
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: methodMe}, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
	if got.UserID != id {
		t.Fatalf("identity not propagated in context: got %v want %v", got.UserID, id)
	}
}
