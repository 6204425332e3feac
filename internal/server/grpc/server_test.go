package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/dmitrijs2005/tokenguard/internal/logging"
	"github.com/dmitrijs2005/tokenguard/internal/server/auth"
	"github.com/dmitrijs2005/tokenguard/internal/server/repositories/users"
	"github.com/dmitrijs2005/tokenguard/internal/server/services"
	"github.com/dmitrijs2005/tokenguard/internal/timex"
	"github.com/dmitrijs2005/tokenguard/internal/token"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv, err := NewGRPCServer("127.0.0.1:0", logging.Nop{}, nil, &fakeAuthenticator{})
	if err != nil {
		t.Fatalf("NewGRPCServer error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv, err := NewGRPCServer("127.0.0.1:99999", logging.Nop{}, nil, &fakeAuthenticator{})
	if err != nil {
		t.Fatalf("NewGRPCServer error (constructor should not fail here): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type grpcEnv struct {
	conn  *grpc.ClientConn
	clock *timex.FakeClock
}

func newGRPCEnv(t *testing.T) *grpcEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := users.NewRedisRepository(client, "")

	clock := timex.Fake(t0)
	codec, err := token.NewCodec([]byte("grpc-test-secret"))
	require.NoError(t, err)
	a := auth.NewAuthenticator(codec, token.NewIssuer(time.Minute, clock), repo, auth.WithClock(clock))
	svc := services.NewUserService(repo, a, nil)

	s, err := NewGRPCServer("bufnet", logging.Nop{}, svc, a)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.serve(ctx, lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})

	return &grpcEnv{conn: conn, clock: clock}
}

func (e *grpcEnv) register(t *testing.T, email, password string) (*structpb.Struct, metadata.MD) {
	t.Helper()
	req, err := structpb.NewStruct(map[string]any{"email": email, "password": password, "first_name": "Grace"})
	require.NoError(t, err)

	out := new(structpb.Struct)
	var hdr metadata.MD
	err = e.conn.Invoke(context.Background(), methodRegister, req, out, grpc.Header(&hdr))
	require.NoError(t, err)
	return out, hdr
}

func (e *grpcEnv) me(tok string) (*structpb.Struct, metadata.MD, error) {
	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, tok)
	out := new(structpb.Struct)
	var hdr metadata.MD
	err := e.conn.Invoke(ctx, methodMe, &emptypb.Empty{}, out, grpc.Header(&hdr))
	return out, hdr, err
}

func tokenOf(s *structpb.Struct) string {
	return s.GetFields()["token"].GetStructValue().GetFields()["token"].GetStringValue()
}

func TestHealthIsPublic(t *testing.T) {
	env := newGRPCEnv(t)

	resp, err := healthpb.NewHealthClient(env.conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestRegisterLoginMe(t *testing.T) {
	env := newGRPCEnv(t)

	out, hdr := env.register(t, "grace@example.com", "pw")
	assert.True(t, out.GetFields()["created"].GetBoolValue())
	tok := tokenOf(out)
	require.NotEmpty(t, tok)
	assert.Equal(t, []string{tok}, hdr.Get(common.AccessTokenHeaderName))

	loginReq, err := structpb.NewStruct(map[string]any{"email": "grace@example.com", "password": "pw"})
	require.NoError(t, err)
	loginOut := new(structpb.Struct)
	require.NoError(t, env.conn.Invoke(context.Background(), methodLogin, loginReq, loginOut))
	tok = tokenOf(loginOut)

	profile, hdr, err := env.me(tok)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", profile.GetFields()["email"].GetStringValue())
	assert.Equal(t, "Grace", profile.GetFields()["first_name"].GetStringValue())
	assert.Equal(t, []string{tok}, hdr.Get(common.AccessTokenHeaderName))
	assert.Equal(t, []string{t0.Add(time.Minute).Format(time.RFC3339)}, hdr.Get(common.ExpiresAtMetadataName))
}

func TestMe_RefreshesStaleToken(t *testing.T) {
	env := newGRPCEnv(t)
	out, _ := env.register(t, "hopper@example.com", "pw")
	tok := tokenOf(out)

	env.clock.Advance(90 * time.Second)
	_, hdr, err := env.me(tok)
	require.NoError(t, err)

	fresh := hdr.Get(common.AccessTokenHeaderName)
	require.Len(t, fresh, 1)
	assert.NotEqual(t, tok, fresh[0])
	assert.Equal(t, []string{t0.Add(150 * time.Second).Format(time.RFC3339)}, hdr.Get(common.ExpiresAtMetadataName))

	env.clock.Advance(time.Hour)
	_, _, err = env.me(fresh[0])
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestMe_Unauthenticated(t *testing.T) {
	env := newGRPCEnv(t)

	out := new(structpb.Struct)
	err := env.conn.Invoke(context.Background(), methodMe, &emptypb.Empty{}, out)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, _, err = env.me("garbage")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestRegister_Errors(t *testing.T) {
	env := newGRPCEnv(t)
	env.register(t, "lin@example.com", "pw")

	req, err := structpb.NewStruct(map[string]any{"email": "lin@example.com", "password": "other"})
	require.NoError(t, err)
	err = env.conn.Invoke(context.Background(), methodRegister, req, new(structpb.Struct))
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	empty, err := structpb.NewStruct(map[string]any{"email": ""})
	require.NoError(t, err)
	err = env.conn.Invoke(context.Background(), methodRegister, empty, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	bad, err := structpb.NewStruct(map[string]any{"email": "lin@example.com", "password": "nope"})
	require.NoError(t, err)
	err = env.conn.Invoke(context.Background(), methodLogin, bad, new(structpb.Struct))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
