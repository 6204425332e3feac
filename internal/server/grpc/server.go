package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/tokenguard/internal/logging"
	"github.com/dmitrijs2005/tokenguard/internal/server/auth"
	"github.com/dmitrijs2005/tokenguard/internal/server/models"
	"github.com/dmitrijs2005/tokenguard/internal/server/services"
	"github.com/dmitrijs2005/tokenguard/internal/token"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// UserService is satisfied by *services.UserService.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, token.Response, bool, error)
	Login(ctx context.Context, email, password string) (*models.User, token.Response, error)
	Profile(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenAuthenticator is satisfied by *auth.Authenticator.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (auth.Result, error)
}

type GRPCServer struct {
	address string
	users   UserService
	auth    TokenAuthenticator
	logger  logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, us UserService, ta TokenAuthenticator) (*GRPCServer, error) {
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		users:   us,
		auth:    ta,
	}, nil
}

// newServer builds a grpc.Server with the user, health and reflection
// services registered.
func (s *GRPCServer) newServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))

	srv.RegisterService(&userServiceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(userServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)

	return srv, hs
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv, hs := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
