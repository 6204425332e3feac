// Package server wires the tokenguard service together: configuration,
// logging, the users store, the token authenticator and the HTTP and gRPC
// endpoints, and runs them until a termination signal arrives.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/tokenguard/internal/logging"
	"github.com/dmitrijs2005/tokenguard/internal/server/auth"
	"github.com/dmitrijs2005/tokenguard/internal/server/config"
	"github.com/dmitrijs2005/tokenguard/internal/server/httpapi"
	"github.com/dmitrijs2005/tokenguard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenguard/internal/server/services"
	"github.com/dmitrijs2005/tokenguard/internal/token"

	gs "github.com/dmitrijs2005/tokenguard/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	repos      repomanager.RepositoryManager
	httpServer *httpapi.Server
	grpcServer *gs.GRPCServer
}

// newRepositoryManager opens the configured store backend.
func newRepositoryManager(ctx context.Context, c *config.Config) (repomanager.RepositoryManager, error) {
	switch c.StoreBackend {
	case config.BackendRedis:
		return repomanager.NewRedisRepositoryManager(c.RedisAddr, c.RedisPrefix), nil
	case config.BackendPostgres:
		return repomanager.NewPostgresRepositoryManager(ctx, c.DatabaseDSN)
	case config.BackendSQLite:
		return repomanager.NewSQLiteRepositoryManager(ctx, c.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, c.LogLevel, c.LogFormat)

	salt, err := c.SecretSaltBytes()
	if err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(salt)
	if err != nil {
		return nil, err
	}

	repos, err := newRepositoryManager(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	if err := repos.RunMigrations(ctx); err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store := repos.Users()
	authenticator := auth.NewAuthenticator(codec, token.NewIssuer(c.TokenDuration, nil), store,
		auth.WithGracePeriod(c.GracePeriod),
		auth.WithLogger(logger),
	)
	us := services.NewUserService(store, authenticator, logger)

	httpServer, err := httpapi.NewServer(c.EndpointAddrHTTP, logger, us, authenticator)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	grpcServer, err := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, us, authenticator)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	return &App{
		config:     c,
		logger:     logger,
		repos:      repos,
		httpServer: httpServer,
		grpcServer: grpcServer,
	}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// run starts one server and cancels the whole app if it fails.
func (app *App) run(ctx context.Context, cancelFunc context.CancelFunc, name string, serve func(context.Context) error) {
	if err := serve(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

// Run serves HTTP and gRPC until ctx is cancelled, a termination signal is
// received or one of the servers fails, then closes the store.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "store_backend", app.config.StoreBackend)

	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.run(ctx, cancelFunc, "http", app.httpServer.Run)
	}()
	go func() {
		defer wg.Done()
		app.run(ctx, cancelFunc, "grpc", app.grpcServer.Run)
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(context.Background(), "failed to close store", "error", err)
	}

	app.logger.Info(context.Background(), "App stopped")
}
