package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"

	database "github.com/FACorreiaa/im-auth/app/db"
	"github.com/FACorreiaa/im-auth/app/observability/metrics"
	"github.com/FACorreiaa/im-auth/config"
	"github.com/FACorreiaa/im-auth/internal/api/auth"
	api "github.com/FACorreiaa/im-auth/internal/router"
)

var errDatabaseNotReady = errors.New("database not ready after waiting")

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *slog.Logger
	Pool        *pgxpool.Pool
	Metrics     *metrics.AppMetrics
	AuthService *auth.AuthServiceImpl
	AuthHandler *auth.AuthHandler
}

// NewContainer connects to the database and wires the auth stack on top of it.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, meter metric.Meter) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to generate database config: %w", err)
	}

	pool, err := database.Init(ctx, dbConfig.ConnectionURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database pool: %w", err)
	}

	err = prepareDatabase(ctx, pool, logger, func() error {
		return database.RunMigrations(dbConfig.ConnectionURL, logger)
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	appMetrics, err := metrics.New(meter)
	if err != nil {
		pool.Close()
		return nil, err
	}

	authRepo := auth.NewPostgresAuthRepo(pool, logger, appMetrics)
	c, err := NewAuthContainer(cfg, logger, authRepo, appMetrics)
	if err != nil {
		pool.Close()
		return nil, err
	}
	c.Pool = pool
	return c, nil
}

// prepareDatabase waits for the database to answer pings before migrating it.
func prepareDatabase(ctx context.Context, pool database.Pinger, logger *slog.Logger, migrate func() error) error {
	if !database.WaitForDB(ctx, pool, logger) {
		return errDatabaseNotReady
	}
	if err := migrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	return nil
}

// NewAuthContainer wires hasher, token service, auth service and handler over
// any AuthRepo.
func NewAuthContainer(cfg *config.Config, logger *slog.Logger, repo auth.AuthRepo, m *metrics.AppMetrics) (*Container, error) {
	hasher, err := auth.NewPasswordHasher(cfg.Password.Algorithm, cfg.Password.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to build password hasher: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("failed to build token service: %w", err)
	}

	authService, err := auth.NewAuthService(repo, hasher, tokens, auth.ServiceConfig{
		AccessTokenTTL: cfg.JWT.AccessTokenTTL(),
		EnforceActive:  cfg.Auth.EnforceActive,
	}, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to build auth service: %w", err)
	}

	return &Container{
		Config:      cfg,
		Logger:      logger,
		Metrics:     m,
		AuthService: authService,
		AuthHandler: auth.NewAuthHandler(authService, logger),
	}, nil
}

// RouterConfig returns the router dependencies for this container.
func (c *Container) RouterConfig() *api.Config {
	return &api.Config{
		AuthHandler:            c.AuthHandler,
		AuthenticateMiddleware: auth.Authenticate(c.Logger, c.AuthService),
		Logger:                 c.Logger,
		RequestTimeout:         c.Config.Server.Timeout,
	}
}

func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}
