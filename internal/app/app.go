package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ogrinko/userauth/internal/auth"
	"github.com/ogrinko/userauth/internal/config"
	"github.com/ogrinko/userauth/internal/event"
	handler "github.com/ogrinko/userauth/internal/handler/http"
	"github.com/ogrinko/userauth/internal/repository"
	memoryrepo "github.com/ogrinko/userauth/internal/repository/memory"
	postgresrepo "github.com/ogrinko/userauth/internal/repository/postgres"
	"github.com/ogrinko/userauth/internal/repository/postgres/migrations"
	"github.com/ogrinko/userauth/internal/service"
	"github.com/ogrinko/userauth/internal/token"
	memorytoken "github.com/ogrinko/userauth/internal/token/memory"
	redistoken "github.com/ogrinko/userauth/internal/token/redis"
	"github.com/ogrinko/userauth/pkg/database"
	"github.com/ogrinko/userauth/pkg/health"
	"github.com/ogrinko/userauth/pkg/kafka"
	"github.com/ogrinko/userauth/pkg/tracing"
)

// App wires the service's components together and owns their lifecycle.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	server         *http.Server
	pool           *pgxpool.Pool
	redisClient    *redis.Client
	producer       *kafka.Producer
	tracerShutdown func(context.Context) error
}

// New builds the application from configuration: backends, service,
// router, HTTP server.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: log}

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = shutdownTracer

	healthHandler := health.NewHandler()

	users, err := a.buildUserStore(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	tokens, err := a.buildTokenRegistry(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	var publisher *event.Publisher
	if cfg.EventsEnabled {
		a.producer = kafka.NewProducer(kafka.DefaultProducerConfig(cfg.KafkaBrokers), log)
		publisher = event.NewPublisher(a.producer, log)
		healthHandler.Register("kafka", a.producer.Ping)
	}

	codec := auth.NewCodec(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)

	svc := service.NewAuthService(users, tokens, codec, publisher, log, service.Config{
		BcryptCost:      cfg.BcryptCost,
		VerificationTTL: cfg.VerificationTokenTTL,
		ResetTTL:        cfg.ResetTokenTTL,
	})

	router := handler.NewRouter(handler.RouterConfig{
		Service:        svc,
		Health:         healthHandler,
		Logger:         log,
		ServiceName:    cfg.ServiceName,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return a, nil
}

func (a *App) buildUserStore(ctx context.Context, h *health.Handler) (repository.UserRepository, error) {
	switch a.cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres(), a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool

		if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}

		h.Register("postgres", pool.Ping)
		return postgresrepo.NewUserRepository(pool), nil

	default:
		return memoryrepo.NewUserRepository(), nil
	}
}

func (a *App) buildTokenRegistry(ctx context.Context, h *health.Handler) (token.Registry, error) {
	switch a.cfg.TokenBackend {
	case config.BackendRedis:
		client, err := database.NewRedisClient(ctx, a.cfg.Redis())
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redisClient = client

		h.Register("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		return redistoken.New(client), nil

	default:
		return memorytoken.New(), nil
	}
}

// Run starts the HTTP server and blocks until the context is canceled,
// then shuts everything down in dependency order.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("http server listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	return a.shutdown()
}

// shutdown drains the HTTP server first, then releases the backends.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error

	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}

	return errors.Join(errs...)
}
