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

	"github.com/dstall/fileharbor/internal/audit"
	"github.com/dstall/fileharbor/internal/config"
	"github.com/dstall/fileharbor/internal/directory"
	"github.com/dstall/fileharbor/internal/event"
	handler "github.com/dstall/fileharbor/internal/handler/http"
	"github.com/dstall/fileharbor/internal/repository/postgres"
	"github.com/dstall/fileharbor/internal/service"
	"github.com/dstall/fileharbor/internal/session"
	"github.com/dstall/fileharbor/internal/settings"
	"github.com/dstall/fileharbor/internal/twofactor"
	"github.com/dstall/fileharbor/migrations"
	"github.com/dstall/fileharbor/pkg/database"
	"github.com/dstall/fileharbor/pkg/health"
	pkgkafka "github.com/dstall/fileharbor/pkg/kafka"
)

// reapInterval is how often idle session rows are swept from the store.
const reapInterval = 1 * time.Hour

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	producer   *pkgkafka.Producer
	sessions   *session.Manager
	idleExpiry time.Duration
	httpServer *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	idleExpiry, err := time.ParseDuration(cfg.SessionIdleExpiry)
	if err != nil {
		return nil, fmt.Errorf("parse session idle expiry %q: %w", cfg.SessionIdleExpiry, err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
		DBName:   cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSL,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Initialize Redis for the session cache.
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)))

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	settingRepo := postgres.NewSettingRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	twoFactorRepo := postgres.NewTwoFactorRepository(pool)

	settingsProvider := settings.NewProvider(settingRepo, logger)
	directoryClient := directory.NewClient(logger)
	sessionManager := session.NewManager(redisClient, sessionRepo, logger)
	policy := session.NewPolicy(cfg.SessionCookieName)
	gate := twofactor.NewGate(twoFactorRepo, logger)
	auditRecorder := audit.NewRecorder(auditRepo, logger)
	eventProducer := event.NewProducer(producer, logger)

	authService := service.NewAuthService(
		userRepo,
		sessionManager,
		settingsProvider,
		directoryClient,
		gate,
		auditRecorder,
		eventProducer,
		logger,
	)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(authService, sessionManager, policy, healthHandler, logger, handler.CORSConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Environment:    cfg.Environment,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		redis:      redisClient,
		producer:   producer,
		sessions:   sessionManager,
		idleExpiry: idleExpiry,
		httpServer: httpServer,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go a.reapIdleSessions(ctx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// reapIdleSessions periodically deletes session rows whose last activity is
// older than the idle expiry. Rotation leaves superseded ids behind; this is
// where they go.
func (a *App) reapIdleSessions(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.sessions.ReapIdle(ctx, a.idleExpiry)
			if err != nil {
				a.logger.Error("session reap failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.Info("reaped idle sessions", slog.Int64("count", n))
			}
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Kafka producer
// 3. Redis client
// 4. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 3. Close Redis client.
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
