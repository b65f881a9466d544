package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/auth-service/internal/audit"
	"github.com/utafrali/auth-service/internal/config"
	"github.com/utafrali/auth-service/internal/csrf"
	"github.com/utafrali/auth-service/internal/event"
	handler "github.com/utafrali/auth-service/internal/handler/http"
	"github.com/utafrali/auth-service/internal/lockout"
	"github.com/utafrali/auth-service/internal/password"
	"github.com/utafrali/auth-service/internal/repository/postgres"
	"github.com/utafrali/auth-service/internal/service"
	"github.com/utafrali/auth-service/internal/token"
	"github.com/utafrali/auth-service/migrations"
	"github.com/utafrali/auth-service/pkg/database"
	"github.com/utafrali/auth-service/pkg/health"
	pkgkafka "github.com/utafrali/auth-service/pkg/kafka"
)

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg         *config.Config
	logger      *slog.Logger
	pool        *pgxpool.Pool
	redisClient *redis.Client
	producer    *pkgkafka.Producer
	authService *service.AuthService
	httpServer  *http.Server
	sweepDone   chan struct{}
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// PostgreSQL connection pool.
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	// Database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Redis client for the lockout store. An unreachable redis is not
	// fatal: the tracker fails open and the readiness probe reports degraded.
	redisCfg := cfg.Redis()
	redisClient, err := database.NewRedisClient(ctx, redisCfg)
	if err != nil {
		logger.Warn("redis unreachable at startup, lockout fails open",
			slog.String("error", err.Error()),
		)
		redisClient = redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr(),
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
	}

	// Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	codec := token.NewCodec(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	hasher := password.NewHasher(cfg.BcryptCost)
	csrfGuard := csrf.NewGuard(cfg.CSRFSecret)

	tracker := lockout.NewTracker(redisClient, lockout.Config{
		Threshold:    cfg.LockoutThreshold,
		Window:       cfg.LockoutWindow,
		LockDuration: cfg.LockoutDuration,
	}, logger)

	accountRepo := postgres.NewAccountRepository(pool)
	tokenRepo := postgres.NewRefreshTokenRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	credStore := postgres.NewCredentialStore(pool)

	recorder := audit.NewRecorder(pool, logger)
	eventProducer := event.NewProducer(producer, logger)
	metrics := service.NewMetrics(prometheus.DefaultRegisterer)

	authService, err := service.NewAuthService(
		accountRepo, tokenRepo, sessionRepo, credStore,
		hasher, codec, csrfGuard,
		tracker, recorder, eventProducer,
		metrics,
		service.Policy{
			MaxRefreshTokens: cfg.MaxRefreshTokens,
			SessionRetention: cfg.SessionRetention,
		},
		cfg.JWTSecret,
		logger,
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("build auth service: %w", err)
	}

	// Health checks. Postgres is critical; redis and kafka degrade.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return tracker.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(authService, healthHandler, logger, handler.RouterConfig{
		Environment:    cfg.Environment,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RefreshExpiry:  cfg.JWTRefreshExpiry,
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
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		redisClient: redisClient,
		producer:    producer,
		authService: authService,
		httpServer:  httpServer,
		sweepDone:   make(chan struct{}),
	}, nil
}

// Run starts the HTTP server and the background sweep, blocking until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go a.runSweep(ctx)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// runSweep periodically removes expired refresh tokens and stale sessions.
func (a *App) runSweep(ctx context.Context) {
	defer close(a.sweepDone)

	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			a.authService.SweepExpired(sweepCtx)
			cancel()
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Background sweep
// 3. Kafka producer
// 4. Redis client and PostgreSQL pool
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

	// 2. Wait for the sweep loop to observe cancellation.
	select {
	case <-a.sweepDone:
	case <-time.After(2 * time.Second):
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close stores.
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
