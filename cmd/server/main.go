package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/iho/splitledger/internal/adapter/http"
	"github.com/iho/splitledger/internal/adapter/http/handler"
	"github.com/iho/splitledger/internal/adapter/http/middleware"
	postgresRepo "github.com/iho/splitledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/splitledger/internal/adapter/repository/redis"
	"github.com/iho/splitledger/internal/infrastructure/config"
	"github.com/iho/splitledger/internal/infrastructure/eventpublisher"
	"github.com/iho/splitledger/internal/infrastructure/logger"
	"github.com/iho/splitledger/internal/infrastructure/metrics"
	"github.com/iho/splitledger/internal/infrastructure/postgres"
	"github.com/iho/splitledger/internal/infrastructure/redis"
	"github.com/iho/splitledger/internal/usecase"
)

const limiterCleanupInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	zlog.Logger = log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.AutoMigrate {
		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Connect to PostgreSQL
	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	// Redis is optional: without it notifications are logged and split
	// retries are not replayed.
	deps := connectRedis(ctx, redis.Config{
		URL:          cfg.RedisURL,
		PingTimeout:  cfg.RedisPingTimeout,
		PingAttempts: cfg.RedisPingAttempts,
	}, log)
	defer deps.close()

	m := metrics.New()

	dispatcher := eventpublisher.NewDispatcher(eventpublisher.Config{
		Publisher: deps.publisher,
		Logger:    &log,
		Metrics:   m,
		QueueSize: cfg.NotifyQueueSize,
		Timeout:   cfg.NotifyTimeout,
	})

	movements := usecase.NewMovementUseCase(usecase.MovementUseCaseConfig{
		TxManager:         postgresRepo.NewTxManager(pool),
		MovementRepo:      postgresRepo.NewMovementRepository(pool),
		AreaRepo:          postgresRepo.NewAreaRepository(pool),
		DepartmentRepo:    postgresRepo.NewDepartmentRepository(pool),
		BankRepo:          postgresRepo.NewBankAccountRepository(pool),
		AccessRepo:        postgresRepo.NewAccessRepository(pool),
		HistoryRepo:       postgresRepo.NewHistoryRepository(pool),
		Notifier:          dispatcher,
		IDGen:             postgresRepo.NewULIDGenerator(),
		DistributionIDGen: postgresRepo.NewUUIDGenerator(),
		Metrics:           m,
		Logger:            &log,
		ListDefaultLimit:  cfg.ListDefaultLimit,
		ListMaxLimit:      cfg.ListMaxLimit,
	})

	retrier := postgresRepo.NewRetrier().
		WithMaxRetries(int(cfg.RetryMaxAttempts)).
		WithLogger(log).
		WithMetrics(m)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		MovementHandler:  handler.NewMovementHandler(movements, retrier),
		HealthHandler:    handler.NewHealthHandler(pool, deps.pinger),
		IdempotencyStore: deps.store,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		RateLimiter:      rateLimiter,
		Metrics:          m,
		Logger:           log,
		AllowedOrigins:   cfg.CORSAllowedOrigins,
	})

	server := &http.Server{
		Addr:         serverAddr(cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(dispatcher.Start(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(rateLimiter.Run(gctx, limiterCleanupInterval))
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTPShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// redisDeps are the collaborators backed by Redis, or their fallbacks.
type redisDeps struct {
	publisher eventpublisher.Publisher
	store     usecase.IdempotencyStore
	pinger    handler.Pinger
	close     func()
}

func connectRedis(ctx context.Context, cfg redis.Config, log zerolog.Logger) redisDeps {
	fallback := redisDeps{
		publisher: eventpublisher.NewLogPublisher(log),
		close:     func() {},
	}
	if cfg.URL == "" {
		log.Warn().Msg("redis disabled, notifications will only be logged")
		return fallback
	}

	client, err := redis.NewClient(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, notifications will only be logged")
		return fallback
	}
	log.Info().Msg("connected to redis")

	return redisDeps{
		publisher: redisRepo.NewBroadcaster(client),
		store:     redisRepo.NewIdempotencyStore(client),
		pinger:    handler.RedisPinger(client),
		close: func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close redis client")
			}
		},
	}
}

func serverAddr(port string) string {
	return fmt.Sprintf(":%s", port)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
