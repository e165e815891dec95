package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jazzypop/content-engine/internal/config"
	"github.com/jazzypop/content-engine/internal/db/repository"
	"github.com/jazzypop/content-engine/internal/dedup"
	"github.com/jazzypop/content-engine/internal/logging"
	"github.com/jazzypop/content-engine/internal/metrics"
	"github.com/jazzypop/content-engine/internal/server"
)

// Application aggregates shared infrastructure (DB, Redis, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server
}

// Infra is the connection set shared by the API and the batch job.
type Infra struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *metrics.Metrics
}

// Connect opens Postgres and Redis and builds the metrics registry.
func Connect(ctx context.Context, cfg *config.App) (*Infra, error) {
	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	m := metrics.New(metrics.WithNamespace(cfg.Metrics.Namespace), metrics.WithRuntimeCollectors())
	return &Infra{Pool: pool, Redis: redisClient, Metrics: m}, nil
}

// Close releases the pool and the Redis client.
func (i *Infra) Close() error {
	i.Pool.Close()
	return i.Redis.Close()
}

// NewSelector builds the configured dedup selector on top of infra.
func NewSelector(cfg *config.App, infra *Infra, logger zerolog.Logger) (*dedup.Selector, error) {
	catalog := repository.NewCatalog(infra.Pool, logger)
	state, err := dedup.NewRedisState(infra.Redis, cfg.Redis.Prefix, cfg.Redis.StateTTL)
	if err != nil {
		return nil, err
	}
	strategy, err := dedup.NewStrategy(cfg.Dedup.Strategy, dedup.Deps{
		Catalog:   catalog,
		Seen:      state,
		Bitmaps:   state,
		Positions: state,
	}, dedup.StrategyOptions{
		MaxSeen:        cfg.Dedup.MaxSeen,
		ReshuffleEvery: cfg.Dedup.ReshuffleEvery,
		GoldenWindow:   cfg.Dedup.GoldenWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("dedup strategy: %w", err)
	}
	return dedup.NewSelector(strategy, catalog, infra.Metrics, dedup.SelectorOptions{
		DefaultCount: cfg.Dedup.DefaultCount,
		MaxCount:     cfg.Dedup.MaxCount,
	}, logger), nil
}

// New bootstraps logger, Postgres, Redis, the selector and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	infra, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	selector, err := NewSelector(cfg, infra, logger)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	logger.Info().Str("strategy", selector.Strategy()).Msg("dedup selector initialized")

	apiServer := server.NewHTTPServer(cfg, logger, server.Deps{
		Pings: map[string]server.PingFunc{
			"postgres": infra.Pool.Ping,
			"redis":    func(ctx context.Context) error { return infra.Redis.Ping(ctx).Err() },
		},
		Metrics: infra.Metrics.Handler(),
		Content: server.NewContentHandler(selector, logger),
	})

	return &Application{
		cfg:    cfg,
		logger: logger,
		pool:   infra.Pool,
		redis:  infra.Redis,
		http:   apiServer,
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}
