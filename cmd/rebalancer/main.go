package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jazzypop/content-engine/internal/app"
	"github.com/jazzypop/content-engine/internal/config"
	"github.com/jazzypop/content-engine/internal/logging"
	"github.com/jazzypop/content-engine/internal/rebalance"
)

func main() {
	var (
		contentType = flag.String("type", "", "Content type to rebalance (defaults to REBALANCE_CONTENT_TYPE)")
		strategy    = flag.String("strategy", "", "Rebalance strategy: pool, criteria or transfer (defaults to REBALANCE_STRATEGY)")
		dryRun      = flag.Bool("dry-run", false, "Plan every group and roll back without writing")
		loop        = flag.Bool("loop", false, "Keep running every REBALANCE_INTERVAL instead of exiting after one run")
	)
	flag.Parse()

	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load("configs/.env"); err != nil {
			log.Printf("Warning: could not load .env file: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.New(cfg.Name+"-rebalancer", cfg.Env)

	infra, err := app.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect")
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	job, err := app.NewRebalancer(cfg, infra, app.JobOverrides{
		ContentType: *contentType,
		Strategy:    *strategy,
		DryRun:      *dryRun,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build rebalancer")
	}

	if *loop {
		worker := rebalance.NewWorker(job, cfg.Rebalance.Interval, logger)
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("rebalance worker stopped")
		}
		return
	}

	summary, runErr := job.Run(ctx)
	if err := json.NewEncoder(os.Stdout).Encode(summary); err != nil {
		logger.Error().Err(err).Msg("failed to write summary")
	}

	if url := cfg.Metrics.PushgatewayURL; url != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := infra.Metrics.Push(pushCtx, url, "rebalancer"); err != nil {
			logger.Warn().Err(err).Str("gateway", url).Msg("metrics push failed")
		}
		cancel()
	}

	if runErr != nil {
		logger.Error().Err(runErr).Msg("rebalance run aborted")
		_ = infra.Close()
		os.Exit(1)
	}
}
