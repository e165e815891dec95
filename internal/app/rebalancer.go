package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jazzypop/content-engine/internal/config"
	"github.com/jazzypop/content-engine/internal/content"
	"github.com/jazzypop/content-engine/internal/db/repository"
	"github.com/jazzypop/content-engine/internal/rebalance"
)

// JobOverrides are command line overrides applied on top of config.Rebalance.
type JobOverrides struct {
	ContentType string
	Strategy    string
	DryRun      bool
}

// RebalanceOptions merges config and overrides into rebalance.Options and the
// planner name.
func RebalanceOptions(cfg config.Rebalance, o JobOverrides) (rebalance.Options, string, error) {
	opts := rebalance.Options{
		ContentType:   cfg.ContentType,
		TargetSize:    cfg.TargetSize,
		BatchSize:     cfg.BatchSize,
		Workers:       cfg.Workers,
		GroupTimeout:  cfg.GroupTimeout,
		StrictArchive: cfg.StrictArchive,
		CleanupEmpty:  cfg.CleanupEmpty,
		DryRun:        o.DryRun,
	}
	if o.ContentType != "" {
		opts.ContentType = o.ContentType
	}
	if !content.IsKnownType(opts.ContentType) {
		return rebalance.Options{}, "", fmt.Errorf("unknown content type %q", opts.ContentType)
	}
	strategy := cfg.Strategy
	if o.Strategy != "" {
		strategy = o.Strategy
	}
	return opts, strategy, nil
}

// NewRebalancer builds the rebalancing job on top of infra.
func NewRebalancer(cfg *config.App, infra *Infra, o JobOverrides, logger zerolog.Logger) (*rebalance.Rebalancer, error) {
	opts, strategy, err := RebalanceOptions(cfg.Rebalance, o)
	if err != nil {
		return nil, err
	}
	planner, err := rebalance.NewPlanner(strategy, rebalance.DefaultCriteria(), rebalance.PlannerOptions{})
	if err != nil {
		return nil, err
	}
	store := repository.NewContentRepository(infra.Pool, logger)
	return rebalance.NewRebalancer(store, planner, infra.Metrics, opts, logger), nil
}
