package rebalance

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Runner is satisfied by *Rebalancer.
type Runner interface {
	Run(ctx context.Context) (Summary, error)
}

// Worker reruns the rebalancer on a fixed interval until its context ends.
type Worker struct {
	runner   Runner
	logger   zerolog.Logger
	interval time.Duration
}

func NewWorker(runner Runner, interval time.Duration, logger zerolog.Logger) *Worker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Worker{
		runner:   runner,
		logger:   logger.With().Str("component", "rebalance_worker").Logger(),
		interval: interval,
	}
}

// Run blocks until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// run immediately
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	summary, err := w.runner.Run(ctx)
	if err != nil {
		// a fatal run is retried on the next tick
		w.logger.Error().Err(err).Int("groups_processed", summary.GroupsProcessed).Msg("rebalance run aborted")
		return
	}
	w.logger.Info().
		Int("full_packs_created", summary.FullPacksCreated).
		Int("orphans_archived", summary.OrphansArchived).
		Int("errors", summary.Errors).
		Msg("scheduled rebalance finished")
}
