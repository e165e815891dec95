package rebalance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/jazzypop/content-engine/internal/content"
)

// GroupTx is the transactional view of one group. Every call runs inside the
// transaction opened by Store.WithGroupTx.
type GroupTx interface {
	// LockPacks re-reads the given packs and holds them until the transaction ends.
	LockPacks(ctx context.Context, ids []string) ([]content.Pack, error)
	CreatePack(ctx context.Context, p content.Pack) error
	UpdatePack(ctx context.Context, p content.Pack) error
	DeletePacks(ctx context.Context, ids []string) (int, error)
	// ArchiveOrphan must leave the transaction usable when it fails.
	ArchiveOrphan(ctx context.Context, o Orphan) error
}

// Store is the content store as seen by the rebalancer.
type Store interface {
	Scanner
	// WithGroupTx runs fn in one transaction holding the group's claim. fn's
	// error rolls everything back. ErrGroupLocked means another worker holds the key.
	WithGroupTx(ctx context.Context, key content.GroupKey, fn func(ctx context.Context, tx GroupTx) error) error
	// DeleteEmpty removes the given packs that are still empty.
	DeleteEmpty(ctx context.Context, ids []string) (int, error)
}

// Recorder receives rebalancing measurements.
type Recorder interface {
	ObserveGroup(strategy, outcome string, d time.Duration)
	RecordRun(s Summary)
}

// Options tunes a Rebalancer.
type Options struct {
	ContentType   string
	TargetSize    int
	BatchSize     int
	Workers       int
	GroupTimeout  time.Duration
	StrictArchive bool
	CleanupEmpty  bool
	DryRun        bool
}

// Rebalancer restores the pack fill invariant group by group.
type Rebalancer struct {
	store    Store
	checker  *Checker
	planner  Planner
	recorder Recorder
	logger   zerolog.Logger
	opts     Options
}

func NewRebalancer(store Store, planner Planner, recorder Recorder, opts Options, logger zerolog.Logger) *Rebalancer {
	if opts.ContentType == "" {
		opts.ContentType = content.TypeQuizSet
	}
	if opts.TargetSize <= 0 {
		opts.TargetSize = content.DefaultTargetSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.GroupTimeout <= 0 {
		opts.GroupTimeout = 30 * time.Second
	}
	return &Rebalancer{
		store:    store,
		checker:  NewChecker(store),
		planner:  planner,
		recorder: recorder,
		logger:   logger.With().Str("component", "rebalancer").Str("strategy", planner.Name()).Logger(),
		opts:     opts,
	}
}

// Run scans for under-full packs and rebalances every group once.
// A *FatalRunError carries the partial summary.
func (r *Rebalancer) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{ContentType: r.opts.ContentType, Strategy: r.planner.Name(), DryRun: r.opts.DryRun}

	groups, err := r.checker.FindUnderfullPacks(ctx, r.opts.ContentType, r.opts.TargetSize)
	if err != nil {
		summary.Duration = time.Since(start)
		return summary, &FatalRunError{Summary: summary, Err: err}
	}
	summary.GroupsExamined = len(groups)
	r.logger.Info().Int("groups", len(groups)).Str("content_type", r.opts.ContentType).Msg("underfull scan complete")

	var mu sync.Mutex
	batches := lo.Chunk(groups, r.opts.BatchSize)
	for i, batch := range batches {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Workers)
		for _, group := range batch {
			g.Go(func() error {
				res, err := r.processGroup(gctx, group)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if r.isFatal(gctx, err) {
						return err
					}
					summary.Errors++
					r.logger.Error().Err(err).Str("group", group.Key.String()).Msg("group rebalance failed")
					return nil
				}
				if res.skipped {
					summary.GroupsSkipped++
					return nil
				}
				summary.add(res)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			summary.Duration = time.Since(start)
			r.record(summary)
			return summary, &FatalRunError{Summary: summary, Err: err}
		}
		r.logger.Info().
			Int("batch", i+1).
			Int("batches", len(batches)).
			Int("groups_processed", summary.GroupsProcessed).
			Int("errors", summary.Errors).
			Msg("batch complete")
	}

	if r.opts.CleanupEmpty && !r.opts.DryRun {
		n, err := r.cleanupEmpty(ctx)
		if err != nil {
			summary.Duration = time.Since(start)
			r.record(summary)
			return summary, &FatalRunError{Summary: summary, Err: err}
		}
		summary.EmptyPacksDeleted = n
		summary.PacksDeleted += n
	}

	summary.Duration = time.Since(start)
	r.record(summary)
	r.logger.Info().
		Int("packs_examined", summary.PacksExamined).
		Int("packs_deleted", summary.PacksDeleted).
		Int("full_packs_created", summary.FullPacksCreated).
		Int("items_moved", summary.ItemsMoved).
		Int("orphans_archived", summary.OrphansArchived).
		Int("errors", summary.Errors).
		Dur("duration", summary.Duration).
		Msg("rebalance run complete")
	return summary, nil
}

func (r *Rebalancer) processGroup(ctx context.Context, group Group) (groupResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.opts.GroupTimeout)
	defer cancel()

	var res groupResult
	err := r.store.WithGroupTx(ctx, group.Key, func(ctx context.Context, tx GroupTx) error {
		res = groupResult{}
		packs, err := tx.LockPacks(ctx, group.PackIDs())
		if err != nil {
			return fmt.Errorf("lock packs: %w", err)
		}
		packs = r.eligible(group.Key, packs)
		res.examined = len(packs)
		if len(packs) == 0 {
			return nil
		}

		plan := r.planner.Plan(group.Key, packs, r.opts.TargetSize)
		if r.opts.DryRun {
			res.tally(plan, len(plan.Orphans))
			res.deleted = len(plan.Deleted)
			r.logger.Info().
				Str("group", group.Key.String()).
				Int("packs", len(packs)).
				Int("would_create", len(plan.Created)).
				Int("would_update", len(plan.Updated)).
				Int("would_delete", len(plan.Deleted)).
				Int("would_archive", len(plan.Orphans)).
				Msg("dry run plan")
			return errDryRun
		}
		return r.apply(ctx, tx, plan, &res)
	})

	switch {
	case errors.Is(err, ErrGroupLocked):
		r.observe("skipped", start)
		r.logger.Debug().Str("group", group.Key.String()).Msg("group claimed elsewhere, skipping")
		return groupResult{skipped: true}, nil
	case errors.Is(err, errDryRun):
		r.observe("dry_run", start)
		return res, nil
	case err != nil:
		r.observe("error", start)
		return groupResult{}, &GroupError{Key: group.Key, Err: err}
	}
	r.observe("ok", start)
	return res, nil
}

func (r *Rebalancer) apply(ctx context.Context, tx GroupTx, plan Plan, res *groupResult) error {
	for _, p := range plan.Created {
		if err := tx.CreatePack(ctx, p); err != nil {
			return fmt.Errorf("create pack %s: %w", p.ID, err)
		}
	}
	for _, p := range plan.Updated {
		if err := tx.UpdatePack(ctx, p); err != nil {
			return fmt.Errorf("update pack %s: %w", p.ID, err)
		}
	}
	if len(plan.Deleted) > 0 {
		n, err := tx.DeletePacks(ctx, plan.Deleted)
		if err != nil {
			return fmt.Errorf("delete packs: %w", err)
		}
		res.deleted = n
	}

	archived := 0
	for _, o := range plan.Orphans {
		if err := tx.ArchiveOrphan(ctx, o); err != nil {
			if r.opts.StrictArchive || ctx.Err() != nil {
				return fmt.Errorf("archive orphan %s: %w", o.Item.ID, err)
			}
			res.archiveFailures++
			r.logger.Warn().
				Err(err).
				Str("group", o.Key.String()).
				Str("item_id", o.Item.ID).
				Str("source_pack_id", o.SourcePackID).
				Msg("orphan archive failed, item dropped")
			continue
		}
		archived++
	}
	res.tally(plan, archived)
	return nil
}

func (res *groupResult) tally(plan Plan, archived int) {
	res.created = len(plan.Created)
	res.updated = len(plan.Updated)
	res.moved = plan.ItemsMoved
	res.dropped = len(plan.Dropped)
	res.archived = archived
}

// eligible drops packs that changed since the scan: inactive, moved to another
// group, full, or empty.
func (r *Rebalancer) eligible(key content.GroupKey, packs []content.Pack) []content.Pack {
	out := packs[:0:0]
	for _, p := range packs {
		n := len(p.Items)
		if !p.IsActive || p.Group() != key || n == 0 || n >= r.opts.TargetSize {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (r *Rebalancer) cleanupEmpty(ctx context.Context) (int, error) {
	ids, err := r.checker.FindEmptyPacks(ctx, r.opts.ContentType)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := r.store.DeleteEmpty(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete empty packs: %w", err)
	}
	r.logger.Info().Int("packs", n).Msg("empty packs deleted")
	return n, nil
}

// isFatal reports whether err must abort the run rather than the group.
func (r *Rebalancer) isFatal(ctx context.Context, err error) bool {
	if errors.Is(err, content.ErrStoreUnavailable) {
		return true
	}
	return ctx.Err() != nil
}

func (r *Rebalancer) observe(outcome string, start time.Time) {
	if r.recorder != nil {
		r.recorder.ObserveGroup(r.planner.Name(), outcome, time.Since(start))
	}
}

func (r *Rebalancer) record(s Summary) {
	if r.recorder != nil {
		r.recorder.RecordRun(s)
	}
}
