package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jazzypop/content-engine/internal/content"
)

const (
	defaultCount = 10
	maxCount     = 50
)

// Request asks for Count packs of ContentType, optionally narrowed to Category.
type Request struct {
	ContentType string
	UserID      string
	SessionID   string
	Category    string
	Count       int
}

// Viewer returns the state key of the requester: user id first, then
// session id, otherwise empty for anonymous requests.
func (r Request) Viewer() string {
	switch {
	case r.UserID != "":
		return "user:" + r.UserID
	case r.SessionID != "":
		return "session:" + r.SessionID
	default:
		return ""
	}
}

func (r Request) Pool() content.PoolKey {
	return content.PoolKey{Type: r.ContentType, Category: r.Category}
}

// Recorder observes selections. Implemented by the metrics package.
type Recorder interface {
	ObserveSelection(strategy, outcome string, served int, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSelection(string, string, int, time.Duration) {}

type SelectorOptions struct {
	DefaultCount int
	MaxCount     int
}

// Selector serves packs to viewers without repeats, delegating identified
// viewers to a Strategy and anonymous ones to plain random selection.
type Selector struct {
	strategy Strategy
	random   RandomSource
	recorder Recorder
	opts     SelectorOptions
	logger   zerolog.Logger
}

func NewSelector(strategy Strategy, random RandomSource, recorder Recorder, opts SelectorOptions, logger zerolog.Logger) *Selector {
	if opts.DefaultCount <= 0 {
		opts.DefaultCount = defaultCount
	}
	if opts.MaxCount <= 0 {
		opts.MaxCount = maxCount
	}
	if opts.DefaultCount > opts.MaxCount {
		opts.DefaultCount = opts.MaxCount
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Selector{
		strategy: strategy,
		random:   random,
		recorder: recorder,
		opts:     opts,
		logger:   logger.With().Str("component", "dedup").Str("strategy", strategy.Name()).Logger(),
	}
}

// Strategy returns the name of the configured strategy.
func (s *Selector) Strategy() string { return s.strategy.Name() }

func (s *Selector) count(n int) int {
	if n <= 0 {
		return s.opts.DefaultCount
	}
	return min(n, s.opts.MaxCount)
}

// Select returns up to req.Count packs. An exhausted or empty pool yields a
// short or empty slice, never an error. An unknown content type is an empty
// pool and touches neither the catalog nor viewer state.
func (s *Selector) Select(ctx context.Context, req Request) ([]content.Pack, error) {
	count := s.count(req.Count)
	pool := req.Pool()
	viewer := req.Viewer()

	start := time.Now()
	name := s.strategy.Name()
	if viewer == "" {
		name = "anonymous"
	}
	if !content.IsKnownType(req.ContentType) {
		s.recorder.ObserveSelection(name, "empty", 0, time.Since(start))
		return []content.Pack{}, nil
	}

	var packs []content.Pack
	var err error
	if viewer == "" {
		packs, err = s.random.Random(ctx, pool, count, nil)
	} else {
		packs, err = s.strategy.Select(ctx, viewer, pool, count)
	}
	if err != nil {
		s.recorder.ObserveSelection(name, "error", 0, time.Since(start))
		s.logger.Error().Err(err).Str("viewer", viewer).Str("pool", pool.String()).Msg("selection failed")
		return nil, fmt.Errorf("select %s: %w", pool, err)
	}
	if packs == nil {
		packs = []content.Pack{}
	}

	outcome := "ok"
	switch {
	case len(packs) == 0:
		outcome = "empty"
	case len(packs) < count:
		outcome = "partial"
	}
	s.recorder.ObserveSelection(name, outcome, len(packs), time.Since(start))
	s.logger.Debug().
		Str("viewer", viewer).
		Str("pool", pool.String()).
		Int("requested", count).
		Int("served", len(packs)).
		Msg("content selected")
	return packs, nil
}
