package dedup

import (
	"context"

	"github.com/jazzypop/content-engine/internal/content"
)

// ExclusionList records every served pack in the database and excludes it
// from later draws. Once the viewer has seen the whole pool the list is reset.
type ExclusionList struct {
	views ViewLog
}

func (s *ExclusionList) Name() string { return StrategyExclusionList }

func (s *ExclusionList) Select(ctx context.Context, viewer string, pool content.PoolKey, count int) ([]content.Pack, error) {
	picked, err := s.views.Unseen(ctx, viewer, pool, count, nil)
	if err != nil {
		return nil, err
	}
	if len(picked) < count {
		if err := s.views.ResetViews(ctx, viewer, pool); err != nil {
			return nil, err
		}
		more, err := s.views.Unseen(ctx, viewer, pool, count-len(picked), content.PackIDs(picked))
		if err != nil {
			return nil, err
		}
		picked = append(picked, more...)
	}
	if len(picked) == 0 {
		return picked, nil
	}
	if err := s.views.RecordViews(ctx, viewer, pool, content.PackIDs(picked)); err != nil {
		return nil, err
	}
	return picked, nil
}

// CompressedList keeps the served ids as a zstd-compressed list in Redis and
// draws randomly around it.
type CompressedList struct {
	random  RandomSource
	seen    SeenStore
	maxSeen int
}

func (s *CompressedList) Name() string { return StrategyCompressedList }

func (s *CompressedList) Select(ctx context.Context, viewer string, pool content.PoolKey, count int) ([]content.Pack, error) {
	seen, err := s.seen.LoadSeen(ctx, viewer, pool)
	if err != nil {
		return nil, err
	}
	picked, err := s.random.Random(ctx, pool, count, seen)
	if err != nil {
		return nil, err
	}
	if len(picked) < count {
		// pool exhausted for this viewer: start a new cycle
		seen = nil
		more, err := s.random.Random(ctx, pool, count-len(picked), content.PackIDs(picked))
		if err != nil {
			return nil, err
		}
		picked = append(picked, more...)
	}
	if len(picked) == 0 {
		return picked, nil
	}
	seen = append(seen, content.PackIDs(picked)...)
	if len(seen) > s.maxSeen {
		seen = seen[len(seen)-s.maxSeen:]
	}
	if err := s.seen.SaveSeen(ctx, viewer, pool, seen); err != nil {
		return nil, err
	}
	return picked, nil
}
