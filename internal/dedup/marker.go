package dedup

import (
	"context"
	"strconv"
	"time"

	"github.com/jazzypop/content-engine/internal/content"
)

// RollingMarker walks the pool in a fixed order, remembering only an offset.
// With reshuffling enabled the order is re-seeded every epoch and the offset restarts.
type RollingMarker struct {
	ordered   OrderedSource
	positions PositionStore
	reshuffle time.Duration
	now       func() time.Time
}

func (s *RollingMarker) Name() string { return StrategyRollingMarker }

func (s *RollingMarker) epoch() (int64, string) {
	if s.reshuffle <= 0 {
		return 0, ""
	}
	e := s.now().Unix() / max(int64(s.reshuffle/time.Second), 1)
	return e, strconv.FormatInt(e, 10)
}

func (s *RollingMarker) Select(ctx context.Context, viewer string, pool content.PoolKey, count int) ([]content.Pack, error) {
	epoch, seed := s.epoch()
	pos, stored, err := s.positions.LoadPosition(ctx, viewer, pool)
	if err != nil {
		return nil, err
	}
	if stored != epoch {
		pos = 0
	}

	total, err := s.ordered.Count(ctx, pool)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return []content.Pack{}, nil
	}
	if pos >= total {
		pos = 0
	}

	picked, err := s.ordered.Slice(ctx, pool, seed, pos, count)
	if err != nil {
		return nil, err
	}
	next := pos + len(picked)
	if missing := count - len(picked); missing > 0 && pos > 0 {
		// wrap to the start, never past where this call began
		more, err := s.ordered.Slice(ctx, pool, seed, 0, min(missing, pos))
		if err != nil {
			return nil, err
		}
		picked = append(picked, more...)
		next = len(more)
	}

	if err := s.positions.SavePosition(ctx, viewer, pool, next, epoch); err != nil {
		return nil, err
	}
	return picked, nil
}

// SmartMarker remembers the (created_at, id) of the last served pack and
// continues strictly after it. New content lands at the end of the order, so
// a returning viewer picks it up once they reach it.
type SmartMarker struct {
	ordered OrderedSource
	markers MarkerStore
}

func (s *SmartMarker) Name() string { return StrategySmartMarker }

func (s *SmartMarker) Select(ctx context.Context, viewer string, pool content.PoolKey, count int) ([]content.Pack, error) {
	marker, err := s.markers.GetMarker(ctx, viewer, pool)
	if err != nil {
		return nil, err
	}
	picked, err := s.ordered.After(ctx, pool, marker, count, nil)
	if err != nil {
		return nil, err
	}
	if len(picked) < count && marker != nil {
		more, err := s.ordered.After(ctx, pool, nil, count-len(picked), content.PackIDs(picked))
		if err != nil {
			return nil, err
		}
		picked = append(picked, more...)
	}
	if len(picked) == 0 {
		return picked, nil
	}
	if err := s.markers.SetMarker(ctx, viewer, pool, CursorOf(picked[len(picked)-1])); err != nil {
		return nil, err
	}
	return picked, nil
}
