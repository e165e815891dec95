package dedup

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jazzypop/content-engine/internal/content"
)

const invPhi = 0.6180339887498949

func viewerHash(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// GoldenRatio keeps no state. Each viewer gets an offset derived from a hash
// of its identifier, advanced by the golden ratio every window, so nearby
// requests land on well spread positions of the pool.
type GoldenRatio struct {
	ordered OrderedSource
	window  time.Duration
	now     func() time.Time
}

func (s *GoldenRatio) Name() string { return StrategyGoldenRatio }

func (s *GoldenRatio) offset(viewer string, pool content.PoolKey, total int) int {
	base := float64(viewerHash(viewer, pool.String())>>11) / (1 << 53)
	step := float64(s.now().Unix() / max(int64(s.window/time.Second), 1))
	_, frac := math.Modf(base + step*invPhi)
	return int(frac*float64(total)) % total
}

func (s *GoldenRatio) Select(ctx context.Context, viewer string, pool content.PoolKey, count int) ([]content.Pack, error) {
	total, err := s.ordered.Count(ctx, pool)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return []content.Pack{}, nil
	}
	offset := s.offset(viewer, pool, total)
	picked, err := s.ordered.Slice(ctx, pool, "", offset, count)
	if err != nil {
		return nil, err
	}
	if missing := count - len(picked); missing > 0 && offset > 0 {
		more, err := s.ordered.Slice(ctx, pool, "", 0, min(missing, offset))
		if err != nil {
			return nil, err
		}
		picked = append(picked, more...)
	}
	return picked, nil
}

// Reservoir samples count ids uniformly from a single pass over the pool.
// The generator is seeded per viewer and day, so repeated calls within a day
// agree while the sample changes daily.
type Reservoir struct {
	streamer Streamer
	now      func() time.Time
}

func (s *Reservoir) Name() string { return StrategyReservoir }

func (s *Reservoir) Select(ctx context.Context, viewer string, pool content.PoolKey, count int) ([]content.Pack, error) {
	seed := viewerHash(viewer, pool.String(), s.now().UTC().Format(time.DateOnly))
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	sample := make([]string, 0, count)
	seen := 0
	err := s.streamer.StreamIDs(ctx, pool, func(id string) error {
		if seen < count {
			sample = append(sample, id)
		} else if j := rng.IntN(seen + 1); j < count {
			sample[j] = id
		}
		seen++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(sample) == 0 {
		return []content.Pack{}, nil
	}
	return s.streamer.Get(ctx, sample)
}
