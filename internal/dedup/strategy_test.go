package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazzypop/content-engine/internal/content"
)

// noRepeat are the strategies guaranteeing no repeat until the pool is exhausted.
var noRepeat = []string{
	StrategyExclusionList,
	StrategyCompressedList,
	StrategyBitmap,
	StrategyRollingMarker,
	StrategySmartMarker,
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newStrategy(t *testing.T, name string, cat *fakeCatalog, opts StrategyOptions) Strategy {
	t.Helper()
	state, _ := newTestState(t, 0)
	s, err := NewStrategy(name, Deps{Catalog: cat, Seen: state, Bitmaps: state, Positions: state}, opts)
	require.NoError(t, err)
	require.Equal(t, name, s.Name())
	return s
}

func TestNoRepeatUntilPoolExhausted(t *testing.T) {
	for _, name := range noRepeat {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cat := newFakeCatalog(makePacks("science", 25)...)
			s := newStrategy(t, name, cat, StrategyOptions{})

			served := make(map[string]bool)
			for call := 0; call < 5; call++ {
				packs, err := s.Select(ctx, "user:1", sciencePool, 5)
				require.NoError(t, err)
				require.Len(t, packs, 5)
				for _, p := range packs {
					assert.False(t, served[p.ID], "pack %s served twice", p.ID)
					served[p.ID] = true
				}
			}
			assert.Len(t, served, 25)

			// exhausted: the next call wraps instead of returning nothing
			packs, err := s.Select(ctx, "user:1", sciencePool, 5)
			require.NoError(t, err)
			assert.Len(t, packs, 5)
			assertDistinct(t, packs)
		})
	}
}

func TestBitmapNoRepeatOnLargePool(t *testing.T) {
	ctx := context.Background()
	cat := newFakeCatalog(makePacks("science", 300)...)
	s := newStrategy(t, StrategyBitmap, cat, StrategyOptions{})

	served := make(map[string]bool)
	for call := 0; call < 30; call++ {
		packs, err := s.Select(ctx, "user:1", sciencePool, 10)
		require.NoError(t, err)
		require.Len(t, packs, 10)
		for _, p := range packs {
			require.False(t, served[p.ID], "pack %s served twice in call %d", p.ID, call)
			served[p.ID] = true
		}
	}
	assert.Len(t, served, 300)

	packs, err := s.Select(ctx, "user:1", sciencePool, 10)
	require.NoError(t, err)
	assert.Len(t, packs, 10)
	assertDistinct(t, packs)
}

func TestBitmapFillsAcrossTheReset(t *testing.T) {
	ctx := context.Background()
	cat := newFakeCatalog(makePacks("science", 7)...)
	s := newStrategy(t, StrategyBitmap, cat, StrategyOptions{})

	first, err := s.Select(ctx, "user:1", sciencePool, 5)
	require.NoError(t, err)
	second, err := s.Select(ctx, "user:1", sciencePool, 5)
	require.NoError(t, err)
	require.Len(t, second, 5)
	assertDistinct(t, second)

	// the two unseen packs are served before the reset, the other three repeat
	assert.Len(t, intersect(content.PackIDs(first), content.PackIDs(second)), 3)
}

func TestViewersAreIndependent(t *testing.T) {
	for _, name := range noRepeat {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cat := newFakeCatalog(makePacks("science", 6)...)
			s := newStrategy(t, name, cat, StrategyOptions{})

			_, err := s.Select(ctx, "user:1", sciencePool, 6)
			require.NoError(t, err)
			packs, err := s.Select(ctx, "session:other", sciencePool, 6)
			require.NoError(t, err)
			assert.Len(t, packs, 6)
		})
	}
}

func TestMarkersWrapInTheSameOrder(t *testing.T) {
	for _, name := range []string{StrategyRollingMarker, StrategySmartMarker} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cat := newFakeCatalog(makePacks("science", 9)...)
			s := newStrategy(t, name, cat, StrategyOptions{})

			var cycle []string
			for call := 0; call < 3; call++ {
				packs, err := s.Select(ctx, "user:1", sciencePool, 3)
				require.NoError(t, err)
				cycle = append(cycle, content.PackIDs(packs)...)
			}
			assert.Equal(t, content.PackIDs(makePacks("science", 9)), cycle)

			packs, err := s.Select(ctx, "user:1", sciencePool, 3)
			require.NoError(t, err)
			assert.Equal(t, cycle[:3], content.PackIDs(packs))
		})
	}
}

func TestMarkersFillAcrossTheWrap(t *testing.T) {
	for _, name := range []string{StrategyRollingMarker, StrategySmartMarker} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			all := content.PackIDs(makePacks("science", 7))
			cat := newFakeCatalog(makePacks("science", 7)...)
			s := newStrategy(t, name, cat, StrategyOptions{})

			first, err := s.Select(ctx, "user:1", sciencePool, 5)
			require.NoError(t, err)
			assert.Equal(t, all[:5], content.PackIDs(first))

			second, err := s.Select(ctx, "user:1", sciencePool, 5)
			require.NoError(t, err)
			assert.Equal(t, append(append([]string{}, all[5:]...), all[:3]...), content.PackIDs(second))
		})
	}
}

func TestSmartMarkerPicksUpNewContent(t *testing.T) {
	ctx := context.Background()
	cat := newFakeCatalog(makePacks("science", 4)...)
	s := newStrategy(t, StrategySmartMarker, cat, StrategyOptions{})

	_, err := s.Select(ctx, "user:1", sciencePool, 4)
	require.NoError(t, err)

	fresh := makePacks("science", 5)[4]
	fresh.ID = "science-new"
	cat.add(fresh)

	packs, err := s.Select(ctx, "user:1", sciencePool, 2)
	require.NoError(t, err)
	require.Len(t, packs, 2)
	assert.Equal(t, "science-new", packs[0].ID)
	assert.Equal(t, "science-000", packs[1].ID)
}

func TestRollingMarkerReshufflesPerEpoch(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: baseTime}
	cat := newFakeCatalog(makePacks("science", 10)...)
	s := newStrategy(t, StrategyRollingMarker, cat, StrategyOptions{ReshuffleEvery: time.Hour, Now: clk.now})

	first, err := s.Select(ctx, "user:1", sciencePool, 4)
	require.NoError(t, err)
	second, err := s.Select(ctx, "user:1", sciencePool, 4)
	require.NoError(t, err)
	assert.Empty(t, intersect(content.PackIDs(first), content.PackIDs(second)))

	// a new epoch restarts from the top of a new order
	clk.t = clk.t.Add(time.Hour)
	served := make(map[string]bool)
	for call := 0; call < 5; call++ {
		packs, err := s.Select(ctx, "user:1", sciencePool, 2)
		require.NoError(t, err)
		require.Len(t, packs, 2)
		for _, p := range packs {
			assert.False(t, served[p.ID])
			served[p.ID] = true
		}
	}
	assert.Len(t, served, 10)
}

func TestPoolSmallerThanCount(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cat := newFakeCatalog(makePacks("science", 3)...)
			s := newStrategy(t, name, cat, StrategyOptions{})

			for call := 0; call < 2; call++ {
				packs, err := s.Select(ctx, "user:1", sciencePool, 5)
				require.NoError(t, err)
				assert.Len(t, packs, 3)
				assertDistinct(t, packs)
			}
		})
	}
}

func TestEmptyPool(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			cat := newFakeCatalog(makePacks("history", 3)...)
			s := newStrategy(t, name, cat, StrategyOptions{})

			packs, err := s.Select(context.Background(), "user:1", sciencePool, 5)
			require.NoError(t, err)
			assert.Empty(t, packs)
		})
	}
}

func TestGoldenRatioIsStableWithinWindow(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: baseTime}
	cat := newFakeCatalog(makePacks("science", 25)...)
	s := newStrategy(t, StrategyGoldenRatio, cat, StrategyOptions{GoldenWindow: time.Hour, Now: clk.now})

	a, err := s.Select(ctx, "user:1", sciencePool, 5)
	require.NoError(t, err)
	b, err := s.Select(ctx, "user:1", sciencePool, 5)
	require.NoError(t, err)
	assert.Equal(t, content.PackIDs(a), content.PackIDs(b))
	assert.Len(t, a, 5)

	clk.t = clk.t.Add(time.Hour)
	c, err := s.Select(ctx, "user:1", sciencePool, 5)
	require.NoError(t, err)
	assert.NotEqual(t, content.PackIDs(a)[0], content.PackIDs(c)[0])
	assert.Zero(t, cat.stateCalls.Load())
}

func TestReservoirIsStablePerDay(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: baseTime}
	cat := newFakeCatalog(makePacks("science", 40)...)
	s := newStrategy(t, StrategyReservoir, cat, StrategyOptions{Now: clk.now})

	a, err := s.Select(ctx, "user:1", sciencePool, 6)
	require.NoError(t, err)
	require.Len(t, a, 6)
	assertDistinct(t, a)

	clk.t = clk.t.Add(3 * time.Hour)
	b, err := s.Select(ctx, "user:1", sciencePool, 6)
	require.NoError(t, err)
	assert.Equal(t, content.PackIDs(a), content.PackIDs(b))
	assert.Zero(t, cat.stateCalls.Load())
}

func TestNewStrategy(t *testing.T) {
	cat := newFakeCatalog()

	_, err := NewStrategy("most_popular", Deps{Catalog: cat}, StrategyOptions{})
	assert.ErrorIs(t, err, content.ErrUnknownStrategy)

	_, err = NewStrategy(StrategyBitmap, Deps{Catalog: cat}, StrategyOptions{})
	assert.Error(t, err)

	_, err = NewStrategy(StrategySmartMarker, Deps{}, StrategyOptions{})
	assert.Error(t, err)

	s, err := NewStrategy(StrategySmartMarker, Deps{Catalog: cat}, StrategyOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultStrategy, s.Name())
}

func assertDistinct(t *testing.T, packs []content.Pack) {
	t.Helper()
	seen := make(map[string]bool, len(packs))
	for _, p := range packs {
		assert.False(t, seen[p.ID], "duplicate %s", p.ID)
		seen[p.ID] = true
	}
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	var out []string
	for _, id := range b {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}
