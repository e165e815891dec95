package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jazzypop/content-engine/internal/content"
)

// fakeCatalog is an in-memory Catalog. stateCalls counts every access to
// per-viewer state so tests can assert the anonymous path never reaches it.
type fakeCatalog struct {
	mu      sync.Mutex
	packs   []content.Pack // (created_at, id) order
	views   map[string]map[string]bool
	markers map[string]Cursor
	seqs    map[string]uint32
	rng     *rand.Rand

	stateCalls atomic.Int32
}

var _ Catalog = (*fakeCatalog)(nil)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFakeCatalog(packs ...content.Pack) *fakeCatalog {
	c := &fakeCatalog{
		views:   make(map[string]map[string]bool),
		markers: make(map[string]Cursor),
		seqs:    make(map[string]uint32),
		rng:     rand.New(rand.NewPCG(1, 2)),
	}
	for _, p := range packs {
		c.add(p)
	}
	return c
}

func (c *fakeCatalog) add(p content.Pack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packs = append(c.packs, p)
	sort.Slice(c.packs, func(i, j int) bool {
		a, b := c.packs[i], c.packs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if _, ok := c.seqs[p.ID]; !ok {
		c.seqs[p.ID] = uint32(len(c.seqs) + 1)
	}
}

// makePacks builds n active quiz packs in category, created one minute apart.
func makePacks(category string, n int) []content.Pack {
	out := make([]content.Pack, n)
	for i := range out {
		out[i] = content.Pack{
			ID:        fmt.Sprintf("%s-%03d", category, i),
			Type:      content.TypeQuizSet,
			Category:  category,
			Mode:      "standard",
			IsActive:  true,
			CreatedAt: baseTime.Add(time.Duration(i) * time.Minute),
			Items:     []content.Item{{ID: fmt.Sprintf("%s-%03d-q", category, i), Question: "Q?"}},
		}
	}
	return out
}

func stateKey(viewer string, pool content.PoolKey) string { return viewer + "|" + pool.String() }

func (c *fakeCatalog) inPool(pool content.PoolKey) []content.Pack {
	var out []content.Pack
	for _, p := range c.packs {
		if p.Type != pool.Type || !p.IsActive {
			continue
		}
		if pool.Category != "" && p.Category != pool.Category {
			continue
		}
		out = append(out, p)
	}
	return out
}

func without(packs []content.Pack, exclude []string) []content.Pack {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []content.Pack
	for _, p := range packs {
		if !skip[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func (c *fakeCatalog) shuffled(packs []content.Pack, count int) []content.Pack {
	out := append([]content.Pack(nil), packs...)
	c.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if len(out) > count {
		out = out[:count]
	}
	return out
}

func (c *fakeCatalog) Random(_ context.Context, pool content.PoolKey, count int, exclude []string) ([]content.Pack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shuffled(without(c.inPool(pool), exclude), count), nil
}

func (c *fakeCatalog) After(_ context.Context, pool content.PoolKey, after *Cursor, count int, exclude []string) ([]content.Pack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []content.Pack
	for _, p := range without(c.inPool(pool), exclude) {
		if after != nil {
			if p.CreatedAt.Before(after.CreatedAt) || (p.CreatedAt.Equal(after.CreatedAt) && p.ID <= after.ID) {
				continue
			}
		}
		out = append(out, p)
		if len(out) == count {
			break
		}
	}
	return out, nil
}

func (c *fakeCatalog) Slice(_ context.Context, pool content.PoolKey, seed string, offset, count int) ([]content.Pack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	packs := c.inPool(pool)
	if seed != "" {
		hash := func(id string) string {
			sum := md5.Sum([]byte(id + seed))
			return hex.EncodeToString(sum[:])
		}
		sort.Slice(packs, func(i, j int) bool { return hash(packs[i].ID) < hash(packs[j].ID) })
	}
	if offset >= len(packs) {
		return nil, nil
	}
	end := min(offset+count, len(packs))
	return packs[offset:end], nil
}

func (c *fakeCatalog) Count(_ context.Context, pool content.PoolKey) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inPool(pool)), nil
}

func (c *fakeCatalog) Unseen(_ context.Context, viewer string, pool content.PoolKey, count int, exclude []string) ([]content.Pack, error) {
	c.stateCalls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := c.views[stateKey(viewer, pool)]
	var out []content.Pack
	for _, p := range without(c.inPool(pool), exclude) {
		if !seen[p.ID] {
			out = append(out, p)
		}
	}
	return c.shuffled(out, count), nil
}

func (c *fakeCatalog) RecordViews(_ context.Context, viewer string, pool content.PoolKey, ids []string) error {
	c.stateCalls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	k := stateKey(viewer, pool)
	if c.views[k] == nil {
		c.views[k] = make(map[string]bool)
	}
	for _, id := range ids {
		c.views[k][id] = true
	}
	return nil
}

func (c *fakeCatalog) ResetViews(_ context.Context, viewer string, pool content.PoolKey) error {
	c.stateCalls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, stateKey(viewer, pool))
	return nil
}

func (c *fakeCatalog) GetMarker(_ context.Context, viewer string, pool content.PoolKey) (*Cursor, error) {
	c.stateCalls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.markers[stateKey(viewer, pool)]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (c *fakeCatalog) SetMarker(_ context.Context, viewer string, pool content.PoolKey, m Cursor) error {
	c.stateCalls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers[stateKey(viewer, pool)] = m
	return nil
}

func (c *fakeCatalog) RandomWithSeq(_ context.Context, pool content.PoolKey, count int, exclude []string, seen []uint32) ([]SeqPack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	skip := make(map[uint32]bool, len(seen))
	for _, seq := range seen {
		skip[seq] = true
	}
	var unseen []content.Pack
	for _, p := range without(c.inPool(pool), exclude) {
		if !skip[c.seqs[p.ID]] {
			unseen = append(unseen, p)
		}
	}
	picked := c.shuffled(unseen, count)
	out := make([]SeqPack, len(picked))
	for i, p := range picked {
		out[i] = SeqPack{Pack: p, Seq: c.seqs[p.ID]}
	}
	return out, nil
}

func (c *fakeCatalog) StreamIDs(ctx context.Context, pool content.PoolKey, fn func(id string) error) error {
	c.mu.Lock()
	packs := c.inPool(pool)
	c.mu.Unlock()
	for _, p := range packs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(p.ID); err != nil {
			return err
		}
	}
	return nil
}

func (c *fakeCatalog) Get(_ context.Context, ids []string) ([]content.Pack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byID := make(map[string]content.Pack, len(c.packs))
	for _, p := range c.packs {
		byID[p.ID] = p
	}
	out := make([]content.Pack, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
