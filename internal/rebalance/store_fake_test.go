package rebalance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jazzypop/content-engine/internal/content"
)

var errInjected = errors.New("injected failure")

// fakeStore keeps packs in memory and applies a group transaction only on commit.
type fakeStore struct {
	mu       sync.Mutex
	packs    map[string]content.Pack
	archived []Orphan

	locked        map[string]bool
	failOn        map[string]string // group key -> stage
	failArchive   map[string]bool   // item id
	unavailableAt int               // commits before the store goes away, 0 = never
	commits       int
	listErr       error
}

func newFakeStore(packs ...content.Pack) *fakeStore {
	s := &fakeStore{
		packs:       make(map[string]content.Pack),
		locked:      make(map[string]bool),
		failOn:      make(map[string]string),
		failArchive: make(map[string]bool),
	}
	for _, p := range packs {
		s.packs[p.ID] = p
	}
	return s
}

func (s *fakeStore) sortedPacks() []content.Pack {
	out := make([]content.Pack, 0, len(s.packs))
	for _, p := range s.packs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) ListUnderfull(_ context.Context, contentType string, targetSize int) ([]PackSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []PackSummary
	for _, p := range s.sortedPacks() {
		n := len(p.Items)
		if p.Type != contentType || !p.IsActive || n == 0 || n >= targetSize {
			continue
		}
		out = append(out, PackSummary{ID: p.ID, Key: p.Group(), ItemCount: n, ItemIDs: content.ItemIDs(p.Items)})
	}
	return out, nil
}

func (s *fakeStore) ListEmpty(_ context.Context, contentType string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.sortedPacks() {
		if p.Type == contentType && p.IsActive && len(p.Items) == 0 {
			out = append(out, p.ID)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteEmpty(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if p, ok := s.packs[id]; ok && len(p.Items) == 0 {
			delete(s.packs, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) WithGroupTx(ctx context.Context, key content.GroupKey, fn func(ctx context.Context, tx GroupTx) error) error {
	s.mu.Lock()
	if s.unavailableAt > 0 && s.commits >= s.unavailableAt {
		s.mu.Unlock()
		return fmt.Errorf("%w: connection refused", content.ErrStoreUnavailable)
	}
	if s.locked[key.String()] {
		s.mu.Unlock()
		return ErrGroupLocked
	}
	tx := &fakeTx{store: s, key: key, stage: s.failOn[key.String()]}
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range tx.created {
		s.packs[p.ID] = p
	}
	for _, p := range tx.updated {
		s.packs[p.ID] = p
	}
	for _, id := range tx.deleted {
		delete(s.packs, id)
	}
	s.archived = append(s.archived, tx.archived...)
	s.commits++
	return nil
}

type fakeTx struct {
	store *fakeStore
	key   content.GroupKey
	stage string

	created  []content.Pack
	updated  []content.Pack
	deleted  []string
	archived []Orphan
}

func (t *fakeTx) LockPacks(_ context.Context, ids []string) ([]content.Pack, error) {
	if t.stage == "lock" {
		return nil, errInjected
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []content.Pack
	for _, id := range ids {
		if p, ok := t.store.packs[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *fakeTx) CreatePack(_ context.Context, p content.Pack) error {
	if t.stage == "create" {
		return errInjected
	}
	t.created = append(t.created, p)
	return nil
}

func (t *fakeTx) UpdatePack(_ context.Context, p content.Pack) error {
	if t.stage == "update" {
		return errInjected
	}
	t.updated = append(t.updated, p)
	return nil
}

func (t *fakeTx) DeletePacks(_ context.Context, ids []string) (int, error) {
	if t.stage == "delete" {
		return 0, errInjected
	}
	t.deleted = append(t.deleted, ids...)
	return len(ids), nil
}

func (t *fakeTx) ArchiveOrphan(_ context.Context, o Orphan) error {
	t.store.mu.Lock()
	fail := t.store.failArchive[o.Item.ID]
	t.store.mu.Unlock()
	if fail {
		return errInjected
	}
	t.archived = append(t.archived, o)
	return nil
}

func makePack(id string, key content.GroupKey, n int) content.Pack {
	items := make([]content.Item, n)
	for i := range items {
		items[i] = content.Item{
			ID:       fmt.Sprintf("%s-i%d", id, i),
			Position: i,
			Question: fmt.Sprintf("Question %s #%d?", id, i),
			Answers:  []content.Answer{{Text: fmt.Sprintf("answer %s %d", id, i), Correct: true}, {Text: "wrong"}},
		}
	}
	return content.Pack{ID: id, Type: key.Type, Category: key.Category, Mode: key.Mode, Items: items, IsActive: true}
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

func itemIDsOf(packs []content.Pack) []string {
	var ids []string
	for _, p := range packs {
		ids = append(ids, content.ItemIDs(p.Items)...)
	}
	return ids
}

func orphanIDs(orphans []Orphan) []string {
	ids := make([]string, len(orphans))
	for i, o := range orphans {
		ids[i] = o.Item.ID
	}
	return ids
}
