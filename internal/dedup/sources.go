package dedup

import (
	"context"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/jazzypop/content-engine/internal/content"
)

// Cursor is a position in the stable (created_at, id) order of a pool.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the cursor pointing at p.
func CursorOf(p content.Pack) Cursor {
	return Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

// RandomSource draws unordered random packs from a pool.
type RandomSource interface {
	Random(ctx context.Context, pool content.PoolKey, count int, exclude []string) ([]content.Pack, error)
}

// OrderedSource reads a pool in a stable total order.
type OrderedSource interface {
	// After returns up to count packs strictly after the cursor in (created_at, id)
	// order. A nil cursor starts at the beginning.
	After(ctx context.Context, pool content.PoolKey, after *Cursor, count int, exclude []string) ([]content.Pack, error)
	// Slice returns count packs starting at offset. An empty seed orders by
	// (created_at, id); otherwise by a hash of id and seed.
	Slice(ctx context.Context, pool content.PoolKey, seed string, offset, count int) ([]content.Pack, error)
	Count(ctx context.Context, pool content.PoolKey) (int, error)
}

// ViewLog is the per-viewer exclusion list.
type ViewLog interface {
	Unseen(ctx context.Context, viewer string, pool content.PoolKey, count int, exclude []string) ([]content.Pack, error)
	RecordViews(ctx context.Context, viewer string, pool content.PoolKey, ids []string) error
	ResetViews(ctx context.Context, viewer string, pool content.PoolKey) error
}

// MarkerStore keeps the last served cursor per viewer and pool.
type MarkerStore interface {
	// GetMarker returns nil when the viewer has no marker yet.
	GetMarker(ctx context.Context, viewer string, pool content.PoolKey) (*Cursor, error)
	SetMarker(ctx context.Context, viewer string, pool content.PoolKey, c Cursor) error
}

// SeqPack is a pack with its dense integer id.
type SeqPack struct {
	Pack content.Pack
	Seq  uint32
}

// SeqSource draws random packs together with their dense integer ids. Packs
// whose id is in exclude or whose seq is in seen are skipped; packs without a
// seq yet are never seen.
type SeqSource interface {
	RandomWithSeq(ctx context.Context, pool content.PoolKey, count int, exclude []string, seen []uint32) ([]SeqPack, error)
}

// Streamer walks every pack id of a pool in (created_at, id) order.
type Streamer interface {
	StreamIDs(ctx context.Context, pool content.PoolKey, fn func(id string) error) error
	// Get hydrates packs in the order of ids, skipping ids that no longer exist.
	Get(ctx context.Context, ids []string) ([]content.Pack, error)
}

// Catalog is everything the strategies read from the content store.
type Catalog interface {
	RandomSource
	OrderedSource
	ViewLog
	MarkerStore
	SeqSource
	Streamer
}

// SeenStore keeps a compressed list of served ids.
type SeenStore interface {
	LoadSeen(ctx context.Context, viewer string, pool content.PoolKey) ([]string, error)
	SaveSeen(ctx context.Context, viewer string, pool content.PoolKey, ids []string) error
}

// BitmapStore keeps a roaring bitmap of served sequence ids.
type BitmapStore interface {
	LoadBitmap(ctx context.Context, viewer string, pool content.PoolKey) (*roaring.Bitmap, error)
	SaveBitmap(ctx context.Context, viewer string, pool content.PoolKey, bm *roaring.Bitmap) error
}

// PositionStore keeps a rolling position and the reshuffle epoch it belongs to.
type PositionStore interface {
	LoadPosition(ctx context.Context, viewer string, pool content.PoolKey) (pos int, epoch int64, err error)
	SavePosition(ctx context.Context, viewer string, pool content.PoolKey, pos int, epoch int64) error
}
