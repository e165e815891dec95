package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/jazzypop/content-engine/internal/content"
	"github.com/jazzypop/content-engine/internal/dedup"
)

const (
	unseenSQL = `
SELECT ` + packColumns + `
FROM content c
WHERE ` + poolFilter + `
  AND NOT (c.id::text = ANY($3::text[]))
  AND NOT EXISTS (
    SELECT 1 FROM content_views v
    WHERE v.viewer = $4 AND v.content_type = $1 AND v.category = $2 AND v.content_id = c.id
  )
ORDER BY random()
LIMIT $5`

	recordViewsSQL = `
INSERT INTO content_views (viewer, content_type, category, content_id, viewed_at)
SELECT $1, $2, $3, unnest($4::text[]::uuid[]), now()
ON CONFLICT (viewer, content_type, category, content_id) DO UPDATE SET viewed_at = EXCLUDED.viewed_at`

	resetViewsSQL = `DELETE FROM content_views WHERE viewer = $1 AND content_type = $2 AND category = $3`

	getMarkerSQL = `
SELECT last_id::text, last_created_at
FROM content_markers
WHERE viewer = $1 AND content_type = $2 AND category = $3`

	setMarkerSQL = `
INSERT INTO content_markers (viewer, content_type, category, last_id, last_created_at, updated_at)
VALUES ($1, $2, $3, $4::uuid, $5, now())
ON CONFLICT (viewer, content_type, category)
DO UPDATE SET last_id = EXCLUDED.last_id, last_created_at = EXCLUDED.last_created_at, updated_at = now()`

	// picked rows missing a sequence id get one in the same statement; the
	// outer select cannot see the insert, so it reads it from RETURNING. A seq
	// committed concurrently after the snapshot is in neither and comes back NULL.
	randomWithSeqSQL = `
WITH picked AS (
  SELECT c.id, c.type, c.data, c.is_active, c.created_at, c.updated_at
  FROM content c
  WHERE ` + poolFilter + `
    AND NOT (c.id::text = ANY($3::text[]))
    AND NOT EXISTS (
      SELECT 1 FROM content_seq s
      WHERE s.content_id = c.id AND s.seq = ANY($5::bigint[])
    )
  ORDER BY random()
  LIMIT $4
), assigned AS (
  INSERT INTO content_seq (content_id)
  SELECT id FROM picked
  ON CONFLICT (content_id) DO NOTHING
  RETURNING content_id, seq
)
SELECT p.id::text, p.type, p.data, p.is_active, p.created_at, p.updated_at, COALESCE(s.seq, a.seq)
FROM picked p
LEFT JOIN content_seq s ON s.content_id = p.id
LEFT JOIN assigned a ON a.content_id = p.id`

	lookupSeqSQL = `
SELECT content_id::text, seq
FROM content_seq
WHERE content_id = ANY($1::text[]::uuid[])`
)

// ViewRepository is the content_views exclusion list.
type ViewRepository struct {
	db DBTX
}

var _ dedup.ViewLog = (*ViewRepository)(nil)

func NewViewRepository(db DBTX) *ViewRepository {
	return &ViewRepository{db: db}
}

func (r *ViewRepository) Unseen(ctx context.Context, viewer string, pool content.PoolKey, count int, exclude []string) ([]content.Pack, error) {
	rows, err := r.db.Query(ctx, unseenSQL, pool.Type, pool.Category, excludeIDs(exclude), viewer, count)
	if err != nil {
		return nil, storeErr("unseen packs", err)
	}
	packs, err := collectPacks(rows)
	return packs, storeErr("unseen packs", err)
}

func (r *ViewRepository) RecordViews(ctx context.Context, viewer string, pool content.PoolKey, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, recordViewsSQL, viewer, pool.Type, pool.Category, ids)
	return storeErr("record views", err)
}

func (r *ViewRepository) ResetViews(ctx context.Context, viewer string, pool content.PoolKey) error {
	_, err := r.db.Exec(ctx, resetViewsSQL, viewer, pool.Type, pool.Category)
	return storeErr("reset views", err)
}

// MarkerRepository stores the smart marker per viewer and pool.
type MarkerRepository struct {
	db DBTX
}

var _ dedup.MarkerStore = (*MarkerRepository)(nil)

func NewMarkerRepository(db DBTX) *MarkerRepository {
	return &MarkerRepository{db: db}
}

func (r *MarkerRepository) GetMarker(ctx context.Context, viewer string, pool content.PoolKey) (*dedup.Cursor, error) {
	var c dedup.Cursor
	err := r.db.QueryRow(ctx, getMarkerSQL, viewer, pool.Type, pool.Category).Scan(&c.ID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get marker", err)
	}
	return &c, nil
}

// SetMarker overwrites the marker. Concurrent requests by one viewer race and
// the last write wins.
func (r *MarkerRepository) SetMarker(ctx context.Context, viewer string, pool content.PoolKey, c dedup.Cursor) error {
	_, err := r.db.Exec(ctx, setMarkerSQL, viewer, pool.Type, pool.Category, c.ID, c.CreatedAt)
	return storeErr("set marker", err)
}

// SeqRepository maps pack ids to the dense integers used by bitmaps.
type SeqRepository struct {
	db DBTX
}

var _ dedup.SeqSource = (*SeqRepository)(nil)

func NewSeqRepository(db DBTX) *SeqRepository {
	return &SeqRepository{db: db}
}

func (r *SeqRepository) RandomWithSeq(ctx context.Context, pool content.PoolKey, count int, exclude []string, seen []uint32) ([]dedup.SeqPack, error) {
	seenSeqs := make([]int64, len(seen))
	for i, seq := range seen {
		seenSeqs[i] = int64(seq)
	}
	rows, err := r.db.Query(ctx, randomWithSeqSQL, pool.Type, pool.Category, excludeIDs(exclude), count, seenSeqs)
	if err != nil {
		return nil, storeErr("random packs with seq", err)
	}
	defer rows.Close()

	var (
		out     []dedup.SeqPack
		pending []string
	)
	for rows.Next() {
		var seq *int64
		p, err := scanPack(seqRow{row: rows, seq: &seq})
		if err != nil {
			return nil, storeErr("scan pack with seq", err)
		}
		sp := dedup.SeqPack{Pack: p}
		if seq == nil {
			pending = append(pending, p.ID)
		} else {
			sp.Seq = uint32(*seq)
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("random packs with seq", err)
	}
	if len(pending) == 0 {
		return out, nil
	}
	return r.resolvePending(ctx, out, pending)
}

// resolvePending fills seqs another writer assigned while the candidate query
// ran. The lookup runs in a fresh snapshot, so the committed rows are visible.
// Packs still without a seq are dropped from this call.
func (r *SeqRepository) resolvePending(ctx context.Context, out []dedup.SeqPack, pending []string) ([]dedup.SeqPack, error) {
	rows, err := r.db.Query(ctx, lookupSeqSQL, pending)
	if err != nil {
		return nil, storeErr("lookup seq", err)
	}
	found := make(map[string]uint32, len(pending))
	var (
		id  string
		seq int64
	)
	_, err = pgx.ForEachRow(rows, []any{&id, &seq}, func() error {
		found[id] = uint32(seq)
		return nil
	})
	if err != nil {
		return nil, storeErr("lookup seq", err)
	}

	isPending := make(map[string]bool, len(pending))
	for _, id := range pending {
		isPending[id] = true
	}
	kept := out[:0]
	for _, sp := range out {
		if isPending[sp.Pack.ID] {
			seq, ok := found[sp.Pack.ID]
			if !ok {
				continue
			}
			sp.Seq = seq
		}
		kept = append(kept, sp)
	}
	return kept, nil
}

// seqRow appends the seq column to the pack columns read by scanPack.
type seqRow struct {
	row pgx.Row
	seq **int64
}

func (s seqRow) Scan(dest ...any) error {
	return s.row.Scan(append(dest, s.seq)...)
}
