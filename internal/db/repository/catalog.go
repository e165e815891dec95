package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/jazzypop/content-engine/internal/content"
	"github.com/jazzypop/content-engine/internal/dedup"
)

// poolFilter selects active packs of type $1, narrowed to category $2 unless empty.
const poolFilter = `type = $1 AND is_active AND ($2 = '' OR data->>'category' = $2)`

const (
	randomSQL = `
SELECT ` + packColumns + `
FROM content
WHERE ` + poolFilter + ` AND NOT (id::text = ANY($3::text[]))
ORDER BY random()
LIMIT $4`

	afterSQL = `
SELECT ` + packColumns + `
FROM content
WHERE ` + poolFilter + `
  AND NOT (id::text = ANY($3::text[]))
  AND ($4::timestamptz IS NULL OR (created_at, id) > ($4::timestamptz, $5::uuid))
ORDER BY created_at, id
LIMIT $6`

	sliceSQL = `
SELECT ` + packColumns + `
FROM content
WHERE ` + poolFilter + `
ORDER BY CASE WHEN $3 = '' THEN '' ELSE md5(id::text || $3) END, created_at, id
OFFSET $4
LIMIT $5`

	countSQL = `SELECT count(*) FROM content WHERE ` + poolFilter

	streamIDsSQL = `SELECT id::text FROM content WHERE ` + poolFilter + ` ORDER BY created_at, id`

	getPacksSQL = `
SELECT ` + packColumns + `
FROM content
WHERE id = ANY($1::text[]::uuid[]) AND is_active`
)

// Catalog combines the repositories behind dedup.Catalog.
type Catalog struct {
	*ContentRepository
	*ViewRepository
	*MarkerRepository
	*SeqRepository
}

var _ dedup.Catalog = (*Catalog)(nil)

func NewCatalog(db DB, logger zerolog.Logger) *Catalog {
	return &Catalog{
		ContentRepository: NewContentRepository(db, logger),
		ViewRepository:    NewViewRepository(db),
		MarkerRepository:  NewMarkerRepository(db),
		SeqRepository:     NewSeqRepository(db),
	}
}

func (r *ContentRepository) Random(ctx context.Context, pool content.PoolKey, count int, exclude []string) ([]content.Pack, error) {
	rows, err := r.db.Query(ctx, randomSQL, pool.Type, pool.Category, excludeIDs(exclude), count)
	if err != nil {
		return nil, storeErr("random packs", err)
	}
	packs, err := collectPacks(rows)
	return packs, storeErr("random packs", err)
}

func (r *ContentRepository) After(ctx context.Context, pool content.PoolKey, after *dedup.Cursor, count int, exclude []string) ([]content.Pack, error) {
	var (
		createdAt *time.Time
		id        *string
	)
	if after != nil {
		createdAt, id = &after.CreatedAt, &after.ID
	}
	rows, err := r.db.Query(ctx, afterSQL, pool.Type, pool.Category, excludeIDs(exclude), createdAt, id, count)
	if err != nil {
		return nil, storeErr("packs after cursor", err)
	}
	packs, err := collectPacks(rows)
	return packs, storeErr("packs after cursor", err)
}

func (r *ContentRepository) Slice(ctx context.Context, pool content.PoolKey, seed string, offset, count int) ([]content.Pack, error) {
	rows, err := r.db.Query(ctx, sliceSQL, pool.Type, pool.Category, seed, offset, count)
	if err != nil {
		return nil, storeErr("slice packs", err)
	}
	packs, err := collectPacks(rows)
	return packs, storeErr("slice packs", err)
}

func (r *ContentRepository) Count(ctx context.Context, pool content.PoolKey) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, countSQL, pool.Type, pool.Category).Scan(&n); err != nil {
		return 0, storeErr("count packs", err)
	}
	return n, nil
}

// StreamIDs walks the pool without loading it into memory.
func (r *ContentRepository) StreamIDs(ctx context.Context, pool content.PoolKey, fn func(id string) error) error {
	rows, err := r.db.Query(ctx, streamIDsSQL, pool.Type, pool.Category)
	if err != nil {
		return storeErr("stream pack ids", err)
	}
	defer rows.Close()
	var id string
	_, err = pgx.ForEachRow(rows, []any{&id}, func() error {
		return fn(id)
	})
	return storeErr("stream pack ids", err)
}

func (r *ContentRepository) Get(ctx context.Context, ids []string) ([]content.Pack, error) {
	if len(ids) == 0 {
		return []content.Pack{}, nil
	}
	rows, err := r.db.Query(ctx, getPacksSQL, ids)
	if err != nil {
		return nil, storeErr("get packs", err)
	}
	packs, err := collectPacks(rows)
	if err != nil {
		return nil, storeErr("get packs", err)
	}
	return orderByIDs(packs, ids), nil
}

func orderByIDs(packs []content.Pack, ids []string) []content.Pack {
	byID := make(map[string]content.Pack, len(packs))
	for _, p := range packs {
		byID[p.ID] = p
	}
	out := make([]content.Pack, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}
