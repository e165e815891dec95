package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/jazzypop/content-engine/internal/content"
	"github.com/jazzypop/content-engine/internal/rebalance"
)

const itemsExpr = `COALESCE(data->'items', '[]'::jsonb)`

const (
	listUnderfullSQL = `
SELECT id::text,
       COALESCE(data->>'category', ''),
       COALESCE(data->>'mode', ''),
       jsonb_array_length(` + itemsExpr + `),
       COALESCE(ARRAY(SELECT i->>'id' FROM jsonb_array_elements(` + itemsExpr + `) AS i), '{}')
FROM content
WHERE type = $1
  AND is_active
  AND jsonb_array_length(` + itemsExpr + `) BETWEEN 1 AND $2 - 1
ORDER BY 2, 3, 1`

	listEmptySQL = `
SELECT id::text
FROM content
WHERE type = $1 AND is_active AND jsonb_array_length(` + itemsExpr + `) = 0
ORDER BY id`

	deleteEmptySQL = `
DELETE FROM content
WHERE id = ANY($1::text[]::uuid[]) AND jsonb_array_length(` + itemsExpr + `) = 0`

	groupLockSQL = `SELECT pg_try_advisory_xact_lock(hashtextextended($1, 0))`

	lockPacksSQL = `
SELECT ` + packColumns + `
FROM content
WHERE id = ANY($1::text[]::uuid[])
ORDER BY id
FOR UPDATE`

	insertPackSQL = `
INSERT INTO content (id, type, data, is_active, created_at, updated_at)
VALUES ($1::uuid, $2, $3, $4, $5, $5)`

	updatePackSQL = `
UPDATE content SET data = $2, updated_at = $3
WHERE id = $1::uuid`

	deletePacksSQL = `DELETE FROM content WHERE id = ANY($1::text[]::uuid[])`

	archiveOrphanSQL = `
INSERT INTO archived_orphans (item_id, source_pack_id, content_type, category, mode, reason, item, archived_at)
VALUES ($1, $2::uuid, $3, $4, $5, $6, $7, $8)
ON CONFLICT (item_id, source_pack_id) DO NOTHING`
)

// ContentRepository reads and rewrites packs in the content table.
type ContentRepository struct {
	db     DB
	logger zerolog.Logger
}

var _ rebalance.Store = (*ContentRepository)(nil)

func NewContentRepository(db DB, logger zerolog.Logger) *ContentRepository {
	return &ContentRepository{db: db, logger: logger.With().Str("component", "content_repo").Logger()}
}

// ListUnderfull returns active packs of contentType holding 1..targetSize-1 items.
func (r *ContentRepository) ListUnderfull(ctx context.Context, contentType string, targetSize int) ([]rebalance.PackSummary, error) {
	rows, err := r.db.Query(ctx, listUnderfullSQL, contentType, targetSize)
	if err != nil {
		return nil, storeErr("list underfull packs", err)
	}
	defer rows.Close()

	var out []rebalance.PackSummary
	for rows.Next() {
		s := rebalance.PackSummary{Key: content.GroupKey{Type: contentType}}
		if err := rows.Scan(&s.ID, &s.Key.Category, &s.Key.Mode, &s.ItemCount, &s.ItemIDs); err != nil {
			return nil, storeErr("scan underfull pack", err)
		}
		out = append(out, s)
	}
	return out, storeErr("list underfull packs", rows.Err())
}

func (r *ContentRepository) ListEmpty(ctx context.Context, contentType string) ([]string, error) {
	rows, err := r.db.Query(ctx, listEmptySQL, contentType)
	if err != nil {
		return nil, storeErr("list empty packs", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, storeErr("list empty packs", err)
}

func (r *ContentRepository) DeleteEmpty(ctx context.Context, ids []string) (int, error) {
	tag, err := r.db.Exec(ctx, deleteEmptySQL, ids)
	if err != nil {
		return 0, storeErr("delete empty packs", err)
	}
	return int(tag.RowsAffected()), nil
}

// WithGroupTx opens a transaction, claims the group with a transaction-scoped
// advisory lock and runs fn. The claim is released on commit or rollback.
func (r *ContentRepository) WithGroupTx(ctx context.Context, key content.GroupKey, fn func(ctx context.Context, tx rebalance.GroupTx) error) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return storeErr("begin group tx", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				r.logger.Warn().Err(rbErr).Str("group", key.String()).Msg("rollback failed")
			}
		}
	}()

	var claimed bool
	if err = tx.QueryRow(ctx, groupLockSQL, "rebalance:"+key.String()).Scan(&claimed); err != nil {
		return storeErr("claim group", err)
	}
	if !claimed {
		return rebalance.ErrGroupLocked
	}

	if err = fn(ctx, &groupTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return storeErr("commit group tx", err)
	}
	return nil
}

// groupTx implements rebalance.GroupTx on a pgx transaction.
type groupTx struct {
	tx pgx.Tx
}

func (t *groupTx) LockPacks(ctx context.Context, ids []string) ([]content.Pack, error) {
	rows, err := t.tx.Query(ctx, lockPacksSQL, ids)
	if err != nil {
		return nil, storeErr("lock packs", err)
	}
	packs, err := collectPacks(rows)
	return packs, storeErr("lock packs", err)
}

func (t *groupTx) CreatePack(ctx context.Context, p content.Pack) error {
	data, err := encodeData(p)
	if err != nil {
		return fmt.Errorf("encode pack %s: %w", p.ID, err)
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = nowUTC()
	}
	_, err = t.tx.Exec(ctx, insertPackSQL, p.ID, p.Type, data, true, created)
	return storeErr("insert pack", err)
}

func (t *groupTx) UpdatePack(ctx context.Context, p content.Pack) error {
	data, err := encodeData(p)
	if err != nil {
		return fmt.Errorf("encode pack %s: %w", p.ID, err)
	}
	tag, err := t.tx.Exec(ctx, updatePackSQL, p.ID, data, nowUTC())
	if err != nil {
		return storeErr("update pack", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update pack %s: %w", p.ID, pgx.ErrNoRows)
	}
	return nil
}

func (t *groupTx) DeletePacks(ctx context.Context, ids []string) (int, error) {
	tag, err := t.tx.Exec(ctx, deletePacksSQL, ids)
	if err != nil {
		return 0, storeErr("delete packs", err)
	}
	return int(tag.RowsAffected()), nil
}

// ArchiveOrphan writes inside a savepoint so a failed insert leaves the outer
// transaction usable.
func (t *groupTx) ArchiveOrphan(ctx context.Context, o rebalance.Orphan) error {
	item, err := json.Marshal(o.Item)
	if err != nil {
		return fmt.Errorf("encode orphan %s: %w", o.Item.ID, err)
	}
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return storeErr("savepoint", err)
	}
	_, err = sp.Exec(ctx, archiveOrphanSQL,
		o.Item.ID, o.SourcePackID, o.Key.Type, o.Key.Category, o.Key.Mode, o.Reason, item, nowUTC())
	if err != nil {
		_ = sp.Rollback(ctx)
		return storeErr("archive orphan", err)
	}
	return storeErr("release savepoint", sp.Commit(ctx))
}
