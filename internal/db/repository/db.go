package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jazzypop/content-engine/internal/content"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a DBTX that can open transactions.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// storeErr marks connectivity failures with content.ErrStoreUnavailable so
// callers can tell a lost database from a bad statement.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %v", op, content.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08 connection exception, 57P0x operator intervention
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "closed pool") || errors.Is(err, net.ErrClosed)
}

const packColumns = `id::text, type, data, is_active, created_at, updated_at`

func scanPack(row pgx.Row) (content.Pack, error) {
	var (
		p   content.Pack
		raw []byte
	)
	if err := row.Scan(&p.ID, &p.Type, &raw, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return content.Pack{}, err
	}
	var data content.Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return content.Pack{}, fmt.Errorf("decode pack %s: %w", p.ID, err)
	}
	p.Category = data.Category
	p.Mode = data.Mode
	p.Items = data.Items
	p.Metadata = data.Metadata
	return p, nil
}

func collectPacks(rows pgx.Rows) ([]content.Pack, error) {
	defer rows.Close()
	var out []content.Pack
	for rows.Next() {
		p, err := scanPack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func encodeData(p content.Pack) ([]byte, error) {
	return json.Marshal(content.DataOf(p))
}

// nowUTC truncates to microseconds, the precision of timestamptz.
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// excludeIDs never returns nil so `<> ALL($n)` binds an empty array.
func excludeIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
