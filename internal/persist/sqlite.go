package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	canonical  TEXT PRIMARY KEY,
	category   TEXT NOT NULL,
	scope      TEXT NOT NULL,
	entity     TEXT NOT NULL,
	params     TEXT NOT NULL,
	payload    BLOB NOT NULL,
	compressed INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	ttl_ns     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_category ON cache_entries (category);
`

// SQLiteBackend persists cache entries in a local SQLite file.
type SQLiteBackend struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (or creates) the backing database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err = sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteBackend{sqlDB: sqlDB}, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, canonical string, rec Record) error {
	const q = `
INSERT INTO cache_entries (canonical, category, scope, entity, params, payload, compressed, created_at, ttl_ns)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (canonical) DO UPDATE SET
	payload = excluded.payload,
	compressed = excluded.compressed,
	created_at = excluded.created_at,
	ttl_ns = excluded.ttl_ns`
	compressed := 0
	if rec.Compressed {
		compressed = 1
	}
	_, err := b.sqlDB.ExecContext(ctx, q,
		canonical, rec.Category, rec.Scope, rec.Entity, rec.Params,
		rec.Payload, compressed, rec.CreatedAt.UnixNano(), int64(rec.TTL))
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Get(ctx context.Context, canonical string) (Record, error) {
	const q = `
SELECT category, scope, entity, params, payload, compressed, created_at, ttl_ns
FROM cache_entries WHERE canonical = ?`
	var (
		rec        Record
		compressed int
		createdAt  int64
		ttl        int64
	)
	err := b.sqlDB.QueryRowContext(ctx, q, canonical).Scan(
		&rec.Category, &rec.Scope, &rec.Entity, &rec.Params,
		&rec.Payload, &compressed, &createdAt, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	rec.Compressed = compressed != 0
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.TTL = time.Duration(ttl)
	return rec, nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, canonical string) error {
	if _, err := b.sqlDB.ExecContext(ctx, `DELETE FROM cache_entries WHERE canonical = ?`, canonical); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Restore(ctx context.Context, fn func(canonical string, rec Record) bool) error {
	const q = `
SELECT canonical, category, scope, entity, params, payload, compressed, created_at, ttl_ns
FROM cache_entries`
	rows, err := b.sqlDB.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("restore query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			canonical  string
			rec        Record
			compressed int
			createdAt  int64
			ttl        int64
		)
		if err = rows.Scan(&canonical, &rec.Category, &rec.Scope, &rec.Entity, &rec.Params,
			&rec.Payload, &compressed, &createdAt, &ttl); err != nil {
			return fmt.Errorf("restore scan: %w", err)
		}
		rec.Compressed = compressed != 0
		rec.CreatedAt = time.Unix(0, createdAt)
		rec.TTL = time.Duration(ttl)
		if !fn(canonical, rec) {
			break
		}
	}
	return rows.Err()
}

func (b *SQLiteBackend) Close() error {
	if b == nil || b.sqlDB == nil {
		return nil
	}
	return b.sqlDB.Close()
}
