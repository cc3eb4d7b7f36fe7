package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DurableStore is the disk tier: a SQLite table of entries with explicit
// expiry and a soft-delete validity flag. It survives process restarts; the
// sweeper reaps expired and invalidated rows in bulk.
type DurableStore struct {
	db *sql.DB
}

// NewDurableStore wraps an injected database handle. The handle's lifecycle
// belongs to the caller.
func NewDurableStore(db *sql.DB) *DurableStore {
	return &DurableStore{db: db}
}

// OpenDurable opens the SQLite file with the settings a single-process
// cache wants: WAL for concurrent readers and a busy timeout instead of
// immediate lock errors. Use ":memory:" for throwaway stores.
func OpenDurable(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("durable store: path required")
	}
	dsn := path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping durable store: %w", err)
	}
	return db, nil
}

const durableSchema = `
CREATE TABLE IF NOT EXISTS external_cache (
	cache_key     TEXT PRIMARY KEY,
	data_type     TEXT NOT NULL,
	source        TEXT NOT NULL,
	payload       BLOB NOT NULL,
	content_hash  TEXT NOT NULL,
	ttl_seconds   INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL,
	last_accessed INTEGER NOT NULL,
	access_count  INTEGER NOT NULL DEFAULT 0,
	is_valid      INTEGER NOT NULL DEFAULT 1,
	error_count   INTEGER NOT NULL DEFAULT 0,
	last_error    TEXT NOT NULL DEFAULT '',
	tier          TEXT NOT NULL,
	size_bytes    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_external_cache_expiry ON external_cache (expires_at, is_valid);
CREATE INDEX IF NOT EXISTS idx_external_cache_type ON external_cache (data_type);
`

// EnsureSchema creates the cache table and indexes if absent.
func (s *DurableStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, durableSchema); err != nil {
		return fmt.Errorf("ensure durable schema: %w", err)
	}
	return nil
}

// Upsert writes an entry row, replacing any previous row for the key.
func (s *DurableStore) Upsert(ctx context.Context, entry *Entry) error {
	const query = `
INSERT INTO external_cache (
	cache_key, data_type, source, payload, content_hash, ttl_seconds,
	created_at, expires_at, last_accessed, access_count, is_valid,
	error_count, last_error, tier, size_bytes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET
	data_type = excluded.data_type,
	source = excluded.source,
	payload = excluded.payload,
	content_hash = excluded.content_hash,
	ttl_seconds = excluded.ttl_seconds,
	created_at = excluded.created_at,
	expires_at = excluded.expires_at,
	last_accessed = excluded.last_accessed,
	access_count = excluded.access_count,
	is_valid = excluded.is_valid,
	error_count = excluded.error_count,
	last_error = excluded.last_error,
	tier = excluded.tier,
	size_bytes = excluded.size_bytes`

	_, err := s.db.ExecContext(ctx, query,
		entry.Key,
		entry.DataType.String(),
		entry.Source,
		[]byte(entry.Payload),
		entry.ContentHash,
		entry.TTLSeconds,
		toMillis(entry.CreatedAt),
		toMillis(entry.ExpiresAt),
		toMillis(entry.LastAccessed),
		entry.AccessCount,
		boolToInt(entry.Valid),
		entry.ErrorCount,
		entry.LastError,
		entry.SubscriptionTier.String(),
		entry.SizeBytes,
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// Get returns the live row for a key: valid and not past expiry as of now.
// Absent, expired, and invalidated rows all return ErrNotFound.
func (s *DurableStore) Get(ctx context.Context, key string, now time.Time) (*Entry, error) {
	const query = `
SELECT cache_key, data_type, source, payload, content_hash, ttl_seconds,
	created_at, expires_at, last_accessed, access_count, is_valid,
	error_count, last_error, tier, size_bytes
FROM external_cache
WHERE cache_key = ? AND is_valid = 1 AND expires_at >= ?`

	row := s.db.QueryRowContext(ctx, query, key, toMillis(now))

	var (
		entry                            Entry
		dataType, tier                   string
		payload                          []byte
		createdAt, expiresAt, lastAccess int64
		valid                            int
	)
	err := row.Scan(
		&entry.Key, &dataType, &entry.Source, &payload, &entry.ContentHash,
		&entry.TTLSeconds, &createdAt, &expiresAt, &lastAccess,
		&entry.AccessCount, &valid, &entry.ErrorCount, &entry.LastError,
		&tier, &entry.SizeBytes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cache entry: %w", err)
	}

	entry.DataType = DataType(dataType)
	entry.SubscriptionTier = Tier(tier)
	entry.Payload = json.RawMessage(payload)
	entry.CreatedAt = fromMillis(createdAt)
	entry.ExpiresAt = fromMillis(expiresAt)
	entry.LastAccessed = fromMillis(lastAccess)
	entry.Valid = valid != 0
	return &entry, nil
}

// TouchAccess records a read hit on a row.
func (s *DurableStore) TouchAccess(ctx context.Context, key string, now time.Time) error {
	const query = `
UPDATE external_cache
SET access_count = access_count + 1, last_accessed = ?
WHERE cache_key = ?`
	if _, err := s.db.ExecContext(ctx, query, toMillis(now), key); err != nil {
		return fmt.Errorf("touch cache entry: %w", err)
	}
	return nil
}

// Invalidate soft-deletes a row. The sweeper physically removes it later.
// Invalidating an absent key is a no-op.
func (s *DurableStore) Invalidate(ctx context.Context, key string) error {
	const query = `UPDATE external_cache SET is_valid = 0 WHERE cache_key = ?`
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("invalidate cache entry: %w", err)
	}
	return nil
}

// RecordError bumps a row's error bookkeeping. Best effort.
func (s *DurableStore) RecordError(ctx context.Context, key, msg string) error {
	const query = `
UPDATE external_cache
SET error_count = error_count + 1, last_error = ?
WHERE cache_key = ?`
	if _, err := s.db.ExecContext(ctx, query, msg, key); err != nil {
		return fmt.Errorf("record cache entry error: %w", err)
	}
	return nil
}

// DeleteExpired bulk-removes rows past expiry or soft-deleted.
func (s *DurableStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM external_cache WHERE expires_at < ? OR is_valid = 0`
	res, err := s.db.ExecContext(ctx, query, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count expired deletions: %w", err)
	}
	return n, nil
}

// DeleteDataType removes every row of one data type.
func (s *DurableStore) DeleteDataType(ctx context.Context, dataType DataType) (int64, error) {
	const query = `DELETE FROM external_cache WHERE data_type = ?`
	res, err := s.db.ExecContext(ctx, query, dataType.String())
	if err != nil {
		return 0, fmt.Errorf("delete %s cache entries: %w", dataType, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count %s deletions: %w", dataType, err)
	}
	return n, nil
}

// DeleteAll empties the table.
func (s *DurableStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM external_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear durable store: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count cleared rows: %w", err)
	}
	return n, nil
}

// CountLive returns the number of valid, unexpired rows.
func (s *DurableStore) CountLive(ctx context.Context, now time.Time) (int64, error) {
	const query = `SELECT COUNT(*) FROM external_cache WHERE is_valid = 1 AND expires_at >= ?`
	var n int64
	if err := s.db.QueryRowContext(ctx, query, toMillis(now)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count live cache entries: %w", err)
	}
	return n, nil
}

// isBusyErr reports whether the error is SQLite lock contention, which the
// sweeper treats as transient.
func isBusyErr(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
