package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

type SQLite struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewSQLite(dbPath string, ttl time.Duration, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer. Background stores and lookups share a single
	// connection so they queue in the pool instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS search_results (
			query TEXT NOT NULL PRIMARY KEY,
			data TEXT NOT NULL,
			stored_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLite{db: db, ttl: ttl, logger: logger, now: time.Now}, nil
}

func (c *SQLite) Get(ctx context.Context, query string) (*Entry, bool) {
	key := NormalizeKey(query)

	var data string
	var storedAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT data, stored_at FROM search_results WHERE query = ?`,
		key,
	).Scan(&data, &storedAt)

	if err != nil {
		if err != sql.ErrNoRows {
			c.logger.Warn("cache: read failed", slog.String("query", key), slog.String("error", err.Error()))
		}
		return nil, false
	}

	if c.now().Sub(time.UnixMilli(storedAt)) >= c.ttl {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.Warn("cache: failed to unmarshal entry", slog.String("query", key), slog.String("error", err.Error()))
		return nil, false
	}

	return &entry, true
}

func (c *SQLite) Set(ctx context.Context, query string, entry Entry) error {
	key := NormalizeKey(query)
	entry.Query = key
	entry.StoredAt = c.now()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: marshal %q: %w", key, err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO search_results (query, data, stored_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(query)
		 DO UPDATE SET data = excluded.data, stored_at = excluded.stored_at`,
		key, string(data), entry.StoredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("cache: store %q: %w", key, err)
	}
	return nil
}

// Purge deletes expired rows.
func (c *SQLite) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM search_results WHERE stored_at <= ?`,
		c.now().Add(-c.ttl).UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("cache: purge: %w", err)
	}
	return res.RowsAffected()
}

func (c *SQLite) Close() error {
	return c.db.Close()
}

var _ Cache = (*SQLite)(nil)
