// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package store keeps content references, work orders and archived
// deliveries in a local SQLite database.
//
// A service uses the store instead of the data API for references and
// work orders when store.path is configured. Claims run the ownership
// rule and the write in one IMMEDIATE transaction, so two workers on
// the same database cannot both claim an item.
package store

import (
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/mmia-foundation/mmia/lib/blob"
	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/sqlitepool"
)

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the SQLite database file. The parent directory must
	// exist.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	// Compression applied to archived deliveries.
	Compression blob.Tag

	Clock  clock.Clock
	Logger *slog.Logger
}

// Store is the local SQLite store. Safe for concurrent use.
type Store struct {
	pool        *sqlitepool.Pool
	clock       clock.Clock
	logger      *slog.Logger
	compression blob.Tag
}

const schemaScript = `
CREATE TABLE IF NOT EXISTS content_references (
	source       TEXT NOT NULL,
	uid          TEXT NOT NULL,
	topic        TEXT NOT NULL DEFAULT '',
	broker_partition INTEGER NOT NULL DEFAULT 0,
	broker_offset    INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL,
	published_on INTEGER,
	updated_on   INTEGER,
	version      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (source, uid)
);

CREATE TABLE IF NOT EXISTS work_orders (
	id           INTEGER PRIMARY KEY,
	work_type    TEXT NOT NULL,
	status       TEXT NOT NULL,
	content_id   INTEGER,
	requestor_id INTEGER,
	description  TEXT NOT NULL DEFAULT '',
	note         TEXT NOT NULL DEFAULT '',
	updated_on   INTEGER,
	version      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS deliveries (
	tag         TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	record_id   INTEGER NOT NULL,
	sent_at     INTEGER NOT NULL,
	compression TEXT NOT NULL,
	payload     BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS deliveries_record ON deliveries (kind, record_id, sent_at);
`

// Open opens or creates the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("store: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schemaScript, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{
		pool:        pool,
		clock:       cfg.Clock,
		logger:      logger,
		compression: cfg.Compression,
	}, nil
}

// Close waits for borrowed connections and closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

// ConflictError reports an update against a stale version.
type ConflictError struct {
	Table   string
	Key     string
	Version int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: %s %s changed since version %d", e.Table, e.Key, e.Version)
}

// Times are stored as Unix nanoseconds in UTC; NULL means unset.

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixNano()
}

func columnTime(stmt *sqlite.Stmt, col int) *time.Time {
	if stmt.ColumnType(col) == sqlite.TypeNull {
		return nil
	}
	t := time.Unix(0, stmt.ColumnInt64(col)).UTC()
	return &t
}

func int64Arg(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func columnInt64Ptr(stmt *sqlite.Stmt, col int) *int64 {
	if stmt.ColumnType(col) == sqlite.TypeNull {
		return nil
	}
	v := stmt.ColumnInt64(col)
	return &v
}
