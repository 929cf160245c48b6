// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ysk-pos/scanner/docstore"
	"github.com/ysk-pos/scanner/lib/clock"
	"github.com/ysk-pos/scanner/lib/codec"
	"github.com/ysk-pos/scanner/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	kind      TEXT NOT NULL,
	id        TEXT NOT NULL,
	digest    BLOB NOT NULL,
	body      BLOB NOT NULL,
	encoding  INTEGER NOT NULL DEFAULT 0,
	synced_at INTEGER NOT NULL,
	PRIMARY KEY (kind, id)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS refreshes (
	kind         TEXT PRIMARY KEY,
	refreshed_at INTEGER NOT NULL,
	count        INTEGER NOT NULL
);
`

// CacheConfig configures OpenCache. Path and Clock are required.
type CacheConfig struct {
	Path   string
	Clock  clock.Clock
	Logger *slog.Logger
}

// Cache is the local copy of the catalog.
type Cache struct {
	pool  *sqlitepool.Pool
	clock clock.Clock
}

// OpenCache opens (creating if needed) the cache database.
func OpenCache(config CacheConfig) (*Cache, error) {
	if config.Clock == nil {
		return nil, errors.New("catalog: cache Clock is required")
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   config.Path,
		Logger: config.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: opening cache: %w", err)
	}
	return &Cache{pool: pool, clock: config.Clock}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.pool.Close()
}

// ReplaceResult counts what a Replace did.
type ReplaceResult struct {
	Total     int
	Changed   int
	Unchanged int
	Removed   int
}

// Replace makes records the complete cached set for kind.
func (c *Cache) Replace(ctx context.Context, kind Kind, records []Record) (result ReplaceResult, err error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return result, fmt.Errorf("catalog: replace %s: %w", kind, err)
	}
	defer c.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return result, fmt.Errorf("catalog: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	existing := make(map[string][32]byte)
	err = sqlitex.Execute(conn, "SELECT id, digest FROM records WHERE kind = ?", &sqlitex.ExecOptions{
		Args: []any{string(kind)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var digest [32]byte
			stmt.ColumnBytes(1, digest[:])
			existing[stmt.ColumnText(0)] = digest
			return nil
		},
	})
	if err != nil {
		return result, fmt.Errorf("catalog: reading digests: %w", err)
	}

	now := c.clock.Now().UnixMilli()
	seen := make(map[string]bool, len(records))
	for _, record := range records {
		body, err := codec.Marshal(map[string]any(record.Fields))
		if err != nil {
			return result, fmt.Errorf("catalog: encoding %s/%s: %w", kind, record.ID, err)
		}
		digest := blake3.Sum256(body)
		seen[record.ID] = true
		result.Total++

		if previous, ok := existing[record.ID]; ok && previous == digest {
			result.Unchanged++
			continue
		}
		stored, encoding := compressBody(body)
		err = sqlitex.Execute(conn,
			`INSERT INTO records (kind, id, digest, body, encoding, synced_at) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (kind, id) DO UPDATE SET digest = excluded.digest, body = excluded.body,
			 encoding = excluded.encoding, synced_at = excluded.synced_at`,
			&sqlitex.ExecOptions{Args: []any{string(kind), record.ID, digest[:], stored, encoding, now}})
		if err != nil {
			return result, fmt.Errorf("catalog: writing %s/%s: %w", kind, record.ID, err)
		}
		result.Changed++
	}

	for id := range existing {
		if seen[id] {
			continue
		}
		err = sqlitex.Execute(conn, "DELETE FROM records WHERE kind = ? AND id = ?", &sqlitex.ExecOptions{
			Args: []any{string(kind), id},
		})
		if err != nil {
			return result, fmt.Errorf("catalog: removing %s/%s: %w", kind, id, err)
		}
		result.Removed++
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO refreshes (kind, refreshed_at, count) VALUES (?, ?, ?)
		 ON CONFLICT (kind) DO UPDATE SET refreshed_at = excluded.refreshed_at, count = excluded.count`,
		&sqlitex.ExecOptions{Args: []any{string(kind), now, result.Total}})
	if err != nil {
		return result, fmt.Errorf("catalog: recording refresh: %w", err)
	}
	return result, nil
}

// List returns the cached records of kind ordered by id.
func (c *Cache) List(ctx context.Context, kind Kind) ([]Record, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", kind, err)
	}
	defer c.pool.Put(conn)

	var records []Record
	err = sqlitex.Execute(conn, "SELECT id, body, encoding FROM records WHERE kind = ? ORDER BY id", &sqlitex.ExecOptions{
		Args: []any{string(kind)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stored := make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, stored)
			body, err := decompressBody(stored, stmt.ColumnInt(2))
			if err != nil {
				return fmt.Errorf("decoding %s: %w", stmt.ColumnText(0), err)
			}
			var fields map[string]any
			if err := codec.Unmarshal(body, &fields); err != nil {
				return fmt.Errorf("decoding %s: %w", stmt.ColumnText(0), err)
			}
			records = append(records, Record{ID: stmt.ColumnText(0), Fields: docstore.Fields(fields)})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", kind, err)
	}
	return records, nil
}

// FindBarcode returns the cached product with barcode.
func (c *Cache) FindBarcode(ctx context.Context, barcode string) (Record, bool, error) {
	products, err := c.List(ctx, Products)
	if err != nil {
		return Record{}, false, err
	}
	for _, product := range products {
		if product.Barcode() == barcode {
			return product, true, nil
		}
	}
	return Record{}, false, nil
}

// Refreshed reports when kind was last refreshed and how many records
// it had. The boolean is false if kind was never refreshed.
func (c *Cache) Refreshed(ctx context.Context, kind Kind) (time.Time, int, bool, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return time.Time{}, 0, false, fmt.Errorf("catalog: refreshed %s: %w", kind, err)
	}
	defer c.pool.Put(conn)

	var (
		at    time.Time
		count int
		found bool
	)
	err = sqlitex.Execute(conn, "SELECT refreshed_at, count FROM refreshes WHERE kind = ?", &sqlitex.ExecOptions{
		Args: []any{string(kind)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			at = time.UnixMilli(stmt.ColumnInt64(0))
			count = stmt.ColumnInt(1)
			found = true
			return nil
		},
	})
	if err != nil {
		return time.Time{}, 0, false, fmt.Errorf("catalog: refreshed %s: %w", kind, err)
	}
	return at, count, found, nil
}
