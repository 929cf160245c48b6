// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("Open accepted an empty path")
	}
}

func TestPoolAppliesPragmasAndSchema(t *testing.T) {
	pool, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "cache.db"),
		PoolSize: 2,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteTransient(conn, "CREATE TABLE IF NOT EXISTS pool_check (value TEXT)", nil)
		},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	var journalMode string
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			journalMode = stmt.ColumnText(0)
			return nil
		},
	}); err != nil {
		t.Fatalf("reading journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	if err := sqlitex.ExecuteTransient(conn, "INSERT INTO pool_check (value) VALUES ('ok')", nil); err != nil {
		t.Fatalf("schema from OnConnect missing: %v", err)
	}
}
