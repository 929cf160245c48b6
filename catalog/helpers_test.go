// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ysk-pos/scanner/docstore"
	"github.com/ysk-pos/scanner/lib/clock"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestCache(t *testing.T, c clock.Clock) *Cache {
	t.Helper()
	cache, err := OpenCache(CacheConfig{
		Path:   filepath.Join(t.TempDir(), "catalog.db"),
		Clock:  c,
		Logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func product(id, name, barcode string, price float64) Record {
	return Record{ID: id, Fields: docstore.Fields{"name": name, "barcode": barcode, "price": price}}
}

func seed(t *testing.T, store *docstore.Memory, collection string, records ...Record) {
	t.Helper()
	for _, record := range records {
		if err := store.Set(context.Background(), docstore.Ref{Collection: collection, ID: record.ID}, record.Fields); err != nil {
			t.Fatalf("seeding %s/%s: %v", collection, record.ID, err)
		}
	}
}

// failingQueries fails every Query while err is set.
type failingQueries struct {
	docstore.Gateway
	err error
}

func (g *failingQueries) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.Gateway.Query(ctx, q)
}
