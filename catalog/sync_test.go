// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ysk-pos/scanner/docstore"
	"github.com/ysk-pos/scanner/lib/clock"
	"github.com/ysk-pos/scanner/lib/notify"
	"github.com/ysk-pos/scanner/lib/settings"
	"github.com/ysk-pos/scanner/lib/testutil"
)

func newTestSyncer(t *testing.T, gateway docstore.Gateway, c clock.Clock, notifier notify.Notifier) (*Syncer, *Cache) {
	t.Helper()
	cache := openTestCache(t, c)
	syncer, err := NewSyncer(SyncConfig{
		Gateway:  gateway,
		Cache:    cache,
		Notifier: notifier,
		Clock:    c,
		Logger:   discardLogger(),
		Prefix:   "shop1",
		Locale:   "en",
	})
	if err != nil {
		t.Fatalf("NewSyncer: %v", err)
	}
	return syncer, cache
}

func TestRefreshReadsPrefixedCollection(t *testing.T) {
	fake := clock.Fake(epoch)
	store := docstore.NewMemory(fake)
	seed(t, store, "shop1_products", product("p1", "Rice 5kg", "6221000000017", 120.5))
	seed(t, store, "shop2_products", product("other", "Not ours", "1", 1))
	notices := &notify.Recorder{}
	syncer, cache := newTestSyncer(t, store, fake, notices)

	result, err := syncer.Refresh(context.Background(), Products)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("Refresh = %+v, want one record", result)
	}
	records, err := cache.List(context.Background(), Products)
	if err != nil || len(records) != 1 || records[0].ID != "p1" {
		t.Fatalf("cached %+v, %v", records, err)
	}
	if !notices.Has(notify.CatalogUpdated) {
		t.Errorf("no update notice: %+v", notices.Notices())
	}
}

func TestRefreshFailureKeepsPreviousList(t *testing.T) {
	fake := clock.Fake(epoch)
	store := docstore.NewMemory(fake)
	seed(t, store, "shop1_products", product("p1", "Rice 5kg", "6221000000017", 120.5))
	gateway := &failingQueries{Gateway: store}
	notices := &notify.Recorder{}
	syncer, cache := newTestSyncer(t, gateway, fake, notices)
	ctx := context.Background()

	if _, err := syncer.Refresh(ctx, Products); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	gateway.err = errors.New("connection refused")
	if _, err := syncer.Refresh(ctx, Products); err == nil {
		t.Fatal("Refresh succeeded against a failing store")
	}
	records, err := cache.List(ctx, Products)
	if err != nil || len(records) != 1 {
		t.Fatalf("previous list lost: %+v, %v", records, err)
	}
	if !notices.Has(notify.CatalogFailed) {
		t.Errorf("no failure notice: %+v", notices.Notices())
	}
}

func TestRefreshEmptyCollectionIsQuiet(t *testing.T) {
	fake := clock.Fake(epoch)
	notices := &notify.Recorder{}
	syncer, _ := newTestSyncer(t, docstore.NewMemory(fake), fake, notices)

	if _, err := syncer.Refresh(context.Background(), Expenses); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(notices.Notices()) != 0 {
		t.Errorf("empty refresh produced notices: %+v", notices.Notices())
	}
}

func TestRefreshWithoutSettings(t *testing.T) {
	fake := clock.Fake(epoch)
	notices := &notify.Recorder{}
	syncer, err := NewSyncer(SyncConfig{
		Cache:    openTestCache(t, fake),
		Notifier: notices,
		Clock:    fake,
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewSyncer: %v", err)
	}
	if _, err := syncer.Refresh(context.Background(), Products); !errors.Is(err, settings.ErrNotConfigured) {
		t.Fatalf("Refresh = %v, want ErrNotConfigured", err)
	}
	if err := syncer.RefreshAll(context.Background()); !errors.Is(err, settings.ErrNotConfigured) {
		t.Fatalf("RefreshAll = %v, want ErrNotConfigured", err)
	}
	if !notices.Has(notify.SettingsIncomplete) {
		t.Errorf("no settings notice")
	}
}

func TestRefreshAllContinuesPastFailures(t *testing.T) {
	fake := clock.Fake(epoch)
	store := docstore.NewMemory(fake)
	seed(t, store, "shop1_customers", Record{ID: "c1", Fields: docstore.Fields{"name": "Mona"}})
	gateway := &failingQueries{Gateway: store, err: errors.New("timeout")}
	syncer, _ := newTestSyncer(t, gateway, fake, &notify.Recorder{})

	err := syncer.RefreshAll(context.Background())
	if err == nil {
		t.Fatal("RefreshAll reported success")
	}

	gateway.err = nil
	if err := syncer.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
}

// channelNotifier forwards notices to a channel.
type channelNotifier chan notify.Notice

func (c channelNotifier) Notify(notice notify.Notice) { c <- notice }

func TestRunRefreshesOnEveryTick(t *testing.T) {
	fake := clock.Fake(epoch)
	store := docstore.NewMemory(fake)
	seed(t, store, "shop1_products", product("p1", "Rice 5kg", "6221000000017", 120.5))
	notices := make(chan notify.Notice, 32)
	syncer, cache := newTestSyncer(t, store, fake, channelNotifier(notices))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		syncer.Run(ctx, time.Minute)
		close(done)
	}()
	defer func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "Run did not stop")
	}()

	first := testutil.RequireReceive(t, notices, 5*time.Second, "first refresh")
	if first.Key != notify.CatalogUpdated {
		t.Fatalf("first notice = %+v", first)
	}

	seed(t, store, "shop1_customers", Record{ID: "c1", Fields: docstore.Fields{"name": "Mona"}})
	fake.Advance(time.Minute)

	for {
		notice := testutil.RequireReceive(t, notices, 5*time.Second, "customer refresh")
		if notice.Key == notify.CatalogUpdated && len(notice.Args) == 1 && notice.Args[0] == "customers" {
			break
		}
	}
	records, err := cache.List(context.Background(), Customers)
	if err != nil || len(records) != 1 {
		t.Fatalf("customers after tick = %+v, %v", records, err)
	}
}

func TestTestConnection(t *testing.T) {
	store := docstore.NewMemory(clock.Fake(epoch))
	if err := TestConnection(context.Background(), store, "shop1"); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if err := TestConnection(context.Background(), store, ""); !errors.Is(err, settings.ErrNotConfigured) {
		t.Fatalf("TestConnection without prefix = %v", err)
	}
	failing := &failingQueries{Gateway: store, err: errors.New("auth failed")}
	if err := TestConnection(context.Background(), failing, "shop1"); err == nil {
		t.Fatal("TestConnection succeeded against a failing store")
	}
}
