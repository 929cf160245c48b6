// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ysk-pos/scanner/docstore"
	"github.com/ysk-pos/scanner/lib/clock"
	"github.com/ysk-pos/scanner/lib/notify"
	"github.com/ysk-pos/scanner/lib/settings"
)

// SyncConfig configures a Syncer. Cache, Clock and Logger are
// required. Gateway may be nil and Prefix empty when the settings are
// incomplete; every refresh then reports settings.ErrNotConfigured.
type SyncConfig struct {
	Gateway  docstore.Gateway
	Cache    *Cache
	Notifier notify.Notifier
	Clock    clock.Clock
	Logger   *slog.Logger
	Prefix   string
	Locale   string
}

// Syncer pulls catalog collections into the cache.
type Syncer struct {
	gateway  docstore.Gateway
	cache    *Cache
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	prefix   string
	locale   string
}

// NewSyncer returns a Syncer for config.
func NewSyncer(config SyncConfig) (*Syncer, error) {
	if config.Cache == nil {
		return nil, errors.New("catalog: Cache is required")
	}
	if config.Clock == nil {
		return nil, errors.New("catalog: Clock is required")
	}
	if config.Logger == nil {
		return nil, errors.New("catalog: Logger is required")
	}
	notifier := config.Notifier
	if notifier == nil {
		notifier = notify.NewLogger(config.Logger, config.Locale)
	}
	return &Syncer{
		gateway:  config.Gateway,
		cache:    config.Cache,
		notifier: notifier,
		clock:    config.Clock,
		logger:   config.Logger,
		prefix:   config.Prefix,
		locale:   config.Locale,
	}, nil
}

// Refresh replaces the cached records of kind with the collection's
// current contents. On any failure the cache is left as it was and an
// error notice is shown.
func (s *Syncer) Refresh(ctx context.Context, kind Kind) (ReplaceResult, error) {
	if s.gateway == nil || s.prefix == "" {
		s.notify(notify.Error, notify.SettingsIncomplete)
		return ReplaceResult{}, fmt.Errorf("catalog: refreshing %s: %w", kind, settings.ErrNotConfigured)
	}

	collection := kind.Collection(s.prefix)
	documents, err := s.gateway.Query(ctx, docstore.Query{Collection: collection})
	if err != nil {
		s.logger.Error("catalog fetch failed", "collection", collection, "error", err)
		s.notify(notify.Error, notify.CatalogFailed, kind.Noun(s.locale))
		return ReplaceResult{}, fmt.Errorf("catalog: fetching %s: %w", collection, err)
	}

	records := make([]Record, 0, len(documents))
	for _, document := range documents {
		records = append(records, Record{ID: document.Ref.ID, Fields: document.Fields})
	}
	result, err := s.cache.Replace(ctx, kind, records)
	if err != nil {
		s.logger.Error("catalog cache update failed", "kind", string(kind), "error", err)
		s.notify(notify.Error, notify.CatalogFailed, kind.Noun(s.locale))
		return ReplaceResult{}, err
	}

	s.logger.Info("catalog refreshed",
		"kind", string(kind),
		"total", result.Total,
		"changed", result.Changed,
		"removed", result.Removed,
	)
	if result.Total > 0 {
		s.notify(notify.Success, notify.CatalogUpdated, kind.Noun(s.locale))
	}
	return result, nil
}

// RefreshAll refreshes every kind, continuing past failures. The
// returned error joins the failures.
func (s *Syncer) RefreshAll(ctx context.Context) error {
	if s.gateway == nil || s.prefix == "" {
		s.notify(notify.Error, notify.SettingsIncomplete)
		return fmt.Errorf("catalog: %w", settings.ErrNotConfigured)
	}
	var failures []error
	for _, kind := range Kinds {
		if _, err := s.Refresh(ctx, kind); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

// Run refreshes everything now and then every interval until ctx is
// cancelled. Failures are reported and the next tick tries again.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := s.RefreshAll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("catalog refresh incomplete", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Syncer) notify(level notify.Level, key notify.Key, args ...any) {
	s.notifier.Notify(notify.Notice{Level: level, Key: key, Args: args})
}

// TestConnection checks that the store answers a read of the products
// collection under prefix.
func TestConnection(ctx context.Context, gateway docstore.Gateway, prefix string) error {
	if gateway == nil || prefix == "" {
		return fmt.Errorf("catalog: %w", settings.ErrNotConfigured)
	}
	if _, err := gateway.Query(ctx, docstore.Query{Collection: Products.Collection(prefix)}); err != nil {
		return fmt.Errorf("catalog: reading %s: %w", Products.Collection(prefix), err)
	}
	return nil
}
