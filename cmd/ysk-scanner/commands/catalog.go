// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/ysk-pos/scanner/catalog"
	"github.com/ysk-pos/scanner/cmd/ysk-scanner/cli"
	"github.com/ysk-pos/scanner/lib/catalogui"
	"github.com/ysk-pos/scanner/lib/clock"
	"github.com/ysk-pos/scanner/lib/notify"
)

func catalogCommand() *cli.Command {
	return &cli.Command{
		Name:    "catalog",
		Summary: "Refresh and browse the local catalog cache",
		Subcommands: []*cli.Command{
			catalogRefreshCommand(),
			catalogListCommand(),
			catalogBrowseCommand(),
		},
	}
}

func catalogRefreshCommand() *cli.Command {
	var (
		global    globalFlags
		cachePath string
		kindName  string
	)
	return &cli.Command{
		Name:    "refresh",
		Summary: "Pull catalog collections from the document store into the cache",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("refresh", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.StringVar(&cachePath, "cache", "", "catalog cache database (default under the user cache directory)")
			flagSet.StringVar(&kindName, "kind", "", "refresh only this kind (products, customers, invoices, expenses)")
			return flagSet
		},
		Run: func(ctx context.Context, _ []string) error {
			logger := global.logger().With("command", "catalog/refresh")
			store, err := global.openSettings()
			if err != nil {
				return err
			}
			current := store.Settings()
			notifier := notify.NewLogger(logger, current.Locale)
			if err := current.CheckCatalog(); err != nil {
				notifier.Notify(notify.Notice{Level: notify.Error, Key: notify.SettingsIncomplete})
				return err
			}

			realClock := clock.Real()
			gateway, err := connect(ctx, current, realClock, logger)
			if err != nil {
				return err
			}
			defer gateway.Close(context.Background())
			cache, err := openCache(cachePath, realClock, logger)
			if err != nil {
				return err
			}
			defer cache.Close()

			syncer, err := catalog.NewSyncer(catalog.SyncConfig{
				Gateway:  gateway,
				Cache:    cache,
				Notifier: notifier,
				Clock:    realClock,
				Logger:   logger,
				Prefix:   current.Prefix,
				Locale:   current.Locale,
			})
			if err != nil {
				return err
			}
			if kindName == "" {
				return syncer.RefreshAll(ctx)
			}
			kind, err := catalog.ParseKind(kindName)
			if err != nil {
				return err
			}
			_, err = syncer.Refresh(ctx, kind)
			return err
		},
	}
}

func catalogListCommand() *cli.Command {
	var (
		global    globalFlags
		cachePath string
		kindName  string
		search    string
		fuzzy     bool
		plain     bool
	)
	return &cli.Command{
		Name:    "list",
		Summary: "Print cached records, optionally filtered",
		Examples: []cli.Example{
			{Description: "Find products whose name, barcode or supplier mentions rice", Command: "ysk-scanner catalog list --search rice"},
			{Command: "ysk-scanner catalog list --kind invoices --search 1002 --plain"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.StringVar(&cachePath, "cache", "", "catalog cache database (default under the user cache directory)")
			flagSet.StringVar(&kindName, "kind", string(catalog.Products), "kind to list (products, customers, invoices, expenses)")
			flagSet.StringVarP(&search, "search", "s", "", "case-insensitive substring filter")
			flagSet.BoolVar(&fuzzy, "fuzzy", false, "treat --search as a fuzzy pattern and rank by match quality")
			flagSet.BoolVar(&plain, "plain", false, "disable colour and emphasis")
			return flagSet
		},
		Run: func(ctx context.Context, _ []string) error {
			logger := global.logger().With("command", "catalog/list")
			kind, err := catalog.ParseKind(kindName)
			if err != nil {
				return err
			}
			locale := ""
			if store, err := global.openSettings(); err == nil {
				locale = store.Settings().Locale
			} else {
				logger.Debug("settings unavailable, using default locale", "error", err)
			}

			cache, err := openCache(cachePath, clock.Real(), logger)
			if err != nil {
				return err
			}
			defer cache.Close()
			records, err := cache.List(ctx, kind)
			if err != nil {
				return err
			}
			if fuzzy {
				records = catalog.Rank(kind, records, search)
			} else {
				records = catalog.Filter(kind, records, search)
			}
			if refreshed, _, ok, err := cache.Refreshed(ctx, kind); err == nil && ok {
				logger.Debug("cache age", "kind", string(kind), "refreshed_at", refreshed.Format(time.RFC3339))
			}
			if locale == "" {
				locale = "en"
			}
			if err := catalog.Render(os.Stdout, kind, records, catalog.RenderOptions{Locale: locale, Plain: plain}); err != nil {
				return fmt.Errorf("rendering %s: %w", kind, err)
			}
			return nil
		},
	}
}

func catalogBrowseCommand() *cli.Command {
	var (
		global    globalFlags
		cachePath string
		kindName  string
		fuzzy     bool
	)
	return &cli.Command{
		Name:    "browse",
		Summary: "Browse cached records interactively",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("browse", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.StringVar(&cachePath, "cache", "", "catalog cache database (default under the user cache directory)")
			flagSet.StringVar(&kindName, "kind", string(catalog.Products), "kind to browse (products, customers, invoices, expenses)")
			flagSet.BoolVar(&fuzzy, "fuzzy", false, "start in fuzzy search mode")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			logger := global.logger().With("command", "catalog/browse")
			kind, err := catalog.ParseKind(kindName)
			if err != nil {
				return err
			}
			locale := "en"
			if store, err := global.openSettings(); err == nil && store.Settings().Locale != "" {
				locale = store.Settings().Locale
			}
			cache, err := openCache(cachePath, clock.Real(), logger)
			if err != nil {
				return err
			}
			defer cache.Close()
			records, err := cache.List(ctx, kind)
			if err != nil {
				return err
			}

			query := ""
			if len(args) > 0 {
				query = args[0]
			}
			model := catalogui.NewModel(kind, records, catalogui.Options{Locale: locale, Fuzzy: fuzzy, Query: query})
			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := program.Run(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("catalog browser: %w", err)
			}
			return nil
		},
	}
}
