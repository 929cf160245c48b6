// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/ysk-pos/scanner/catalog"
	"github.com/ysk-pos/scanner/cmd/ysk-scanner/cli"
	"github.com/ysk-pos/scanner/docstore"
	"github.com/ysk-pos/scanner/lib/clock"
	"github.com/ysk-pos/scanner/lib/settings"
)

// globalFlags are accepted by every command that touches settings.
type globalFlags struct {
	settingsPath string
	verbose      bool
}

func (g *globalFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&g.settingsPath, "settings", "",
		"settings file (default $"+settings.EnvironmentVariable+" or the user config directory)")
	flagSet.BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")
}

func (g *globalFlags) logger() *slog.Logger {
	return cli.NewCommandLogger(g.verbose)
}

func (g *globalFlags) openSettings() (*settings.Store, error) {
	path := g.settingsPath
	if path == "" {
		var err error
		if path, err = settings.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return settings.Open(path)
}

// connect opens the document store the settings point at.
func connect(ctx context.Context, current settings.Settings, c clock.Clock, logger *slog.Logger) (docstore.Gateway, error) {
	if err := current.CheckConnection(); err != nil {
		return nil, err
	}
	switch current.BackendOrDefault() {
	case settings.BackendMemory:
		logger.Warn("using the in-process document store; requests from other machines are not visible")
		return docstore.NewMemory(c), nil
	default:
		gateway, err := docstore.ConnectMongo(ctx, docstore.MongoConfig{
			URI:      current.Connection.URI,
			Database: current.Connection.Database,
			Clock:    c,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return gateway, nil
	}
}

// defaultCachePath is catalog.db under the user cache directory.
func defaultCachePath() (string, error) {
	directory, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("no user cache directory, pass --cache: %w", err)
	}
	directory = filepath.Join(directory, "ysk-scanner")
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}
	return filepath.Join(directory, "catalog.db"), nil
}

func openCache(path string, c clock.Clock, logger *slog.Logger) (*catalog.Cache, error) {
	if path == "" {
		var err error
		if path, err = defaultCachePath(); err != nil {
			return nil, err
		}
	}
	return catalog.OpenCache(catalog.CacheConfig{Path: path, Clock: c, Logger: logger})
}
