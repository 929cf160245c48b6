// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ysk-pos/scanner/catalog"
	"github.com/ysk-pos/scanner/cmd/ysk-scanner/cli"
	"github.com/ysk-pos/scanner/lib/clock"
	"github.com/ysk-pos/scanner/lib/notify"
	"github.com/ysk-pos/scanner/lib/settings"
)

func settingsCommand() *cli.Command {
	return &cli.Command{
		Name:    "settings",
		Summary: "Show, change, or import the agent settings",
		Subcommands: []*cli.Command{
			settingsShowCommand(),
			settingsSaveCommand(),
			settingsImportCommand(),
		},
	}
}

func settingsShowCommand() *cli.Command {
	var global globalFlags
	return &cli.Command{
		Name:    "show",
		Summary: "Print the current settings as YAML",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			global.register(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, _ []string) error {
			store, err := global.openSettings()
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "# %s\n", store.Path())
			return writeSettings(os.Stdout, store.Settings())
		},
	}
}

func writeSettings(w io.Writer, current settings.Settings) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(current); err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	return encoder.Close()
}

func settingsSaveCommand() *cli.Command {
	var (
		global globalFlags
		update settings.Settings
		backend string
	)
	return &cli.Command{
		Name:    "save",
		Summary: "Change settings; omitted flags keep their stored values",
		Examples: []cli.Example{
			{
				Description: "Point the agent at a MongoDB replica set",
				Command:     "ysk-scanner settings save --uri mongodb://pos.local:27017/?replicaSet=rs0 --database ysk --prefix shop1",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("save", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.StringVar(&backend, "backend", "", `document store backend ("mongo" or "memory")`)
			flagSet.StringVar(&update.Connection.URI, "uri", "", "MongoDB connection string")
			flagSet.StringVar(&update.Connection.Database, "database", "", "database holding the sessions and catalog")
			flagSet.StringVar(&update.Prefix, "prefix", "", "catalog collection prefix")
			flagSet.StringVar(&update.DeviceID, "device-id", "", "override the generated device id")
			flagSet.StringVar(&update.Locale, "locale", "", `notice language ("ar" or "en")`)
			return flagSet
		},
		Run: func(_ context.Context, _ []string) error {
			logger := global.logger().With("command", "settings/save")
			update.Connection.Backend = settings.Backend(backend)
			store, err := global.openSettings()
			if err != nil {
				return err
			}
			saved, err := store.Save(update)
			if err != nil {
				return err
			}
			notify.NewLogger(logger, saved.Locale).Notify(notify.Notice{Level: notify.Success, Key: notify.SettingsSaved})
			if err := saved.CheckCatalog(); err != nil {
				logger.Warn("settings incomplete", "error", err)
			}
			return writeSettings(os.Stdout, saved)
		},
	}
}

func settingsImportCommand() *cli.Command {
	var global globalFlags
	return &cli.Command{
		Name:    "import",
		Summary: "Import a settings export from the browser scanner app",
		Usage:   "ysk-scanner settings import [flags] <export.json>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("import", pflag.ContinueOnError)
			global.register(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one export file, got %d arguments", len(args))
			}
			logger := global.logger().With("command", "settings/import")
			store, err := global.openSettings()
			if err != nil {
				return err
			}
			saved, err := settings.ImportLegacy(store, args[0])
			if err != nil {
				return err
			}
			logger.Info("settings imported", "from", args[0], "to", store.Path())
			return writeSettings(os.Stdout, saved)
		},
	}
}

func testConnectionCommand() *cli.Command {
	var global globalFlags
	return &cli.Command{
		Name:    "test-connection",
		Summary: "Check that the document store and catalog are reachable",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("test-connection", pflag.ContinueOnError)
			global.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, _ []string) error {
			logger := global.logger().With("command", "test-connection")
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
			gateway, err := connect(ctx, current, clock.Real(), logger)
			if err == nil {
				defer gateway.Close(context.Background())
				err = catalog.TestConnection(ctx, gateway, current.Prefix)
			}
			if err != nil {
				notifier.Notify(notify.Notice{Level: notify.Error, Key: notify.ConnectionFailed})
				return err
			}
			notifier.Notify(notify.Notice{Level: notify.Success, Key: notify.ConnectionOK})
			return nil
		},
	}
}
