// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/ysk-pos/scanner/catalog"
	"github.com/ysk-pos/scanner/cmd/ysk-scanner/cli"
	"github.com/ysk-pos/scanner/docstore"
	"github.com/ysk-pos/scanner/lib/clock"
	"github.com/ysk-pos/scanner/lib/notify"
	"github.com/ysk-pos/scanner/scan"
)

func scanCommand() *cli.Command {
	var (
		global    globalFlags
		camera    cameraFlags
		cachePath string
		timeout   time.Duration
		lookup    bool
		plain     bool
	)
	return &cli.Command{
		Name:    "scan",
		Summary: "Scan one barcode locally and look it up in the catalog cache",
		Description: `Scan one barcode locally and print it.

The scan is not tied to any remote session. With --lookup the value is
matched against the cached products and the product is printed.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("scan", pflag.ContinueOnError)
			global.register(flagSet)
			camera.register(flagSet)
			flagSet.StringVar(&cachePath, "cache", "", "catalog cache database (default under the user cache directory)")
			flagSet.DurationVar(&timeout, "timeout", time.Minute, "give up after this long")
			flagSet.BoolVar(&lookup, "lookup", true, "look the barcode up in the catalog cache")
			flagSet.BoolVar(&plain, "plain", false, "disable colour in the product table")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			logger := global.logger().With("command", "scan")
			viewport, err := parseViewport(camera.viewport)
			if err != nil {
				return err
			}
			locale := ""
			if store, err := global.openSettings(); err == nil {
				locale = store.Settings().Locale
			} else {
				logger.Debug("settings unavailable, using default locale", "error", err)
			}
			device, _, closeInput, err := camera.open(logger)
			if err != nil {
				return err
			}
			defer closeInput()

			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			barcode, err := scanOnce(ctx, device, viewport, locale, logger)
			if err != nil {
				return err
			}
			fmt.Println(barcode)
			if !lookup {
				return nil
			}

			cache, err := openCache(cachePath, clock.Real(), logger)
			if err != nil {
				return err
			}
			defer cache.Close()
			return printProduct(ctx, os.Stdout, cache, barcode, locale, plain)
		},
	}
}

// scanOnce runs a private engine over an in-process store just long
// enough to take one manual scan. Notices are rendered in locale.
func scanOnce(ctx context.Context, device scan.Camera, viewport scan.Viewport, locale string, logger *slog.Logger) (string, error) {
	realClock := clock.Real()
	engine, err := scan.New(scan.Config{
		Gateway:  docstore.NewMemory(realClock),
		Scanner:  scan.NewScanner(device, viewport, logger),
		Notifier: notify.NewLogger(logger, locale),
		Clock:    realClock,
		Logger:   logger,
		DeviceID: "local",
	})
	if err != nil {
		return "", err
	}

	engineContext, stop := context.WithCancel(context.WithoutCancel(ctx))
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		engine.Run(engineContext)
	}()
	defer func() {
		stop()
		<-stopped
	}()

	barcode, err := engine.ScanOnce(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("no barcode scanned before the timeout")
	}
	return barcode, err
}

func printProduct(ctx context.Context, w io.Writer, cache *catalog.Cache, barcode, locale string, plain bool) error {
	product, found, err := cache.FindBarcode(ctx, barcode)
	if err != nil {
		return err
	}
	var records []catalog.Record
	if found {
		records = append(records, product)
	}
	return catalog.Render(w, catalog.Products, records, catalog.RenderOptions{Locale: locale, Plain: plain})
}
