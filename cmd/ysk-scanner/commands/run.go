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
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/ysk-pos/scanner/capture"
	"github.com/ysk-pos/scanner/catalog"
	"github.com/ysk-pos/scanner/cmd/ysk-scanner/cli"
	"github.com/ysk-pos/scanner/lib/clock"
	"github.com/ysk-pos/scanner/lib/instancelock"
	"github.com/ysk-pos/scanner/lib/notify"
	"github.com/ysk-pos/scanner/lib/settings"
	"github.com/ysk-pos/scanner/scan"
)

const defaultRefreshInterval = 15 * time.Minute

// cameraFlags select and shape the capture device.
type cameraFlags struct {
	input       string
	decoder     string
	videoDevice string
	viewport    string
}

func (f *cameraFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.input, "input", "-", `keyboard-wedge or serial reader to read lines from ("-" for stdin)`)
	flagSet.StringVar(&f.decoder, "decoder", "", "run this camera decoder (e.g. "+capture.DefaultDecoder+") instead of reading --input")
	flagSet.StringVar(&f.videoDevice, "video-device", "", "video device passed to the decoder")
	flagSet.StringVar(&f.viewport, "viewport", "1280x720", "camera viewport WIDTHxHEIGHT, sizes the capture box")
}

// open returns the configured camera. done is closed when a line
// reader's input ends; it is nil for a decoder.
func (f *cameraFlags) open(logger *slog.Logger) (camera scan.Camera, done <-chan struct{}, closeInput func(), err error) {
	if f.decoder != "" {
		return capture.NewCommand(capture.CommandConfig{
			Path:   f.decoder,
			Device: f.videoDevice,
			Logger: logger,
		}), nil, func() {}, nil
	}
	var input io.ReadCloser = os.Stdin
	if f.input != "-" && f.input != "" {
		if input, err = os.Open(f.input); err != nil {
			return nil, nil, nil, fmt.Errorf("opening scanner input: %w", err)
		}
	}
	lines := capture.NewLines(input, logger)
	return lines, lines.Done(), func() { input.Close() }, nil
}

func parseViewport(value string) (scan.Viewport, error) {
	width, height, ok := strings.Cut(strings.ToLower(value), "x")
	if !ok {
		return scan.Viewport{}, fmt.Errorf("viewport %q: want WIDTHxHEIGHT", value)
	}
	w, err := strconv.Atoi(width)
	if err != nil || w <= 0 {
		return scan.Viewport{}, fmt.Errorf("viewport %q: bad width", value)
	}
	h, err := strconv.Atoi(height)
	if err != nil || h <= 0 {
		return scan.Viewport{}, fmt.Errorf("viewport %q: bad height", value)
	}
	return scan.Viewport{Width: w, Height: h}, nil
}

func runCommand() *cli.Command {
	var (
		global          globalFlags
		camera          cameraFlags
		cachePath       string
		refreshInterval time.Duration
		freshness       time.Duration
	)
	return &cli.Command{
		Name:    "run",
		Summary: "Serve scan requests until interrupted",
		Description: `Serve scan requests until interrupted.

Listens for per-device sessions addressed to this installation's device
id and for the shared fixed session, answers each with one decoded
barcode, and expires requests found stale at startup. When a catalog
prefix is configured the catalog cache is refreshed in the background.`,
		Examples: []cli.Example{
			{Description: "Read a USB keyboard-wedge scanner on stdin", Command: "ysk-scanner run"},
			{Description: "Decode from a webcam", Command: "ysk-scanner run --decoder zbarcam --video-device /dev/video0"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			global.register(flagSet)
			camera.register(flagSet)
			flagSet.StringVar(&cachePath, "cache", "", "catalog cache database (default under the user cache directory)")
			flagSet.DurationVar(&refreshInterval, "refresh-interval", defaultRefreshInterval, "catalog refresh interval (0 disables refreshing)")
			flagSet.DurationVar(&freshness, "freshness", scan.DefaultFreshness, "age past which a request found at startup is expired")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			logger := global.logger().With("command", "run")
			viewport, err := parseViewport(camera.viewport)
			if err != nil {
				return err
			}
			store, err := global.openSettings()
			if err != nil {
				return err
			}
			current := store.Settings()
			notifier := notify.NewLogger(logger, current.Locale)

			deviceID, err := store.EnsureDeviceID()
			if err != nil {
				return err
			}
			lock, err := instancelock.Acquire(store.Path() + ".lock")
			if err != nil {
				return err
			}
			defer lock.Release()
			realClock := clock.Real()
			gateway, err := connect(ctx, current, realClock, logger)
			if errors.Is(err, settings.ErrNotConfigured) {
				notifier.Notify(notify.Notice{Level: notify.Error, Key: notify.SettingsIncomplete})
			}
			if err != nil {
				return err
			}
			defer gateway.Close(context.Background())

			device, inputDone, closeInput, err := camera.open(logger)
			if err != nil {
				return err
			}
			defer closeInput()

			engine, err := scan.New(scan.Config{
				Gateway:   gateway,
				Scanner:   scan.NewScanner(device, viewport, logger),
				Notifier:  notifier,
				Clock:     realClock,
				Logger:    logger,
				DeviceID:  deviceID,
				Freshness: freshness,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			if inputDone != nil {
				go func() {
					select {
					case <-inputDone:
						logger.Info("scanner input closed, stopping")
						cancel()
					case <-ctx.Done():
					}
				}()
			}

			if refreshInterval > 0 && current.CheckCatalog() == nil {
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
				syncDone := make(chan struct{})
				go func() {
					defer close(syncDone)
					syncer.Run(ctx, refreshInterval)
				}()
				defer func() {
					cancel()
					<-syncDone
				}()
			}

			logger.Info("scanner agent started",
				"device_id", deviceID,
				"backend", string(current.BackendOrDefault()),
				"settings", store.Path(),
			)
			return engine.Run(ctx)
		},
	}
}
