// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/ysk-pos/scanner/cmd/ysk-scanner/cli"
	"github.com/ysk-pos/scanner/docstore"
	"github.com/ysk-pos/scanner/lib/clock"
	"github.com/ysk-pos/scanner/scan"
)

// errRequestExpired is returned by a waited request that the agent
// expired instead of answering.
var errRequestExpired = errors.New("scan request expired")

func requestCommand() *cli.Command {
	var (
		global    globalFlags
		deviceID  string
		sessionID string
		fixed     bool
		wait      bool
		timeout   time.Duration
	)
	return &cli.Command{
		Name:    "request",
		Summary: "Write a scan request, as the point of sale does",
		Description: `Write a scan request to the document store, as the point of sale does.

With --device a new per-device session is created for that device. With
--fixed the shared fixed session is set to scanRequested. --wait blocks
until an agent answers and prints the barcode.`,
		Usage: "ysk-scanner request (--device ID | --fixed) [flags]",
		Examples: []cli.Example{
			{Description: "Ask a specific scanner for a barcode and wait", Command: "ysk-scanner request --device dev_3f2a9c01d4e5b6a7 --wait"},
			{Command: "ysk-scanner request --fixed --wait --timeout 30s"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("request", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.StringVar(&deviceID, "device", "", "device id the session is addressed to")
			flagSet.StringVar(&sessionID, "id", "", "session document id (default: generated)")
			flagSet.BoolVar(&fixed, "fixed", false, "request through the shared fixed session")
			flagSet.BoolVar(&wait, "wait", false, "wait for the answer and print the barcode")
			flagSet.DurationVar(&timeout, "timeout", 2*time.Minute, "how long --wait waits")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if fixed == (deviceID != "") {
				return fmt.Errorf("exactly one of --device and --fixed is required")
			}
			logger := global.logger().With("command", "request")
			store, err := global.openSettings()
			if err != nil {
				return err
			}
			gateway, err := connect(ctx, store.Settings(), clock.Real(), logger)
			if err != nil {
				return err
			}
			defer gateway.Close(context.Background())

			ref, fields, answered := scan.FixedRef(), scan.FixedRequest(), fixedAnswer
			if !fixed {
				if sessionID == "" {
					sessionID = uuid.NewString()
				}
				ref, fields, answered = scan.SessionRef(sessionID), scan.DeviceRequest(deviceID), deviceAnswer
			}

			if !wait {
				if err := gateway.Set(ctx, ref, fields); err != nil {
					return fmt.Errorf("writing %s: %w", ref, err)
				}
				fmt.Println(ref.ID)
				return nil
			}

			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			barcode, err := requestAndWait(ctx, gateway, ref, fields, answered)
			if err != nil {
				return err
			}
			fmt.Println(barcode)
			return nil
		},
	}
}

// answerFunc inspects a session snapshot. done reports a terminal
// status; err is set when that status carries no barcode.
type answerFunc func(document docstore.Document) (barcode string, done bool, err error)

func deviceAnswer(document docstore.Document) (string, bool, error) {
	switch document.Fields.String(scan.FieldStatus) {
	case scan.StatusDone:
		return document.Fields.String(scan.FieldBarcode), true, nil
	case scan.StatusExpired:
		return "", true, errRequestExpired
	}
	return "", false, nil
}

func fixedAnswer(document docstore.Document) (string, bool, error) {
	switch document.Fields.String(scan.FieldStatus) {
	case scan.StatusScanned:
		return document.Fields.String(scan.FieldScannedValue), true, nil
	case scan.StatusExpired:
		return "", true, errRequestExpired
	}
	return "", false, nil
}

type answer struct {
	barcode string
	err     error
}

// requestAndWait subscribes to ref, writes the request, and returns
// the first terminal answer. Snapshots are ignored until one shows the
// request itself, so an answer left on a reused document from an
// earlier request is not mistaken for this one.
func requestAndWait(ctx context.Context, gateway docstore.Gateway, ref docstore.Ref, fields docstore.Fields, answered answerFunc) (string, error) {
	requestStatus, _ := fields[scan.FieldStatus].(string)
	answers := make(chan answer, 1)
	seenRequest := false
	subscription, err := gateway.SubscribeDocument(ctx, ref, func(document docstore.Document) {
		if !document.Exists {
			return
		}
		if !seenRequest {
			seenRequest = document.Fields.String(scan.FieldStatus) == requestStatus
			return
		}
		barcode, done, err := answered(document)
		if !done {
			return
		}
		select {
		case answers <- answer{barcode: barcode, err: err}:
		default:
		}
	}, func(err error) {
		select {
		case answers <- answer{err: fmt.Errorf("watching %s: %w", ref, err)}:
		default:
		}
	})
	if err != nil {
		return "", fmt.Errorf("watching %s: %w", ref, err)
	}
	defer subscription.Unsubscribe()

	if err := gateway.Set(ctx, ref, fields); err != nil {
		return "", fmt.Errorf("writing %s: %w", ref, err)
	}

	select {
	case result := <-answers:
		return result.barcode, result.err
	case <-ctx.Done():
		return "", fmt.Errorf("no answer for %s: %w", ref, ctx.Err())
	}
}
