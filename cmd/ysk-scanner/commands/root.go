// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/ysk-pos/scanner/cmd/ysk-scanner/cli"
	"github.com/ysk-pos/scanner/lib/version"
)

// Root returns the complete command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "ysk-scanner",
		Description: `ysk-scanner: barcode scanner agent for the YSK point of sale.

Answers scan requests written to the shared document store by the
point of sale, using a keyboard-wedge reader or a camera decoder, and
keeps a local cache of the store's catalog for lookups.`,
		Subcommands: []*cli.Command{
			runCommand(),
			scanCommand(),
			requestCommand(),
			catalogCommand(),
			settingsCommand(),
			testConnectionCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string) error {
					fmt.Printf("ysk-scanner %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
