// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command ysk-scanner is the scanner agent for the YSK point-of-sale
// system. "ysk-scanner run" listens for scan requests and answers
// them from a local barcode reader; the remaining subcommands manage
// settings, the catalog cache, and test requests.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ysk-pos/scanner/cmd/ysk-scanner/commands"
	"github.com/ysk-pos/scanner/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return commands.Root().Execute(ctx, os.Args[1:])
}
