// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind ysk-scanner: a
// tree of [Command] values with pflag flag sets, generated help, and
// typo suggestions for unknown commands and flags.
package cli
