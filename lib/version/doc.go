// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build of the agent binary. Values are
// injected with -ldflags:
//
//	go build -ldflags "-X github.com/ysk-pos/scanner/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/ysk-scanner
package version
