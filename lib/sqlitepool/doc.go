// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens pools of SQLite connections
// (zombiezen.com/go/sqlite) with the agent's standard pragmas: WAL
// journaling, NORMAL synchronous, a busy timeout so a second process
// reading the cache waits instead of failing, and in-memory temp
// storage.
//
// Schema setup goes in Config.OnConnect, which runs once per
// connection after the pragmas. Use CREATE ... IF NOT EXISTS there;
// every connection runs it.
package sqlitepool
