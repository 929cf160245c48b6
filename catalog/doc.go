// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog mirrors the shop's records (products, customers,
// invoices, expenses) from the document store into a local SQLite
// cache, and searches and renders them for the terminal.
//
// Each kind lives in its own collection named "<prefix>_<kind>". A
// refresh reads the whole collection and replaces the cached set in
// one transaction. A refresh that fails leaves the previous set in
// place, so the assistant keeps seeing the last good list while the
// store is unreachable. Record bodies are stored CBOR-encoded with a
// BLAKE3 digest; records whose digest is unchanged are not rewritten.
package catalog
