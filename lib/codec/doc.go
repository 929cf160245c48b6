// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the agent's binary encoding: CBOR with core
// deterministic encoding, so the same record always yields the same
// bytes. The catalog cache stores record bodies in it and digests the
// bytes to tell changed records from unchanged ones.
//
// Decoding into an untyped target produces map[string]any for maps
// and int64 for every integer, which is what document-store records
// look like on the way in.
package codec
