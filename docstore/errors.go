// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import "errors"

var (
	// ErrNotFound is returned by UpdateIf when the document does not
	// exist.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrConditionFailed is returned by UpdateIf when the document
	// exists but the guarded field no longer holds the expected value.
	ErrConditionFailed = errors.New("docstore: condition failed")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("docstore: gateway closed")
)
