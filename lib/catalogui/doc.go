// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalogui is the interactive catalog browser behind
// "ysk-scanner catalog browse": one cached kind in a scrolling pane
// with a live search line, substring or fuzzy.
//
// The model holds no I/O. Records are loaded by the caller and the
// model re-filters them on every keystroke.
package catalogui
