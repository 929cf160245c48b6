// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the few helpers shared by package tests.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so tests never block forever on a channel the code under test
// failed to feed. They are the only place tests touch wall-clock time;
// everything else runs on clock.Fake.
package testutil
