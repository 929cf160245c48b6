// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture provides [scan.Camera] implementations for hardware
// the agent runs next to.
//
// [Lines] reads decoded values one per line from a stream: a USB
// keyboard-wedge scanner typing into the agent's terminal, or a serial
// scanner opened as a tty. [Command] runs an external decoder (zbarcam
// by default) for the life of each scan and reads its output the same
// way.
package capture
