// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scan implements the remote barcode-scan handoff: a point of
// sale asks this device to scan a barcode by writing a session document
// to the shared store, the [Engine] claims it, opens the capture device
// through the [Scanner], and writes the decoded value back.
//
// Two request protocols are served side by side:
//
//   - Per-device sessions: documents in the scannerSessions collection
//     addressed by deviceId. The engine follows a query for this
//     device's pending sessions, claims each with a conditional update
//     (pending to scanning, only if still pending), and resolves it to
//     done with the barcode.
//
//   - The fixed session: the single document scannerSessions/fixed,
//     for callers that do not know device ids. Whichever device sees
//     scanRequested first serves it and writes scanned with the value.
//     A local processing flag plus a short cool-down keep the echo of
//     the agent's own write from reading as a new request.
//
// Both subscriptions skip their first delivery, so requests that were
// pending before the agent attached never open the camera on their
// own. Startup reconciliation handles those instead: shortly after the
// listeners attach the engine reads both sources once, serves requests
// younger than the freshness window, and marks older ones expired.
//
// The capture device is the one exclusive resource. The [Scanner]
// holds at most one open [Scope]; opening another displaces the first,
// which ends as cancelled. A remote request whose scope is cancelled,
// or whose camera fails to open, is marked expired so the caller sees
// a terminal state and can ask again.
//
// All engine state is owned by a single event loop ([Engine.Run]).
// Store deliveries, decode results, cancellations and timers are
// posted to the loop and handled one at a time.
package scan
