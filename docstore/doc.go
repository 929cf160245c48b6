// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package docstore is the agent's gateway to the shared document
// database: the store the point-of-sale system writes scan requests
// into and mirrors its catalog to.
//
// [Gateway] is the contract the rest of the agent programs against.
// It covers point reads ([Gateway.Get]), equality-filtered queries
// ([Gateway.Query]), merge writes ([Gateway.Set]), a conditional merge
// write used for claims ([Gateway.UpdateIf]), and two live
// subscriptions: one over a query ([Gateway.SubscribeQuery]) and one
// over a single document ([Gateway.SubscribeDocument]).
//
// Subscriptions follow the snapshot-listener model: the first callback
// carries the state at subscribe time (every matching document as an
// [Added] change), later callbacks carry the changes relative to the
// previous snapshot. A document that stops matching a query is
// delivered as [Removed]. Callbacks for one subscription never run
// concurrently and arrive in the order the backend observed the
// writes.
//
// Two backends implement Gateway. [Memory] keeps everything in
// process and delivers snapshots synchronously; tests and the demo
// mode use it. [Mongo] talks to MongoDB and builds subscriptions from
// change streams, which requires a replica set.
//
// Fields set to [ServerTimestamp] are replaced with the backend's
// notion of now at write time.
package docstore
