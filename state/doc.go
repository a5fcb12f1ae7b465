// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package state maintains the client-side mirror of chat room state:
// a consistent, memory-bounded, query-ready projection of rooms,
// timelines, receipts, account data, and the space hierarchy, built
// from an initial snapshot plus incremental sync deltas and overlaid
// with locally originated unconfirmed sends.
//
// [Store] owns the room collection, the sorted room list projection,
// account data, and the space hierarchy. Each [Room] owns its own
// timeline ordering, event indices, state index, receipts, pending
// overlay, and derived caches. All mutation enters through designated
// apply entry points on the Store — no external caller reaches into an
// index directly.
//
// Mutation entry points are serialized: each runs to completion under
// the Store's lock before any other starts, and no apply path blocks
// on the network while holding it. Subscribers observe state only
// through the pull-based emitter pattern — the Store updates a cached
// snapshot and notifies after the mutation completes, never mid-way.
//
// Every apply operation is idempotent, because the backend does not
// guarantee exactly-once push delivery: applying the same confirmed
// event row twice leaves indices and timeline unchanged. Per-item
// failures inside a sync batch (a receipt for an unknown room, a state
// event missing its key) are logged and skipped; they never abort the
// batch.
package state
