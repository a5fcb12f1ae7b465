// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package rpc implements the request/response channel to the backend
// daemon: request correlation, cancellation, and the connection
// lifecycle state machine.
//
// A [Client] owns one transport connection. Outgoing calls go through
// [Client.Request], which assigns a unique, monotonically increasing
// request ID, registers an in-flight entry, and resolves when the
// reply frame tagged with that ID arrives. Each entry resolves or
// rejects exactly once. Reply frames with unrecognized IDs are logged
// and skipped — a late reply to a cancelled request is an expected
// anomaly, not a protocol failure.
//
// Cancellation is two independent halves: the local waiter is rejected
// with a [CancelledError] immediately, and a best-effort cancel frame
// is sent to the backend whose own failure is only logged. The halves
// are decoupled because the backend may already have produced a result
// by the time cancellation is requested.
//
// Connection state (Connecting → Connected → Disconnected) is
// broadcast on a cached emitter so late subscribers immediately learn
// the current state. A transition to Disconnected atomically rejects
// every outstanding request with a [TransportError] and clears the
// correlation table — no entry leaks across a reconnect. Automatic
// reconnection is a caller responsibility.
//
// Frames arriving without a request correlation (push frames) are
// decoded by wire.ParsePush and handed to the registered PushHandler.
// A malformed envelope tears the connection down; a push payload that
// fails to decode is logged and skipped.
package rpc
