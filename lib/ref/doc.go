// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable identity references
// for the entities the mirror engine tracks: rooms, events, users, and
// event storage positions.
//
// String-shaped Matrix identifiers (RoomID, EventID, UserID) are
// validated at the boundary — they arrive from the backend inside sync
// deltas and RPC responses and are parsed into these types exactly
// once. Once constructed, a ref is immutable; the zero value is never
// valid and IsZero distinguishes "unset" from "present".
//
// Numeric identifiers (RowID, TimelinePosition) are named integer
// types. They need no parsing, but the distinct types prevent a
// storage position from being confused with a timeline position: the
// two orderings agree only for confirmed, unfiltered history.
//
// JSON marshaling of the string refs uses the canonical Matrix form
// via encoding.TextMarshaler, which also makes them usable as JSON
// object keys.
package ref
