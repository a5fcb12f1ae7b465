// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the envelope protocol spoken with the backend
// daemon and the typed payloads carried inside it.
//
// Every frame in both directions is an [Envelope]: a command
// discriminant, an optional request ID, and a raw data payload.
// Outbound frames are requests (command + fresh request ID); inbound
// frames are either replies (command "response" or "error", echoing
// the request ID) or pushes (a semantic command name, no request ID).
//
// Push payloads form a closed tagged union over the command
// discriminant — [ParsePush] matches exhaustively and decodes into the
// concrete type, so loosely-typed backend JSON never travels past this
// boundary as an untyped blob. A frame missing its discriminant is a
// [MalformedEnvelopeError]: once one arrives, subsequent frames can no
// longer be trusted to correlate, so the connection layer tears the
// stream down rather than attempting partial recovery.
//
// The engine's storage vocabulary also lives here: [Event] rows keyed
// by RowID and EventID, [TimelineEntry] pairs, [RoomMeta], receipts,
// and space edges, exactly as the backend serializes them in sync
// deltas.
package wire
