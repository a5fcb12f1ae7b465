// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// RowID is the backend-assigned, per-room, monotonically increasing
// identifier for an event's storage position. RowID order is stable
// and total within a room: for two confirmed events in the same room,
// the one with the larger RowID was stored later.
//
// Zero is not a valid RowID; the backend starts numbering at 1, which
// lets the zero value mean "no row".
type RowID int64

// IsZero reports whether the RowID is unset.
func (r RowID) IsZero() bool { return r == 0 }

// TimelinePosition orders the entries of a room's display timeline.
// It is distinct from RowID because timeline membership is a
// server-side filtering decision: an event can be stored (have a
// RowID) without appearing in the timeline, and positions are assigned
// in display order rather than storage order.
//
// Positions at or above PendingPositionBase are synthetic: they are
// assigned locally to optimistic pending sends so those entries always
// sort after all confirmed history while preserving relative order
// among themselves.
type TimelinePosition int64

// PendingPositionBase is the first synthetic timeline position.
// Confirmed history always sorts below it; pending overlay entries are
// numbered upward from it in send-initiation order.
const PendingPositionBase TimelinePosition = 1 << 55

// IsPending reports whether the position is in the synthetic range
// reserved for unconfirmed pending sends.
func (p TimelinePosition) IsPending() bool { return p >= PendingPositionBase }
