// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

// receiptSentinel is the normalized timeline position for receipt
// targets in the pending overlay. Reading up to a pending event must
// not appear to be "far in the future", so synthetic positions
// collapse to a small sentinel for comparison.
const receiptSentinel ref.TimelinePosition = 0

// applyReceipts applies one sync delta's receipt batch. Individual
// failures are logged and skipped.
func (r *Room) applyReceipts(batch map[ref.EventID][]wire.Receipt) {
	for target, receipts := range batch {
		if target.IsZero() {
			r.log.Warn("skipping receipt batch without target event")
			continue
		}
		for _, receipt := range receipts {
			r.applyReceipt(receipt)
		}
	}
}

// applyReceipt stores one user's receipt, keeping at most one per
// user. The stored receipt is superseded only when the new target is
// chronologically later than the previous one, compared by timeline
// position with pending positions normalized to the sentinel.
// Superseding removes the user from the old target's reverse index and
// notifies subscribers of both the old and the new target.
func (r *Room) applyReceipt(receipt wire.Receipt) {
	if receipt.UserID.IsZero() || receipt.EventID.IsZero() {
		r.log.Warn("skipping malformed receipt",
			"user_id", receipt.UserID, "event_id", receipt.EventID)
		return
	}

	previous := r.receipts[receipt.UserID]
	if previous != nil {
		if previous.EventID == receipt.EventID {
			// Same target: keep the newer timestamp, no index motion.
			if receipt.Timestamp > previous.Timestamp {
				previous.Timestamp = receipt.Timestamp
			}
			return
		}
		if !r.receiptLater(receipt, *previous) {
			return
		}
		r.removeReadBy(previous.EventID, receipt.UserID)
		r.notifyReceipts(previous.EventID)
	}

	stored := receipt
	r.receipts[receipt.UserID] = &stored
	r.readBy[receipt.EventID] = append(r.readBy[receipt.EventID], receipt.UserID)
	r.notifyReceipts(receipt.EventID)
}

// receiptLater reports whether candidate's target is chronologically
// later than current's. Positions are compared when both targets are
// in the timeline; otherwise the receipt timestamps decide, since a
// target evicted by GC or not yet loaded has no position.
func (r *Room) receiptLater(candidate, current wire.Receipt) bool {
	candidatePos, candidateKnown := r.receiptPosition(candidate.EventID)
	currentPos, currentKnown := r.receiptPosition(current.EventID)
	if candidateKnown && currentKnown {
		return candidatePos > currentPos
	}
	return candidate.Timestamp > current.Timestamp
}

// receiptPosition resolves a receipt target to its timeline position,
// normalizing pending overlay positions to the sentinel.
func (r *Room) receiptPosition(eventID ref.EventID) (ref.TimelinePosition, bool) {
	row, known := r.eventsByID[eventID]
	if !known {
		return 0, false
	}
	position, inTimeline := r.timelineRows[row.RowID]
	if !inTimeline {
		return 0, false
	}
	if position.IsPending() {
		return receiptSentinel, true
	}
	return position, true
}

// removeReadBy deletes one user from a target's reverse index.
func (r *Room) removeReadBy(eventID ref.EventID, userID ref.UserID) {
	users := r.readBy[eventID]
	for i, user := range users {
		if user == userID {
			r.readBy[eventID] = append(users[:i], users[i+1:]...)
			break
		}
	}
	if len(r.readBy[eventID]) == 0 {
		delete(r.readBy, eventID)
	}
}

// notifyReceipts queues a reverse-index snapshot broadcast for one
// target event.
func (r *Room) notifyReceipts(eventID ref.EventID) {
	e, ok := r.receiptEmitters[eventID]
	if !ok {
		return
	}
	snapshot := make([]ref.UserID, len(r.readBy[eventID]))
	copy(snapshot, r.readBy[eventID])
	r.store.queueNotify(func() { e.Set(snapshot) })
}
