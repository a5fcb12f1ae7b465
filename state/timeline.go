// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

// Timeline merge has three distinct policies:
//
//   - incremental sync APPENDS new entries (appendTimeline), replacing
//     the whole timeline outright when the delta signals a server-side
//     discontinuity (resetTimeline);
//   - pagination PREPENDS older history (prependTimeline) after the
//     caller reversed the newest-first batch;
//   - pending sends overlay synthetic entries above all confirmed
//     history (addPendingEntry) until promotion re-positions them at
//     their true location (promotePending).
//
// The invariant across all of them: entries are strictly increasing by
// position, with the pending overlay (positions at or above
// ref.PendingPositionBase) after all confirmed entries, in
// send-initiation order.

// confirmedLen returns the length of the confirmed prefix of the
// timeline (everything below the pending overlay).
func (r *Room) confirmedLen() int {
	n := len(r.timeline)
	for n > 0 && r.timeline[n-1].Position.IsPending() {
		n--
	}
	return n
}

// appendTimeline applies new sync entries to the tail of the confirmed
// region. Entries already present are skipped (idempotent); entries
// whose row is in the pending set promote that overlay row instead.
func (r *Room) appendTimeline(entries []wire.TimelineEntry) {
	changed := false
	for _, entry := range entries {
		if entry.RowID.IsZero() {
			r.log.Warn("skipping timeline entry without row ID",
				"position", int64(entry.Position))
			continue
		}
		if _, pending := r.pendingRows[entry.RowID]; pending {
			r.promotePending(entry.RowID, entry.Position)
			changed = true
			continue
		}
		if existing, present := r.timelineRows[entry.RowID]; present {
			if !existing.IsPending() {
				// Duplicate delivery of a confirmed entry: no-op.
				continue
			}
			// Confirmed entry for a row previously at a synthetic
			// position (promotion already recorded the confirmed row).
			r.promotePending(entry.RowID, entry.Position)
			changed = true
			continue
		}
		r.insertConfirmed(entry)
		changed = true
	}
	if changed {
		r.notifyTimeline()
	}
}

// resetTimeline discards confirmed history and replaces it with the
// delta's entries, used when the backend reports a discontinuity. The
// pending overlay survives, minus any rows the replacement confirms.
func (r *Room) resetTimeline(entries []wire.TimelineEntry) {
	var overlay []wire.TimelineEntry
	for _, entry := range r.timeline[r.confirmedLen():] {
		confirmed := false
		for _, replacement := range entries {
			if replacement.RowID == entry.RowID {
				confirmed = true
				break
			}
		}
		if confirmed {
			delete(r.pendingRows, entry.RowID)
			if row := r.eventsByRowID[entry.RowID]; row != nil {
				row.Pending = false
			}
		} else {
			overlay = append(overlay, entry)
		}
	}

	r.timeline = r.timeline[:0]
	r.timelineRows = make(map[ref.RowID]ref.TimelinePosition)
	for _, entry := range entries {
		if entry.RowID.IsZero() {
			continue
		}
		if _, present := r.timelineRows[entry.RowID]; present {
			continue
		}
		r.insertConfirmed(entry)
	}
	for _, entry := range overlay {
		r.timeline = append(r.timeline, entry)
		r.timelineRows[entry.RowID] = entry.Position
	}
	r.notifyTimeline()
}

// prependTimeline splices an older-history batch at the front. The
// caller has already reversed the backend's newest-first order, so
// entries arrive oldest-first and strictly increasing, all below the
// current oldest confirmed entry.
func (r *Room) prependTimeline(entries []wire.TimelineEntry) {
	fresh := make([]wire.TimelineEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.RowID.IsZero() {
			continue
		}
		if _, present := r.timelineRows[entry.RowID]; present {
			continue
		}
		fresh = append(fresh, entry)
	}
	if len(fresh) == 0 {
		return
	}
	r.timeline = append(fresh, r.timeline...)
	for _, entry := range fresh {
		r.timelineRows[entry.RowID] = entry.Position
	}
	r.notifyTimeline()
}

// addPendingEntry overlays a synthetic entry for an unconfirmed send.
// The position is above every confirmed position and above every
// earlier pending entry, preserving relative chronological order among
// pending sends.
func (r *Room) addPendingEntry(rowID ref.RowID) ref.TimelinePosition {
	if position, present := r.timelineRows[rowID]; present {
		return position
	}
	position := ref.PendingPositionBase + r.nextPendingOffset
	r.nextPendingOffset++
	r.timeline = append(r.timeline, wire.TimelineEntry{Position: position, RowID: rowID})
	r.timelineRows[rowID] = position
	r.notifyTimeline()
	return position
}

// promotePending re-positions a confirmed row from its synthetic
// overlay position to its true timeline location and removes it from
// the pending set. Idempotent: promoting an already promoted row is a
// no-op.
func (r *Room) promotePending(rowID ref.RowID, truePosition ref.TimelinePosition) {
	delete(r.pendingRows, rowID)
	if row := r.eventsByRowID[rowID]; row != nil {
		row.Pending = false
	}

	current, present := r.timelineRows[rowID]
	if present && !current.IsPending() {
		return
	}
	if present {
		// Remove the synthetic entry from the overlay region.
		for i := r.confirmedLen(); i < len(r.timeline); i++ {
			if r.timeline[i].RowID == rowID {
				r.timeline = append(r.timeline[:i], r.timeline[i+1:]...)
				break
			}
		}
		delete(r.timelineRows, rowID)
	}
	if truePosition > 0 {
		r.insertConfirmed(wire.TimelineEntry{Position: truePosition, RowID: rowID})
	}
	r.notifyTimeline()
}

// insertConfirmed places one confirmed entry at its sorted position in
// the confirmed region. Sync appends land at the tail, so the search
// starts there.
func (r *Room) insertConfirmed(entry wire.TimelineEntry) {
	confirmed := r.confirmedLen()
	at := confirmed
	for at > 0 && r.timeline[at-1].Position > entry.Position {
		at--
	}
	r.timeline = append(r.timeline, wire.TimelineEntry{})
	copy(r.timeline[at+1:], r.timeline[at:])
	r.timeline[at] = entry
	r.timelineRows[entry.RowID] = entry.Position
}

// oldestConfirmed returns the first confirmed entry, used to detect a
// timeline mutated underneath an in-flight pagination fetch.
func (r *Room) oldestConfirmed() (wire.TimelineEntry, bool) {
	if r.confirmedLen() == 0 {
		return wire.TimelineEntry{}, false
	}
	return r.timeline[0], true
}
