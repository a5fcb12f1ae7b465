// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

// collect compacts the room to its preview-only footprint: the preview
// event (plus the edit it displays through), the preview sender's
// membership row, custom emote state, and the unconfirmed pending
// overlay survive; every other event and state entry is dropped.
// Member completeness regresses to unloaded and the pagination cursor
// is cleared, so the next focus loads state and history from scratch.
// Called with the Store lock held. Returns the dropped event and state
// entry counts.
func (r *Room) collect() (eventsDropped, stateDropped int) {
	retain := make(map[ref.RowID]struct{})

	var previewSender ref.UserID
	if r.meta != nil && !r.meta.PreviewEventRowID.IsZero() {
		retain[r.meta.PreviewEventRowID] = struct{}{}
		if preview := r.eventsByRowID[r.meta.PreviewEventRowID]; preview != nil {
			previewSender = preview.Sender
			if !preview.LastEditRowID.IsZero() {
				retain[preview.LastEditRowID] = struct{}{}
			}
		}
	}
	if !previewSender.IsZero() {
		if rowID := r.stateRowID(wire.EventTypeMember, previewSender.String()); !rowID.IsZero() {
			retain[rowID] = struct{}{}
		}
	}
	for _, rowID := range r.stateIndex[wire.EventTypeRoomEmotes] {
		retain[rowID] = struct{}{}
	}
	for rowID := range r.pendingRows {
		retain[rowID] = struct{}{}
	}

	for rowID, row := range r.eventsByRowID {
		if _, keep := retain[rowID]; keep {
			continue
		}
		delete(r.eventsByRowID, rowID)
		if current := r.eventsByID[row.ID]; current == row {
			delete(r.eventsByID, row.ID)
		}
		eventsDropped++
	}

	// Deferred edits whose edit rows were dropped can never fold.
	for target, edits := range r.pendingEdits {
		kept := edits[:0]
		for _, editRowID := range edits {
			if _, alive := r.eventsByRowID[editRowID]; alive {
				kept = append(kept, editRowID)
			}
		}
		if len(kept) == 0 {
			delete(r.pendingEdits, target)
		} else {
			r.pendingEdits[target] = kept
		}
	}

	// The confirmed timeline goes; the pending overlay stays in send
	// order.
	pending := make([]wire.TimelineEntry, 0, len(r.pendingRows))
	for _, entry := range r.timeline {
		if _, keep := r.pendingRows[entry.RowID]; keep {
			pending = append(pending, entry)
			continue
		}
		delete(r.timelineRows, entry.RowID)
	}
	r.timeline = pending

	// Only the emote and preview-sender state entries survive. The
	// membership completeness regression here is the one sanctioned
	// path back to unloaded.
	fresh := make(map[ref.EventType]map[string]ref.RowID)
	if emotes := r.stateIndex[wire.EventTypeRoomEmotes]; len(emotes) > 0 {
		kept := make(map[string]ref.RowID, len(emotes))
		for key, rowID := range emotes {
			kept[key] = rowID
		}
		fresh[wire.EventTypeRoomEmotes] = kept
	}
	if !previewSender.IsZero() {
		if rowID := r.stateRowID(wire.EventTypeMember, previewSender.String()); !rowID.IsZero() {
			fresh[wire.EventTypeMember] = map[string]ref.RowID{previewSender.String(): rowID}
		}
	}
	for eventType, byKey := range r.stateIndex {
		stateDropped += len(byKey) - len(fresh[eventType])
	}
	r.stateIndex = fresh
	r.stateLoaded = false
	r.members = MembersUnloaded

	if r.meta != nil && r.meta.PrevBatch != "" {
		r.meta.PrevBatch = ""
		r.notifyMeta()
	}

	// Receipts are kept: they are bounded at one per user, and the
	// position fallback handles targets that are no longer loaded.

	r.memberListCache = nil
	r.memberListValid = false
	r.emotePackCache = make(map[string]*wire.EmotePackContent)

	r.notifyTimeline()
	return eventsDropped, stateDropped
}
