// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/json"
	"log/slog"

	"github.com/lattice-im/lattice/lib/emitter"
	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

// MemberCompleteness is the tri-state completeness of a room's member
// map. It never regresses from Full or Partial back to Unloaded except
// through explicit garbage collection.
type MemberCompleteness int

const (
	// MembersUnloaded means no member fetch has happened; only members
	// incidentally present in sync deltas are known.
	MembersUnloaded MemberCompleteness = iota
	// MembersPartial means a lazy-loaded member fetch completed: the
	// members relevant to the loaded timeline are present.
	MembersPartial
	// MembersFull means the complete member list was fetched.
	MembersFull
)

// stateKey addresses one entry of the state index and its emitter.
type stateKey struct {
	Type ref.EventType
	Key  string
}

// Room is the per-room state store: timeline ordering, event indices,
// state index, receipts, pending overlay, derived caches, and GC
// bookkeeping. A Room exclusively owns its indices; all mutation
// arrives through the owning Store's apply entry points while the
// Store lock is held.
type Room struct {
	ID ref.RoomID

	store *Store
	log   *slog.Logger

	meta *wire.RoomMeta

	// timeline holds confirmed entries strictly increasing by
	// position, followed by pending overlay entries (positions at or
	// above ref.PendingPositionBase) in send-initiation order.
	timeline []wire.TimelineEntry
	// timelineRows maps each timeline member to its position for O(1)
	// dedupe and receipt comparison.
	timelineRows map[ref.RowID]ref.TimelinePosition

	eventsByRowID map[ref.RowID]*wire.Event
	eventsByID    map[ref.EventID]*wire.Event

	// stateIndex maps event type → state key → RowID of the current
	// state event of that kind (latest by RowID).
	stateIndex  map[ref.EventType]map[string]ref.RowID
	stateLoaded bool
	members     MemberCompleteness

	// pendingRows is the set of unconfirmed overlay rows.
	pendingRows map[ref.RowID]struct{}
	// nextPendingOffset numbers synthetic positions upward from
	// ref.PendingPositionBase, preserving relative send order.
	nextPendingOffset ref.TimelinePosition

	// pendingEdits defers edit folding for edits that arrived before
	// their target: target EventID → edit row IDs already seen.
	pendingEdits map[ref.EventID][]ref.RowID

	// receipts holds the latest receipt per user; readBy is the
	// reverse index from target event to the users whose latest
	// receipt points at it.
	receipts map[ref.UserID]*wire.Receipt
	readBy   map[ref.EventID][]ref.UserID

	accountData map[ref.EventType]json.RawMessage
	typing      []ref.UserID

	// Derived caches, memoized and invalidated on exactly the state
	// mutations that can affect them.
	memberListCache []MemberEntry
	memberListValid bool
	emotePackCache  map[string]*wire.EmotePackContent

	// Emitters, created lazily per key.
	timelineEmitter *emitter.Emitter[[]wire.TimelineEntry]
	metaEmitter     *emitter.Emitter[wire.RoomMeta]
	typingEmitter   *emitter.Emitter[[]ref.UserID]
	eventEmitters   map[ref.EventID]*emitter.Emitter[wire.Event]
	stateEmitters   map[stateKey]*emitter.Emitter[wire.Event]
	receiptEmitters map[ref.EventID]*emitter.Emitter[[]ref.UserID]
}

func newRoom(store *Store, id ref.RoomID) *Room {
	return &Room{
		ID:              id,
		store:           store,
		log:             store.log.With("room_id", id),
		timelineRows:    make(map[ref.RowID]ref.TimelinePosition),
		eventsByRowID:   make(map[ref.RowID]*wire.Event),
		eventsByID:      make(map[ref.EventID]*wire.Event),
		stateIndex:      make(map[ref.EventType]map[string]ref.RowID),
		pendingRows:     make(map[ref.RowID]struct{}),
		pendingEdits:    make(map[ref.EventID][]ref.RowID),
		receipts:        make(map[ref.UserID]*wire.Receipt),
		readBy:          make(map[ref.EventID][]ref.UserID),
		accountData:     make(map[ref.EventType]json.RawMessage),
		emotePackCache:  make(map[string]*wire.EmotePackContent),
		timelineEmitter: emitter.New[[]wire.TimelineEntry](),
		metaEmitter:     emitter.New[wire.RoomMeta](),
		typingEmitter:   emitter.New[[]ref.UserID](),
		eventEmitters:   make(map[ref.EventID]*emitter.Emitter[wire.Event]),
		stateEmitters:   make(map[stateKey]*emitter.Emitter[wire.Event]),
		receiptEmitters: make(map[ref.EventID]*emitter.Emitter[[]ref.UserID]),
	}
}

// applyEvent is the idempotent upsert into both event indices. Called
// with the Store lock held. pending marks a locally originated
// unconfirmed overlay row; applying a confirmed row for a RowID that
// was pending removes it from the pending set (promotion is handled by
// the timeline code).
func (r *Room) applyEvent(evt *wire.Event, pending bool) *wire.Event {
	if evt.RowID.IsZero() || evt.ID.IsZero() {
		r.log.Warn("skipping event without identity",
			"rowid", int64(evt.RowID), "event_id", evt.ID)
		return nil
	}

	unwrapDecrypted(evt)

	row := r.eventsByRowID[evt.RowID]
	if row == nil {
		// Copy so later in-place mutation never aliases caller data.
		copied := *evt
		row = &copied
		row.Pending = pending
		r.eventsByRowID[row.RowID] = row
		r.eventsByID[row.ID] = row
	} else {
		// Same row identity mutated in place: a decryption-completed
		// or edited version of a row we already hold. Bookkeeping the
		// backend doesn't resend (LastEditRowID) is preserved.
		lastEdit := row.LastEditRowID
		wasPending := row.Pending
		*row = *evt
		if row.LastEditRowID.IsZero() {
			row.LastEditRowID = lastEdit
		}
		row.Pending = wasPending && pending
	}

	if !pending {
		delete(r.pendingRows, row.RowID)
		row.Pending = false
	} else if _, stillPending := r.pendingRows[row.RowID]; !stillPending && row.Pending {
		r.pendingRows[row.RowID] = struct{}{}
	}

	r.foldEdit(row)
	r.notifyEvent(row)
	return row
}

// unwrapDecrypted swaps a resolved payload into the visible
// type/content while retaining the original ciphertext.
func unwrapDecrypted(evt *wire.Event) {
	if len(evt.Decrypted) == 0 {
		return
	}
	evt.Encrypted = evt.Content
	evt.Content = evt.Decrypted
	if evt.DecryptedType != "" {
		evt.Type = evt.DecryptedType
	}
	evt.Decrypted = nil
	evt.DecryptedType = ""
	evt.DecryptionError = ""
}

// foldEdit maintains LastEditRowID in both arrival orders. If row is
// an edit whose target is known, the target's pointer advances; if the
// target is not yet known, the edit is remembered and folded when the
// target arrives. If row itself has deferred edits, they fold now.
func (r *Room) foldEdit(row *wire.Event) {
	if row.RelationType == wire.RelationTypeReplace && !row.RelatesTo.IsZero() {
		if target, known := r.eventsByID[row.RelatesTo]; known {
			if row.RowID > target.LastEditRowID {
				target.LastEditRowID = row.RowID
				r.notifyEvent(target)
			}
		} else {
			r.pendingEdits[row.RelatesTo] = append(r.pendingEdits[row.RelatesTo], row.RowID)
			r.store.scheduleEventFetch(r.ID, row.RelatesTo)
		}
	}

	if deferred, ok := r.pendingEdits[row.ID]; ok {
		delete(r.pendingEdits, row.ID)
		for _, editRowID := range deferred {
			if editRowID > row.LastEditRowID {
				row.LastEditRowID = editRowID
			}
		}
		r.notifyEvent(row)
	}
}

// setState points the state index entry for (eventType, key) at rowID
// and invalidates exactly the derived caches that mutation can affect.
func (r *Room) setState(eventType ref.EventType, key string, rowID ref.RowID) {
	byKey := r.stateIndex[eventType]
	if byKey == nil {
		byKey = make(map[string]ref.RowID)
		r.stateIndex[eventType] = byKey
	}
	if byKey[key] == rowID {
		return
	}
	byKey[key] = rowID

	switch eventType {
	case wire.EventTypeMember, wire.EventTypePowerLevels:
		r.memberListValid = false
	case wire.EventTypeRoomEmotes:
		delete(r.emotePackCache, key)
		r.store.invalidateAccountPacks()
	}
	r.notifyState(eventType, key)
}

// applyStateDelta applies a sync delta's state index changes.
// Individual malformed entries are logged and skipped; they never
// abort the batch.
func (r *Room) applyStateDelta(delta map[ref.EventType]map[string]ref.RowID) {
	for eventType, byKey := range delta {
		if eventType == "" {
			r.log.Warn("skipping state delta entry without event type")
			continue
		}
		for key, rowID := range byKey {
			r.setState(eventType, key, rowID)
		}
	}
}

// applyFullState replaces the entire state index from a full-state
// refresh. partialMembers marks a lazy-loaded fetch: previously loaded
// membership is then preserved rather than discarded, because a
// partial fetch must never regress a previously complete (or partial)
// view.
func (r *Room) applyFullState(events []*wire.Event, partialMembers bool) error {
	// Preserve the old member submap for the partial case before the
	// index is replaced.
	var oldMembers map[string]ref.RowID
	if partialMembers {
		oldMembers = r.stateIndex[wire.EventTypeMember]
	}

	fresh := make(map[ref.EventType]map[string]ref.RowID)
	for _, evt := range events {
		if evt.StateKey == nil {
			return &ConsistencyViolation{
				RoomID: r.ID,
				Reason: "state refresh contained event without state key",
			}
		}
		applied := r.applyEvent(evt, false)
		if applied == nil {
			continue
		}
		byKey := fresh[applied.Type]
		if byKey == nil {
			byKey = make(map[string]ref.RowID)
			fresh[applied.Type] = byKey
		}
		if applied.RowID > byKey[*evt.StateKey] {
			byKey[*evt.StateKey] = applied.RowID
		}
	}

	if partialMembers {
		members := fresh[wire.EventTypeMember]
		if members == nil {
			members = make(map[string]ref.RowID)
			fresh[wire.EventTypeMember] = members
		}
		for key, rowID := range oldMembers {
			if _, present := members[key]; !present {
				members[key] = rowID
			}
		}
	}

	r.stateIndex = fresh
	r.stateLoaded = true
	if partialMembers {
		if r.members == MembersUnloaded {
			r.members = MembersPartial
		}
	} else {
		r.members = MembersFull
	}

	r.memberListValid = false
	r.emotePackCache = make(map[string]*wire.EmotePackContent)
	r.store.invalidateAccountPacks()
	for key := range r.stateEmitters {
		r.notifyState(key.Type, key.Key)
	}
	return nil
}

// applyStateSnapshot replaces the entire state index from a sync
// delta marked as a full snapshot. Keys absent from the snapshot are
// dropped; changed keys notify. Membership completeness is untouched:
// a snapshot reflects what the backend holds, not how it was fetched.
func (r *Room) applyStateSnapshot(snapshot map[ref.EventType]map[string]ref.RowID) {
	fresh := make(map[ref.EventType]map[string]ref.RowID, len(snapshot))
	for eventType, byKey := range snapshot {
		if eventType == "" {
			r.log.Warn("skipping state snapshot entry without event type")
			continue
		}
		copied := make(map[string]ref.RowID, len(byKey))
		for key, rowID := range byKey {
			copied[key] = rowID
		}
		fresh[eventType] = copied
	}

	old := r.stateIndex
	r.stateIndex = fresh
	r.stateLoaded = true
	r.memberListValid = false
	r.emotePackCache = make(map[string]*wire.EmotePackContent)
	r.store.invalidateAccountPacks()

	for eventType, byKey := range old {
		for key := range byKey {
			if _, kept := fresh[eventType][key]; !kept {
				r.notifyState(eventType, key)
			}
		}
	}
	for eventType, byKey := range fresh {
		for key, rowID := range byKey {
			if old[eventType][key] != rowID {
				r.notifyState(eventType, key)
			}
		}
	}
}

// StateRowID returns the RowID of the current state event for
// (eventType, key), or zero when absent.
func (r *Room) stateRowID(eventType ref.EventType, key string) ref.RowID {
	return r.stateIndex[eventType][key]
}

// stateEvent returns the current state event for (eventType, key), or
// nil when the index has no entry or the row is not loaded.
func (r *Room) stateEvent(eventType ref.EventType, key string) *wire.Event {
	rowID := r.stateRowID(eventType, key)
	if rowID.IsZero() {
		return nil
	}
	return r.eventsByRowID[rowID]
}

// displayContent returns the visible content of a row: the latest
// edit's replacement content when an edit has folded in, the original
// content otherwise. The original is always retained on the row
// itself.
func (r *Room) displayContent(row *wire.Event) json.RawMessage {
	if row.LastEditRowID.IsZero() {
		return row.Content
	}
	edit := r.eventsByRowID[row.LastEditRowID]
	if edit == nil {
		return row.Content
	}
	if replacement := wire.EditNewContent(edit.Content); replacement != nil {
		return replacement
	}
	return row.Content
}

// notifyEvent queues a notification on the per-event emitter, if one
// exists. Snapshots are value copies taken at queue time.
func (r *Room) notifyEvent(row *wire.Event) {
	e, ok := r.eventEmitters[row.ID]
	if !ok {
		return
	}
	snapshot := *row
	snapshot.Content = r.displayContent(row)
	r.store.queueNotify(func() { e.Set(snapshot) })
}

// notifyState queues a notification on the per-state-key emitter, if
// one exists.
func (r *Room) notifyState(eventType ref.EventType, key string) {
	e, ok := r.stateEmitters[stateKey{Type: eventType, Key: key}]
	if !ok {
		return
	}
	if row := r.stateEvent(eventType, key); row != nil {
		snapshot := *row
		r.store.queueNotify(func() { e.Set(snapshot) })
	}
}

// notifyTimeline queues a timeline snapshot broadcast.
func (r *Room) notifyTimeline() {
	snapshot := make([]wire.TimelineEntry, len(r.timeline))
	copy(snapshot, r.timeline)
	e := r.timelineEmitter
	r.store.queueNotify(func() { e.Set(snapshot) })
}

// notifyMeta queues a meta snapshot broadcast.
func (r *Room) notifyMeta() {
	if r.meta == nil {
		return
	}
	snapshot := *r.meta
	e := r.metaEmitter
	r.store.queueNotify(func() { e.Set(snapshot) })
}
