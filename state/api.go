// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/json"

	"github.com/lattice-im/lattice/lib/emitter"
	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

// Read accessors and subscriptions. All of them lock through the
// owning store, return value snapshots, and never expose index
// internals. Emitters created here are seeded with the current value,
// so Subscribe always replays something current.

// Meta returns a snapshot of the room metadata, or nil before the
// first sync delta for the room.
func (r *Room) Meta() *wire.RoomMeta {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.meta == nil {
		return nil
	}
	snapshot := *r.meta
	return &snapshot
}

// Timeline returns a snapshot of the display timeline: confirmed
// entries ascending, then the pending overlay in send order.
func (r *Room) Timeline() []wire.TimelineEntry {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	snapshot := make([]wire.TimelineEntry, len(r.timeline))
	copy(snapshot, r.timeline)
	return snapshot
}

// Event returns a display snapshot of one event by ID: content is the
// folded edit replacement when one applies. Nil when unknown.
func (r *Room) Event(id ref.EventID) *wire.Event {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.eventSnapshot(r.eventsByID[id])
}

// EventByRow is Event keyed by storage position.
func (r *Room) EventByRow(rowID ref.RowID) *wire.Event {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.eventSnapshot(r.eventsByRowID[rowID])
}

func (r *Room) eventSnapshot(row *wire.Event) *wire.Event {
	if row == nil {
		return nil
	}
	snapshot := *row
	snapshot.Content = r.displayContent(row)
	return &snapshot
}

// OriginalContent returns the pre-edit content of an event, or nil
// when unknown. The display path folds edits in; this is the way back.
func (r *Room) OriginalContent(id ref.EventID) json.RawMessage {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	row := r.eventsByID[id]
	if row == nil {
		return nil
	}
	return row.Content
}

// State returns a snapshot of the current state event for (eventType,
// key), or nil when absent or not loaded.
func (r *Room) State(eventType ref.EventType, key string) *wire.Event {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.eventSnapshot(r.stateEvent(eventType, key))
}

// StateLoaded reports whether a full state refresh has been applied.
func (r *Room) StateLoaded() bool {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.stateLoaded
}

// Members returns the sorted member list: power level descending, then
// display name. Completeness reports how much of the membership is
// actually loaded.
func (r *Room) Members() ([]MemberEntry, MemberCompleteness) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cached := r.memberList()
	snapshot := make([]MemberEntry, len(cached))
	copy(snapshot, cached)
	return snapshot, r.members
}

// EmotePack returns the parsed emote pack at one state key, or nil.
func (r *Room) EmotePack(key string) *wire.EmotePackContent {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.emotePack(key)
}

// EmotePacks returns all emote packs in the room, keyed by state key.
// Unparseable packs are absent.
func (r *Room) EmotePacks() map[string]*wire.EmotePackContent {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	packs := make(map[string]*wire.EmotePackContent)
	for _, key := range r.emotePackKeys() {
		if pack := r.emotePack(key); pack != nil {
			packs[key] = pack
		}
	}
	return packs
}

// ReadBy returns the users whose latest receipt points at the event.
func (r *Room) ReadBy(id ref.EventID) []ref.UserID {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	users := r.readBy[id]
	snapshot := make([]ref.UserID, len(users))
	copy(snapshot, users)
	return snapshot
}

// Receipt returns one user's latest receipt in the room, or nil.
func (r *Room) Receipt(userID ref.UserID) *wire.Receipt {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	receipt := r.receipts[userID]
	if receipt == nil {
		return nil
	}
	snapshot := *receipt
	return &snapshot
}

// AccountData returns the raw per-room account data of one type.
func (r *Room) AccountData(eventType ref.EventType) json.RawMessage {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.accountData[eventType]
}

// Typing returns the users currently typing.
func (r *Room) Typing() []ref.UserID {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	snapshot := make([]ref.UserID, len(r.typing))
	copy(snapshot, r.typing)
	return snapshot
}

// TimelineEmitter returns the timeline snapshot emitter.
func (r *Room) TimelineEmitter() *emitter.Emitter[[]wire.TimelineEntry] {
	return r.timelineEmitter
}

// MetaEmitter returns the metadata emitter.
func (r *Room) MetaEmitter() *emitter.Emitter[wire.RoomMeta] {
	return r.metaEmitter
}

// TypingEmitter returns the typing-set emitter.
func (r *Room) TypingEmitter() *emitter.Emitter[[]ref.UserID] {
	return r.typingEmitter
}

// EventEmitter returns the emitter for one event, creating it seeded
// with the current display snapshot when the event is known.
func (r *Room) EventEmitter(id ref.EventID) *emitter.Emitter[wire.Event] {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e, ok := r.eventEmitters[id]
	if !ok {
		if row := r.eventsByID[id]; row != nil {
			e = emitter.NewWithValue(*r.eventSnapshot(row))
		} else {
			e = emitter.New[wire.Event]()
		}
		r.eventEmitters[id] = e
	}
	return e
}

// StateEmitter returns the emitter for one state key, creating it
// seeded with the current state event when loaded.
func (r *Room) StateEmitter(eventType ref.EventType, key string) *emitter.Emitter[wire.Event] {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	k := stateKey{Type: eventType, Key: key}
	e, ok := r.stateEmitters[k]
	if !ok {
		if row := r.stateEvent(eventType, key); row != nil {
			e = emitter.NewWithValue(*r.eventSnapshot(row))
		} else {
			e = emitter.New[wire.Event]()
		}
		r.stateEmitters[k] = e
	}
	return e
}

// ReceiptsEmitter returns the reverse-index emitter for one target
// event, creating it seeded with the current reader set.
func (r *Room) ReceiptsEmitter(id ref.EventID) *emitter.Emitter[[]ref.UserID] {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e, ok := r.receiptEmitters[id]
	if !ok {
		current := make([]ref.UserID, len(r.readBy[id]))
		copy(current, r.readBy[id])
		e = emitter.NewWithValue(current)
		r.receiptEmitters[id] = e
	}
	return e
}
