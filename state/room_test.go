// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

func editEvent(roomID ref.RoomID, rowID int64, target ref.EventID, newBody string) *wire.Event {
	content := fmt.Sprintf(
		`{"msgtype":"m.text","body":"* %s","m.new_content":{"msgtype":"m.text","body":%q}}`,
		newBody, newBody)
	return &wire.Event{
		RowID:        ref.RowID(rowID),
		RoomID:       roomID,
		ID:           ref.MustParseEventID(fmt.Sprintf("$event-%d", rowID)),
		Sender:       alice,
		Type:         wire.EventTypeMessage,
		Content:      json.RawMessage(content),
		RelatesTo:    target,
		RelationType: wire.RelationTypeReplace,
	}
}

func stateEvent(roomID ref.RoomID, rowID int64, eventType ref.EventType, key string, content string) *wire.Event {
	return &wire.Event{
		RowID:    ref.RowID(rowID),
		RoomID:   roomID,
		ID:       ref.MustParseEventID(fmt.Sprintf("$event-%d", rowID)),
		Sender:   alice,
		Type:     eventType,
		StateKey: &key,
		Content:  json.RawMessage(content),
	}
}

func TestEditFoldsTargetFirst(t *testing.T) {
	s, room := newTimelineRoom(t)
	target := msgEvent(roomAlpha, 1, 10, alice, "typo")
	mutate(s, func() {
		room.applyEvent(target, false)
		room.applyEvent(editEvent(roomAlpha, 2, target.ID, "fixed"), false)
	})

	row := room.Event(target.ID)
	if row == nil || row.LastEditRowID != 2 {
		t.Fatalf("target row = %+v, want LastEditRowID 2", row)
	}
	var content wire.MessageContent
	if err := json.Unmarshal(row.Content, &content); err != nil {
		t.Fatalf("display content: %v", err)
	}
	if content.Body != "fixed" {
		t.Errorf("display body = %q, want %q", content.Body, "fixed")
	}
	if original := room.OriginalContent(target.ID); original == nil {
		t.Error("original content lost after edit")
	} else {
		var orig wire.MessageContent
		if err := json.Unmarshal(original, &orig); err != nil || orig.Body != "typo" {
			t.Errorf("original body = %q (%v), want %q", orig.Body, err, "typo")
		}
	}
}

func TestEditFoldsEditFirst(t *testing.T) {
	s, room := newTimelineRoom(t)
	target := msgEvent(roomAlpha, 1, 10, alice, "typo")
	mutate(s, func() {
		room.applyEvent(editEvent(roomAlpha, 2, target.ID, "fixed"), false)
		room.applyEvent(target, false)
	})

	row := room.Event(target.ID)
	if row == nil || row.LastEditRowID != 2 {
		t.Fatalf("target row = %+v, want deferred edit folded", row)
	}
	var content wire.MessageContent
	if err := json.Unmarshal(row.Content, &content); err != nil || content.Body != "fixed" {
		t.Errorf("display body = %q (%v), want %q", content.Body, err, "fixed")
	}
}

func TestLaterEditWins(t *testing.T) {
	s, room := newTimelineRoom(t)
	target := msgEvent(roomAlpha, 1, 10, alice, "v1")
	mutate(s, func() {
		room.applyEvent(target, false)
		room.applyEvent(editEvent(roomAlpha, 3, target.ID, "v3"), false)
		// An older edit arriving late must not regress the pointer.
		room.applyEvent(editEvent(roomAlpha, 2, target.ID, "v2"), false)
	})

	row := room.Event(target.ID)
	if row.LastEditRowID != 3 {
		t.Errorf("LastEditRowID = %d, want 3", row.LastEditRowID)
	}
}

func TestReapplyPreservesEditPointer(t *testing.T) {
	s, room := newTimelineRoom(t)
	target := msgEvent(roomAlpha, 1, 10, alice, "typo")
	mutate(s, func() {
		room.applyEvent(target, false)
		room.applyEvent(editEvent(roomAlpha, 2, target.ID, "fixed"), false)
		// The backend resends the target without edit bookkeeping.
		room.applyEvent(msgEvent(roomAlpha, 1, 10, alice, "typo"), false)
	})

	if row := room.Event(target.ID); row.LastEditRowID != 2 {
		t.Errorf("LastEditRowID = %d after re-apply, want 2", row.LastEditRowID)
	}
}

func TestStateDeltaIndexesLatest(t *testing.T) {
	s, room := newTimelineRoom(t)
	mutate(s, func() {
		room.applyEvent(stateEvent(roomAlpha, 1, "m.room.name", "", `{"name":"Old"}`), false)
		room.applyStateDelta(map[ref.EventType]map[string]ref.RowID{
			"m.room.name": {"": 1},
		})
		room.applyEvent(stateEvent(roomAlpha, 2, "m.room.name", "", `{"name":"New"}`), false)
		room.applyStateDelta(map[ref.EventType]map[string]ref.RowID{
			"m.room.name": {"": 2},
		})
	})

	row := room.State("m.room.name", "")
	if row == nil || row.RowID != 2 {
		t.Fatalf("state row = %+v, want row 2", row)
	}
}

func TestFullStateReplacesIndex(t *testing.T) {
	s, room := newTimelineRoom(t)
	mutate(s, func() {
		room.applyEvent(stateEvent(roomAlpha, 1, "m.room.name", "", `{"name":"Old"}`), false)
		room.applyStateDelta(map[ref.EventType]map[string]ref.RowID{
			"m.room.name": {"": 1},
		})
	})

	mutate(s, func() {
		err := room.applyFullState([]*wire.Event{
			stateEvent(roomAlpha, 2, "m.room.topic", "", `{"topic":"T"}`),
		}, false)
		if err != nil {
			t.Fatalf("applyFullState: %v", err)
		}
	})

	if row := room.State("m.room.name", ""); row != nil {
		t.Errorf("stale state entry survived full refresh: %+v", row)
	}
	if row := room.State("m.room.topic", ""); row == nil {
		t.Error("fresh state entry missing after full refresh")
	}
	if !room.StateLoaded() {
		t.Error("StateLoaded() = false after full refresh")
	}
}

func TestFullStateRejectsNonStateEvent(t *testing.T) {
	s, room := newTimelineRoom(t)
	var err error
	mutate(s, func() {
		err = room.applyFullState([]*wire.Event{msgEvent(roomAlpha, 1, 10, alice, "not state")}, false)
	})
	if !IsConsistencyViolation(err) {
		t.Fatalf("applyFullState error = %v, want ConsistencyViolation", err)
	}
}

func TestPartialStatePreservesLoadedMembers(t *testing.T) {
	s, room := newTimelineRoom(t)
	memberContent := `{"membership":"join","displayname":"Alice"}`
	mutate(s, func() {
		err := room.applyFullState([]*wire.Event{
			stateEvent(roomAlpha, 1, wire.EventTypeMember, alice.String(), memberContent),
		}, false)
		if err != nil {
			t.Fatalf("applyFullState: %v", err)
		}
	})
	s.mu.Lock()
	completeness := room.members
	s.mu.Unlock()
	if completeness != MembersFull {
		t.Fatalf("completeness = %d, want full", completeness)
	}

	// A later lazy-loaded refresh carries only bob. Alice must survive
	// and completeness must not regress below partial knowledge.
	mutate(s, func() {
		err := room.applyFullState([]*wire.Event{
			stateEvent(roomAlpha, 2, wire.EventTypeMember, bob.String(), `{"membership":"join","displayname":"Bob"}`),
		}, true)
		if err != nil {
			t.Fatalf("applyFullState: %v", err)
		}
	})

	if row := room.State(wire.EventTypeMember, alice.String()); row == nil {
		t.Error("previously loaded member dropped by partial refresh")
	}
	if row := room.State(wire.EventTypeMember, bob.String()); row == nil {
		t.Error("lazily loaded member missing")
	}
}

func TestMemberCompletenessNeverRegresses(t *testing.T) {
	s, room := newTimelineRoom(t)
	mutate(s, func() {
		if err := room.applyFullState(nil, false); err != nil {
			t.Fatalf("applyFullState: %v", err)
		}
	})
	mutate(s, func() {
		if err := room.applyFullState(nil, true); err != nil {
			t.Fatalf("applyFullState: %v", err)
		}
	})
	s.mu.Lock()
	completeness := room.members
	s.mu.Unlock()
	if completeness != MembersFull {
		t.Errorf("completeness regressed to %d after partial refresh", completeness)
	}
}

func TestMemberListSortedByPowerThenName(t *testing.T) {
	s, room := newTimelineRoom(t)
	carol := ref.MustParseUserID("@carol:lattice.test")
	mutate(s, func() {
		err := room.applyFullState([]*wire.Event{
			stateEvent(roomAlpha, 1, wire.EventTypeMember, alice.String(), `{"membership":"join","displayname":"alice"}`),
			stateEvent(roomAlpha, 2, wire.EventTypeMember, bob.String(), `{"membership":"join","displayname":"bob"}`),
			stateEvent(roomAlpha, 3, wire.EventTypeMember, carol.String(), `{"membership":"join","displayname":"carol"}`),
			stateEvent(roomAlpha, 4, wire.EventTypePowerLevels, "", fmt.Sprintf(`{"users":{%q:100},"users_default":0}`, carol.String())),
			stateEvent(roomAlpha, 5, wire.EventTypeMember, "@dave:lattice.test", `{"membership":"leave"}`),
		}, false)
		if err != nil {
			t.Fatalf("applyFullState: %v", err)
		}
	})

	members, completeness := room.Members()
	if completeness != MembersFull {
		t.Errorf("completeness = %d, want full", completeness)
	}
	if len(members) != 3 {
		t.Fatalf("members = %+v, want 3 joined", members)
	}
	if members[0].UserID != carol || members[0].PowerLevel != 100 {
		t.Errorf("members[0] = %+v, want carol at 100", members[0])
	}
	if members[1].UserID != alice || members[2].UserID != bob {
		t.Errorf("name order = %v, %v", members[1].UserID, members[2].UserID)
	}
}

func TestMemberListCacheInvalidatedByMemberChange(t *testing.T) {
	s, room := newTimelineRoom(t)
	mutate(s, func() {
		err := room.applyFullState([]*wire.Event{
			stateEvent(roomAlpha, 1, wire.EventTypeMember, alice.String(), `{"membership":"join","displayname":"alice"}`),
		}, false)
		if err != nil {
			t.Fatalf("applyFullState: %v", err)
		}
	})
	if members, _ := room.Members(); len(members) != 1 {
		t.Fatalf("members = %+v", members)
	}

	mutate(s, func() {
		room.applyEvent(stateEvent(roomAlpha, 2, wire.EventTypeMember, bob.String(), `{"membership":"join","displayname":"bob"}`), false)
		room.applyStateDelta(map[ref.EventType]map[string]ref.RowID{
			wire.EventTypeMember: {bob.String(): 2},
		})
	})
	if members, _ := room.Members(); len(members) != 2 {
		t.Errorf("members after join = %+v, want 2", members)
	}
}

func TestEmotePackParsedAndCached(t *testing.T) {
	s, room := newTimelineRoom(t)
	pack := `{"pack":{"display_name":"Blobs"},"images":{"blob":{"url":"mxc://lattice.test/blob"}}}`
	mutate(s, func() {
		room.applyEvent(stateEvent(roomAlpha, 1, wire.EventTypeRoomEmotes, "blobs", pack), false)
		room.applyStateDelta(map[ref.EventType]map[string]ref.RowID{
			wire.EventTypeRoomEmotes: {"blobs": 1},
		})
	})

	got := room.EmotePack("blobs")
	if got == nil || got.Pack.DisplayName != "Blobs" || len(got.Images) != 1 {
		t.Fatalf("EmotePack = %+v", got)
	}
	if room.EmotePack("missing") != nil {
		t.Error("EmotePack for unknown key != nil")
	}

	// Replacing the state key drops the cached parse.
	mutate(s, func() {
		room.applyEvent(stateEvent(roomAlpha, 2, wire.EventTypeRoomEmotes, "blobs", `{"pack":{"display_name":"Blobs v2"}}`), false)
		room.applyStateDelta(map[ref.EventType]map[string]ref.RowID{
			wire.EventTypeRoomEmotes: {"blobs": 2},
		})
	})
	if got := room.EmotePack("blobs"); got == nil || got.Pack.DisplayName != "Blobs v2" {
		t.Errorf("EmotePack after update = %+v", got)
	}
}

func TestStateSnapshotDropsAbsentKeys(t *testing.T) {
	s := newTestStore(t)
	delta := syncRoom(metaFor(roomAlpha, 1000),
		stateEvent(roomAlpha, 1, "m.room.name", "", `{"name":"Old"}`),
		stateEvent(roomAlpha, 2, "m.room.topic", "", `{"topic":"T"}`))
	delta.State = map[ref.EventType]map[string]ref.RowID{
		"m.room.name":  {"": 1},
		"m.room.topic": {"": 2},
	}
	s.ApplySync(oneRoomSync(roomAlpha, delta))
	room := mustRoom(t, s, roomAlpha)

	snapshot := syncRoom(metaFor(roomAlpha, 2000))
	snapshot.State = map[ref.EventType]map[string]ref.RowID{
		"m.room.topic": {"": 2},
	}
	snapshot.StateFull = true
	s.ApplySync(oneRoomSync(roomAlpha, snapshot))

	if row := room.State("m.room.name", ""); row != nil {
		t.Errorf("key absent from snapshot survived: %+v", row)
	}
	if row := room.State("m.room.topic", ""); row == nil {
		t.Error("key present in snapshot missing")
	}
}
