// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"testing"

	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

// mutate runs a mutation against the room under the store lock and
// flushes the queued notifications, the way an apply entry point does.
func mutate(s *Store, fn func()) {
	s.mu.Lock()
	fn()
	s.finish()
}

func newTimelineRoom(t *testing.T) (*Store, *Room) {
	t.Helper()
	s := newTestStore(t)
	s.ApplySync(oneRoomSync(roomAlpha, syncRoom(metaFor(roomAlpha, 1000))))
	return s, mustRoom(t, s, roomAlpha)
}

func positions(timeline []wire.TimelineEntry) []int64 {
	out := make([]int64, len(timeline))
	for i, entry := range timeline {
		out[i] = int64(entry.Position)
	}
	return out
}

func TestAppendOutOfOrderSorts(t *testing.T) {
	s, room := newTimelineRoom(t)
	mutate(s, func() {
		room.applyEvent(msgEvent(roomAlpha, 3, 30, alice, "c"), false)
		room.applyEvent(msgEvent(roomAlpha, 1, 10, alice, "a"), false)
		room.applyEvent(msgEvent(roomAlpha, 2, 20, alice, "b"), false)
		room.appendTimeline([]wire.TimelineEntry{
			{Position: 30, RowID: 3},
			{Position: 10, RowID: 1},
			{Position: 20, RowID: 2},
		})
	})

	got := positions(room.Timeline())
	want := []int64{10, 20, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("positions = %v, want %v", got, want)
		}
	}
}

func TestAppendDuplicateEntryIgnored(t *testing.T) {
	s, room := newTimelineRoom(t)
	entry := wire.TimelineEntry{Position: 10, RowID: 1}
	mutate(s, func() {
		room.applyEvent(msgEvent(roomAlpha, 1, 10, alice, "a"), false)
		room.appendTimeline([]wire.TimelineEntry{entry})
		room.appendTimeline([]wire.TimelineEntry{entry})
	})
	if got := room.Timeline(); len(got) != 1 {
		t.Errorf("timeline = %v, want one entry", got)
	}
}

func TestResetReplacesConfirmedKeepsPending(t *testing.T) {
	s, room := newTimelineRoom(t)
	mutate(s, func() {
		room.applyEvent(msgEvent(roomAlpha, 1, 10, alice, "old"), false)
		room.appendTimeline([]wire.TimelineEntry{{Position: 10, RowID: 1}})
		room.applyEvent(msgEvent(roomAlpha, 50, 0, alice, "unsent"), true)
		room.addPendingEntry(50)
	})

	mutate(s, func() {
		room.applyEvent(msgEvent(roomAlpha, 2, 20, alice, "new"), false)
		room.resetTimeline([]wire.TimelineEntry{{Position: 20, RowID: 2}})
	})

	timeline := room.Timeline()
	if len(timeline) != 2 {
		t.Fatalf("timeline = %v, want confirmed + pending", timeline)
	}
	if timeline[0].RowID != 2 {
		t.Errorf("confirmed entry = %v, want row 2", timeline[0])
	}
	if timeline[1].RowID != 50 || !timeline[1].Position.IsPending() {
		t.Errorf("pending overlay lost: %v", timeline[1])
	}
}

func TestResetConfirmingPendingRowPromotesIt(t *testing.T) {
	s, room := newTimelineRoom(t)
	mutate(s, func() {
		room.applyEvent(msgEvent(roomAlpha, 50, 0, alice, "unsent"), true)
		room.addPendingEntry(50)
	})

	mutate(s, func() {
		room.resetTimeline([]wire.TimelineEntry{{Position: 20, RowID: 50}})
	})

	timeline := room.Timeline()
	if len(timeline) != 1 || timeline[0].Position != 20 {
		t.Fatalf("timeline = %v, want row 50 at position 20", timeline)
	}
	s.mu.Lock()
	_, stillPending := room.pendingRows[50]
	s.mu.Unlock()
	if stillPending {
		t.Error("row still in pending set after reset confirmed it")
	}
}

func TestPrependSplicesOlderHistory(t *testing.T) {
	s, room := newTimelineRoom(t)
	mutate(s, func() {
		room.applyEvent(msgEvent(roomAlpha, 10, 100, alice, "recent"), false)
		room.appendTimeline([]wire.TimelineEntry{{Position: 100, RowID: 10}})
	})

	mutate(s, func() {
		room.applyEvent(msgEvent(roomAlpha, 1, 10, alice, "oldest"), false)
		room.applyEvent(msgEvent(roomAlpha, 2, 20, alice, "older"), false)
		room.prependTimeline([]wire.TimelineEntry{
			{Position: 10, RowID: 1},
			{Position: 20, RowID: 2},
		})
	})

	got := positions(room.Timeline())
	want := []int64{10, 20, 100}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("positions = %v, want %v", got, want)
		}
	}
}

func TestPendingOverlayOrderedBySend(t *testing.T) {
	s, room := newTimelineRoom(t)
	mutate(s, func() {
		room.applyEvent(msgEvent(roomAlpha, 51, 0, alice, "first"), true)
		room.addPendingEntry(51)
		room.applyEvent(msgEvent(roomAlpha, 52, 0, alice, "second"), true)
		room.addPendingEntry(52)
	})

	timeline := room.Timeline()
	if len(timeline) != 2 {
		t.Fatalf("timeline = %v", timeline)
	}
	if timeline[0].RowID != 51 || timeline[1].RowID != 52 {
		t.Errorf("pending order = %v, want send order", timeline)
	}
	if timeline[0].Position >= timeline[1].Position {
		t.Errorf("pending positions not increasing: %v", timeline)
	}
	if !timeline[0].Position.IsPending() {
		t.Errorf("overlay positions must be pending: %v", timeline)
	}
}

func TestPromotionMovesPendingToTruePosition(t *testing.T) {
	s, room := newTimelineRoom(t)
	mutate(s, func() {
		room.applyEvent(msgEvent(roomAlpha, 1, 10, bob, "theirs"), false)
		room.appendTimeline([]wire.TimelineEntry{{Position: 10, RowID: 1}})
		room.applyEvent(msgEvent(roomAlpha, 50, 0, alice, "mine"), true)
		room.addPendingEntry(50)
	})

	// Confirmation through a later sync delta carrying the true entry.
	confirmed := msgEvent(roomAlpha, 50, 20, alice, "mine")
	s.ApplySync(oneRoomSync(roomAlpha, syncRoom(metaFor(roomAlpha, 2000), confirmed)))

	got := positions(room.Timeline())
	want := []int64{10, 20}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("positions after promotion = %v, want %v", got, want)
	}
	row := room.EventByRow(50)
	if row == nil || row.Pending {
		t.Errorf("row still pending after promotion: %+v", row)
	}
}

func TestPromotionIdempotent(t *testing.T) {
	s, room := newTimelineRoom(t)
	mutate(s, func() {
		room.applyEvent(msgEvent(roomAlpha, 50, 0, alice, "mine"), true)
		room.addPendingEntry(50)
		room.promotePending(50, 20)
		room.promotePending(50, 20)
	})
	timeline := room.Timeline()
	if len(timeline) != 1 || timeline[0].Position != 20 {
		t.Errorf("timeline after double promotion = %v", timeline)
	}
}

// A confirmed entry can arrive through an append while the row sits in
// the pending overlay; the append must promote rather than duplicate.
func TestAppendConfirmsPendingRow(t *testing.T) {
	s, room := newTimelineRoom(t)
	mutate(s, func() {
		room.applyEvent(msgEvent(roomAlpha, 50, 0, alice, "mine"), true)
		room.addPendingEntry(50)
		room.appendTimeline([]wire.TimelineEntry{{Position: 30, RowID: 50}})
	})

	timeline := room.Timeline()
	if len(timeline) != 1 {
		t.Fatalf("timeline = %v, want single promoted entry", timeline)
	}
	if timeline[0].Position != 30 || timeline[0].Position.IsPending() {
		t.Errorf("entry = %v, want confirmed position 30", timeline[0])
	}
}

func TestOldestConfirmedSkipsOverlay(t *testing.T) {
	s, room := newTimelineRoom(t)
	mutate(s, func() {
		room.applyEvent(msgEvent(roomAlpha, 50, 0, alice, "mine"), true)
		room.addPendingEntry(50)
	})
	s.mu.Lock()
	_, ok := room.oldestConfirmed()
	s.mu.Unlock()
	if ok {
		t.Error("oldestConfirmed returned an overlay entry")
	}

	mutate(s, func() {
		room.applyEvent(msgEvent(roomAlpha, 1, 10, alice, "a"), false)
		room.appendTimeline([]wire.TimelineEntry{{Position: 10, RowID: 1}})
	})
	s.mu.Lock()
	oldest, ok := room.oldestConfirmed()
	s.mu.Unlock()
	if !ok || oldest.RowID != 1 {
		t.Errorf("oldestConfirmed = %v, %v", oldest, ok)
	}
}

func TestPendingPositionClassification(t *testing.T) {
	if ref.TimelinePosition(1 << 40).IsPending() {
		t.Error("large confirmed position classified as pending")
	}
	if !ref.PendingPositionBase.IsPending() {
		t.Error("base synthetic position not classified as pending")
	}
}
