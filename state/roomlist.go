// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"sort"

	"github.com/lattice-im/lattice/lib/emitter"
	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

// RoomListEntry is one row of the sorted room list projection.
type RoomListEntry struct {
	RoomID           ref.RoomID
	Name             string
	Avatar           string
	SortingTimestamp int64
	Unread           wire.UnreadCounts

	// Preview is the one-line preview event, when loaded.
	Preview *wire.Event
}

// RoomList returns the room list emitter. The broadcast slice is
// ascending by SortingTimestamp (most recent room last).
func (s *Store) RoomList() *emitter.Emitter[[]RoomListEntry] {
	return s.roomListEmitter
}

// listed reports whether the room belongs in the room list. Spaces and
// other non-default creation types are hidden, as are rooms upgraded
// away: a room whose tombstone names a known replacement that points
// back at it is hidden, and a room that a known create event names as
// its predecessor is treated as replaced even if its own tombstone has
// not been observed yet. Both observation orders of an upgrade converge
// on the successor being the one visible room. A tombstone naming an
// unrelated room, one whose own predecessor pointer does not resolve
// back, hides nothing.
func (s *Store) listed(room *Room) bool {
	if room.meta == nil {
		return false
	}
	if cc := room.meta.CreationContent; cc != nil && cc.Type != "" {
		return false
	}
	if t := room.meta.Tombstone; t != nil && !t.ReplacementRoom.IsZero() {
		if successor := s.rooms[t.ReplacementRoom]; successor != nil && successor.meta != nil {
			cc := successor.meta.CreationContent
			if cc != nil && cc.Predecessor != nil && cc.Predecessor.RoomID == room.ID {
				return false
			}
		}
	}
	for _, other := range s.rooms {
		if other == room || other.meta == nil {
			continue
		}
		cc := other.meta.CreationContent
		if cc != nil && cc.Predecessor != nil && cc.Predecessor.RoomID == room.ID {
			return false
		}
	}
	return true
}

// rebuildRoomList constructs the list from scratch with a single sort.
// Used for the initial snapshot; incremental deltas maintain order
// with targeted remove-and-reinsert instead.
func (s *Store) rebuildRoomList() {
	s.roomList = s.roomList[:0]
	for id, room := range s.rooms {
		if s.listed(room) {
			s.roomList = append(s.roomList, id)
		}
	}
	sort.Slice(s.roomList, func(i, j int) bool {
		return s.sortKey(s.roomList[i]) < s.sortKey(s.roomList[j])
	})
	s.notifyRoomList()
}

func (s *Store) sortKey(id ref.RoomID) int64 {
	if room := s.rooms[id]; room != nil && room.meta != nil {
		return room.meta.SortingTimestamp
	}
	return 0
}

// updateRoomListEntry repositions one room after its meta refreshed.
// Activity nearly always moves a room toward the recent end, so the
// insertion scan starts from the tail.
func (s *Store) updateRoomListEntry(room *Room, wasKnown bool, oldSort int64) {
	present := false
	if wasKnown {
		present = s.listIndex(room.ID) >= 0
	}
	shouldList := s.listed(room)

	if present && !shouldList {
		s.removeFromRoomList(room.ID)
		return
	}
	if !shouldList {
		return
	}

	newSort := room.meta.SortingTimestamp
	if present && newSort == oldSort {
		// Position unchanged; content (name, unread, preview) may
		// still have changed.
		s.notifyRoomList()
		return
	}
	if present {
		idx := s.listIndex(room.ID)
		s.roomList = append(s.roomList[:idx], s.roomList[idx+1:]...)
	}

	// A room entering or moving in the list can hide its predecessor.
	if cc := room.meta.CreationContent; cc != nil && cc.Predecessor != nil {
		if idx := s.listIndex(cc.Predecessor.RoomID); idx >= 0 {
			s.roomList = append(s.roomList[:idx], s.roomList[idx+1:]...)
		}
	}

	pos := len(s.roomList)
	for pos > 0 && s.sortKey(s.roomList[pos-1]) > newSort {
		pos--
	}
	s.roomList = append(s.roomList, ref.RoomID{})
	copy(s.roomList[pos+1:], s.roomList[pos:])
	s.roomList[pos] = room.ID
	s.notifyRoomList()
}

func (s *Store) listIndex(id ref.RoomID) int {
	for i, candidate := range s.roomList {
		if candidate == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeFromRoomList(id ref.RoomID) {
	idx := s.listIndex(id)
	if idx < 0 {
		return
	}
	s.roomList = append(s.roomList[:idx], s.roomList[idx+1:]...)
	s.notifyRoomList()
}

// notifyRoomList queues a full projected snapshot broadcast.
func (s *Store) notifyRoomList() {
	snapshot := make([]RoomListEntry, 0, len(s.roomList))
	for _, id := range s.roomList {
		room := s.rooms[id]
		if room == nil || room.meta == nil {
			continue
		}
		entry := RoomListEntry{
			RoomID:           id,
			SortingTimestamp: room.meta.SortingTimestamp,
			Unread:           room.meta.Unread(),
		}
		if room.meta.Name != nil {
			entry.Name = *room.meta.Name
		}
		if room.meta.Avatar != nil {
			entry.Avatar = *room.meta.Avatar
		}
		if !room.meta.PreviewEventRowID.IsZero() {
			if row := room.eventsByRowID[room.meta.PreviewEventRowID]; row != nil {
				preview := *row
				preview.Content = room.displayContent(row)
				entry.Preview = &preview
			}
		}
		snapshot = append(snapshot, entry)
	}
	e := s.roomListEmitter
	s.queueNotify(func() { e.Set(snapshot) })
}
