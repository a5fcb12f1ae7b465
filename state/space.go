// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"github.com/lattice-im/lattice/lib/emitter"
	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

// smallSpaceThreshold bounds the in-place union fast path. A space
// whose descendant set outgrew it is recomputed in full instead; the
// fast path exists for the common case of a handful of rooms joining.
const smallSpaceThreshold = 64

// isSpace reports whether the node has space semantics: it carries
// child edges, or its known creation type says so.
func (s *Store) isSpace(id ref.RoomID) bool {
	if _, ok := s.spaceEdges[id]; ok {
		return true
	}
	room := s.rooms[id]
	if room == nil || room.meta == nil || room.meta.CreationContent == nil {
		return false
	}
	return room.meta.CreationContent.Type == wire.RoomTypeSpace
}

// applySpaceEdges installs replacement child-edge sets and recomputes
// whatever they invalidate. Edges may form cycles; every traversal
// carries a visited set, so propagation terminates and each node is
// counted once.
func (s *Store) applySpaceEdges(edges map[ref.RoomID][]wire.SpaceEdge, topLevel []ref.RoomID) {
	fastPath := true
	for spaceID, children := range edges {
		old := s.spaceEdges[spaceID]
		if !s.pureRoomAdditions(spaceID, old, children) {
			fastPath = false
		}
		copied := make([]wire.SpaceEdge, len(children))
		copy(copied, children)
		s.spaceEdges[spaceID] = copied
	}

	if fastPath && len(edges) > 0 {
		for spaceID, children := range edges {
			s.unionNewRooms(spaceID, children)
		}
	} else if len(edges) > 0 {
		s.recomputeSpaces()
	}

	if topLevel != nil {
		s.topLevelSpaces = make([]ref.RoomID, len(topLevel))
		copy(s.topLevelSpaces, topLevel)
		snapshot := make([]ref.RoomID, len(topLevel))
		copy(snapshot, topLevel)
		e := s.spacesEmitter
		s.queueNotify(func() { e.Set(snapshot) })
	}
}

// pureRoomAdditions reports whether the replacement edge set only adds
// leaf rooms to what the space already had: no removals, no new nested
// spaces. Only then is the in-place union safe.
func (s *Store) pureRoomAdditions(spaceID ref.RoomID, old, replacement []wire.SpaceEdge) bool {
	if len(s.spaceDescendants[spaceID]) > smallSpaceThreshold {
		return false
	}
	known := make(map[ref.RoomID]struct{}, len(old))
	for _, edge := range old {
		known[edge.ChildID] = struct{}{}
	}
	seen := 0
	for _, edge := range replacement {
		if _, ok := known[edge.ChildID]; ok {
			seen++
			continue
		}
		if s.isSpace(edge.ChildID) {
			return false
		}
	}
	// Any old edge missing from the replacement is a removal.
	return seen == len(known)
}

// unionNewRooms folds newly added leaf rooms into the space's
// flattened set and every ancestor's, walking parent links upward with
// a visited set.
func (s *Store) unionNewRooms(spaceID ref.RoomID, children []wire.SpaceEdge) {
	s.rebuildParents()
	for _, edge := range children {
		if s.isSpace(edge.ChildID) {
			continue
		}
		visited := make(map[ref.RoomID]struct{})
		s.addDescendant(spaceID, edge.ChildID, visited)
	}
	s.recountSpaceUnread()
}

func (s *Store) addDescendant(spaceID, roomID ref.RoomID, visited map[ref.RoomID]struct{}) {
	if _, done := visited[spaceID]; done {
		return
	}
	visited[spaceID] = struct{}{}
	set := s.spaceDescendants[spaceID]
	if set == nil {
		set = make(map[ref.RoomID]struct{})
		s.spaceDescendants[spaceID] = set
	}
	set[roomID] = struct{}{}
	for parent := range s.spaceParents[spaceID] {
		s.addDescendant(parent, roomID, visited)
	}
}

// rebuildParents derives the upward links from the edge map.
func (s *Store) rebuildParents() {
	s.spaceParents = make(map[ref.RoomID]map[ref.RoomID]struct{}, len(s.spaceEdges))
	for spaceID, children := range s.spaceEdges {
		for _, edge := range children {
			parents := s.spaceParents[edge.ChildID]
			if parents == nil {
				parents = make(map[ref.RoomID]struct{})
				s.spaceParents[edge.ChildID] = parents
			}
			parents[spaceID] = struct{}{}
		}
	}
}

// recomputeSpaces rebuilds every flattened descendant set bottom-up.
// The full recompute runs on structural changes (removals, nested
// space edges); pure additions take the union fast path instead.
func (s *Store) recomputeSpaces() {
	s.rebuildParents()
	s.spaceDescendants = make(map[ref.RoomID]map[ref.RoomID]struct{}, len(s.spaceEdges))
	for spaceID := range s.spaceEdges {
		visited := make(map[ref.RoomID]struct{})
		s.spaceDescendants[spaceID] = s.flatten(spaceID, visited)
	}
	s.recountSpaceUnread()
}

// flatten collects the transitive leaf rooms under one space. A child
// seen on the current path is skipped, so cyclic edges converge
// instead of recursing forever.
func (s *Store) flatten(spaceID ref.RoomID, visited map[ref.RoomID]struct{}) map[ref.RoomID]struct{} {
	visited[spaceID] = struct{}{}
	set := make(map[ref.RoomID]struct{})
	for _, edge := range s.spaceEdges[spaceID] {
		if _, cyclic := visited[edge.ChildID]; cyclic {
			continue
		}
		if s.isSpace(edge.ChildID) {
			for roomID := range s.flatten(edge.ChildID, visited) {
				set[roomID] = struct{}{}
			}
			continue
		}
		set[edge.ChildID] = struct{}{}
	}
	return set
}

// recountSpaceUnread recomputes every space's unread totals from the
// member rooms' metas. Running deltas are only trustworthy while
// membership is stable, so any membership change lands here.
func (s *Store) recountSpaceUnread() {
	for spaceID, members := range s.spaceDescendants {
		var total wire.UnreadCounts
		for roomID := range members {
			room := s.rooms[roomID]
			if room == nil || room.meta == nil {
				continue
			}
			counts := room.meta.Unread()
			total.Highlights += counts.Highlights
			total.Notifications += counts.Notifications
			total.Messages += counts.Messages
		}
		s.setSpaceUnread(spaceID, total)
	}
}

// propagateUnread applies one room's unread transition as a running
// delta to every space containing it, clamped at zero.
func (s *Store) propagateUnread(roomID ref.RoomID, old, updated wire.UnreadCounts) {
	for spaceID, members := range s.spaceDescendants {
		if _, contains := members[roomID]; !contains {
			continue
		}
		total := s.spaceUnread[spaceID]
		total.Highlights = clampZero(total.Highlights + updated.Highlights - old.Highlights)
		total.Notifications = clampZero(total.Notifications + updated.Notifications - old.Notifications)
		total.Messages = clampZero(total.Messages + updated.Messages - old.Messages)
		s.setSpaceUnread(spaceID, total)
	}
}

func clampZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// setSpaceUnread stores a space total and broadcasts only on change.
func (s *Store) setSpaceUnread(spaceID ref.RoomID, total wire.UnreadCounts) {
	if s.spaceUnread[spaceID] == total {
		return
	}
	s.spaceUnread[spaceID] = total
	if e, ok := s.spaceUnreadEmit[spaceID]; ok {
		snapshot := total
		s.queueNotify(func() { e.Set(snapshot) })
	}
}

// TopLevelSpaces returns the root-space list emitter.
func (s *Store) TopLevelSpaces() *emitter.Emitter[[]ref.RoomID] {
	return s.spacesEmitter
}

// SpaceChildren returns a snapshot of one space's direct child edges.
func (s *Store) SpaceChildren(spaceID ref.RoomID) []wire.SpaceEdge {
	s.mu.Lock()
	defer s.mu.Unlock()
	children := s.spaceEdges[spaceID]
	snapshot := make([]wire.SpaceEdge, len(children))
	copy(snapshot, children)
	return snapshot
}

// SpaceContains reports whether the room is in the space's flattened
// descendant set.
func (s *Store) SpaceContains(spaceID, roomID ref.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.spaceDescendants[spaceID][roomID]
	return ok
}

// SpaceRooms returns a snapshot of the flattened room set of a space.
func (s *Store) SpaceRooms(spaceID ref.RoomID) []ref.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.spaceDescendants[spaceID]
	snapshot := make([]ref.RoomID, 0, len(members))
	for roomID := range members {
		snapshot = append(snapshot, roomID)
	}
	return snapshot
}

// SpaceUnread returns the unread-total emitter for one space, creating
// it seeded with the current total.
func (s *Store) SpaceUnread(spaceID ref.RoomID) *emitter.Emitter[wire.UnreadCounts] {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.spaceUnreadEmit[spaceID]
	if !ok {
		e = emitter.NewWithValue(s.spaceUnread[spaceID])
		s.spaceUnreadEmit[spaceID] = e
	}
	return e
}
