// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

// fetchCoalesceWindow is how long queued missing-event references wait
// before flushing. One delta commonly references several missing
// events (reply chains, edit targets); the window turns those into one
// get_event request per room.
const fetchCoalesceWindow = 50 * time.Millisecond

// fetchTimeout bounds the background get_event requests.
const fetchTimeout = 30 * time.Second

func nowMillis() int64 { return time.Now().UnixMilli() }

// scheduleEventFetch queues a missing-event reference for a coalesced
// background fetch. Must be called with the store lock held. Duplicate
// references within a window collapse.
func (s *Store) scheduleEventFetch(roomID ref.RoomID, eventID ref.EventID) {
	if s.rpc == nil || eventID.IsZero() {
		return
	}
	pending := s.fetchPending[roomID]
	if pending == nil {
		pending = make(map[ref.EventID]struct{})
		s.fetchPending[roomID] = pending
	}
	pending[eventID] = struct{}{}
	if !s.fetchScheduled {
		s.fetchScheduled = true
		time.AfterFunc(fetchCoalesceWindow, s.flushEventFetches)
	}
}

// flushEventFetches drains the queued references and issues one
// get_event request per room. Runs on the timer goroutine; results are
// applied under the store lock like any other row. Fetch failures are
// logged and dropped — a reference that stays unresolved renders as
// such.
func (s *Store) flushEventFetches() {
	s.mu.Lock()
	batches := s.fetchPending
	s.fetchPending = make(map[ref.RoomID]map[ref.EventID]struct{})
	s.fetchScheduled = false
	s.mu.Unlock()

	for roomID, ids := range batches {
		eventIDs := make([]ref.EventID, 0, len(ids))
		for id := range ids {
			eventIDs = append(eventIDs, id)
		}
		s.fetchEvents(roomID, eventIDs)
	}
}

func (s *Store) fetchEvents(roomID ref.RoomID, eventIDs []ref.EventID) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	raw, err := s.rpc.Request(ctx, wire.CommandGetEvent, wire.GetEventRequest{
		RoomID:   roomID,
		EventIDs: eventIDs,
	})
	if err != nil {
		s.log.Warn("missing-event fetch failed",
			"room_id", roomID, "count", len(eventIDs), "error", err)
		return
	}
	var resp wire.GetEventResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.log.Warn("undecodable get_event response", "room_id", roomID, "error", err)
		return
	}

	s.mu.Lock()
	room := s.rooms[roomID]
	if room == nil {
		s.mu.Unlock()
		return
	}
	for _, evt := range resp.Events {
		room.applyEvent(evt, false)
	}
	s.finish()
}
