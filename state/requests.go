// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

// SendMessage initiates an optimistic message send. The backend stores
// the row synchronously and the returned event is the stored record,
// already visible in the room's timeline as a pending overlay entry
// when Pending is set. Confirmation arrives later through a
// send_complete push or a sync delta, whichever first; the second is a
// no-op.
func (s *Store) SendMessage(ctx context.Context, roomID ref.RoomID, content wire.MessageContent) (*wire.Event, error) {
	req := wire.SendMessageRequest{
		RoomID:        roomID,
		Content:       content,
		TransactionID: uuid.NewString(),
	}
	raw, err := s.rpc.Request(ctx, wire.CommandSendMessage, req)
	if err != nil {
		return nil, err
	}
	return s.applySendResponse(roomID, raw)
}

// SendEvent is SendMessage for an arbitrary timeline event type.
func (s *Store) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content json.RawMessage) (*wire.Event, error) {
	req := wire.SendEventRequest{
		RoomID:        roomID,
		Type:          eventType,
		Content:       content,
		TransactionID: uuid.NewString(),
	}
	raw, err := s.rpc.Request(ctx, wire.CommandSendEvent, req)
	if err != nil {
		return nil, err
	}
	return s.applySendResponse(roomID, raw)
}

func (s *Store) applySendResponse(roomID ref.RoomID, raw json.RawMessage) (*wire.Event, error) {
	var resp wire.SendMessageResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("state: decoding send response: %w", err)
	}
	if resp.Event == nil {
		return nil, fmt.Errorf("state: send response without event")
	}

	s.mu.Lock()
	room := s.rooms[roomID]
	if room == nil {
		room = newRoom(s, roomID)
		s.rooms[roomID] = room
	}
	applied := room.applyEvent(resp.Event, resp.Pending)
	if applied == nil {
		s.finish()
		return nil, fmt.Errorf("state: send response event missing identity")
	}
	// The confirmation may have raced ahead of this reply; trust the
	// row's pending flag, not the response's.
	if applied.Pending {
		if _, onTimeline := room.timelineRows[applied.RowID]; !onTimeline {
			room.addPendingEntry(applied.RowID)
		}
	} else if applied.TimelinePosition > 0 {
		room.appendTimeline([]wire.TimelineEntry{{
			Position: applied.TimelinePosition,
			RowID:    applied.RowID,
		}})
	}
	snapshot := *applied
	s.finish()
	return &snapshot, nil
}

// SetRoomState sends a state event. State sends have no optimistic
// overlay: the new state becomes visible when the sync delta carrying
// it arrives.
func (s *Store) SetRoomState(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content json.RawMessage) (ref.EventID, error) {
	req := wire.SetStateRequest{
		RoomID:   roomID,
		Type:     eventType,
		StateKey: stateKey,
		Content:  content,
	}
	raw, err := s.rpc.Request(ctx, wire.CommandSetState, req)
	if err != nil {
		return ref.EventID{}, err
	}
	var resp wire.SetStateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ref.EventID{}, fmt.Errorf("state: decoding set_state response: %w", err)
	}
	return resp.EventID, nil
}

// Paginate fetches one batch of history older than the oldest loaded
// entry and splices it at the front of the timeline. Returns whether
// more history remains.
//
// The shared indices are not held across the fetch. The oldest
// confirmed entry and the pagination token are captured before the
// request; if either changed when the response arrives — a concurrent
// sync reset the timeline or another pagination landed first — the
// result is discarded with a ConsistencyViolation and the caller may
// retry against the new state.
func (s *Store) Paginate(ctx context.Context, roomID ref.RoomID, limit int) (bool, error) {
	s.mu.Lock()
	room := s.rooms[roomID]
	if room == nil {
		s.mu.Unlock()
		return false, ErrRoomNotFound
	}
	oldest, hadOldest := room.oldestConfirmed()
	var from string
	if room.meta != nil {
		from = room.meta.PrevBatch
	}
	s.mu.Unlock()

	raw, err := s.rpc.Request(ctx, wire.CommandPaginate, wire.PaginateRequest{
		RoomID: roomID,
		From:   from,
		Limit:  limit,
	})
	if err != nil {
		return false, err
	}
	var resp wire.PaginateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, fmt.Errorf("state: decoding paginate response: %w", err)
	}

	s.mu.Lock()
	if s.rooms[roomID] != room {
		s.mu.Unlock()
		return false, ErrRoomNotFound
	}
	nowOldest, nowHas := room.oldestConfirmed()
	var nowFrom string
	if room.meta != nil {
		nowFrom = room.meta.PrevBatch
	}
	if nowHas != hadOldest || nowOldest != oldest || nowFrom != from {
		s.mu.Unlock()
		return false, &ConsistencyViolation{
			RoomID: roomID,
			Reason: "timeline changed during pagination",
		}
	}

	// The backend walks backward, newest-first; reverse into ascending
	// order before splicing.
	entries := make([]wire.TimelineEntry, 0, len(resp.Events))
	for i := len(resp.Events) - 1; i >= 0; i-- {
		applied := room.applyEvent(resp.Events[i], false)
		if applied == nil || applied.TimelinePosition == 0 {
			continue
		}
		entries = append(entries, wire.TimelineEntry{
			Position: applied.TimelinePosition,
			RowID:    applied.RowID,
		})
	}
	room.prependTimeline(entries)
	if room.meta != nil && room.meta.PrevBatch != resp.From {
		room.meta.PrevBatch = resp.From
		room.notifyMeta()
	}
	s.finish()
	return resp.HasMore, nil
}

// LoadRoomState fetches and installs a full state refresh. With
// fetchMembers the complete member list is loaded; without it the
// backend returns lazy-loaded membership and previously loaded members
// are preserved. Already-satisfied loads are a no-op.
func (s *Store) LoadRoomState(ctx context.Context, roomID ref.RoomID, fetchMembers bool) error {
	s.mu.Lock()
	room := s.rooms[roomID]
	if room == nil {
		s.mu.Unlock()
		return ErrRoomNotFound
	}
	if room.stateLoaded && (!fetchMembers || room.members == MembersFull) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	raw, err := s.rpc.Request(ctx, wire.CommandGetRoomState, wire.GetRoomStateRequest{
		RoomID:       roomID,
		FetchMembers: fetchMembers,
	})
	if err != nil {
		return err
	}
	var resp wire.GetRoomStateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("state: decoding get_room_state response: %w", err)
	}

	s.mu.Lock()
	if s.rooms[roomID] != room {
		s.mu.Unlock()
		return ErrRoomNotFound
	}
	err = room.applyFullState(resp.Events, !fetchMembers)
	s.finish()
	return err
}

// MarkRead publishes a read receipt and applies it locally without
// waiting for the echo, so the local read marker moves immediately.
func (s *Store) MarkRead(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, receiptType string) error {
	if _, err := s.rpc.Request(ctx, wire.CommandMarkRead, wire.MarkReadRequest{
		RoomID:      roomID,
		EventID:     eventID,
		ReceiptType: receiptType,
	}); err != nil {
		return err
	}

	s.mu.Lock()
	room := s.rooms[roomID]
	if room == nil {
		s.mu.Unlock()
		return nil
	}
	if userID, err := ref.ParseUserID(s.clientState.UserID); err == nil {
		room.applyReceipt(wire.Receipt{
			UserID:      userID,
			ReceiptType: receiptType,
			EventID:     eventID,
			Timestamp:   nowMillis(),
		})
	}
	s.finish()
	return nil
}

// SetTyping reports the local user's typing state. Timeout is in
// milliseconds; zero or negative stops.
func (s *Store) SetTyping(ctx context.Context, roomID ref.RoomID, timeoutMillis int) error {
	_, err := s.rpc.Request(ctx, wire.CommandSetTyping, wire.SetTypingRequest{
		RoomID:  roomID,
		Timeout: timeoutMillis,
	})
	return err
}

// GetProfile fetches a user's global profile.
func (s *Store) GetProfile(ctx context.Context, userID ref.UserID) (*wire.ProfileResponse, error) {
	raw, err := s.rpc.Request(ctx, wire.CommandGetProfile, wire.GetProfileRequest{UserID: userID})
	if err != nil {
		return nil, err
	}
	profile := &wire.ProfileResponse{}
	if err := json.Unmarshal(raw, profile); err != nil {
		return nil, fmt.Errorf("state: decoding get_profile response: %w", err)
	}
	return profile, nil
}

// EnsureGroupSession asks the backend to establish the outbound group
// session for an encrypted room ahead of the first send.
func (s *Store) EnsureGroupSession(ctx context.Context, roomID ref.RoomID) error {
	_, err := s.rpc.Request(ctx, wire.CommandEnsureGroupSession, wire.EnsureGroupSessionRequest{RoomID: roomID})
	return err
}
