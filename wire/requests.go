// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"

	"github.com/lattice-im/lattice/lib/ref"
)

// SendMessageRequest is the payload of a send_message request. The
// backend stores the row immediately and replies with the pending
// RowID-bearing record; remote confirmation follows as a
// send_complete push.
type SendMessageRequest struct {
	RoomID  ref.RoomID     `json:"room_id"`
	Content MessageContent `json:"content"`

	// TransactionID is client-generated and echoed on the confirmed
	// record.
	TransactionID string `json:"transaction_id"`

	// ReplyTo optionally names the event being replied to. The target
	// may not be known locally yet.
	ReplyTo ref.EventID `json:"reply_to,omitempty"`
}

// SendMessageResponse is the reply payload: the stored row, flagged
// pending unless the backend confirmed synchronously.
type SendMessageResponse struct {
	Event   *Event `json:"event"`
	Pending bool   `json:"pending"`
}

// SendEventRequest is the payload of a send_event request: an
// arbitrary timeline event type. Same lifecycle as send_message.
type SendEventRequest struct {
	RoomID        ref.RoomID      `json:"room_id"`
	Type          ref.EventType   `json:"type"`
	Content       json.RawMessage `json:"content"`
	TransactionID string          `json:"transaction_id"`
	ReplyTo       ref.EventID     `json:"reply_to,omitempty"`
}

// SetStateRequest is the payload of a set_state request. State sends
// have no optimistic overlay: the new state lands through sync.
type SetStateRequest struct {
	RoomID   ref.RoomID      `json:"room_id"`
	Type     ref.EventType   `json:"type"`
	StateKey string          `json:"state_key"`
	Content  json.RawMessage `json:"content"`
}

// SetStateResponse acknowledges a state send.
type SetStateResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// GetProfileRequest asks for a user's global profile.
type GetProfileRequest struct {
	UserID ref.UserID `json:"user_id"`
}

// ProfileResponse is a user's global profile.
type ProfileResponse struct {
	Displayname string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// EnsureGroupSessionRequest asks the backend to establish the
// outbound group session for an encrypted room ahead of the first
// send, so the send itself does not bear the session setup latency.
type EnsureGroupSessionRequest struct {
	RoomID ref.RoomID `json:"room_id"`
}

// PaginateRequest asks for history older than the oldest locally
// loaded timeline entry.
type PaginateRequest struct {
	RoomID ref.RoomID `json:"room_id"`
	// From is the pagination token captured from the room meta.
	From  string `json:"from,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// PaginateResponse carries the older history batch, newest-first as
// the backend walks backward. The engine reverses it before splicing
// at the front of the timeline.
type PaginateResponse struct {
	Events []*Event `json:"events"`
	// HasMore is false when the start of history was reached.
	HasMore bool `json:"has_more"`
	// From is the token for the next older batch.
	From string `json:"from,omitempty"`
}

// GetRoomStateRequest asks for a full state refresh of one room.
type GetRoomStateRequest struct {
	RoomID ref.RoomID `json:"room_id"`

	// FetchMembers requests the complete member list. When false the
	// backend returns lazy-loaded (partial) membership only.
	FetchMembers bool `json:"fetch_members,omitempty"`

	// Refetch forces the backend to re-request state from the server
	// rather than serving its cache.
	Refetch bool `json:"refetch,omitempty"`
}

// GetRoomStateResponse is the full (or lazily partial) state snapshot.
type GetRoomStateResponse struct {
	Events []*Event `json:"events"`
}

// GetEventRequest fetches specific event rows by row ID, used to
// resolve references (edits, replies) to events not yet known locally.
type GetEventRequest struct {
	RoomID   ref.RoomID    `json:"room_id"`
	EventIDs []ref.EventID `json:"event_ids"`
}

// GetEventResponse carries the requested rows; unknown IDs are simply
// absent.
type GetEventResponse struct {
	Events []*Event `json:"events"`
}

// MarkReadRequest publishes a read receipt.
type MarkReadRequest struct {
	RoomID      ref.RoomID  `json:"room_id"`
	EventID     ref.EventID `json:"event_id"`
	ReceiptType string      `json:"receipt_type"`
}

// SetTypingRequest reports the local user's typing state.
type SetTypingRequest struct {
	RoomID ref.RoomID `json:"room_id"`
	// Timeout is how long the indicator should last, in milliseconds.
	// Zero or negative stops typing.
	Timeout int `json:"timeout"`
}
