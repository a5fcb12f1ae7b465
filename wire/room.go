// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"

	"github.com/lattice-im/lattice/lib/ref"
)

// RoomMeta is the backend's denormalized per-room metadata, delivered
// whole in every sync delta that touches the room. It is never a
// source of truth for timeline or state content — only for the fields
// that would otherwise require scanning state (name, avatar, unread
// counters, sort key, preview pointer).
type RoomMeta struct {
	ID ref.RoomID `json:"room_id"`

	// CreationContent is the m.room.create content. A non-empty Type
	// (e.g., "m.space") marks a non-default room that is hidden from
	// the room list.
	CreationContent *CreateContent `json:"creation_content,omitempty"`

	// Tombstone is the m.room.tombstone content when the room has been
	// upgraded away; ReplacementRoom names the successor.
	Tombstone *TombstoneContent `json:"tombstone,omitempty"`

	Name           *string `json:"name,omitempty"`
	Avatar         *string `json:"avatar,omitempty"`
	Topic          *string `json:"topic,omitempty"`
	CanonicalAlias *string `json:"canonical_alias,omitempty"`

	// DMUserID is set when the room is a direct chat.
	DMUserID *string `json:"dm_user_id,omitempty"`

	// EncryptionEvent is the raw m.room.encryption content when the
	// room is encrypted. Presence only matters for send behavior.
	EncryptionEvent json.RawMessage `json:"encryption,omitempty"`

	// PreviewEventRowID points at the event shown as the room's
	// one-line preview in the room list.
	PreviewEventRowID ref.RowID `json:"preview_event_rowid,omitempty"`

	// SortingTimestamp is the recency sort key for the room list,
	// ascending. Milliseconds.
	SortingTimestamp int64 `json:"sorting_timestamp"`

	UnreadHighlights    int `json:"unread_highlights,omitempty"`
	UnreadNotifications int `json:"unread_notifications,omitempty"`
	UnreadMessages      int `json:"unread_messages,omitempty"`

	// PrevBatch is the pagination token for fetching history older
	// than the oldest locally loaded timeline entry.
	PrevBatch string `json:"prev_batch,omitempty"`
}

// UnreadCounts bundles the three unread counters for comparison.
type UnreadCounts struct {
	Highlights    int
	Notifications int
	Messages      int
}

// Unread extracts the counters from the meta.
func (m *RoomMeta) Unread() UnreadCounts {
	return UnreadCounts{
		Highlights:    m.UnreadHighlights,
		Notifications: m.UnreadNotifications,
		Messages:      m.UnreadMessages,
	}
}

// SyncRoom is the per-room portion of a sync delta: everything that
// changed in one room since the previous delta.
type SyncRoom struct {
	// Meta is the full refreshed metadata. Always present.
	Meta *RoomMeta `json:"meta"`

	// Events are new or updated event rows. Applied before Timeline so
	// timeline entries never dangle.
	Events []*Event `json:"events,omitempty"`

	// Timeline is the new entries to append. Ignored content-wise when
	// Reset is set — then it is the entire replacement timeline.
	Timeline []TimelineEntry `json:"timeline,omitempty"`

	// Reset signals a server-side discontinuity: the local timeline is
	// discarded and replaced outright by Timeline.
	Reset bool `json:"reset,omitempty"`

	// State is the delta to the state index: event type → state key →
	// RowID of the new current state event.
	State map[ref.EventType]map[string]ref.RowID `json:"state,omitempty"`

	// StateFull, when set, means State is a complete replacement
	// snapshot rather than a delta (delivered after a full-state
	// refresh request).
	StateFull bool `json:"state_full,omitempty"`

	// AccountData is per-room account data, keyed by type.
	// Last-write-wins.
	AccountData map[ref.EventType]json.RawMessage `json:"account_data,omitempty"`

	// Receipts is the batch of receipt updates, keyed by target event.
	Receipts map[ref.EventID][]Receipt `json:"receipts,omitempty"`

	// Notifications lists the row IDs of events in this delta that
	// warrant a notification, subject to focus and permission state.
	Notifications []ref.RowID `json:"notifications,omitempty"`
}

// SpaceEdge is one child edge of a space: either a child room or a
// nested child space.
type SpaceEdge struct {
	ChildID ref.RoomID `json:"child_id"`

	// Order is the m.space.child ordering hint. Unused for flattening,
	// preserved for display.
	Order string `json:"order,omitempty"`
}

// SyncComplete is the payload of one sync_complete push: an initial
// snapshot (first push after connect) or an incremental delta.
type SyncComplete struct {
	// Since is the backend's sync position token for this delta.
	Since string `json:"since,omitempty"`

	// ClearState, when set, means the backend discarded its own state
	// and this delta is a full re-snapshot: all local rooms not named
	// here are gone.
	ClearState bool `json:"clear_state,omitempty"`

	// Rooms is the per-room delta map.
	Rooms map[ref.RoomID]*SyncRoom `json:"rooms,omitempty"`

	// LeftRooms names rooms departed since the previous delta.
	LeftRooms []ref.RoomID `json:"left_rooms,omitempty"`

	// AccountData is global account data, keyed by type.
	// Last-write-wins per type.
	AccountData map[ref.EventType]json.RawMessage `json:"account_data,omitempty"`

	// SpaceEdges carries the replacement child-edge sets of spaces
	// whose children changed in this delta.
	SpaceEdges map[ref.RoomID][]SpaceEdge `json:"space_edges,omitempty"`

	// TopLevelSpaces is the replacement ordered list of root spaces,
	// present only when it changed.
	TopLevelSpaces []ref.RoomID `json:"top_level_spaces,omitempty"`
}

// EventsDecrypted is the payload of an events_decrypted push: rows
// whose out-of-band decryption completed, already resolved.
type EventsDecrypted struct {
	RoomID ref.RoomID `json:"room_id"`
	Events []*Event   `json:"events"`

	// PreviewEventRowID optionally names a new preview candidate now
	// that its content is readable.
	PreviewEventRowID ref.RowID `json:"preview_event_rowid,omitempty"`
}

// SendComplete is the payload of a send_complete push: the confirmed
// record of a locally originated send, or its failure.
type SendComplete struct {
	Event *Event `json:"event"`
	Error string `json:"error,omitempty"`
}

// ClientState is the payload of a client_state push: login and
// verification status.
type ClientState struct {
	IsLoggedIn    bool   `json:"is_logged_in"`
	IsVerified    bool   `json:"is_verified"`
	UserID        string `json:"user_id,omitempty"`
	DeviceID      string `json:"device_id,omitempty"`
	HomeserverURL string `json:"homeserver_url,omitempty"`
}

// Typing is the payload of a typing push: the full replacement set of
// currently typing users in one room.
type Typing struct {
	RoomID  ref.RoomID   `json:"room_id"`
	UserIDs []ref.UserID `json:"user_ids"`
}
