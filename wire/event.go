// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"

	"github.com/lattice-im/lattice/lib/ref"
)

// Event is one event row as the backend stores and serializes it.
// It is keyed two ways: by the globally unique EventID and by the
// per-room, backend-assigned, monotonically increasing RowID.
//
// The engine mutates rows in place after application: decrypted
// content is swapped in when an events_decrypted push resolves the
// ciphertext, and LastEditRowID is updated as edits fold in. The same
// row identity (RowID) is kept throughout.
type Event struct {
	// RowID is the storage position within the room. Assigned by the
	// backend; zero only on locally synthesized rows before the
	// backend echoes the real one.
	RowID ref.RowID `json:"rowid"`

	// TimelinePosition is the display-order position when the event is
	// a timeline member. Zero for events that are state-only.
	TimelinePosition ref.TimelinePosition `json:"timeline_rowid,omitempty"`

	RoomID   ref.RoomID    `json:"room_id"`
	ID       ref.EventID   `json:"event_id"`
	Sender   ref.UserID    `json:"sender"`
	Type     ref.EventType `json:"type"`
	StateKey *string       `json:"state_key,omitempty"`

	// Timestamp is the origin server timestamp in milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Content is the visible payload. For encrypted events that have
	// been resolved, the engine swaps the decrypted payload in here
	// and preserves the ciphertext in Encrypted.
	Content json.RawMessage `json:"content,omitempty"`

	// Encrypted is the original m.room.encrypted envelope, retained
	// after the decrypted payload has been swapped into Content.
	Encrypted json.RawMessage `json:"encrypted,omitempty"`

	// Decrypted and DecryptedType carry the resolved payload when the
	// backend delivers an event whose ciphertext it has already
	// decrypted. After application they are folded into Content/Type
	// and cleared.
	Decrypted     json.RawMessage `json:"decrypted,omitempty"`
	DecryptedType ref.EventType   `json:"decrypted_type,omitempty"`

	// DecryptionError marks content that arrived still undecryptable.
	// The row is rendered as a placeholder until an events_decrypted
	// push resolves it.
	DecryptionError string `json:"decryption_error,omitempty"`

	// RedactedBy is set when the event has been redacted.
	RedactedBy ref.EventID `json:"redacted_by,omitempty"`

	// RelatesTo and RelationType carry relation metadata (edits,
	// replies, reactions). For an edit, RelatesTo names the target
	// event and RelationType is "m.replace".
	RelatesTo    ref.EventID `json:"relates_to,omitempty"`
	RelationType string      `json:"relation_type,omitempty"`

	// LastEditRowID points at the most recent edit applied to this
	// event, if any. Visible content comes from the edit; the original
	// Content is preserved for retrieval.
	LastEditRowID ref.RowID `json:"last_edit_rowid,omitempty"`

	// TransactionID is the client-generated ID attached to an
	// optimistic send, echoed back on the confirmed record.
	TransactionID string `json:"transaction_id,omitempty"`

	// SendError is set on a locally originated event whose send
	// failed; the row stays visible so the failure can be surfaced.
	SendError string `json:"send_error,omitempty"`

	// Pending marks a locally synthesized overlay row for an in-flight
	// send. Never set on rows received from the backend.
	Pending bool `json:"-"`
}

// RelationTypeReplace is the relation type of an edit event.
const RelationTypeReplace = "m.replace"

// IsState reports whether the event is a state event (has a state
// key, possibly empty-string).
func (e *Event) IsState() bool { return e.StateKey != nil }

// TimelineEntry is one (position, row) pair in a room's display
// timeline. Position is distinct from RowID because timeline
// membership is a server-side filtering decision.
type TimelineEntry struct {
	Position ref.TimelinePosition `json:"timeline_rowid"`
	RowID    ref.RowID            `json:"event_rowid"`
}

// Receipt is one user's delivery receipt for a target event.
type Receipt struct {
	UserID      ref.UserID  `json:"user_id"`
	ReceiptType string      `json:"receipt_type"`
	EventID     ref.EventID `json:"event_id"`
	Timestamp   int64       `json:"timestamp"`
}
