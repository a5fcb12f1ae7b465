// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"fmt"
)

// Envelope is the frame shape shared by every message in both
// directions: requests, replies, and pushes.
type Envelope struct {
	// Command discriminates the frame. Outbound it names the
	// operation; inbound it is "response"/"error" for replies or a
	// semantic push command.
	Command string `json:"command"`

	// RequestID correlates replies with requests. Unique among
	// currently outstanding calls; zero on push frames.
	RequestID int64 `json:"request_id,omitempty"`

	// Data is the command-specific payload, decoded only after the
	// discriminant is known.
	Data json.RawMessage `json:"data,omitempty"`
}

// Reply commands. A reply frame echoes the request ID of the call it
// resolves.
const (
	// CommandResponse carries a successful reply payload.
	CommandResponse = "response"
	// CommandError carries a backend-reported failure. Data is an
	// ErrorData.
	CommandError = "error"
)

// CommandCancel is the reserved outbound command for best-effort
// request cancellation. Data is a CancelData naming the request being
// cancelled; the frame gets its own fresh request ID.
const CommandCancel = "cancel"

// Outbound request commands understood by the backend.
const (
	CommandSendMessage        = "send_message"
	CommandSendEvent          = "send_event"
	CommandSetState           = "set_state"
	CommandPaginate           = "paginate"
	CommandGetRoomState       = "get_room_state"
	CommandGetEvent           = "get_event"
	CommandMarkRead           = "mark_read"
	CommandSetTyping          = "set_typing"
	CommandGetProfile         = "get_profile"
	CommandEnsureGroupSession = "ensure_group_session"
)

// Push commands delivered on the event stream.
const (
	CommandSyncComplete    = "sync_complete"
	CommandEventsDecrypted = "events_decrypted"
	CommandSendComplete    = "send_complete"
	CommandClientState     = "client_state"
	CommandTyping          = "typing"
)

// ErrorData is the payload of a CommandError reply.
type ErrorData struct {
	// Code is a machine-readable error code (e.g., "M_FORBIDDEN").
	Code string `json:"code,omitempty"`
	// Message is the human-readable description from the backend.
	Message string `json:"message"`
}

// CancelData is the payload of a CommandCancel frame.
type CancelData struct {
	// RequestID names the outstanding request being cancelled.
	RequestID int64 `json:"request_id"`
	// Reason is a short human-readable cancellation reason.
	Reason string `json:"reason,omitempty"`
}

// MalformedEnvelopeError reports a frame that cannot be safely
// interpreted: a missing command discriminant, or a reply frame
// without a request ID. The connection layer treats this as fatal to
// the stream — later frames can no longer be trusted to correlate.
type MalformedEnvelopeError struct {
	Reason string
}

func (e *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("wire: malformed envelope: %s", e.Reason)
}

// Validate checks the structural invariants of a received envelope.
func (e *Envelope) Validate() error {
	if e.Command == "" {
		return &MalformedEnvelopeError{Reason: "missing command"}
	}
	if (e.Command == CommandResponse || e.Command == CommandError) && e.RequestID == 0 {
		return &MalformedEnvelopeError{Reason: "reply frame without request_id"}
	}
	return nil
}

// IsReply reports whether the envelope is a response or error frame
// that must be routed by request ID rather than dispatched as a push.
func (e *Envelope) IsReply() bool {
	return e.Command == CommandResponse || e.Command == CommandError
}
