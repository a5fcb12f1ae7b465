// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package ref_test

import (
	"encoding/json"
	"testing"

	"github.com/lattice-im/lattice/lib/ref"
)

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "valid", raw: "!abc123:lattice.local"},
		{name: "valid-long-server", raw: "!x:matrix.example.com"},
		{name: "empty", raw: "", wantErr: true},
		{name: "missing-sigil", raw: "abc:server", wantErr: true},
		{name: "wrong-sigil", raw: "#abc:server", wantErr: true},
		{name: "no-server", raw: "!abc", wantErr: true},
		{name: "empty-localpart", raw: "!:server", wantErr: true},
		{name: "empty-server", raw: "!abc:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ref.ParseRoomID(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", id)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.String() != tt.raw {
				t.Errorf("String() = %q, want %q", id.String(), tt.raw)
			}
			if id.IsZero() {
				t.Error("IsZero() = true for valid room ID")
			}
		})
	}
}

func TestParseEventID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "v4-format", raw: "$0QPif9NRanpL0UVBMV6yjXKeIQ7dlYr0PSZwGHkVQWA"},
		{name: "legacy-format", raw: "$abc123:lattice.local"},
		{name: "empty", raw: "", wantErr: true},
		{name: "missing-sigil", raw: "abc123", wantErr: true},
		{name: "bare-sigil", raw: "$", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ref.ParseEventID(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", id)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.String() != tt.raw {
				t.Errorf("String() = %q, want %q", id.String(), tt.raw)
			}
		})
	}
}

func TestParseUserID(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		localpart string
		wantErr   bool
	}{
		{name: "valid", raw: "@alice:lattice.local", localpart: "alice"},
		{name: "hierarchical", raw: "@svc/relay:lattice.local", localpart: "svc/relay"},
		{name: "empty", raw: "", wantErr: true},
		{name: "missing-sigil", raw: "alice:server", wantErr: true},
		{name: "no-server", raw: "@alice", wantErr: true},
		{name: "empty-localpart", raw: "@:server", wantErr: true},
		{name: "empty-server", raw: "@alice:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ref.ParseUserID(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", id)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.Localpart() != tt.localpart {
				t.Errorf("Localpart() = %q, want %q", id.Localpart(), tt.localpart)
			}
		})
	}
}

func TestRefJSONRoundTrip(t *testing.T) {
	type payload struct {
		Room  ref.RoomID  `json:"room_id"`
		Event ref.EventID `json:"event_id"`
		User  ref.UserID  `json:"sender"`
	}
	original := payload{
		Room:  ref.MustParseRoomID("!room:lattice.local"),
		Event: ref.MustParseEventID("$event1"),
		User:  ref.MustParseUserID("@alice:lattice.local"),
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded payload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip mismatch: %+v != %+v", decoded, original)
	}

	// Invalid IDs must be rejected during unmarshal, not passed through.
	if err := json.Unmarshal([]byte(`{"room_id":"not-a-room"}`), &decoded); err == nil {
		t.Error("expected unmarshal error for invalid room ID")
	}
}

func TestRoomIDAsMapKey(t *testing.T) {
	rooms := map[ref.RoomID]int{
		ref.MustParseRoomID("!a:s"): 1,
		ref.MustParseRoomID("!b:s"): 2,
	}
	data, err := json.Marshal(rooms)
	if err != nil {
		t.Fatalf("marshal map: %v", err)
	}
	var decoded map[ref.RoomID]int
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if len(decoded) != 2 || decoded[ref.MustParseRoomID("!a:s")] != 1 {
		t.Errorf("map round trip mismatch: %v", decoded)
	}
}

func TestTimelinePosition(t *testing.T) {
	if ref.TimelinePosition(100).IsPending() {
		t.Error("confirmed position reported as pending")
	}
	if !ref.PendingPositionBase.IsPending() {
		t.Error("base position not reported as pending")
	}
	if !(ref.PendingPositionBase + 5).IsPending() {
		t.Error("offset pending position not reported as pending")
	}
}
