// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"

	"github.com/lattice-im/lattice/lib/ref"
)

// Matrix event type constants the engine inspects by name. Everything
// else flows through untouched.
const (
	// EventTypeCreate is the m.room.create state event. Its content
	// type field decides room-list visibility and its predecessor
	// pointer links upgrade chains backward.
	EventTypeCreate ref.EventType = "m.room.create"

	// EventTypeTombstone marks a room superseded by an upgrade.
	EventTypeTombstone ref.EventType = "m.room.tombstone"

	// EventTypeMember is the per-user membership state event.
	EventTypeMember ref.EventType = "m.room.member"

	// EventTypePowerLevels assigns per-user power levels, used to sort
	// the member autocomplete list.
	EventTypePowerLevels ref.EventType = "m.room.power_levels"

	// EventTypeRoomEmotes is the im.ponies custom emote pack state
	// event; one pack per state key.
	EventTypeRoomEmotes ref.EventType = "im.ponies.room_emotes"

	// EventTypeEmoteRooms is the account-data event subscribing the
	// user to emote packs in specific rooms.
	EventTypeEmoteRooms ref.EventType = "im.ponies.emote_rooms"

	// EventTypeRecentEmoji is the account-data event holding
	// recently-used emoji ordering.
	EventTypeRecentEmoji ref.EventType = "io.element.recent_emoji"

	// RoomTypeSpace is the creation content type of a space.
	RoomTypeSpace = "m.space"
)

// CreateContent is the m.room.create content the engine reads.
type CreateContent struct {
	// Type is the room creation type. Empty for a default room; any
	// other value (e.g., "m.space") hides the room from the list.
	Type string `json:"type,omitempty"`

	// Predecessor links back to the room this one upgraded from.
	Predecessor *RoomPredecessor `json:"predecessor,omitempty"`
}

// RoomPredecessor identifies the room a successor was upgraded from.
type RoomPredecessor struct {
	RoomID ref.RoomID `json:"room_id"`
}

// TombstoneContent is the m.room.tombstone content.
type TombstoneContent struct {
	Body            string     `json:"body,omitempty"`
	ReplacementRoom ref.RoomID `json:"replacement_room"`
}

// MemberContent is the m.room.member content the engine reads.
type MemberContent struct {
	Membership  string `json:"membership"`
	Displayname string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Membership states the engine distinguishes.
const (
	MembershipJoin   = "join"
	MembershipLeave  = "leave"
	MembershipInvite = "invite"
	MembershipBan    = "ban"
)

// PowerLevelsContent is the m.room.power_levels content the engine
// reads for member sorting.
type PowerLevelsContent struct {
	Users        map[string]int `json:"users,omitempty"`
	UsersDefault int            `json:"users_default,omitempty"`
}

// Level returns the effective power level of a user.
func (p *PowerLevelsContent) Level(userID ref.UserID) int {
	if p == nil {
		return 0
	}
	if level, ok := p.Users[userID.String()]; ok {
		return level
	}
	return p.UsersDefault
}

// EmotePackContent is one im.ponies.room_emotes pack.
type EmotePackContent struct {
	Pack   EmotePackInfo         `json:"pack,omitempty"`
	Images map[string]EmoteImage `json:"images,omitempty"`
}

// EmotePackInfo is the pack-level metadata of an emote pack.
type EmotePackInfo struct {
	DisplayName string `json:"display_name,omitempty"`
	// Usage restricts the pack to "emoticon" and/or "sticker" use.
	Usage []string `json:"usage,omitempty"`
}

// EmoteImage is one image in an emote pack.
type EmoteImage struct {
	URL  string `json:"url"`
	Body string `json:"body,omitempty"`
}

// EmoteRoomsContent is the im.ponies.emote_rooms account data:
// room ID → pack state key → (opaque) subscription marker.
type EmoteRoomsContent struct {
	Rooms map[ref.RoomID]map[string]struct{} `json:"rooms,omitempty"`
}

// RecentEmojiContent is the io.element.recent_emoji account data.
// Each entry is [emoji, use count].
type RecentEmojiContent struct {
	RecentEmoji [][2]any `json:"recent_emoji,omitempty"`
}

// EditNewContent extracts the replacement content (m.new_content)
// from an edit event's content. Returns nil when the content carries
// no replacement.
func EditNewContent(content []byte) []byte {
	if len(content) == 0 {
		return nil
	}
	var envelope struct {
		NewContent json.RawMessage `json:"m.new_content"`
	}
	if err := json.Unmarshal(content, &envelope); err != nil {
		return nil
	}
	return envelope.NewContent
}

// MessageContent is the m.room.message content shape for sends.
type MessageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// EventTypeMessage is the plain message timeline event type.
const EventTypeMessage ref.EventType = "m.room.message"
