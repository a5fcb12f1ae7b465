// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

// MemberEntry is one row of the autocomplete member list projection.
type MemberEntry struct {
	UserID      ref.UserID
	Displayname string
	AvatarURL   string
	PowerLevel  int
	Membership  string
}

// memberList returns the power-level-then-name-sorted joined member
// list. Memoized; invalidated on m.room.member and m.room.power_levels
// state mutations, never eagerly recomputed.
func (r *Room) memberList() []MemberEntry {
	if r.memberListValid {
		return r.memberListCache
	}

	var levels *wire.PowerLevelsContent
	if row := r.stateEvent(wire.EventTypePowerLevels, ""); row != nil {
		levels = &wire.PowerLevelsContent{}
		if err := json.Unmarshal(row.Content, levels); err != nil {
			r.log.Warn("unparseable power levels content", "error", err)
			levels = nil
		}
	}

	entries := make([]MemberEntry, 0, len(r.stateIndex[wire.EventTypeMember]))
	for rawUserID, rowID := range r.stateIndex[wire.EventTypeMember] {
		row := r.eventsByRowID[rowID]
		if row == nil {
			continue
		}
		userID, err := ref.ParseUserID(rawUserID)
		if err != nil {
			r.log.Warn("skipping member with invalid user ID", "state_key", rawUserID)
			continue
		}
		var content wire.MemberContent
		if err := json.Unmarshal(r.displayContent(row), &content); err != nil {
			r.log.Warn("unparseable member content", "user_id", userID, "error", err)
			continue
		}
		if content.Membership != wire.MembershipJoin {
			continue
		}
		name := content.Displayname
		if name == "" {
			name = userID.Localpart()
		}
		entries = append(entries, MemberEntry{
			UserID:      userID,
			Displayname: name,
			AvatarURL:   content.AvatarURL,
			PowerLevel:  levels.Level(userID),
			Membership:  content.Membership,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].PowerLevel != entries[j].PowerLevel {
			return entries[i].PowerLevel > entries[j].PowerLevel
		}
		nameI := strings.ToLower(entries[i].Displayname)
		nameJ := strings.ToLower(entries[j].Displayname)
		if nameI != nameJ {
			return nameI < nameJ
		}
		return entries[i].UserID.String() < entries[j].UserID.String()
	})

	r.memberListCache = entries
	r.memberListValid = true
	return entries
}

// emotePack returns the parsed custom emote pack at the given state
// key. Memoized per key; invalidated exactly when that key's
// im.ponies.room_emotes state mutates.
func (r *Room) emotePack(key string) *wire.EmotePackContent {
	if pack, cached := r.emotePackCache[key]; cached {
		return pack
	}

	var pack *wire.EmotePackContent
	if row := r.stateEvent(wire.EventTypeRoomEmotes, key); row != nil {
		parsed := &wire.EmotePackContent{}
		if err := json.Unmarshal(r.displayContent(row), parsed); err != nil {
			r.log.Warn("unparseable emote pack", "pack_key", key, "error", err)
		} else {
			pack = parsed
		}
	}
	// Negative results are cached too: a missing pack stays nil until
	// the state key mutates.
	r.emotePackCache[key] = pack
	return pack
}

// emotePackKeys lists the state keys of all emote packs in the room.
func (r *Room) emotePackKeys() []string {
	byKey := r.stateIndex[wire.EventTypeRoomEmotes]
	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
