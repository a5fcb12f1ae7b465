// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/json"
	"sort"

	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

// AccountPack is one emote pack the account subscribes to through
// im.ponies.emote_rooms, resolved to its current content.
type AccountPack struct {
	RoomID ref.RoomID
	Key    string
	Pack   *wire.EmotePackContent
}

// RecentEmoji is one entry of the recently-used emoji ordering.
type RecentEmoji struct {
	Emoji string
	Count int
}

// invalidateAccountPacks drops the subscribed-packs cache. Called with
// the store lock held, from every mutation that can affect pack
// resolution: emote state changes, emote_rooms account data, room
// membership changes.
func (s *Store) invalidateAccountPacks() {
	s.accountPacksValid = false
}

// AccountPacks returns the packs the account subscribes to, resolved
// against current room state. Subscriptions into unknown rooms or
// missing packs are skipped. Memoized until invalidated.
func (s *Store) AccountPacks() []AccountPack {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accountPacksValid {
		s.accountPacks = s.buildAccountPacks()
		s.accountPacksValid = true
	}
	snapshot := make([]AccountPack, len(s.accountPacks))
	copy(snapshot, s.accountPacks)
	return snapshot
}

func (s *Store) buildAccountPacks() []AccountPack {
	raw := s.accountData[wire.EventTypeEmoteRooms]
	if len(raw) == 0 {
		return nil
	}
	var content wire.EmoteRoomsContent
	if err := json.Unmarshal(raw, &content); err != nil {
		s.log.Warn("unparseable emote_rooms account data", "error", err)
		return nil
	}

	var packs []AccountPack
	for roomID, keys := range content.Rooms {
		room := s.rooms[roomID]
		if room == nil {
			continue
		}
		for key := range keys {
			pack := room.emotePack(key)
			if pack == nil {
				continue
			}
			packs = append(packs, AccountPack{RoomID: roomID, Key: key, Pack: pack})
		}
	}
	sort.Slice(packs, func(i, j int) bool {
		if packs[i].RoomID != packs[j].RoomID {
			return packs[i].RoomID.String() < packs[j].RoomID.String()
		}
		return packs[i].Key < packs[j].Key
	})
	return packs
}

// RecentEmojis returns the recently-used emoji ordering from account
// data. Memoized until the account data entry changes. Entries that do
// not fit the [emoji, count] shape are skipped.
func (s *Store) RecentEmojis() []RecentEmoji {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recentEmojiValid {
		s.recentEmoji = s.buildRecentEmoji()
		s.recentEmojiValid = true
	}
	snapshot := make([]RecentEmoji, len(s.recentEmoji))
	copy(snapshot, s.recentEmoji)
	return snapshot
}

func (s *Store) buildRecentEmoji() []RecentEmoji {
	raw := s.accountData[wire.EventTypeRecentEmoji]
	if len(raw) == 0 {
		return nil
	}
	var content wire.RecentEmojiContent
	if err := json.Unmarshal(raw, &content); err != nil {
		s.log.Warn("unparseable recent_emoji account data", "error", err)
		return nil
	}

	entries := make([]RecentEmoji, 0, len(content.RecentEmoji))
	for _, pair := range content.RecentEmoji {
		emoji, ok := pair[0].(string)
		if !ok || emoji == "" {
			continue
		}
		count := 0
		if n, ok := pair[1].(float64); ok {
			count = int(n)
		}
		entries = append(entries, RecentEmoji{Emoji: emoji, Count: count})
	}
	return entries
}
