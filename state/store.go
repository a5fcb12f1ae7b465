// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/lattice-im/lattice/lib/emitter"
	"github.com/lattice-im/lattice/lib/ref"
	"github.com/lattice-im/lattice/wire"
)

// Requester issues correlated requests to the backend. Satisfied by
// *rpc.Client.
type Requester interface {
	Request(ctx context.Context, command string, payload any) (json.RawMessage, error)
}

// Notifier receives notification side effects computed during sync
// application: events the backend flagged as notification-worthy, and
// unread transitions from zero. Calls arrive after the store lock is
// released. A nil Notifier disables both.
type Notifier interface {
	// EventNotification fires for each backend-flagged event in an
	// unfocused room.
	EventNotification(roomID ref.RoomID, rowID ref.RowID)

	// UnreadChanged fires when an unfocused room's unread counters go
	// from all-zero to nonzero.
	UnreadChanged(roomID ref.RoomID, counts wire.UnreadCounts)
}

// Store is the global client state: all rooms, the sorted room list,
// account data, the space hierarchy, and login state. One mutex
// serializes every mutation; notification callbacks queued during a
// mutation run after the lock is released, so listeners observe a
// consistent snapshot and may re-enter the store freely.
type Store struct {
	log      *slog.Logger
	rpc      Requester
	notifier Notifier

	mu            sync.Mutex
	pendingNotify []func()

	rooms map[ref.RoomID]*Room

	// since is the backend's sync position after the latest applied
	// delta.
	since  string
	synced bool

	// currentRoom is the focused room; notifications for it are
	// suppressed.
	currentRoom ref.RoomID

	accountData map[ref.EventType]json.RawMessage
	clientState wire.ClientState

	// roomList is the visible room IDs in ascending SortingTimestamp
	// order (most recent last).
	roomList []ref.RoomID

	// Space hierarchy: child edges as synced, derived parent links, and
	// the flattened descendant-room set per space.
	spaceEdges       map[ref.RoomID][]wire.SpaceEdge
	spaceParents     map[ref.RoomID]map[ref.RoomID]struct{}
	spaceDescendants map[ref.RoomID]map[ref.RoomID]struct{}
	topLevelSpaces   []ref.RoomID
	spaceUnread      map[ref.RoomID]wire.UnreadCounts

	// Coalesced missing-event fetches: references queued during apply,
	// flushed in one get_event request per room after a short window.
	fetchPending   map[ref.RoomID]map[ref.EventID]struct{}
	fetchScheduled bool

	// Account-level derived caches.
	accountPacks      []AccountPack
	accountPacksValid bool
	recentEmoji       []RecentEmoji
	recentEmojiValid  bool

	roomListEmitter    *emitter.Emitter[[]RoomListEntry]
	clientStateEmitter *emitter.Emitter[wire.ClientState]
	spacesEmitter      *emitter.Emitter[[]ref.RoomID]
	accountEmitters    map[ref.EventType]*emitter.Emitter[json.RawMessage]
	spaceUnreadEmit    map[ref.RoomID]*emitter.Emitter[wire.UnreadCounts]
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier installs the notification hook.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// NewStore builds an empty store. It implements rpc.PushHandler: wire
// it as the push handler of the rpc client whose Request method it is
// given.
func NewStore(log *slog.Logger, rpc Requester, opts ...Option) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		log:                log,
		rpc:                rpc,
		rooms:              make(map[ref.RoomID]*Room),
		fetchPending:       make(map[ref.RoomID]map[ref.EventID]struct{}),
		accountData:        make(map[ref.EventType]json.RawMessage),
		spaceEdges:         make(map[ref.RoomID][]wire.SpaceEdge),
		spaceParents:       make(map[ref.RoomID]map[ref.RoomID]struct{}),
		spaceDescendants:   make(map[ref.RoomID]map[ref.RoomID]struct{}),
		spaceUnread:        make(map[ref.RoomID]wire.UnreadCounts),
		roomListEmitter:    emitter.New[[]RoomListEntry](),
		clientStateEmitter: emitter.New[wire.ClientState](),
		spacesEmitter:      emitter.New[[]ref.RoomID](),
		accountEmitters:    make(map[ref.EventType]*emitter.Emitter[json.RawMessage]),
		spaceUnreadEmit:    make(map[ref.RoomID]*emitter.Emitter[wire.UnreadCounts]),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// queueNotify defers a listener callback until the current mutation
// releases the store lock. Must be called with the lock held.
func (s *Store) queueNotify(fn func()) {
	s.pendingNotify = append(s.pendingNotify, fn)
}

// finish releases the lock and runs the queued notifications in order.
// Every mutation entry point ends through here.
func (s *Store) finish() {
	queue := s.pendingNotify
	s.pendingNotify = nil
	s.mu.Unlock()
	for _, fn := range queue {
		fn()
	}
}

// HandlePush applies one decoded push from the event stream. Pushes
// arrive sequentially on the rpc read loop; application is atomic
// under the store lock and per-item failures are logged, never fatal.
func (s *Store) HandlePush(push wire.Push) {
	s.mu.Lock()
	switch p := push.(type) {
	case *wire.SyncComplete:
		s.applySync(p)
	case *wire.EventsDecrypted:
		s.applyDecrypted(p)
	case *wire.SendComplete:
		s.applySendComplete(p)
	case *wire.ClientState:
		s.clientState = *p
		snapshot := *p
		s.queueNotify(func() { s.clientStateEmitter.Set(snapshot) })
	case *wire.Typing:
		s.applyTyping(p)
	default:
		s.log.Warn("ignoring push of unknown type")
	}
	s.finish()
}

// ApplySync applies one sync delta directly. Exposed for callers that
// drive the store outside an rpc client, and for the rpc path via
// HandlePush.
func (s *Store) ApplySync(sync *wire.SyncComplete) {
	s.mu.Lock()
	s.applySync(sync)
	s.finish()
}

func (s *Store) applySync(sync *wire.SyncComplete) {
	if sync.ClearState {
		// Backend re-snapshot: every room it does not name is gone.
		// Named rooms keep their Room identity so subscriptions
		// survive; their deltas below carry Reset/StateFull as needed.
		for id := range s.rooms {
			if _, kept := sync.Rooms[id]; !kept {
				s.dropRoom(id)
			}
		}
		s.accountData = make(map[ref.EventType]json.RawMessage)
		s.invalidateAccountPacks()
		s.recentEmojiValid = false
	}

	for id, delta := range sync.Rooms {
		if delta == nil || delta.Meta == nil {
			s.log.Warn("skipping sync room without meta", "room_id", id)
			continue
		}
		s.applySyncRoom(id, delta)
	}

	for _, id := range sync.LeftRooms {
		s.dropRoom(id)
	}

	for eventType, content := range sync.AccountData {
		s.setAccountData(eventType, content)
	}

	if sync.SpaceEdges != nil || sync.TopLevelSpaces != nil || sync.ClearState {
		s.applySpaceEdges(sync.SpaceEdges, sync.TopLevelSpaces)
	}

	if sync.Since != "" {
		s.since = sync.Since
	}
	if !s.synced {
		s.synced = true
		s.rebuildRoomList()
	}
}

// applySyncRoom applies one room's delta: events first so timeline
// entries never dangle, then timeline, state, account data, receipts,
// meta, and notification side effects.
func (s *Store) applySyncRoom(id ref.RoomID, delta *wire.SyncRoom) {
	room := s.rooms[id]
	if room == nil {
		room = newRoom(s, id)
		s.rooms[id] = room
	}

	for _, evt := range delta.Events {
		wasPending := false
		if _, ok := room.pendingRows[evt.RowID]; ok {
			wasPending = true
		}
		applied := room.applyEvent(evt, false)
		if applied == nil {
			continue
		}
		if wasPending {
			room.promotePending(applied.RowID, applied.TimelinePosition)
		}
	}

	if delta.Reset {
		room.resetTimeline(delta.Timeline)
	} else if len(delta.Timeline) > 0 {
		room.appendTimeline(delta.Timeline)
	}

	if delta.StateFull {
		room.applyStateSnapshot(delta.State)
	} else if len(delta.State) > 0 {
		room.applyStateDelta(delta.State)
	}

	for eventType, content := range delta.AccountData {
		if eventType == "" {
			room.log.Warn("skipping room account data without type")
			continue
		}
		room.accountData[eventType] = content
	}

	if len(delta.Receipts) > 0 {
		room.applyReceipts(delta.Receipts)
	}

	s.applyMeta(room, delta.Meta)

	if s.notifier != nil && id != s.currentRoom {
		for _, rowID := range delta.Notifications {
			notifier, roomID := s.notifier, id
			s.queueNotify(func() { notifier.EventNotification(roomID, rowID) })
		}
	}
}

// applyMeta installs the refreshed metadata and drives everything
// derived from it: room-list position, space unread propagation, and
// the zero-to-nonzero unread hook.
func (s *Store) applyMeta(room *Room, meta *wire.RoomMeta) {
	var oldSort int64
	var oldUnread wire.UnreadCounts
	hadMeta := room.meta != nil
	if hadMeta {
		oldSort = room.meta.SortingTimestamp
		oldUnread = room.meta.Unread()
	}

	copied := *meta
	room.meta = &copied
	room.notifyMeta()

	newUnread := copied.Unread()
	if newUnread != oldUnread {
		s.propagateUnread(room.ID, oldUnread, newUnread)
		if s.notifier != nil && room.ID != s.currentRoom &&
			oldUnread == (wire.UnreadCounts{}) && newUnread != (wire.UnreadCounts{}) {
			notifier, roomID := s.notifier, room.ID
			s.queueNotify(func() { notifier.UnreadChanged(roomID, newUnread) })
		}
	}

	if s.synced {
		s.updateRoomListEntry(room, hadMeta, oldSort)
	}
}

// applyDecrypted swaps resolved payloads into existing rows and
// optionally advances the preview pointer.
func (s *Store) applyDecrypted(push *wire.EventsDecrypted) {
	room := s.rooms[push.RoomID]
	if room == nil {
		s.log.Warn("ignoring decryption push for unknown room", "room_id", push.RoomID)
		return
	}
	for _, evt := range push.Events {
		room.applyEvent(evt, false)
	}
	if !push.PreviewEventRowID.IsZero() && room.meta != nil &&
		room.meta.PreviewEventRowID != push.PreviewEventRowID {
		room.meta.PreviewEventRowID = push.PreviewEventRowID
		room.notifyMeta()
		if s.synced {
			s.notifyRoomList()
		}
	}
}

// applySendComplete reconciles a send confirmation with the pending
// overlay. The same row may already have been confirmed through a
// sync delta; both paths are idempotent and whichever arrives second
// is a no-op.
func (s *Store) applySendComplete(push *wire.SendComplete) {
	if push.Event == nil {
		s.log.Warn("ignoring send confirmation without event")
		return
	}
	room := s.rooms[push.Event.RoomID]
	if room == nil {
		s.log.Warn("ignoring send confirmation for unknown room",
			"room_id", push.Event.RoomID)
		return
	}
	if push.Error != "" {
		// Failed send: the overlay row stays pending, flagged with the
		// error so it can be surfaced and retried.
		if row := room.eventsByRowID[push.Event.RowID]; row != nil {
			row.SendError = push.Error
			room.notifyEvent(row)
		}
		return
	}
	wasPending := false
	if _, ok := room.pendingRows[push.Event.RowID]; ok {
		wasPending = true
	}
	applied := room.applyEvent(push.Event, false)
	if applied == nil {
		return
	}
	if wasPending {
		room.promotePending(applied.RowID, applied.TimelinePosition)
	} else if applied.TimelinePosition > 0 {
		room.appendTimeline([]wire.TimelineEntry{{
			Position: applied.TimelinePosition,
			RowID:    applied.RowID,
		}})
	}
}

func (s *Store) applyTyping(push *wire.Typing) {
	room := s.rooms[push.RoomID]
	if room == nil {
		return
	}
	room.typing = push.UserIDs
	snapshot := make([]ref.UserID, len(push.UserIDs))
	copy(snapshot, push.UserIDs)
	e := room.typingEmitter
	s.queueNotify(func() { e.Set(snapshot) })
}

// setAccountData stores one global account data entry and invalidates
// the derived caches keyed off it.
func (s *Store) setAccountData(eventType ref.EventType, content json.RawMessage) {
	if eventType == "" {
		s.log.Warn("skipping account data without type")
		return
	}
	s.accountData[eventType] = content
	switch eventType {
	case wire.EventTypeEmoteRooms:
		s.invalidateAccountPacks()
	case wire.EventTypeRecentEmoji:
		s.recentEmojiValid = false
	}
	if e, ok := s.accountEmitters[eventType]; ok {
		snapshot := content
		s.queueNotify(func() { e.Set(snapshot) })
	}
}

// dropRoom removes a departed room and everything derived from it.
func (s *Store) dropRoom(id ref.RoomID) {
	room := s.rooms[id]
	if room == nil {
		return
	}
	var unread wire.UnreadCounts
	if room.meta != nil {
		unread = room.meta.Unread()
	}
	delete(s.rooms, id)
	if unread != (wire.UnreadCounts{}) {
		s.propagateUnread(id, unread, wire.UnreadCounts{})
	}
	s.removeFromRoomList(id)
	s.invalidateAccountPacks()
}

// Room returns the room store for id, or ErrRoomNotFound.
func (s *Store) Room(id ref.RoomID) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.rooms[id]
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// RoomIDs returns a snapshot of all known room IDs, in no particular
// order.
func (s *Store) RoomIDs() []ref.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]ref.RoomID, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids
}

// SetCurrentRoom marks the focused room. Notifications for the focused
// room are suppressed from that point on. A zero ID clears focus.
func (s *Store) SetCurrentRoom(id ref.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentRoom = id
}

// CollectRoom garbage-collects one room down to its preview footprint.
// Safe at any time: the compaction is point-in-time and later deltas
// rebuild lazily. Collecting the focused room is allowed but
// pointless.
func (s *Store) CollectRoom(id ref.RoomID) (eventsDropped, stateDropped int) {
	s.mu.Lock()
	room := s.rooms[id]
	if room == nil {
		s.mu.Unlock()
		return 0, 0
	}
	eventsDropped, stateDropped = room.collect()
	s.finish()
	return eventsDropped, stateDropped
}

// ClientState returns the login state emitter.
func (s *Store) ClientState() *emitter.Emitter[wire.ClientState] {
	return s.clientStateEmitter
}

// AccountData returns the raw global account data of one type, or nil.
func (s *Store) AccountData(eventType ref.EventType) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountData[eventType]
}

// AccountDataEmitter returns the emitter for one global account data
// type, creating it seeded with the current value.
func (s *Store) AccountDataEmitter(eventType ref.EventType) *emitter.Emitter[json.RawMessage] {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.accountEmitters[eventType]
	if !ok {
		if current, present := s.accountData[eventType]; present {
			e = emitter.NewWithValue(current)
		} else {
			e = emitter.New[json.RawMessage]()
		}
		s.accountEmitters[eventType] = e
	}
	return e
}

// Since returns the backend sync position of the latest applied delta.
func (s *Store) Since() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.since
}
