// Package hub is an in-process realtime server. Each room is a channel that
// carries the record events published by the store, a presence roster and
// ephemeral broadcasts.
package hub

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

const DefaultBuffer = 256

type room struct {
	mu       sync.RWMutex
	handles  map[string]*Handle
	presence map[string]domain.PresenceEntry // presence key -> entry
}

// Hub routes room events to the open handles. It satisfies contract.Transport
// and storage.Publisher.
type Hub struct {
	log     *slog.Logger
	buffer  int
	mu      sync.RWMutex
	rooms   map[domain.RoomID]*room
	dropped atomic.Uint64
}

func New(log *slog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		log:    log,
		buffer: buffer,
		rooms:  make(map[domain.RoomID]*room),
	}
}

// Open subscribes to roomID. Each presence key holds a single handle per room:
// a newer Open replaces the older handle, whose event channel is closed.
// The handle reports subscribed then receives the current roster.
func (h *Hub) Open(ctx context.Context, roomID domain.RoomID, presenceKey string) (contract.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Classify(err)
	}
	if presenceKey == "" {
		return nil, fmt.Errorf("%w: presence key is required", errors.ErrValidation)
	}

	handle := &Handle{
		hub:    h,
		room:   roomID,
		key:    presenceKey,
		events: make(chan event.DomainEvent, h.buffer),
	}

	// The hub lock is held until the handle is registered so that an empty
	// room cannot be removed in between.
	h.mu.Lock()
	r, exists := h.rooms[roomID]
	if !exists {
		r = &room{handles: make(map[string]*Handle), presence: make(map[string]domain.PresenceEntry)}
		h.rooms[roomID] = r
	}
	r.mu.Lock()
	if stale, taken := r.handles[presenceKey]; taken {
		stale.evict()
		delete(r.presence, presenceKey)
		h.log.Debug("Replacing stale handle", "room", roomID, "key", presenceKey)
	}
	r.handles[presenceKey] = handle
	count := len(r.handles)
	roster := r.roster()
	r.mu.Unlock()
	h.mu.Unlock()

	h.log.Debug("Channel opened", "room", roomID, "key", presenceKey, "handles", count)
	handle.deliver(event.StatusChanged{Room: roomID, Status: domain.StatusSubscribed})
	handle.deliver(event.PresenceSynced{Room: roomID, Roster: roster})
	return handle, nil
}

// Publish delivers evt to every handle of its room.
func (h *Hub) Publish(evt event.DomainEvent) {
	r := h.lookup(evt.RoomID())
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, handle := range r.handles {
		handle.deliver(evt)
	}
}

// Interrupt reports a channel failure to every handle of roomID, as a
// server-side disconnect would.
func (h *Hub) Interrupt(roomID domain.RoomID, status domain.ConnectionStatus, cause error) {
	h.Publish(event.StatusChanged{Room: roomID, Status: status, Err: cause})
}

// Stats returns the number of live rooms and open handles.
func (h *Hub) Stats() (rooms, handles int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms = len(h.rooms)
	for _, r := range h.rooms {
		r.mu.RLock()
		handles += len(r.handles)
		r.mu.RUnlock()
	}
	return rooms, handles
}

// Dropped counts the events discarded because a handle buffer was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) lookup(roomID domain.RoomID) *room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID]
}

func (h *Hub) broadcast(from *Handle, kind string, payload json.RawMessage) {
	r := h.lookup(from.room)
	if r == nil {
		return
	}
	evt := event.BroadcastReceived{Room: from.room, Kind: kind, Payload: payload}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key, handle := range r.handles {
		if key == from.key {
			continue
		}
		handle.deliver(evt)
	}
}

func (h *Hub) track(from *Handle, entry *domain.PresenceEntry) {
	r := h.lookup(from.room)
	if r == nil {
		return
	}
	r.mu.Lock()
	if entry == nil {
		delete(r.presence, from.key)
	} else {
		r.presence[from.key] = *entry
	}
	evt := event.PresenceSynced{Room: from.room, Roster: r.roster()}
	for _, handle := range r.handles {
		handle.deliver(evt)
	}
	r.mu.Unlock()
}

func (h *Hub) unregister(handle *Handle) {
	r := h.lookup(handle.room)
	if r == nil {
		return
	}
	r.mu.Lock()
	current, ok := r.handles[handle.key]
	if !ok || current != handle {
		r.mu.Unlock()
		return
	}
	delete(r.handles, handle.key)
	_, tracked := r.presence[handle.key]
	delete(r.presence, handle.key)
	count := len(r.handles)
	if tracked {
		evt := event.PresenceSynced{Room: handle.room, Roster: r.roster()}
		for _, other := range r.handles {
			other.deliver(evt)
		}
	}
	r.mu.Unlock()

	h.log.Debug("Channel closed", "room", handle.room, "key", handle.key, "handles", count)
	if count == 0 {
		h.mu.Lock()
		if r.empty() {
			delete(h.rooms, handle.room)
		}
		h.mu.Unlock()
	}
}

// roster must be called with r.mu held.
func (r *room) roster() []domain.PresenceEntry {
	roster := make([]domain.PresenceEntry, 0, len(r.presence))
	for _, entry := range r.presence {
		roster = append(roster, entry)
	}
	slices.SortFunc(roster, func(a, b domain.PresenceEntry) int {
		return cmp.Compare(a.UserID, b.UserID)
	})
	return roster
}

func (r *room) empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles) == 0
}

// Handle is one subscription to a hub room.
type Handle struct {
	hub    *Hub
	room   domain.RoomID
	key    string
	events chan event.DomainEvent

	mu     sync.Mutex
	closed bool
}

func (c *Handle) Room() domain.RoomID { return c.room }

func (c *Handle) Events() <-chan event.DomainEvent { return c.events }

func (c *Handle) Send(kind string, payload any) error {
	if c.isClosed() {
		return errors.ErrNotSubscribed
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	c.hub.broadcast(c, kind, data)
	return nil
}

func (c *Handle) Track(entry domain.PresenceEntry) error {
	if c.isClosed() {
		return errors.ErrNotSubscribed
	}
	c.hub.track(c, &entry)
	return nil
}

func (c *Handle) Untrack() error {
	if c.isClosed() {
		return errors.ErrNotSubscribed
	}
	c.hub.track(c, nil)
	return nil
}

// Close leaves the room and closes the event channel.
func (c *Handle) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.events)
	c.mu.Unlock()

	c.hub.unregister(c)
	return nil
}

// evict closes a handle replaced by a newer one. It must be called with the
// room lock held.
func (c *Handle) evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

func (c *Handle) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// deliver never blocks: a full buffer drops the event.
func (c *Handle) deliver(evt event.DomainEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- evt:
	default:
		c.hub.dropped.Add(1)
		c.hub.log.Warn("Handle buffer full, dropping event", "room", c.room, "key", c.key, "kind", event.Kind(evt))
	}
}
