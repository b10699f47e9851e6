// Package realtime is the connection gateway: websocket clients, the rooms
// they sit in, and dispatch of inbound commands to the services.
package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/events"
	"github.com/lalith-99/chatwire/internal/observ"
	"go.uber.org/zap"
)

// Hub holds the rooms. Every client sits in its user's personal room and
// in any chat rooms it joined.
//
// Lock discipline:
//   - Sends to client.send happen under the read lock. Many emitters can
//     fan out at once; none of them blocks on a socket.
//   - Closing client.send happens only under the write lock, in
//     removeLocked. Since a writer excludes every reader, no send can be in
//     flight on a channel while it is being closed, and a removed client is
//     no longer in any room for the next send to find. That is what makes
//     "send on closed channel" impossible.
//   - Client.chats belongs to the hub's lock, not the client.
//
// Sends never block. A client whose buffer is full is collected during the
// read-locked pass and removed afterwards under the write lock (a read lock
// cannot be upgraded). Its writePump then sees the closed channel and
// closes the socket; the client reconnects and catches up through the
// pending-delivery sweep.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[uuid.UUID]map[*Client]struct{}
	chats   map[uuid.UUID]map[*Client]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		users:   make(map[uuid.UUID]map[*Client]struct{}),
		chats:   make(map[uuid.UUID]map[*Client]struct{}),
		logger:  logger.Named("hub"),
	}
}

// Register puts the client in its user's room and returns how many
// connections the user now has.
func (h *Hub) Register(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	addTo(h.users, c.userID, c)
	return len(h.users[c.userID])
}

// Unregister removes the client from every room and closes its send
// channel. It returns how many connections the user still has.
func (h *Hub) Unregister(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
	return len(h.users[c.userID])
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	removeFrom(h.users, c.userID, c)
	for chatID := range c.chats {
		removeFrom(h.chats, chatID, c)
	}
	c.chats = nil
	close(c.send)
}

func (h *Hub) Join(c *Client, chatID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	addTo(h.chats, chatID, c)
	c.chats[chatID] = struct{}{}
}

func (h *Hub) Leave(c *Client, chatID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	removeFrom(h.chats, chatID, c)
	delete(c.chats, chatID)
}

// EvictFromChat takes every connection of the user out of the chat room.
func (h *Hub) EvictFromChat(chatID, userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.users[userID] {
		removeFrom(h.chats, chatID, c)
		delete(c.chats, chatID)
	}
}

// Joined reports whether any connection of the user is in the chat room.
func (h *Hub) Joined(userID, chatID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[userID] {
		if _, ok := c.chats[chatID]; ok {
			return true
		}
	}
	return false
}

func (h *Hub) ToChat(chatID uuid.UUID, ev events.Event, except uuid.UUID) {
	h.deliver(ev, func() map[*Client]struct{} { return h.chats[chatID] }, except)
}

func (h *Hub) ToUser(userID uuid.UUID, ev events.Event) {
	h.deliver(ev, func() map[*Client]struct{} { return h.users[userID] }, uuid.Nil)
}

func (h *Hub) Broadcast(ev events.Event, except uuid.UUID) {
	h.deliver(ev, func() map[*Client]struct{} { return h.clients }, except)
}

// deliver encodes once and offers the frame to each target. room is a
// func so the map lookup happens under the read lock, not before it.
func (h *Hub) deliver(ev events.Event, room func() map[*Client]struct{}, except uuid.UUID) {
	frame, err := events.Encode(ev)
	if err != nil {
		h.logger.Error("encode event failed", zap.String("event", ev.Name()), zap.Error(err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range room() {
		if except != uuid.Nil && c.userID == except {
			continue
		}
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range slow {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	for _, c := range slow {
		observ.FanoutDrops.Inc()
		h.logger.Warn("dropped slow connection",
			zap.String("user_id", c.userID.String()),
			zap.String("event", ev.Name()),
		)
	}
}

func addTo(rooms map[uuid.UUID]map[*Client]struct{}, key uuid.UUID, c *Client) {
	set, ok := rooms[key]
	if !ok {
		set = make(map[*Client]struct{})
		rooms[key] = set
	}
	set[c] = struct{}{}
}

func removeFrom(rooms map[uuid.UUID]map[*Client]struct{}, key uuid.UUID, c *Client) {
	set, ok := rooms[key]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(rooms, key)
	}
}

// sendTo offers a frame to one client, dropping it if its buffer is full.
func (h *Hub) sendTo(c *Client, frame []byte) {
	h.mu.RLock()
	_, ok := h.clients[c]
	full := false
	if ok {
		select {
		case c.send <- frame:
		default:
			full = true
		}
	}
	h.mu.RUnlock()

	if full {
		h.mu.Lock()
		h.removeLocked(c)
		h.mu.Unlock()
		observ.FanoutDrops.Inc()
	}
}
