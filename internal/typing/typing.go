// Package typing relays typing indicators. Nothing is stored and there is
// no server-side timeout: clients send typing:stop themselves.
package typing

import (
	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/apperr"
	"github.com/lalith-99/chatwire/internal/events"
)

// Rooms reports whether any of the user's connections joined the chat.
// Joining already checked membership, so relaying needs no database read.
type Rooms interface {
	Joined(userID, chatID uuid.UUID) bool
}

type Coordinator struct {
	emitter events.Emitter
	rooms   Rooms
}

func NewCoordinator(emitter events.Emitter, rooms Rooms) *Coordinator {
	return &Coordinator{emitter: emitter, rooms: rooms}
}

func (c *Coordinator) Start(chatID, userID uuid.UUID) error {
	if !c.rooms.Joined(userID, chatID) {
		return apperr.NotMember()
	}
	c.emitter.ToChat(chatID, events.TypingStart{ChatID: chatID, UserID: userID}, userID)
	return nil
}

func (c *Coordinator) Stop(chatID, userID uuid.UUID) error {
	if !c.rooms.Joined(userID, chatID) {
		return apperr.NotMember()
	}
	c.emitter.ToChat(chatID, events.TypingStop{ChatID: chatID, UserID: userID}, userID)
	return nil
}
