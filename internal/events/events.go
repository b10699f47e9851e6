// Package events is the real-time wire protocol: a closed set of
// server-to-client events, the client-to-server commands, and the
// interfaces services use to publish without knowing about sockets.
//
// Every frame on the wire is {"event": "<name>", "data": <payload>}.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/models"
)

// Event is a server-to-client payload. Only types in this package
// implement it.
type Event interface {
	Name() string
	event()
}

// Emitter delivers events to rooms. A chat room holds the connections that
// joined the chat; a personal room holds every connection of one user.
// Delivery is best-effort and never blocks the caller.
type Emitter interface {
	// ToChat sends to the chat room, skipping connections owned by except.
	// Pass uuid.Nil to skip nobody.
	ToChat(chatID uuid.UUID, ev Event, except uuid.UUID)
	ToUser(userID uuid.UUID, ev Event)
	// Broadcast sends to every connection except those owned by except.
	Broadcast(ev Event, except uuid.UUID)
}

// Rooms lets services change room membership as a side effect, e.g. a user
// removed from a group stops receiving its chat events.
type Rooms interface {
	EvictFromChat(chatID, userID uuid.UUID)
}

const (
	NameNewMessage             = "new-message"
	NameChatListUpdate         = "chat-list:update"
	NameMessageDelivered       = "message-delivered"
	NameMessagesRead           = "messages-read"
	NameMessageEdited          = "message-edited"
	NameMessageDeletedEveryone = "message-deleted-everyone"
	NameGroupMembersUpdated    = "group:members-updated"
	NameGroupRemoved           = "group:removed"
	NameChatCreated            = "chat:created"
	NameNotification           = "notification"
	NameUserOnline             = "user-online"
	NameUserOffline            = "user-offline"
	NameTypingStart            = "typing:start"
	NameTypingStop             = "typing:stop"
	NameBlockStatus            = "block-status"
	NameError                  = "error"

	NameCallIncoming    = "call:incoming"
	NameCallAccepted    = "call:accepted"
	NameCallRejected    = "call:rejected"
	NameCallEnded       = "call:ended"
	NameCallMissed      = "call:missed"
	NameCallUnavailable = "call:unavailable"
	NameCallUserMuted   = "call:user-muted"
	NameCallUserUnmuted = "call:user-unmuted"
	NameCallUserCamOff  = "call:user-camera-off"
	NameCallUserCamOn   = "call:user-camera-on"
)

// Reasons carried by call:unavailable.
const (
	ReasonUserOffline = "USER_OFFLINE"
	ReasonUserBusy    = "USER_BUSY"
)

type NewMessage struct {
	*models.Message
}

// LastMessage is the chat-list preview. Text is the message text for text
// messages and a type label ("📷 Photo") otherwise.
type LastMessage struct {
	ID        int64              `json:"id"`
	Text      string             `json:"text"`
	Type      models.MessageType `json:"type"`
	CreatedAt time.Time          `json:"createdAt"`
}

type ChatListUpdate struct {
	ChatID      uuid.UUID   `json:"chatId"`
	SenderID    uuid.UUID   `json:"senderId"`
	LastMessage LastMessage `json:"lastMessage"`
}

// MessageDelivered goes to the chat room when a recipient's rows advance,
// and to the sender's personal room (with MessageID) when a message reached
// an online recipient at send time.
type MessageDelivered struct {
	ChatID    uuid.UUID `json:"chatId"`
	UserID    uuid.UUID `json:"userId,omitempty"`
	MessageID int64     `json:"messageId,omitempty"`
}

type MessagesRead struct {
	ChatID   uuid.UUID `json:"chatId"`
	ReaderID uuid.UUID `json:"readerId"`
}

type MessageEdited struct {
	ChatID    uuid.UUID `json:"chatId"`
	MessageID int64     `json:"messageId"`
	Content   string    `json:"content"`
}

type MessageDeletedEveryone struct {
	ChatID    uuid.UUID `json:"chatId"`
	MessageID int64     `json:"messageId"`
	Content   string    `json:"content"`
}

type GroupMembersUpdated struct {
	ChatID      uuid.UUID `json:"chatId"`
	MemberCount int       `json:"memberCount"`
}

type GroupRemoved struct {
	ChatID uuid.UUID `json:"chatId"`
}

type ChatCreated struct {
	*models.Chat
}

type Notification struct {
	*models.Notification
}

type UserOnline struct {
	UserID uuid.UUID `json:"userId"`
}

type UserOffline struct {
	UserID   uuid.UUID `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

type TypingStart struct {
	ChatID uuid.UUID `json:"chatId"`
	UserID uuid.UUID `json:"userId"`
}

type TypingStop struct {
	ChatID uuid.UUID `json:"chatId"`
	UserID uuid.UUID `json:"userId"`
}

type BlockStatus struct {
	UserID    uuid.UUID `json:"userId"`
	BlockedBy uuid.UUID `json:"blockedBy"`
	Blocked   bool      `json:"blocked"`
}

// Error reports a rejected command to the connection that sent it.
type Error struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CallIncoming struct {
	CallID   uuid.UUID       `json:"callId"`
	CallerID uuid.UUID       `json:"callerId"`
	Type     models.CallType `json:"type"`
}

type CallAccepted struct {
	CallID    uuid.UUID `json:"callId"`
	StartedAt time.Time `json:"startedAt"`
}

type CallRejected struct {
	CallID uuid.UUID `json:"callId"`
}

type CallEnded struct {
	CallID uuid.UUID `json:"callId"`
	By     uuid.UUID `json:"by"`
}

type CallMissed struct {
	CallID uuid.UUID `json:"callId"`
}

type CallUnavailable struct {
	CallID     uuid.UUID `json:"callId,omitempty"`
	ReceiverID uuid.UUID `json:"receiverId"`
	Reason     string    `json:"reason"`
}

// CallSignal is a pure relay to the other party: mute, unmute, camera on
// or camera off. Name carries which.
type CallSignal struct {
	Kind   string    `json:"-"`
	CallID uuid.UUID `json:"callId"`
	UserID uuid.UUID `json:"userId"`
}

func (NewMessage) Name() string             { return NameNewMessage }
func (ChatListUpdate) Name() string         { return NameChatListUpdate }
func (MessageDelivered) Name() string       { return NameMessageDelivered }
func (MessagesRead) Name() string           { return NameMessagesRead }
func (MessageEdited) Name() string          { return NameMessageEdited }
func (MessageDeletedEveryone) Name() string { return NameMessageDeletedEveryone }
func (GroupMembersUpdated) Name() string    { return NameGroupMembersUpdated }
func (GroupRemoved) Name() string           { return NameGroupRemoved }
func (ChatCreated) Name() string            { return NameChatCreated }
func (Notification) Name() string           { return NameNotification }
func (UserOnline) Name() string             { return NameUserOnline }
func (UserOffline) Name() string            { return NameUserOffline }
func (TypingStart) Name() string            { return NameTypingStart }
func (TypingStop) Name() string             { return NameTypingStop }
func (BlockStatus) Name() string            { return NameBlockStatus }
func (Error) Name() string                  { return NameError }
func (CallIncoming) Name() string           { return NameCallIncoming }
func (CallAccepted) Name() string           { return NameCallAccepted }
func (CallRejected) Name() string           { return NameCallRejected }
func (CallEnded) Name() string              { return NameCallEnded }
func (CallMissed) Name() string             { return NameCallMissed }
func (CallUnavailable) Name() string        { return NameCallUnavailable }
func (s CallSignal) Name() string           { return s.Kind }

func (NewMessage) event()             {}
func (ChatListUpdate) event()         {}
func (MessageDelivered) event()       {}
func (MessagesRead) event()           {}
func (MessageEdited) event()          {}
func (MessageDeletedEveryone) event() {}
func (GroupMembersUpdated) event()    {}
func (GroupRemoved) event()           {}
func (ChatCreated) event()            {}
func (Notification) event()           {}
func (UserOnline) event()             {}
func (UserOffline) event()            {}
func (TypingStart) event()            {}
func (TypingStop) event()             {}
func (BlockStatus) event()            {}
func (Error) event()                  {}
func (CallIncoming) event()           {}
func (CallAccepted) event()           {}
func (CallRejected) event()           {}
func (CallEnded) event()              {}
func (CallMissed) event()             {}
func (CallUnavailable) event()        {}
func (CallSignal) event()             {}

type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Encode renders an event as a wire frame.
func Encode(ev Event) ([]byte, error) {
	b, err := json.Marshal(frame{Event: ev.Name(), Data: ev})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Name(), err)
	}
	return b, nil
}
