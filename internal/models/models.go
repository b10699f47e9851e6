package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account. IsOnline/LastSeen mirror the presence registry so that
// REST reads ("last seen 5 minutes ago") never need the live process.
type User struct {
	ID                   uuid.UUID  `json:"id"`
	Email                string     `json:"email"`
	DisplayName          string     `json:"display_name"`
	PasswordHash         string     `json:"-"`
	IsOnline             bool       `json:"is_online"`
	LastSeen             *time.Time `json:"last_seen,omitempty"`
	NotificationsEnabled bool       `json:"notifications_enabled"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Block is directional: BlockerID blocked BlockedID. Messaging in a shared
// private chat is refused if a block exists in either direction.
type Block struct {
	BlockerID uuid.UUID `json:"blocker_id"`
	BlockedID uuid.UUID `json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Device is a push token registered by a client.
type Device struct {
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

// Chat identity is durable; who is in it lives in Membership rows.
// Name, Description, Image and CreatedBy are only meaningful for groups.
type Chat struct {
	ID          uuid.UUID `json:"id"`
	Type        ChatType  `json:"type"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// PeerID is the other participant of a private chat. Only set when
	// creating one; stores use it to key the pair.
	PeerID uuid.UUID `json:"-"`
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Membership is one row per (chat, user). A nil LeftAt means active. Rows are
// never deleted: leaving stamps LeftAt and rejoining clears it.
type Membership struct {
	ChatID   uuid.UUID  `json:"chat_id"`
	UserID   uuid.UUID  `json:"user_id"`
	Role     Role       `json:"role"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
	IsMuted  bool       `json:"is_muted"`
}

func (m *Membership) Active() bool {
	return m.LeftAt == nil
}

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageAudio    MessageType = "audio"
	MessageDocument MessageType = "document"
	MessageFile     MessageType = "file"
	MessageSystem   MessageType = "system"
	MessageSticker  MessageType = "sticker"
	// MessageDeleted marks a delete-for-everyone tombstone.
	MessageDeleted MessageType = "deleted"
)

// Message is immutable apart from Content (text edits) and the tombstone
// rewrite. ID is a database sequence; together with CreatedAt it is the
// ordering key within a chat.
type Message struct {
	ID        int64       `json:"id"`
	ChatID    uuid.UUID   `json:"chat_id"`
	SenderID  uuid.UUID   `json:"sender_id"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	FileName  string      `json:"file_name,omitempty"`
	FileSize  int64       `json:"file_size,omitempty"`
	FileMime  string      `json:"file_mime,omitempty"`
	FilePath  string      `json:"file_path,omitempty"`
	IsEdited  bool        `json:"is_edited"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	// Status is the sender-facing aggregate. Only populated on reads.
	Status *DeliveryStatus `json:"status,omitempty"`
}

func (m *Message) HasFile() bool {
	return m.FilePath != ""
}

// MessageStatus is one row per (message, recipient). The sender of a
// message never has a row for it.
type MessageStatus struct {
	MessageID int64          `json:"message_id"`
	ChatID    uuid.UUID      `json:"chat_id"`
	UserID    uuid.UUID      `json:"user_id"`
	Status    DeliveryStatus `json:"status"`
	IsDeleted bool           `json:"is_deleted"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type NotificationType string

const (
	NotifyMessage     NotificationType = "MESSAGE"
	NotifyGroupAdd    NotificationType = "GROUP_ADD"
	NotifyGroupRemove NotificationType = "GROUP_REMOVE"
	NotifyGroupLeave  NotificationType = "GROUP_LEAVE"
	NotifyMention     NotificationType = "MENTION"
	NotifyCall        NotificationType = "CALL"
	NotifyVideo       NotificationType = "VIDEO"
	NotifySystem      NotificationType = "SYSTEM"
)

type Notification struct {
	ID        int64            `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Type      NotificationType `json:"type"`
	ChatID    uuid.UUID        `json:"chat_id,omitempty"`
	ActorID   uuid.UUID        `json:"actor_id,omitempty"`
	Body      string           `json:"body"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallAudio || t == CallVideo
}

type CallStatus string

const (
	CallRinging  CallStatus = "ringing"
	CallOngoing  CallStatus = "ongoing"
	CallEnded    CallStatus = "ended"
	CallRejected CallStatus = "rejected"
	CallMissed   CallStatus = "missed"
)

func (s CallStatus) Terminal() bool {
	switch s {
	case CallEnded, CallRejected, CallMissed:
		return true
	}
	return false
}

type Call struct {
	ID         uuid.UUID  `json:"id"`
	CallerID   uuid.UUID  `json:"caller_id"`
	ReceiverID uuid.UUID  `json:"receiver_id"`
	Type       CallType   `json:"type"`
	Status     CallStatus `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Other returns the party in the call that is not userID.
func (c *Call) Other(userID uuid.UUID) uuid.UUID {
	if c.CallerID == userID {
		return c.ReceiverID
	}
	return c.CallerID
}
