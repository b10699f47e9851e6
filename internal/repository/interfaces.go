package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/models"
)

// Every method takes context.Context first: anything that touches the
// database can be cancelled when the request or connection goes away.
//
// Single-row lookups return nil, nil when the row does not exist. Callers
// decide whether absence is an error.

// UserRepository handles accounts and the persisted mirror of presence.
type UserRepository interface {
	Create(ctx context.Context, email, displayName, passwordHash string) (*models.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// SetPresence records the online flag and last-seen timestamp.
	SetPresence(ctx context.Context, userID uuid.UUID, online bool, lastSeen time.Time) error
	SetNotificationsEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error
}

// BlockRepository handles directional user blocks.
type BlockRepository interface {
	// Block is idempotent.
	Block(ctx context.Context, blockerID, blockedID uuid.UUID) error
	Unblock(ctx context.Context, blockerID, blockedID uuid.UUID) error

	// IsBlocked reports whether either user has blocked the other.
	IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// DeviceRepository stores push tokens.
type DeviceRepository interface {
	// Register upserts by token, so a device that changes hands moves with it.
	Register(ctx context.Context, device *models.Device) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Device, error)
}

// ChatRepository handles chat identity. Membership is separate.
type ChatRepository interface {
	// Create inserts the chat. A nil ID is generated; timestamps are set.
	Create(ctx context.Context, chat *models.Chat) error
	GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)

	// FindPrivate returns the private chat between a and b regardless of
	// argument order.
	FindPrivate(ctx context.Context, a, b uuid.UUID) (*models.Chat, error)

	// Touch bumps updated_at, which orders chat lists by recent activity.
	Touch(ctx context.Context, chatID uuid.UUID, at time.Time) error

	// ListForUser returns chats where the user is an active member, most
	// recently active first.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)
}

// MembershipRepository handles who belongs to which chat.
type MembershipRepository interface {
	Insert(ctx context.Context, m *models.Membership) error

	// Get returns the row whether active or not.
	Get(ctx context.Context, chatID, userID uuid.UUID) (*models.Membership, error)

	// ListActive returns rows with a nil LeftAt, longest-tenured first.
	ListActive(ctx context.Context, chatID uuid.UUID) ([]models.Membership, error)

	// Rejoin clears LeftAt, resets the role to member and restarts tenure.
	Rejoin(ctx context.Context, chatID, userID uuid.UUID, at time.Time) error

	// MarkLeft stamps LeftAt and resets the role to member.
	MarkLeft(ctx context.Context, chatID, userID uuid.UUID, at time.Time) error

	SetRole(ctx context.Context, chatID, userID uuid.UUID, role models.Role) error
	SetMuted(ctx context.Context, chatID, userID uuid.UUID, muted bool) error
}

// MessageRepository handles message persistence.
type MessageRepository interface {
	// Create persists a message and populates ID and timestamps.
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, messageID int64) (*models.Message, error)

	// UpdateContent edits a text message. It reports false, leaving the row
	// untouched, when the message is missing or no longer text (a tombstone
	// must never be edited back to life).
	UpdateContent(ctx context.Context, messageID int64, content string, at time.Time) (bool, error)

	// Tombstone rewrites a message for delete-for-everyone: content replaced,
	// type set to deleted, file fields cleared. It reports false when the
	// message is missing or already a tombstone.
	Tombstone(ctx context.Context, messageID int64, content string, at time.Time) (bool, error)

	// ListVisible returns messages the viewer may see, newest first. A viewer
	// sees a message they sent and have not hidden, or one for which they
	// hold a status row not flagged deleted. before=0 starts from the latest.
	ListVisible(ctx context.Context, chatID, viewerID uuid.UUID, before int64, limit int) ([]models.Message, error)

	// Hide is delete-for-me for the sender, who has no status row to flag.
	Hide(ctx context.Context, messageID int64, userID uuid.UUID) error
}

// StatusRepository handles per-recipient delivery rows. Every write is
// forward-only: a row already at or past the target status is untouched.
type StatusRepository interface {
	CreateBatch(ctx context.Context, rows []models.MessageStatus) error
	Get(ctx context.Context, messageID int64, userID uuid.UUID) (*models.MessageStatus, error)

	// AdvanceChat moves every row of the user in the chat forward to the
	// target and reports how many rows changed.
	AdvanceChat(ctx context.Context, chatID, userID uuid.UUID, to models.DeliveryStatus) (int64, error)

	// AdvanceAll moves every row of the user forward to the target and
	// returns the distinct chats that had rows change.
	AdvanceAll(ctx context.Context, userID uuid.UUID, to models.DeliveryStatus) ([]uuid.UUID, error)

	ListForMessages(ctx context.Context, messageIDs []int64) (map[int64][]models.MessageStatus, error)

	// MarkDeleted sets the per-user hide flag. Returns false when the user
	// has no row for the message.
	MarkDeleted(ctx context.Context, messageID int64, userID uuid.UUID) (bool, error)
}

// NotificationRepository handles the notification inbox.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID uuid.UUID, notificationID int64) (bool, error)
}

// CallRepository handles call history and the persisted call state.
type CallRepository interface {
	Create(ctx context.Context, call *models.Call) error
	GetByID(ctx context.Context, callID uuid.UUID) (*models.Call, error)

	// Transition is a compare-and-set: it applies only when the current
	// status is one of from. Moving to ongoing stamps StartedAt; moving to a
	// terminal status stamps EndedAt.
	Transition(ctx context.Context, callID uuid.UUID, from []models.CallStatus, to models.CallStatus, at time.Time) (bool, error)

	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Call, error)
}

// Store groups the repositories over one connection or transaction.
type Store interface {
	Users() UserRepository
	Blocks() BlockRepository
	Devices() DeviceRepository
	Chats() ChatRepository
	Memberships() MembershipRepository
	Messages() MessageRepository
	Statuses() StatusRepository
	Notifications() NotificationRepository
	Calls() CallRepository

	// WithTx runs fn against a Store bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
