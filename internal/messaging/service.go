// Package messaging is the send pipeline: validate, persist, seed delivery
// rows, broadcast, notify. It also owns edits, delete-for-everyone and
// history reads.
package messaging

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/access"
	"github.com/lalith-99/chatwire/internal/apperr"
	"github.com/lalith-99/chatwire/internal/delivery"
	"github.com/lalith-99/chatwire/internal/events"
	"github.com/lalith-99/chatwire/internal/keymutex"
	"github.com/lalith-99/chatwire/internal/models"
	"github.com/lalith-99/chatwire/internal/notify"
	"github.com/lalith-99/chatwire/internal/observ"
	"github.com/lalith-99/chatwire/internal/repository"
	"github.com/lalith-99/chatwire/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Notifier receives every non-system message after it is broadcast.
type Notifier interface {
	NotifyMessage(ctx context.Context, n notify.MessageNotice)
}

type Service struct {
	store      repository.Store
	delivery   *delivery.Service
	emitter    events.Emitter
	files      storage.FileStore
	notifier   Notifier
	chatLocks  *keymutex.Map[uuid.UUID]
	editWindow time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithEditWindow(d time.Duration) Option {
	return func(s *Service) { s.editWindow = d }
}

// WithChatLocks shares per-chat serialization with other services that
// mutate chats (membership changes).
func WithChatLocks(m *keymutex.Map[uuid.UUID]) Option {
	return func(s *Service) { s.chatLocks = m }
}

func NewService(
	store repository.Store,
	deliverySvc *delivery.Service,
	emitter events.Emitter,
	files storage.FileStore,
	notifier Notifier,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		store:      store,
		delivery:   deliverySvc,
		emitter:    emitter,
		files:      files,
		notifier:   notifier,
		chatLocks:  keymutex.New[uuid.UUID](),
		editWindow: 15 * time.Minute,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.Named("messaging"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FileInput describes an attachment already written to storage.
type FileInput struct {
	Name string
	Size int64
	Mime string
	Path string
}

// SendInput carries exactly one of Content, File or Sticker. Content
// alongside a File is its caption.
type SendInput struct {
	ChatID   uuid.UUID
	SenderID uuid.UUID
	Content  string
	File     *FileInput
	Sticker  string
}

func (in SendInput) build() (*models.Message, error) {
	msg := &models.Message{
		ChatID:   in.ChatID,
		SenderID: in.SenderID,
		Content:  strings.TrimSpace(in.Content),
	}
	switch {
	case in.File != nil:
		if in.File.Path == "" {
			return nil, apperr.Validation(apperr.CodeInvalidPayload, "file has no storage path")
		}
		msg.Type = Classify(in.File.Mime)
		msg.FileName = in.File.Name
		msg.FileSize = in.File.Size
		msg.FileMime = in.File.Mime
		msg.FilePath = in.File.Path
	case in.Sticker != "":
		msg.Type = models.MessageSticker
		msg.Content = in.Sticker
	default:
		if msg.Content == "" {
			return nil, apperr.Validation(apperr.CodeInvalidPayload, "message is empty")
		}
		msg.Type = models.MessageText
	}
	return msg, nil
}

// Send runs the fan-out pipeline. Persistence and broadcast happen under
// the chat's lock, so room subscribers see messages in id order.
func (s *Service) Send(ctx context.Context, in SendInput) (*models.Message, error) {
	msg, err := in.build()
	if err != nil {
		return nil, err
	}
	return s.send(ctx, msg, false)
}

// SendFile checks the sender may post before uploading, then sends. The
// upload is removed again if the send fails afterwards.
func (s *Service) SendFile(ctx context.Context, chatID, senderID uuid.UUID, name, mime string, size int64, body io.Reader, caption string) (*models.Message, error) {
	chat, err := access.Chat(ctx, s.store, chatID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.Memberships().ListActive(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if err := s.authorize(ctx, chat, senderID, members); err != nil {
		return nil, err
	}

	path, err := s.files.Put(ctx, chatID, name, mime, body)
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	msg, err := s.Send(ctx, SendInput{
		ChatID:   chatID,
		SenderID: senderID,
		Content:  caption,
		File:     &FileInput{Name: name, Size: size, Mime: mime, Path: path},
	})
	if err != nil {
		if derr := s.files.Delete(context.WithoutCancel(ctx), path); derr != nil {
			s.logger.Warn("remove orphaned upload failed", zap.String("path", path), zap.Error(derr))
		}
		return nil, err
	}
	return msg, nil
}

// SendSystem posts a system message on behalf of actorID, e.g. "A added
// B". The actor need not be an active member (a leaver announces their
// own departure). It is broadcast like any message but skips
// notifications.
func (s *Service) SendSystem(ctx context.Context, chatID, actorID uuid.UUID, content string) (*models.Message, error) {
	msg := &models.Message{
		ChatID:   chatID,
		SenderID: actorID,
		Type:     models.MessageSystem,
		Content:  content,
	}
	return s.send(ctx, msg, true)
}

// authorize requires an active sender and, for private chats, no block in
// either direction.
func (s *Service) authorize(ctx context.Context, chat *models.Chat, senderID uuid.UUID, members []models.Membership) error {
	var isMember bool
	var peer uuid.UUID
	for _, m := range members {
		if m.UserID == senderID {
			isMember = true
		} else if chat.Type == models.ChatPrivate {
			peer = m.UserID
		}
	}
	if !isMember {
		return apperr.NotMember()
	}
	if chat.Type != models.ChatPrivate || peer == uuid.Nil {
		return nil
	}
	blocked, err := s.store.Blocks().IsBlocked(ctx, senderID, peer)
	if err != nil {
		return fmt.Errorf("check block: %w", err)
	}
	if blocked {
		return apperr.Blocked()
	}
	return nil
}

func (s *Service) send(ctx context.Context, msg *models.Message, system bool) (*models.Message, error) {
	unlock := s.chatLocks.Lock(msg.ChatID)
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	chat, err := access.Chat(ctx, s.store, msg.ChatID)
	if err != nil {
		return nil, err
	}

	var (
		members []models.Membership
		online  []uuid.UUID
	)
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		members, err = tx.Memberships().ListActive(ctx, msg.ChatID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		if !system {
			if err := s.authorize(ctx, chat, msg.SenderID, members); err != nil {
				return err
			}
		}
		if err := tx.Messages().Create(ctx, msg); err != nil {
			return err
		}
		online, err = s.delivery.Seed(ctx, tx, msg, members)
		if err != nil {
			return err
		}
		return tx.Chats().Touch(ctx, msg.ChatID, msg.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	observ.MessagesSent.WithLabelValues(string(msg.Type)).Inc()
	preview := Preview(msg)

	s.emitter.ToChat(msg.ChatID, events.NewMessage{Message: msg}, uuid.Nil)
	update := events.ChatListUpdate{
		ChatID:   msg.ChatID,
		SenderID: msg.SenderID,
		LastMessage: events.LastMessage{
			ID:        msg.ID,
			Text:      preview,
			Type:      msg.Type,
			CreatedAt: msg.CreatedAt,
		},
	}
	for _, m := range members {
		s.emitter.ToUser(m.UserID, update)
	}
	if len(online) > 0 {
		s.emitter.ToUser(msg.SenderID, events.MessageDelivered{ChatID: msg.ChatID, MessageID: msg.ID})
	}

	unlock()
	locked = false

	if !system {
		s.notifier.NotifyMessage(ctx, notify.MessageNotice{
			Chat:    chat,
			Message: msg,
			Preview: preview,
			Members: members,
		})
	}
	return msg, nil
}

// Edit replaces the text of a message. Only the sender may edit, only
// text, and only within the edit window.
//
// The first load only finds the chat. Every check runs again on a fresh
// copy under the chat lock, and the write itself only matches a text row,
// so a delete for everyone that lands first (here or on another instance)
// turns the edit into NOT_EDITABLE instead of reviving the tombstone.
func (s *Service) Edit(ctx context.Context, messageID int64, editorID uuid.UUID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation(apperr.CodeInvalidPayload, "message is empty")
	}

	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	unlock := s.chatLocks.Lock(msg.ChatID)
	defer unlock()

	msg, err = s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != editorID {
		return nil, apperr.NotSender()
	}
	if msg.Type != models.MessageText {
		return nil, errNotEditable
	}
	if now.Sub(msg.CreatedAt) > s.editWindow {
		return nil, apperr.New(apperr.KindOperationNotAllowed, apperr.CodeEditWindowExpired, "edit window has passed")
	}
	if _, err := access.ActiveMember(ctx, s.store, msg.ChatID, editorID); err != nil {
		return nil, err
	}

	updated, err := s.store.Messages().UpdateContent(ctx, messageID, content, now)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, errNotEditable
	}
	msg.Content = content
	msg.IsEdited = true
	msg.UpdatedAt = now

	s.emitter.ToChat(msg.ChatID, events.MessageEdited{ChatID: msg.ChatID, MessageID: msg.ID, Content: content}, uuid.Nil)
	return msg, nil
}

var errNotEditable = apperr.New(apperr.KindOperationNotAllowed, apperr.CodeNotEditable, "only text messages can be edited")

// DeleteForEveryone tombstones a message for all viewers and removes its
// attachment. Deleting an already deleted message is a no-op: only the
// caller whose tombstone write matched a row broadcasts and removes the
// file.
func (s *Service) DeleteForEveryone(ctx context.Context, messageID int64, userID uuid.UUID) (*models.Message, error) {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	unlock := s.chatLocks.Lock(msg.ChatID)
	msg, err = s.loadMessage(ctx, messageID)
	if err != nil {
		unlock()
		return nil, err
	}
	if msg.SenderID != userID {
		unlock()
		return nil, apperr.NotSender()
	}
	if msg.Type == models.MessageDeleted {
		unlock()
		return msg, nil
	}
	tombstoned, err := s.store.Messages().Tombstone(ctx, messageID, TombstoneContent, now)
	if err != nil {
		unlock()
		return nil, err
	}
	if !tombstoned {
		unlock()
		return s.loadMessage(ctx, messageID)
	}
	s.emitter.ToChat(msg.ChatID, events.MessageDeletedEveryone{
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		Content:   TombstoneContent,
	}, uuid.Nil)
	unlock()

	if msg.HasFile() {
		if err := s.files.Delete(ctx, msg.FilePath); err != nil {
			s.logger.Warn("delete attachment failed",
				zap.Int64("message_id", msg.ID),
				zap.String("path", msg.FilePath),
				zap.Error(err),
			)
		}
	}

	msg.Type = models.MessageDeleted
	msg.Content = TombstoneContent
	msg.FileName, msg.FileMime, msg.FilePath = "", "", ""
	msg.FileSize = 0
	msg.UpdatedAt = now
	return msg, nil
}

// List pages the viewer's history newest first. Former members keep read
// access to what they were sent.
func (s *Service) List(ctx context.Context, chatID, viewerID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	m, err := s.store.Memberships().Get(ctx, chatID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	if m == nil {
		return nil, apperr.NotMember()
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	msgs, err := s.store.Messages().ListVisible(ctx, chatID, viewerID, before, limit)
	if err != nil {
		return nil, err
	}
	if err := s.delivery.AttachAggregates(ctx, viewerID, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// FileURL returns a short-lived download URL for a message attachment the
// viewer can see.
func (s *Service) FileURL(ctx context.Context, messageID int64, viewerID uuid.UUID) (string, error) {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return "", err
	}
	visible, err := s.visibleTo(ctx, msg, viewerID)
	if err != nil {
		return "", err
	}
	if !visible || !msg.HasFile() {
		return "", apperr.NotFound("file")
	}
	url, err := s.files.URL(ctx, msg.FilePath, 15*time.Minute)
	if err != nil {
		return "", fmt.Errorf("file url: %w", err)
	}
	return url, nil
}

func (s *Service) visibleTo(ctx context.Context, msg *models.Message, viewerID uuid.UUID) (bool, error) {
	if msg.SenderID == viewerID {
		return true, nil
	}
	st, err := s.store.Statuses().Get(ctx, msg.ID, viewerID)
	if err != nil {
		return false, fmt.Errorf("load status: %w", err)
	}
	return st != nil && !st.IsDeleted, nil
}

func (s *Service) loadMessage(ctx context.Context, messageID int64) (*models.Message, error) {
	msg, err := s.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message: %w", err)
	}
	if msg == nil {
		return nil, apperr.NotFound("message")
	}
	return msg, nil
}
