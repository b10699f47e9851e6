// Package notify creates notification rows, emits them to personal rooms
// and pushes to users who are offline.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/events"
	"github.com/lalith-99/chatwire/internal/models"
	"github.com/lalith-99/chatwire/internal/repository"
	"go.uber.org/zap"
)

type Presence interface {
	IsOnline(userID uuid.UUID) bool
}

// Hook is best-effort: failures are logged and never reach the caller,
// whose own write has already committed.
type Hook struct {
	store       repository.Store
	emitter     events.Emitter
	presence    Presence
	push        PushSender
	pushEnabled bool
	logger      *zap.Logger
}

func NewHook(store repository.Store, emitter events.Emitter, presence Presence, push PushSender, pushEnabled bool, logger *zap.Logger) *Hook {
	return &Hook{
		store:       store,
		emitter:     emitter,
		presence:    presence,
		push:        push,
		pushEnabled: pushEnabled,
		logger:      logger.Named("notify"),
	}
}

// MessageNotice describes a new message for the hook.
type MessageNotice struct {
	Chat    *models.Chat
	Message *models.Message
	Preview string
	// Members are the chat's active memberships at send time.
	Members []models.Membership
}

// NotifyMessage notifies every recipient who has not muted the chat.
func (h *Hook) NotifyMessage(ctx context.Context, n MessageNotice) {
	title := n.Chat.Name
	if n.Chat.Type == models.ChatPrivate {
		if sender, err := h.store.Users().GetByID(ctx, n.Message.SenderID); err == nil && sender != nil {
			title = sender.DisplayName
		}
	}

	chatID := n.Chat.ID
	for _, m := range n.Members {
		if m.UserID == n.Message.SenderID || m.IsMuted {
			continue
		}
		h.deliver(ctx, m.UserID, &models.Notification{
			UserID:  m.UserID,
			Type:    models.NotifyMessage,
			ChatID:  n.Chat.ID,
			ActorID: n.Message.SenderID,
			Body:    n.Preview,
		}, Push{
			Type:   models.NotifyMessage,
			Title:  title,
			Body:   n.Preview,
			ChatID: &chatID,
		}, false)
	}
}

// NotifyUsers sends a membership notification (GROUP_ADD, GROUP_REMOVE,
// GROUP_LEAVE) to each recipient.
func (h *Hook) NotifyUsers(ctx context.Context, recipients []uuid.UUID, typ models.NotificationType, chat *models.Chat, actorID uuid.UUID, body string) {
	chatID := chat.ID
	for _, id := range recipients {
		h.deliver(ctx, id, &models.Notification{
			UserID:  id,
			Type:    typ,
			ChatID:  chat.ID,
			ActorID: actorID,
			Body:    body,
		}, Push{
			Type:   typ,
			Title:  chat.Name,
			Body:   body,
			ChatID: &chatID,
		}, false)
	}
}

// NotifyCall notifies the receiver of a call they could not or did not
// pick up. The push goes out whether or not they are connected.
func (h *Hook) NotifyCall(ctx context.Context, call *models.Call, body string) {
	typ := models.NotifyCall
	if call.Type == models.CallVideo {
		typ = models.NotifyVideo
	}
	callID := call.ID
	title := "Incoming call"
	if caller, err := h.store.Users().GetByID(ctx, call.CallerID); err == nil && caller != nil {
		title = caller.DisplayName
	}
	h.deliver(ctx, call.ReceiverID, &models.Notification{
		UserID:  call.ReceiverID,
		Type:    typ,
		ActorID: call.CallerID,
		Body:    body,
	}, Push{
		Type:   typ,
		Title:  title,
		Body:   body,
		CallID: &callID,
	}, true)
}

func (h *Hook) deliver(ctx context.Context, userID uuid.UUID, n *models.Notification, p Push, alwaysPush bool) {
	log := h.logger.With(zap.String("user_id", userID.String()), zap.String("type", string(n.Type)))

	user, err := h.store.Users().GetByID(ctx, userID)
	if err != nil {
		log.Warn("load recipient failed", zap.Error(err))
		return
	}
	if user == nil || !user.NotificationsEnabled {
		return
	}

	if err := h.store.Notifications().Create(ctx, n); err != nil {
		log.Warn("create notification failed", zap.Error(err))
		return
	}
	h.emitter.ToUser(userID, events.Notification{Notification: n})

	if !h.pushEnabled || (!alwaysPush && h.presence.IsOnline(userID)) {
		return
	}
	if err := h.push.Send(ctx, userID, p); err != nil {
		log.Warn("push failed", zap.Error(err))
	}
}

// List returns the user's newest notifications.
func (h *Hook) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	out, err := h.store.Notifications().ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// MarkRead reports false when the notification is not the user's.
func (h *Hook) MarkRead(ctx context.Context, userID uuid.UUID, notificationID int64) (bool, error) {
	ok, err := h.store.Notifications().MarkRead(ctx, userID, notificationID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return ok, nil
}
