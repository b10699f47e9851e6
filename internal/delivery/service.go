package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/access"
	"github.com/lalith-99/chatwire/internal/apperr"
	"github.com/lalith-99/chatwire/internal/events"
	"github.com/lalith-99/chatwire/internal/models"
	"github.com/lalith-99/chatwire/internal/repository"
	"go.uber.org/zap"
)

// Presence answers whether a user has a live connection right now.
type Presence interface {
	IsOnline(userID uuid.UUID) bool
}

type Service struct {
	store    repository.Store
	emitter  events.Emitter
	presence Presence
	logger   *zap.Logger
}

func NewService(store repository.Store, emitter events.Emitter, presence Presence, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		emitter:  emitter,
		presence: presence,
		logger:   logger.Named("delivery"),
	}
}

// Seed creates one status row per active member other than the sender,
// using tx so the rows commit with the message. It reports the recipients
// that were online.
func (s *Service) Seed(ctx context.Context, tx repository.Store, msg *models.Message, members []models.Membership) ([]uuid.UUID, error) {
	rows := make([]models.MessageStatus, 0, len(members))
	var online []uuid.UUID
	for _, m := range members {
		if m.UserID == msg.SenderID || !m.Active() {
			continue
		}
		isOnline := s.presence.IsOnline(m.UserID)
		if isOnline {
			online = append(online, m.UserID)
		}
		rows = append(rows, models.MessageStatus{
			MessageID: msg.ID,
			ChatID:    msg.ChatID,
			UserID:    m.UserID,
			Status:    Initial(isOnline),
		})
	}
	if err := tx.Statuses().CreateBatch(ctx, rows); err != nil {
		return nil, fmt.Errorf("seed statuses: %w", err)
	}
	return online, nil
}

// SweepResult counts the rows a sweep moved.
type SweepResult struct {
	Delivered int64
	Read      int64
}

// Sweep moves every row the user holds in the chat to delivered and then
// to read. It does not check membership or emit anything.
func (s *Service) Sweep(ctx context.Context, chatID, userID uuid.UUID) (SweepResult, error) {
	var res SweepResult
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		n, err := tx.Statuses().AdvanceChat(ctx, chatID, userID, models.StatusDelivered)
		if err != nil {
			return err
		}
		res.Delivered = n
		n, err = tx.Statuses().AdvanceChat(ctx, chatID, userID, models.StatusRead)
		if err != nil {
			return err
		}
		res.Read = n
		return nil
	})
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep chat: %w", err)
	}
	return res, nil
}

// Announce tells the rest of the chat room what a sweep changed.
func (s *Service) Announce(chatID, userID uuid.UUID, res SweepResult) {
	if res.Delivered > 0 {
		s.emitter.ToChat(chatID, events.MessageDelivered{ChatID: chatID, UserID: userID}, userID)
	}
	if res.Read > 0 {
		s.emitter.ToChat(chatID, events.MessagesRead{ChatID: chatID, ReaderID: userID}, userID)
	}
}

// MarkChatRead handles an explicit messages-read from a member.
func (s *Service) MarkChatRead(ctx context.Context, chatID, userID uuid.UUID) error {
	if _, err := access.ActiveMember(ctx, s.store, chatID, userID); err != nil {
		return err
	}
	res, err := s.Sweep(ctx, chatID, userID)
	if err != nil {
		return err
	}
	s.Announce(chatID, userID, res)
	return nil
}

// DeliverPending runs on every new connection: every row still at sent
// moves to delivered, and each affected chat room hears about it.
func (s *Service) DeliverPending(ctx context.Context, userID uuid.UUID) error {
	chats, err := s.store.Statuses().AdvanceAll(ctx, userID, models.StatusDelivered)
	if err != nil {
		return fmt.Errorf("deliver pending: %w", err)
	}
	for _, chatID := range chats {
		s.emitter.ToChat(chatID, events.MessageDelivered{ChatID: chatID, UserID: userID}, userID)
	}
	if len(chats) > 0 {
		s.logger.Debug("delivered pending messages",
			zap.String("user_id", userID.String()),
			zap.Int("chats", len(chats)),
		)
	}
	return nil
}

// DeleteForMe hides a message from one user only. Repeating it is a no-op
// and nothing is broadcast.
func (s *Service) DeleteForMe(ctx context.Context, messageID int64, userID uuid.UUID) error {
	msg, err := s.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if msg == nil {
		return apperr.NotFound("message")
	}

	if msg.SenderID == userID {
		if err := s.store.Messages().Hide(ctx, messageID, userID); err != nil {
			return fmt.Errorf("delete for me: %w", err)
		}
		return nil
	}

	found, err := s.store.Statuses().MarkDeleted(ctx, messageID, userID)
	if err != nil {
		return fmt.Errorf("delete for me: %w", err)
	}
	if !found {
		return apperr.NotFound("message")
	}
	return nil
}

// AttachAggregates fills Status on the messages the viewer sent, leaving
// everyone else's messages untouched.
func (s *Service) AttachAggregates(ctx context.Context, viewerID uuid.UUID, msgs []models.Message) error {
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID == viewerID {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	rows, err := s.store.Statuses().ListForMessages(ctx, ids)
	if err != nil {
		return fmt.Errorf("load statuses: %w", err)
	}
	for i := range msgs {
		if msgs[i].SenderID != viewerID {
			continue
		}
		statuses := make([]models.DeliveryStatus, 0, len(rows[msgs[i].ID]))
		for _, r := range rows[msgs[i].ID] {
			statuses = append(statuses, r.Status)
		}
		agg := Aggregate(statuses)
		msgs[i].Status = &agg
	}
	return nil
}
