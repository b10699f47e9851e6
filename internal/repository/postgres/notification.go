package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/models"
)

type NotificationStore struct {
	q querier
}

func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, type, chat_id, actor_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at`

	err := s.q.QueryRow(ctx, query,
		n.UserID, n.Type, nullUUID(n.ChatID), nullUUID(n.ActorID), n.Body,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	query := `
		SELECT id, user_id, type, chat_id, actor_id, body, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`

	rows, err := s.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]models.Notification, 0)
	for rows.Next() {
		var (
			n             models.Notification
			chat, actorID uuid.NullUUID
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &chat, &actorID, &n.Body, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.ChatID = chat.UUID
		n.ActorID = actorID.UUID
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, userID uuid.UUID, notificationID int64) (bool, error) {
	query := `UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`

	tag, err := s.q.Exec(ctx, query, notificationID, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
