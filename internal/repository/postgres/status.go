package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/chatwire/internal/models"
)

// StatusStore keeps status as a smallint so "never move backwards" is the
// `status < $n` guard on every UPDATE.
type StatusStore struct {
	q querier
}

func (s *StatusStore) CreateBatch(ctx context.Context, rows []models.MessageStatus) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO message_status (message_id, chat_id, user_id, status, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (message_id, user_id) DO NOTHING`,
			r.MessageID, r.ChatID, r.UserID, int16(r.Status))
	}
	br := s.q.SendBatch(ctx, batch)
	defer br.Close()
	for range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert status: %w", err)
		}
	}
	return nil
}

func (s *StatusStore) Get(ctx context.Context, messageID int64, userID uuid.UUID) (*models.MessageStatus, error) {
	query := `
		SELECT message_id, chat_id, user_id, status, is_deleted, updated_at
		FROM message_status
		WHERE message_id = $1 AND user_id = $2`

	var (
		st     models.MessageStatus
		status int16
	)
	err := s.q.QueryRow(ctx, query, messageID, userID).Scan(
		&st.MessageID, &st.ChatID, &st.UserID, &status, &st.IsDeleted, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get status: %w", err)
	}
	st.Status = models.DeliveryStatus(status)
	return &st, nil
}

func (s *StatusStore) AdvanceChat(ctx context.Context, chatID, userID uuid.UUID, to models.DeliveryStatus) (int64, error) {
	query := `
		UPDATE message_status
		SET status = $3, updated_at = now()
		WHERE chat_id = $1 AND user_id = $2 AND status < $3`

	tag, err := s.q.Exec(ctx, query, chatID, userID, int16(to))
	if err != nil {
		return 0, fmt.Errorf("advance chat status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *StatusStore) AdvanceAll(ctx context.Context, userID uuid.UUID, to models.DeliveryStatus) ([]uuid.UUID, error) {
	query := `
		WITH changed AS (
			UPDATE message_status
			SET status = $2, updated_at = now()
			WHERE user_id = $1 AND status < $2
			RETURNING chat_id
		)
		SELECT DISTINCT chat_id FROM changed`

	rows, err := s.q.Query(ctx, query, userID, int16(to))
	if err != nil {
		return nil, fmt.Errorf("advance all statuses: %w", err)
	}
	defer rows.Close()

	chats := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat id: %w", err)
		}
		chats = append(chats, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat ids: %w", err)
	}
	return chats, nil
}

func (s *StatusStore) ListForMessages(ctx context.Context, messageIDs []int64) (map[int64][]models.MessageStatus, error) {
	out := make(map[int64][]models.MessageStatus, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT message_id, chat_id, user_id, status, is_deleted, updated_at
		FROM message_status
		WHERE message_id = ANY($1)`

	rows, err := s.q.Query(ctx, query, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			st     models.MessageStatus
			status int16
		)
		if err := rows.Scan(&st.MessageID, &st.ChatID, &st.UserID, &status, &st.IsDeleted, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		st.Status = models.DeliveryStatus(status)
		out[st.MessageID] = append(out[st.MessageID], st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return out, nil
}

func (s *StatusStore) MarkDeleted(ctx context.Context, messageID int64, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE message_status
		SET is_deleted = true, updated_at = now()
		WHERE message_id = $1 AND user_id = $2`

	tag, err := s.q.Exec(ctx, query, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("mark status deleted: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
