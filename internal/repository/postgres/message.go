package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/chatwire/internal/models"
)

type MessageStore struct {
	q querier
}

const messageColumns = `id, chat_id, sender_id, type, content, file_name, file_size, file_mime, file_path, is_edited, created_at, updated_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(
		&m.ID,
		&m.ChatID,
		&m.SenderID,
		&m.Type,
		&m.Content,
		&m.FileName,
		&m.FileSize,
		&m.FileMime,
		&m.FilePath,
		&m.IsEdited,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create relies on the bigserial id; RETURNING hands back id and timestamps.
func (s *MessageStore) Create(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (chat_id, sender_id, type, content, file_name, file_size, file_mime, file_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING id, created_at, updated_at`

	err := s.q.QueryRow(ctx, query,
		msg.ChatID, msg.SenderID, msg.Type, msg.Content,
		msg.FileName, msg.FileSize, msg.FileMime, msg.FilePath,
	).Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(s.q.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (s *MessageStore) UpdateContent(ctx context.Context, messageID int64, content string, at time.Time) (bool, error) {
	// The type guard makes the edit a compare-and-set: if a delete for
	// everyone committed first, this matches no row.
	query := `
		UPDATE messages SET content = $2, is_edited = true, updated_at = $3
		WHERE id = $1 AND type = 'text'`

	tag, err := s.q.Exec(ctx, query, messageID, content, at)
	if err != nil {
		return false, fmt.Errorf("update message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *MessageStore) Tombstone(ctx context.Context, messageID int64, content string, at time.Time) (bool, error) {
	query := `
		UPDATE messages
		SET content = $2, type = 'deleted', file_name = '', file_size = 0, file_mime = '', file_path = '', updated_at = $3
		WHERE id = $1 AND type <> 'deleted'`

	tag, err := s.q.Exec(ctx, query, messageID, content, at)
	if err != nil {
		return false, fmt.Errorf("tombstone message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListVisible pages with an id cursor: before=0 is the newest page, before=N
// returns messages older than N.
func (s *MessageStore) ListVisible(ctx context.Context, chatID, viewerID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.chat_id = $1
		  AND ($3 = 0 OR m.id < $3)
		  AND (
		        (m.sender_id = $2 AND NOT EXISTS (
		            SELECT 1 FROM message_hidden h WHERE h.message_id = m.id AND h.user_id = $2))
		     OR EXISTS (
		            SELECT 1 FROM message_status ms
		            WHERE ms.message_id = m.id AND ms.user_id = $2 AND NOT ms.is_deleted)
		  )
		ORDER BY m.id DESC
		LIMIT $4`

	rows, err := s.q.Query(ctx, query, chatID, viewerID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (s *MessageStore) Hide(ctx context.Context, messageID int64, userID uuid.UUID) error {
	query := `
		INSERT INTO message_hidden (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	if _, err := s.q.Exec(ctx, query, messageID, userID); err != nil {
		return fmt.Errorf("hide message: %w", err)
	}
	return nil
}
