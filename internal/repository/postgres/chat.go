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

type ChatStore struct {
	q querier
}

const chatColumns = `id, type, name, description, image, created_by, created_at, updated_at`

// privateKey orders the pair so (a, b) and (b, a) map to the same row.
func privateKey(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if as > bs {
		as, bs = bs, as
	}
	return as + ":" + bs
}

func scanChat(row pgx.Row) (*models.Chat, error) {
	var c models.Chat
	err := row.Scan(
		&c.ID,
		&c.Type,
		&c.Name,
		&c.Description,
		&c.Image,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a chat. A private chat is keyed on its two participants,
// so inserting a second one for the same pair fails on the unique index.
func (s *ChatStore) Create(ctx context.Context, chat *models.Chat) error {
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	query := `
		INSERT INTO chats (id, type, name, description, image, created_by, private_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at`

	var key *string
	if chat.Type == models.ChatPrivate && chat.PeerID != uuid.Nil {
		k := privateKey(chat.CreatedBy, chat.PeerID)
		key = &k
	}

	err := s.q.QueryRow(ctx, query,
		chat.ID, chat.Type, chat.Name, chat.Description, chat.Image, chat.CreatedBy, key,
	).Scan(&chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		return wrapInsert("chat", err)
	}
	return nil
}

func (s *ChatStore) GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id = $1`

	c, err := scanChat(s.q.QueryRow(ctx, query, chatID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return c, nil
}

func (s *ChatStore) FindPrivate(ctx context.Context, a, b uuid.UUID) (*models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE private_key = $1`

	c, err := scanChat(s.q.QueryRow(ctx, query, privateKey(a, b)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find private chat: %w", err)
	}
	return c, nil
}

func (s *ChatStore) Touch(ctx context.Context, chatID uuid.UUID, at time.Time) error {
	query := `UPDATE chats SET updated_at = $2 WHERE id = $1 AND updated_at < $2`

	if _, err := s.q.Exec(ctx, query, chatID, at); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}

func (s *ChatStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	query := `
		SELECT c.id, c.type, c.name, c.description, c.image, c.created_by, c.created_at, c.updated_at
		FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		WHERE m.user_id = $1 AND m.left_at IS NULL
		ORDER BY c.updated_at DESC`

	rows, err := s.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]models.Chat, 0)
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return chats, nil
}
