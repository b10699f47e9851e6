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

type MembershipStore struct {
	q querier
}

const memberColumns = `chat_id, user_id, role, joined_at, left_at, is_muted`

func scanMember(row pgx.Row) (*models.Membership, error) {
	var m models.Membership
	if err := row.Scan(&m.ChatID, &m.UserID, &m.Role, &m.JoinedAt, &m.LeftAt, &m.IsMuted); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MembershipStore) Insert(ctx context.Context, m *models.Membership) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO chat_members (chat_id, user_id, role, joined_at, left_at, is_muted)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.q.Exec(ctx, query, m.ChatID, m.UserID, m.Role, m.JoinedAt, m.LeftAt, m.IsMuted); err != nil {
		return wrapInsert("member", err)
	}
	return nil
}

func (s *MembershipStore) Get(ctx context.Context, chatID, userID uuid.UUID) (*models.Membership, error) {
	query := `SELECT ` + memberColumns + ` FROM chat_members WHERE chat_id = $1 AND user_id = $2`

	m, err := scanMember(s.q.QueryRow(ctx, query, chatID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ListActive orders by joined_at then user_id so succession is deterministic
// when two members joined in the same instant.
func (s *MembershipStore) ListActive(ctx context.Context, chatID uuid.UUID) ([]models.Membership, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM chat_members
		WHERE chat_id = $1 AND left_at IS NULL
		ORDER BY joined_at ASC, user_id ASC`

	rows, err := s.q.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]models.Membership, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

func (s *MembershipStore) Rejoin(ctx context.Context, chatID, userID uuid.UUID, at time.Time) error {
	query := `
		UPDATE chat_members
		SET left_at = NULL, role = 'member', joined_at = $3
		WHERE chat_id = $1 AND user_id = $2`

	if _, err := s.q.Exec(ctx, query, chatID, userID, at); err != nil {
		return fmt.Errorf("rejoin member: %w", err)
	}
	return nil
}

func (s *MembershipStore) MarkLeft(ctx context.Context, chatID, userID uuid.UUID, at time.Time) error {
	query := `
		UPDATE chat_members
		SET left_at = $3, role = 'member'
		WHERE chat_id = $1 AND user_id = $2 AND left_at IS NULL`

	if _, err := s.q.Exec(ctx, query, chatID, userID, at); err != nil {
		return fmt.Errorf("mark member left: %w", err)
	}
	return nil
}

func (s *MembershipStore) SetRole(ctx context.Context, chatID, userID uuid.UUID, role models.Role) error {
	query := `UPDATE chat_members SET role = $3 WHERE chat_id = $1 AND user_id = $2`

	if _, err := s.q.Exec(ctx, query, chatID, userID, role); err != nil {
		return fmt.Errorf("set member role: %w", err)
	}
	return nil
}

func (s *MembershipStore) SetMuted(ctx context.Context, chatID, userID uuid.UUID, muted bool) error {
	query := `UPDATE chat_members SET is_muted = $3 WHERE chat_id = $1 AND user_id = $2`

	if _, err := s.q.Exec(ctx, query, chatID, userID, muted); err != nil {
		return fmt.Errorf("set member muted: %w", err)
	}
	return nil
}
