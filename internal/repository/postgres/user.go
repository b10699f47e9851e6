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

type UserStore struct {
	q querier
}

const userColumns = `id, email, display_name, password_hash, is_online, last_seen, notifications_enabled, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PasswordHash,
		&u.IsOnline,
		&u.LastSeen,
		&u.NotificationsEnabled,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) Create(ctx context.Context, email, displayName, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING ` + userColumns

	u, err := scanUser(s.q.QueryRow(ctx, query, uuid.New(), email, displayName, passwordHash))
	if err != nil {
		return nil, wrapInsert("user", err)
	}
	return u, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(s.q.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetByEmail is the login lookup; emails are unique across the system.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	u, err := scanUser(s.q.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) SetPresence(ctx context.Context, userID uuid.UUID, online bool, lastSeen time.Time) error {
	query := `UPDATE users SET is_online = $2, last_seen = $3 WHERE id = $1`

	if _, err := s.q.Exec(ctx, query, userID, online, lastSeen); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

func (s *UserStore) SetNotificationsEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error {
	query := `UPDATE users SET notifications_enabled = $2 WHERE id = $1`

	if _, err := s.q.Exec(ctx, query, userID, enabled); err != nil {
		return fmt.Errorf("set notifications enabled: %w", err)
	}
	return nil
}
