package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/models"
)

type DeviceStore struct {
	q querier
}

func (s *DeviceStore) Register(ctx context.Context, d *models.Device) error {
	query := `
		INSERT INTO devices (token, user_id, platform, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform
		RETURNING created_at`

	if err := s.q.QueryRow(ctx, query, d.Token, d.UserID, d.Platform).Scan(&d.CreatedAt); err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

func (s *DeviceStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Device, error) {
	query := `
		SELECT user_id, token, platform, created_at
		FROM devices
		WHERE user_id = $1
		ORDER BY created_at`

	rows, err := s.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := make([]models.Device, 0)
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.UserID, &d.Token, &d.Platform, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}
