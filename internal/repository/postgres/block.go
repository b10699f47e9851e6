package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type BlockStore struct {
	q querier
}

func (s *BlockStore) Block(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	query := `
		INSERT INTO blocks (blocker_id, blocked_id)
		VALUES ($1, $2)
		ON CONFLICT (blocker_id, blocked_id) DO NOTHING`

	if _, err := s.q.Exec(ctx, query, blockerID, blockedID); err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	return nil
}

func (s *BlockStore) Unblock(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	query := `DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2`

	if _, err := s.q.Exec(ctx, query, blockerID, blockedID); err != nil {
		return fmt.Errorf("unblock user: %w", err)
	}
	return nil
}

func (s *BlockStore) IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM blocks
			WHERE (blocker_id = $1 AND blocked_id = $2)
			   OR (blocker_id = $2 AND blocked_id = $1)
		)`

	var blocked bool
	if err := s.q.QueryRow(ctx, query, a, b).Scan(&blocked); err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return blocked, nil
}
