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

type CallStore struct {
	q querier
}

const callColumns = `id, caller_id, receiver_id, type, status, started_at, ended_at, created_at`

func scanCall(row pgx.Row) (*models.Call, error) {
	var c models.Call
	if err := row.Scan(&c.ID, &c.CallerID, &c.ReceiverID, &c.Type, &c.Status, &c.StartedAt, &c.EndedAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CallStore) Create(ctx context.Context, call *models.Call) error {
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	query := `
		INSERT INTO calls (id, caller_id, receiver_id, type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at`

	err := s.q.QueryRow(ctx, query, call.ID, call.CallerID, call.ReceiverID, call.Type, call.Status).Scan(&call.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

func (s *CallStore) GetByID(ctx context.Context, callID uuid.UUID) (*models.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`

	c, err := scanCall(s.q.QueryRow(ctx, query, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get call: %w", err)
	}
	return c, nil
}

func (s *CallStore) Transition(ctx context.Context, callID uuid.UUID, from []models.CallStatus, to models.CallStatus, at time.Time) (bool, error) {
	query := `
		UPDATE calls
		SET status = $3,
		    started_at = CASE WHEN $3 = 'ongoing' THEN $4 ELSE started_at END,
		    ended_at   = CASE WHEN $3 IN ('ended', 'rejected', 'missed') THEN $4 ELSE ended_at END
		WHERE id = $1 AND status = ANY($2)`

	states := make([]string, len(from))
	for i, f := range from {
		states[i] = string(f)
	}
	tag, err := s.q.Exec(ctx, query, callID, states, string(to), at)
	if err != nil {
		return false, fmt.Errorf("transition call: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *CallStore) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE caller_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	calls := make([]models.Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}
