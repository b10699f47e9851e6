// Package access holds the membership checks every chat operation starts
// with.
package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/apperr"
	"github.com/lalith-99/chatwire/internal/models"
	"github.com/lalith-99/chatwire/internal/repository"
)

// Chat loads a chat or fails with NotFound.
func Chat(ctx context.Context, store repository.Store, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := store.Chats().GetByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if chat == nil {
		return nil, apperr.NotFound("chat")
	}
	return chat, nil
}

// ActiveMember returns the caller's membership, failing with NotMember when
// there is no row or the row has LeftAt set.
func ActiveMember(ctx context.Context, store repository.Store, chatID, userID uuid.UUID) (*models.Membership, error) {
	m, err := store.Memberships().Get(ctx, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	if m == nil || !m.Active() {
		return nil, apperr.NotMember()
	}
	return m, nil
}

// Group loads a chat, requires it to be a group and requires the caller to
// be an active member.
func Group(ctx context.Context, store repository.Store, chatID, userID uuid.UUID) (*models.Chat, *models.Membership, error) {
	chat, err := Chat(ctx, store, chatID)
	if err != nil {
		return nil, nil, err
	}
	if chat.Type != models.ChatGroup {
		return nil, nil, apperr.NotGroup()
	}
	m, err := ActiveMember(ctx, store, chatID, userID)
	if err != nil {
		return nil, nil, err
	}
	return chat, m, nil
}
