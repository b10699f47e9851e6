// Package membership creates chats and keeps group membership consistent:
// adds, removals, leaves with admin succession, mutes and blocks.
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/access"
	"github.com/lalith-99/chatwire/internal/apperr"
	"github.com/lalith-99/chatwire/internal/events"
	"github.com/lalith-99/chatwire/internal/keymutex"
	"github.com/lalith-99/chatwire/internal/models"
	"github.com/lalith-99/chatwire/internal/repository"
	"go.uber.org/zap"
)

// SystemPoster posts the "A added B" style messages. It takes the chat
// lock itself, so callers must not hold it.
type SystemPoster interface {
	SendSystem(ctx context.Context, chatID, actorID uuid.UUID, content string) (*models.Message, error)
}

type Notifier interface {
	NotifyUsers(ctx context.Context, recipients []uuid.UUID, typ models.NotificationType, chat *models.Chat, actorID uuid.UUID, body string)
}

type Service struct {
	store     repository.Store
	system    SystemPoster
	notifier  Notifier
	emitter   events.Emitter
	rooms     events.Rooms
	chatLocks *keymutex.Map[uuid.UUID]
	pairLocks *keymutex.Map[[2]uuid.UUID]
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*Service)

// WithChatLocks shares per-chat serialization with the send pipeline.
func WithChatLocks(m *keymutex.Map[uuid.UUID]) Option {
	return func(s *Service) { s.chatLocks = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	store repository.Store,
	system SystemPoster,
	notifier Notifier,
	emitter events.Emitter,
	rooms events.Rooms,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		store:     store,
		system:    system,
		notifier:  notifier,
		emitter:   emitter,
		rooms:     rooms,
		chatLocks: keymutex.New[uuid.UUID](),
		pairLocks: keymutex.New[[2]uuid.UUID](),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.Named("membership"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func pairKey(a, b uuid.UUID) [2]uuid.UUID {
	if a.String() > b.String() {
		a, b = b, a
	}
	return [2]uuid.UUID{a, b}
}

// CreatePrivateChat returns the private chat between a and b, creating it
// on first use. The boolean reports whether it was created by this call.
func (s *Service) CreatePrivateChat(ctx context.Context, a, b uuid.UUID) (*models.Chat, bool, error) {
	if a == b {
		return nil, false, apperr.Validation(apperr.CodeInvalidPayload, "cannot start a chat with yourself")
	}
	if err := s.requireUsers(ctx, b); err != nil {
		return nil, false, err
	}

	unlock := s.pairLocks.Lock(pairKey(a, b))
	defer unlock()

	existing, err := s.store.Chats().FindPrivate(ctx, a, b)
	if err != nil {
		return nil, false, fmt.Errorf("find private chat: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	chat := &models.Chat{Type: models.ChatPrivate, CreatedBy: a, PeerID: b}
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Chats().Create(ctx, chat); err != nil {
			return err
		}
		for _, id := range []uuid.UUID{a, b} {
			if err := tx.Memberships().Insert(ctx, &models.Membership{
				ChatID:   chat.ID,
				UserID:   id,
				Role:     models.RoleMember,
				JoinedAt: chat.CreatedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// Another process won the race on the pair key.
		existing, ferr := s.store.Chats().FindPrivate(ctx, a, b)
		if ferr != nil {
			return nil, false, fmt.Errorf("find private chat: %w", ferr)
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("create private chat: %w", err)
	}

	s.emitter.ToUser(a, events.ChatCreated{Chat: chat})
	s.emitter.ToUser(b, events.ChatCreated{Chat: chat})
	return chat, true, nil
}

// GroupInput describes a new group. MemberIDs need not include the
// creator, who always becomes admin.
type GroupInput struct {
	Name        string
	Description string
	Image       string
	MemberIDs   []uuid.UUID
}

func (s *Service) CreateGroup(ctx context.Context, creatorID uuid.UUID, in GroupInput) (*models.Chat, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation(apperr.CodeInvalidPayload, "group name is required")
	}
	others := dedupe(in.MemberIDs, creatorID)
	if err := s.requireUsers(ctx, others...); err != nil {
		return nil, err
	}

	chat := &models.Chat{
		Type:        models.ChatGroup,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Image:       in.Image,
		CreatedBy:   creatorID,
	}
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Chats().Create(ctx, chat); err != nil {
			return err
		}
		if err := tx.Memberships().Insert(ctx, &models.Membership{
			ChatID:   chat.ID,
			UserID:   creatorID,
			Role:     models.RoleAdmin,
			JoinedAt: chat.CreatedAt,
		}); err != nil {
			return err
		}
		// Later joiners get a strictly later JoinedAt so tenure stays ordered.
		for i, id := range others {
			if err := tx.Memberships().Insert(ctx, &models.Membership{
				ChatID:   chat.ID,
				UserID:   id,
				Role:     models.RoleMember,
				JoinedAt: chat.CreatedAt.Add(time.Duration(i+1) * time.Microsecond),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	s.emitter.ToUser(creatorID, events.ChatCreated{Chat: chat})
	for _, id := range others {
		s.emitter.ToUser(id, events.ChatCreated{Chat: chat})
	}

	creator := s.displayName(ctx, creatorID)
	s.postSystem(ctx, chat.ID, creatorID, creator+" created the group")
	if len(others) > 0 {
		s.notifier.NotifyUsers(ctx, others, models.NotifyGroupAdd, chat, creatorID, creator+" added you to "+chat.Name)
	}
	return chat, nil
}

// AddMembers is admin-only. Users with no membership row get a fresh one;
// users who left are rejoined. Already active members are ignored. It
// returns the active member count afterwards.
func (s *Service) AddMembers(ctx context.Context, chatID, actorID uuid.UUID, userIDs []uuid.UUID) (int, error) {
	ids := dedupe(userIDs, actorID)
	if len(ids) == 0 {
		return 0, apperr.Validation(apperr.CodeInvalidPayload, "no users to add")
	}
	if err := s.requireUsers(ctx, ids...); err != nil {
		return 0, err
	}

	var (
		chat  *models.Chat
		added []uuid.UUID
		count int
	)
	err := s.locked(chatID, func() error {
		return s.store.WithTx(ctx, func(tx repository.Store) error {
			var err error
			chat, err = s.requireAdmin(ctx, tx, chatID, actorID)
			if err != nil {
				return err
			}
			now := s.now()
			for _, id := range ids {
				m, err := tx.Memberships().Get(ctx, chatID, id)
				if err != nil {
					return fmt.Errorf("load membership: %w", err)
				}
				switch {
				case m == nil:
					err = tx.Memberships().Insert(ctx, &models.Membership{
						ChatID:   chatID,
						UserID:   id,
						Role:     models.RoleMember,
						JoinedAt: now,
					})
				case !m.Active():
					err = tx.Memberships().Rejoin(ctx, chatID, id, now)
				default:
					continue
				}
				if err != nil {
					return err
				}
				added = append(added, id)
			}
			count, err = activeCount(ctx, tx, chatID)
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	if len(added) == 0 {
		return count, nil
	}

	s.emitter.ToChat(chatID, events.GroupMembersUpdated{ChatID: chatID, MemberCount: count}, uuid.Nil)
	for _, id := range added {
		s.emitter.ToUser(id, events.ChatCreated{Chat: chat})
	}

	actor := s.displayName(ctx, actorID)
	s.postSystem(ctx, chatID, actorID, actor+" added "+s.displayNames(ctx, added))
	s.notifier.NotifyUsers(ctx, added, models.NotifyGroupAdd, chat, actorID, actor+" added you to "+chat.Name)
	return count, nil
}

// RemoveMember is admin-only and cannot target the caller, who must use
// LeaveGroup. It returns the active member count afterwards.
func (s *Service) RemoveMember(ctx context.Context, chatID, actorID, targetID uuid.UUID) (int, error) {
	var (
		chat  *models.Chat
		count int
	)
	err := s.locked(chatID, func() error {
		return s.store.WithTx(ctx, func(tx repository.Store) error {
			var err error
			chat, err = s.requireAdmin(ctx, tx, chatID, actorID)
			if err != nil {
				return err
			}
			if targetID == actorID {
				return apperr.SelfRemovalForbidden()
			}
			target, err := tx.Memberships().Get(ctx, chatID, targetID)
			if err != nil {
				return fmt.Errorf("load membership: %w", err)
			}
			if target == nil || !target.Active() {
				return apperr.NotFound("member")
			}
			if err := s.depart(ctx, tx, target); err != nil {
				return err
			}
			count, err = activeCount(ctx, tx, chatID)
			return err
		})
	})
	if err != nil {
		return 0, err
	}

	s.rooms.EvictFromChat(chatID, targetID)
	s.emitter.ToUser(targetID, events.GroupRemoved{ChatID: chatID})
	s.emitter.ToChat(chatID, events.GroupMembersUpdated{ChatID: chatID, MemberCount: count}, uuid.Nil)

	actor := s.displayName(ctx, actorID)
	s.postSystem(ctx, chatID, actorID, actor+" removed "+s.displayName(ctx, targetID))
	s.notifier.NotifyUsers(ctx, []uuid.UUID{targetID}, models.NotifyGroupRemove, chat, actorID, actor+" removed you from "+chat.Name)
	return count, nil
}

// LeaveGroup removes the caller. An admin who leaves hands the role to the
// longest-tenured remaining member first.
func (s *Service) LeaveGroup(ctx context.Context, chatID, userID uuid.UUID) error {
	var (
		chat      *models.Chat
		remaining []uuid.UUID
	)
	err := s.locked(chatID, func() error {
		return s.store.WithTx(ctx, func(tx repository.Store) error {
			c, m, err := access.Group(ctx, tx, chatID, userID)
			if err != nil {
				return err
			}
			chat = c
			if err := s.depart(ctx, tx, m); err != nil {
				return err
			}
			active, err := tx.Memberships().ListActive(ctx, chatID)
			if err != nil {
				return fmt.Errorf("list members: %w", err)
			}
			for _, am := range active {
				remaining = append(remaining, am.UserID)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.rooms.EvictFromChat(chatID, userID)
	s.emitter.ToUser(userID, events.GroupRemoved{ChatID: chatID})
	if len(remaining) == 0 {
		return nil
	}
	s.emitter.ToChat(chatID, events.GroupMembersUpdated{ChatID: chatID, MemberCount: len(remaining)}, uuid.Nil)

	name := s.displayName(ctx, userID)
	s.postSystem(ctx, chatID, userID, name+" left the group")
	s.notifier.NotifyUsers(ctx, remaining, models.NotifyGroupLeave, chat, userID, name+" left "+chat.Name)
	return nil
}

// MuteChat flips the caller's mute flag and returns the new value. Nothing
// is broadcast.
func (s *Service) MuteChat(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	_, m, err := access.Group(ctx, s.store, chatID, userID)
	if err != nil {
		return false, err
	}
	muted := !m.IsMuted
	if err := s.store.Memberships().SetMuted(ctx, chatID, userID, muted); err != nil {
		return false, fmt.Errorf("set muted: %w", err)
	}
	return muted, nil
}

// ListChats returns the user's active chats, most recently active first.
func (s *Service) ListChats(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	chats, err := s.store.Chats().ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// Members lists the active members of a chat the viewer belongs to.
func (s *Service) Members(ctx context.Context, chatID, viewerID uuid.UUID) ([]models.Membership, error) {
	if _, err := access.Chat(ctx, s.store, chatID); err != nil {
		return nil, err
	}
	if _, err := access.ActiveMember(ctx, s.store, chatID, viewerID); err != nil {
		return nil, err
	}
	members, err := s.store.Memberships().ListActive(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// Block stops messaging between the two users in either direction. Both
// personal rooms are told.
func (s *Service) Block(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	return s.setBlock(ctx, blockerID, blockedID, true)
}

func (s *Service) Unblock(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	return s.setBlock(ctx, blockerID, blockedID, false)
}

func (s *Service) setBlock(ctx context.Context, blockerID, blockedID uuid.UUID, blocked bool) error {
	if blockerID == blockedID {
		return apperr.Validation(apperr.CodeInvalidPayload, "cannot block yourself")
	}
	if err := s.requireUsers(ctx, blockedID); err != nil {
		return err
	}

	var err error
	if blocked {
		err = s.store.Blocks().Block(ctx, blockerID, blockedID)
	} else {
		err = s.store.Blocks().Unblock(ctx, blockerID, blockedID)
	}
	if err != nil {
		return fmt.Errorf("update block: %w", err)
	}

	ev := events.BlockStatus{UserID: blockedID, BlockedBy: blockerID, Blocked: blocked}
	s.emitter.ToUser(blockerID, ev)
	s.emitter.ToUser(blockedID, ev)
	return nil
}

// depart hands off the admin role if needed, then marks m as left.
// Succession runs first so the group is never without an admin.
func (s *Service) depart(ctx context.Context, tx repository.Store, m *models.Membership) error {
	if m.Role == models.RoleAdmin {
		active, err := tx.Memberships().ListActive(ctx, m.ChatID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		for _, next := range active {
			if next.UserID == m.UserID {
				continue
			}
			if err := tx.Memberships().SetRole(ctx, m.ChatID, next.UserID, models.RoleAdmin); err != nil {
				return fmt.Errorf("promote admin: %w", err)
			}
			s.logger.Info("admin succession",
				zap.String("chat_id", m.ChatID.String()),
				zap.String("from", m.UserID.String()),
				zap.String("to", next.UserID.String()),
			)
			break
		}
	}
	if err := tx.Memberships().MarkLeft(ctx, m.ChatID, m.UserID, s.now()); err != nil {
		return fmt.Errorf("mark left: %w", err)
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, store repository.Store, chatID, userID uuid.UUID) (*models.Chat, error) {
	chat, m, err := access.Group(ctx, store, chatID, userID)
	if err != nil {
		return nil, err
	}
	if m.Role != models.RoleAdmin {
		return nil, apperr.NotAdmin()
	}
	return chat, nil
}

func (s *Service) requireUsers(ctx context.Context, ids ...uuid.UUID) error {
	for _, id := range ids {
		u, err := s.store.Users().GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if u == nil {
			return apperr.NotFound("user")
		}
	}
	return nil
}

func (s *Service) locked(chatID uuid.UUID, fn func() error) error {
	unlock := s.chatLocks.Lock(chatID)
	defer unlock()
	return fn()
}

// postSystem failures are logged: the membership change has committed.
func (s *Service) postSystem(ctx context.Context, chatID, actorID uuid.UUID, content string) {
	if _, err := s.system.SendSystem(ctx, chatID, actorID, content); err != nil {
		s.logger.Warn("post system message failed",
			zap.String("chat_id", chatID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) displayName(ctx context.Context, id uuid.UUID) string {
	u, err := s.store.Users().GetByID(ctx, id)
	if err != nil || u == nil {
		return "Someone"
	}
	return u.DisplayName
}

func (s *Service) displayNames(ctx context.Context, ids []uuid.UUID) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, s.displayName(ctx, id))
	}
	return strings.Join(names, ", ")
}

func activeCount(ctx context.Context, store repository.Store, chatID uuid.UUID) (int, error) {
	active, err := store.Memberships().ListActive(ctx, chatID)
	if err != nil {
		return 0, fmt.Errorf("list members: %w", err)
	}
	return len(active), nil
}

// dedupe drops duplicates, uuid.Nil and skip, keeping order.
func dedupe(ids []uuid.UUID, skip uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || id == skip || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
