// Package memstore is an in-memory repository.Store. It backs
// STORE_BACKEND=memory for local runs and is the fixture for service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/models"
	"github.com/lalith-99/chatwire/internal/repository"
)

type memberKey struct {
	chat uuid.UUID
	user uuid.UUID
}

type statusKey struct {
	message int64
	user    uuid.UUID
}

type data struct {
	mu sync.Mutex

	users         map[uuid.UUID]*models.User
	blocks        map[[2]uuid.UUID]time.Time
	devices       map[string]*models.Device
	chats         map[uuid.UUID]*models.Chat
	privateChats  map[[2]uuid.UUID]uuid.UUID
	members       map[memberKey]*models.Membership
	messages      map[int64]*models.Message
	hidden        map[statusKey]bool
	statuses      map[statusKey]*models.MessageStatus
	notifications []*models.Notification
	calls         map[uuid.UUID]*models.Call

	nextMessageID      int64
	nextNotificationID int64
}

// Store is safe for concurrent use. Transactions are serialized against
// each other but are not isolated from single statements, and a failed
// transaction does not roll back.
type Store struct {
	d    *data
	txMu *sync.Mutex
	inTx bool
}

func New() *Store {
	return &Store{
		d: &data{
			users:        make(map[uuid.UUID]*models.User),
			blocks:       make(map[[2]uuid.UUID]time.Time),
			devices:      make(map[string]*models.Device),
			chats:        make(map[uuid.UUID]*models.Chat),
			privateChats: make(map[[2]uuid.UUID]uuid.UUID),
			members:      make(map[memberKey]*models.Membership),
			messages:     make(map[int64]*models.Message),
			hidden:       make(map[statusKey]bool),
			statuses:     make(map[statusKey]*models.MessageStatus),
			calls:        make(map[uuid.UUID]*models.Call),
		},
		txMu: &sync.Mutex{},
	}
}

func (s *Store) Users() repository.UserRepository                 { return users{s.d} }
func (s *Store) Blocks() repository.BlockRepository               { return blocks{s.d} }
func (s *Store) Devices() repository.DeviceRepository             { return devices{s.d} }
func (s *Store) Chats() repository.ChatRepository                 { return chats{s.d} }
func (s *Store) Memberships() repository.MembershipRepository     { return members{s.d} }
func (s *Store) Messages() repository.MessageRepository           { return messages{s.d} }
func (s *Store) Statuses() repository.StatusRepository            { return statuses{s.d} }
func (s *Store) Notifications() repository.NotificationRepository { return notifications{s.d} }
func (s *Store) Calls() repository.CallRepository                 { return calls{s.d} }

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(&Store{d: s.d, txMu: s.txMu, inTx: true})
}

func now() time.Time { return time.Now().UTC() }

func pair(a, b uuid.UUID) [2]uuid.UUID {
	if a.String() > b.String() {
		a, b = b, a
	}
	return [2]uuid.UUID{a, b}
}

type users struct{ d *data }

func (r users) Create(_ context.Context, email, displayName, passwordHash string) (*models.User, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, u := range r.d.users {
		if u.Email == email {
			return nil, errDuplicate("user email")
		}
	}
	u := &models.User{
		ID:                   uuid.New(),
		Email:                email,
		DisplayName:          displayName,
		PasswordHash:         passwordHash,
		NotificationsEnabled: true,
		CreatedAt:            now(),
	}
	r.d.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (r users) GetByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	u, ok := r.d.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, u := range r.d.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r users) SetPresence(_ context.Context, userID uuid.UUID, online bool, lastSeen time.Time) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if u, ok := r.d.users[userID]; ok {
		u.IsOnline = online
		ls := lastSeen
		u.LastSeen = &ls
	}
	return nil
}

func (r users) SetNotificationsEnabled(_ context.Context, userID uuid.UUID, enabled bool) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if u, ok := r.d.users[userID]; ok {
		u.NotificationsEnabled = enabled
	}
	return nil
}

type blocks struct{ d *data }

func (r blocks) Block(_ context.Context, blockerID, blockedID uuid.UUID) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	k := [2]uuid.UUID{blockerID, blockedID}
	if _, ok := r.d.blocks[k]; !ok {
		r.d.blocks[k] = now()
	}
	return nil
}

func (r blocks) Unblock(_ context.Context, blockerID, blockedID uuid.UUID) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	delete(r.d.blocks, [2]uuid.UUID{blockerID, blockedID})
	return nil
}

func (r blocks) IsBlocked(_ context.Context, a, b uuid.UUID) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	_, ab := r.d.blocks[[2]uuid.UUID{a, b}]
	_, ba := r.d.blocks[[2]uuid.UUID{b, a}]
	return ab || ba, nil
}

type devices struct{ d *data }

func (r devices) Register(_ context.Context, device *models.Device) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if existing, ok := r.d.devices[device.Token]; ok {
		device.CreatedAt = existing.CreatedAt
	} else {
		device.CreatedAt = now()
	}
	cp := *device
	r.d.devices[device.Token] = &cp
	return nil
}

func (r devices) ListForUser(_ context.Context, userID uuid.UUID) ([]models.Device, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := make([]models.Device, 0)
	for _, dev := range r.d.devices {
		if dev.UserID == userID {
			out = append(out, *dev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type chats struct{ d *data }

func (r chats) Create(_ context.Context, chat *models.Chat) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	if chat.Type == models.ChatPrivate && chat.PeerID != uuid.Nil {
		k := pair(chat.CreatedBy, chat.PeerID)
		if _, ok := r.d.privateChats[k]; ok {
			return errDuplicate("private chat")
		}
		r.d.privateChats[k] = chat.ID
	}
	chat.CreatedAt = now()
	chat.UpdatedAt = chat.CreatedAt
	cp := *chat
	r.d.chats[chat.ID] = &cp
	return nil
}

func (r chats) GetByID(_ context.Context, chatID uuid.UUID) (*models.Chat, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	c, ok := r.d.chats[chatID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r chats) FindPrivate(_ context.Context, a, b uuid.UUID) (*models.Chat, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	id, ok := r.d.privateChats[pair(a, b)]
	if !ok {
		return nil, nil
	}
	cp := *r.d.chats[id]
	return &cp, nil
}

func (r chats) Touch(_ context.Context, chatID uuid.UUID, at time.Time) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if c, ok := r.d.chats[chatID]; ok && c.UpdatedAt.Before(at) {
		c.UpdatedAt = at
	}
	return nil
}

func (r chats) ListForUser(_ context.Context, userID uuid.UUID) ([]models.Chat, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := make([]models.Chat, 0)
	for k, m := range r.d.members {
		if k.user == userID && m.Active() {
			out = append(out, *r.d.chats[k.chat])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

type members struct{ d *data }

func (r members) Insert(_ context.Context, m *models.Membership) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	k := memberKey{m.ChatID, m.UserID}
	if _, ok := r.d.members[k]; ok {
		return errDuplicate("membership")
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = now()
	}
	cp := *m
	r.d.members[k] = &cp
	return nil
}

func (r members) Get(_ context.Context, chatID, userID uuid.UUID) (*models.Membership, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	m, ok := r.d.members[memberKey{chatID, userID}]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r members) ListActive(_ context.Context, chatID uuid.UUID) ([]models.Membership, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := make([]models.Membership, 0)
	for k, m := range r.d.members {
		if k.chat == chatID && m.Active() {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}

func (r members) Rejoin(_ context.Context, chatID, userID uuid.UUID, at time.Time) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if m, ok := r.d.members[memberKey{chatID, userID}]; ok {
		m.LeftAt = nil
		m.Role = models.RoleMember
		m.JoinedAt = at
	}
	return nil
}

func (r members) MarkLeft(_ context.Context, chatID, userID uuid.UUID, at time.Time) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if m, ok := r.d.members[memberKey{chatID, userID}]; ok && m.Active() {
		left := at
		m.LeftAt = &left
		m.Role = models.RoleMember
	}
	return nil
}

func (r members) SetRole(_ context.Context, chatID, userID uuid.UUID, role models.Role) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if m, ok := r.d.members[memberKey{chatID, userID}]; ok {
		m.Role = role
	}
	return nil
}

func (r members) SetMuted(_ context.Context, chatID, userID uuid.UUID, muted bool) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if m, ok := r.d.members[memberKey{chatID, userID}]; ok {
		m.IsMuted = muted
	}
	return nil
}

type messages struct{ d *data }

func (r messages) Create(_ context.Context, msg *models.Message) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	r.d.nextMessageID++
	msg.ID = r.d.nextMessageID
	msg.CreatedAt = now()
	msg.UpdatedAt = msg.CreatedAt
	cp := *msg
	cp.Status = nil
	r.d.messages[msg.ID] = &cp
	return nil
}

func (r messages) GetByID(_ context.Context, messageID int64) (*models.Message, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	m, ok := r.d.messages[messageID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r messages) UpdateContent(_ context.Context, messageID int64, content string, at time.Time) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	m, ok := r.d.messages[messageID]
	if !ok || m.Type != models.MessageText {
		return false, nil
	}
	m.Content = content
	m.IsEdited = true
	m.UpdatedAt = at
	return true, nil
}

func (r messages) Tombstone(_ context.Context, messageID int64, content string, at time.Time) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	m, ok := r.d.messages[messageID]
	if !ok || m.Type == models.MessageDeleted {
		return false, nil
	}
	m.Content = content
	m.Type = models.MessageDeleted
	m.FileName, m.FileMime, m.FilePath = "", "", ""
	m.FileSize = 0
	m.UpdatedAt = at
	return true, nil
}

func (r messages) ListVisible(_ context.Context, chatID, viewerID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := make([]models.Message, 0)
	for id, m := range r.d.messages {
		if m.ChatID != chatID || (before > 0 && id >= before) {
			continue
		}
		k := statusKey{id, viewerID}
		visible := false
		if m.SenderID == viewerID {
			visible = !r.d.hidden[k]
		} else if st, ok := r.d.statuses[k]; ok {
			visible = !st.IsDeleted
		}
		if visible {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r messages) Hide(_ context.Context, messageID int64, userID uuid.UUID) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	r.d.hidden[statusKey{messageID, userID}] = true
	return nil
}

type statuses struct{ d *data }

func (r statuses) CreateBatch(_ context.Context, rows []models.MessageStatus) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, row := range rows {
		k := statusKey{row.MessageID, row.UserID}
		if _, ok := r.d.statuses[k]; ok {
			continue
		}
		cp := row
		cp.UpdatedAt = now()
		r.d.statuses[k] = &cp
	}
	return nil
}

func (r statuses) Get(_ context.Context, messageID int64, userID uuid.UUID) (*models.MessageStatus, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	st, ok := r.d.statuses[statusKey{messageID, userID}]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (r statuses) AdvanceChat(_ context.Context, chatID, userID uuid.UUID, to models.DeliveryStatus) (int64, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var n int64
	for k, st := range r.d.statuses {
		if k.user != userID || st.ChatID != chatID {
			continue
		}
		if next, ok := st.Status.Advance(to); ok {
			st.Status = next
			st.UpdatedAt = now()
			n++
		}
	}
	return n, nil
}

func (r statuses) AdvanceAll(_ context.Context, userID uuid.UUID, to models.DeliveryStatus) ([]uuid.UUID, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	out := make([]uuid.UUID, 0)
	for k, st := range r.d.statuses {
		if k.user != userID {
			continue
		}
		next, ok := st.Status.Advance(to)
		if !ok {
			continue
		}
		st.Status = next
		st.UpdatedAt = now()
		if !seen[st.ChatID] {
			seen[st.ChatID] = true
			out = append(out, st.ChatID)
		}
	}
	return out, nil
}

func (r statuses) ListForMessages(_ context.Context, messageIDs []int64) (map[int64][]models.MessageStatus, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	want := make(map[int64]bool, len(messageIDs))
	for _, id := range messageIDs {
		want[id] = true
	}
	out := make(map[int64][]models.MessageStatus, len(messageIDs))
	for k, st := range r.d.statuses {
		if want[k.message] {
			out[k.message] = append(out[k.message], *st)
		}
	}
	return out, nil
}

func (r statuses) MarkDeleted(_ context.Context, messageID int64, userID uuid.UUID) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	st, ok := r.d.statuses[statusKey{messageID, userID}]
	if !ok {
		return false, nil
	}
	st.IsDeleted = true
	st.UpdatedAt = now()
	return true, nil
}

type notifications struct{ d *data }

func (r notifications) Create(_ context.Context, n *models.Notification) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	r.d.nextNotificationID++
	n.ID = r.d.nextNotificationID
	n.CreatedAt = now()
	cp := *n
	r.d.notifications = append(r.d.notifications, &cp)
	return nil
}

func (r notifications) ListForUser(_ context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := make([]models.Notification, 0)
	for i := len(r.d.notifications) - 1; i >= 0; i-- {
		n := r.d.notifications[i]
		if n.UserID != userID {
			continue
		}
		out = append(out, *n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r notifications) MarkRead(_ context.Context, userID uuid.UUID, notificationID int64) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, n := range r.d.notifications {
		if n.ID == notificationID && n.UserID == userID {
			n.IsRead = true
			return true, nil
		}
	}
	return false, nil
}

type calls struct{ d *data }

func (r calls) Create(_ context.Context, call *models.Call) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	call.CreatedAt = now()
	cp := *call
	r.d.calls[call.ID] = &cp
	return nil
}

func (r calls) GetByID(_ context.Context, callID uuid.UUID) (*models.Call, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	c, ok := r.d.calls[callID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r calls) Transition(_ context.Context, callID uuid.UUID, from []models.CallStatus, to models.CallStatus, at time.Time) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	c, ok := r.d.calls[callID]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, f := range from {
		if c.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	c.Status = to
	t := at
	if to == models.CallOngoing {
		c.StartedAt = &t
	}
	if to.Terminal() {
		c.EndedAt = &t
	}
	return true, nil
}

func (r calls) ListForUser(_ context.Context, userID uuid.UUID, limit int) ([]models.Call, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := make([]models.Call, 0)
	for _, c := range r.d.calls {
		if c.CallerID == userID || c.ReceiverID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ repository.Store = (*Store)(nil)
