package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/events"
	"github.com/lalith-99/chatwire/internal/events/eventstest"
	"github.com/lalith-99/chatwire/internal/models"
	"github.com/lalith-99/chatwire/internal/repository/memstore"
	"go.uber.org/zap"
)

type fakePresence map[uuid.UUID]bool

func (f fakePresence) IsOnline(id uuid.UUID) bool { return f[id] }

type recordingPush struct {
	mu   sync.Mutex
	sent map[uuid.UUID][]Push
}

func (r *recordingPush) Send(_ context.Context, userID uuid.UUID, p Push) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[uuid.UUID][]Push)
	}
	r.sent[userID] = append(r.sent[userID], p)
	return nil
}

func (r *recordingPush) count(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent[id])
}

func newUser(t *testing.T, store *memstore.Store, email string) uuid.UUID {
	t.Helper()
	u, err := store.Users().Create(context.Background(), email, email, "h")
	if err != nil {
		t.Fatal(err)
	}
	return u.ID
}

func TestNotifyMessage(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	sender := newUser(t, store, "s@x.io")
	offline := newUser(t, store, "off@x.io")
	online := newUser(t, store, "on@x.io")
	muted := newUser(t, store, "mute@x.io")
	optedOut := newUser(t, store, "out@x.io")
	store.Users().SetNotificationsEnabled(ctx, optedOut, false)

	rec := eventstest.New()
	push := &recordingPush{}
	hook := NewHook(store, rec, fakePresence{online: true}, push, true, zap.NewNop())

	chat := &models.Chat{ID: uuid.New(), Type: models.ChatGroup, Name: "team"}
	msg := &models.Message{ID: 1, ChatID: chat.ID, SenderID: sender, Type: models.MessageText, Content: "yo"}
	hook.NotifyMessage(ctx, MessageNotice{
		Chat:    chat,
		Message: msg,
		Preview: "yo",
		Members: []models.Membership{
			{UserID: sender},
			{UserID: offline},
			{UserID: online},
			{UserID: muted, IsMuted: true},
			{UserID: optedOut},
		},
	})

	tests := []struct {
		name          string
		user          uuid.UUID
		notifications int
		pushes        int
	}{
		{"sender", sender, 0, 0},
		{"offline recipient", offline, 1, 1},
		{"online recipient", online, 1, 0},
		{"muted recipient", muted, 0, 0},
		{"opted out", optedOut, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, _ := hook.List(ctx, tt.user, 10)
			if len(list) != tt.notifications {
				t.Errorf("notifications = %d, want %d", len(list), tt.notifications)
			}
			if got := len(rec.ToUserNamed(tt.user, events.NameNotification)); got != tt.notifications {
				t.Errorf("notification events = %d, want %d", got, tt.notifications)
			}
			if got := push.count(tt.user); got != tt.pushes {
				t.Errorf("pushes = %d, want %d", got, tt.pushes)
			}
		})
	}
}

func TestPushDisabledGlobally(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	sender := newUser(t, store, "s@x.io")
	recipient := newUser(t, store, "r@x.io")
	push := &recordingPush{}
	hook := NewHook(store, eventstest.New(), fakePresence{}, push, false, zap.NewNop())

	chat := &models.Chat{ID: uuid.New(), Type: models.ChatPrivate}
	hook.NotifyMessage(ctx, MessageNotice{
		Chat:    chat,
		Message: &models.Message{SenderID: sender},
		Preview: "hi",
		Members: []models.Membership{{UserID: sender}, {UserID: recipient}},
	})

	if got := push.count(recipient); got != 0 {
		t.Errorf("pushes = %d with push disabled", got)
	}
	if list, _ := hook.List(ctx, recipient, 10); len(list) != 1 {
		t.Errorf("notification row still expected, got %d", len(list))
	}
}

func TestNotifyCallAlwaysPushes(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	caller := newUser(t, store, "c@x.io")
	receiver := newUser(t, store, "r@x.io")
	push := &recordingPush{}
	hook := NewHook(store, eventstest.New(), fakePresence{receiver: true}, push, true, zap.NewNop())

	callID := uuid.New()
	hook.NotifyCall(ctx, &models.Call{ID: callID, CallerID: caller, ReceiverID: receiver, Type: models.CallVideo}, "Missed video call")

	if got := push.count(receiver); got != 1 {
		t.Fatalf("pushes = %d, want 1", got)
	}
	if p := push.sent[receiver][0]; p.CallID == nil || *p.CallID != callID || p.ChatID != nil {
		t.Errorf("push ids = chat %v, call %v", p.ChatID, p.CallID)
	}
	list, _ := hook.List(ctx, receiver, 10)
	if len(list) != 1 || list[0].Type != models.NotifyVideo {
		t.Errorf("notifications = %+v, want one VIDEO", list)
	}
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	a := newUser(t, store, "a@x.io")
	b := newUser(t, store, "b@x.io")
	hook := NewHook(store, eventstest.New(), fakePresence{}, &recordingPush{}, false, zap.NewNop())

	chat := &models.Chat{ID: uuid.New(), Type: models.ChatGroup, Name: "g"}
	hook.NotifyUsers(ctx, []uuid.UUID{a}, models.NotifyGroupAdd, chat, b, "added you")
	list, _ := hook.List(ctx, a, 10)
	if len(list) != 1 {
		t.Fatalf("notifications = %d, want 1", len(list))
	}

	if ok, _ := hook.MarkRead(ctx, b, list[0].ID); ok {
		t.Error("another user marked the notification read")
	}
	if ok, _ := hook.MarkRead(ctx, a, list[0].ID); !ok {
		t.Error("owner could not mark the notification read")
	}
	list, _ = hook.List(ctx, a, 10)
	if !list[0].IsRead {
		t.Error("notification not read")
	}
}
