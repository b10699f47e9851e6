package delivery

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/apperr"
	"github.com/lalith-99/chatwire/internal/events"
	"github.com/lalith-99/chatwire/internal/events/eventstest"
	"github.com/lalith-99/chatwire/internal/models"
	"github.com/lalith-99/chatwire/internal/repository/memstore"
	"go.uber.org/zap"
)

type fakePresence map[uuid.UUID]bool

func (f fakePresence) IsOnline(id uuid.UUID) bool { return f[id] }

type fixture struct {
	store    *memstore.Store
	rec      *eventstest.Recorder
	presence fakePresence
	svc      *Service
	chatID   uuid.UUID
	alice    uuid.UUID
	bob      uuid.UUID
	carol    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:    memstore.New(),
		rec:      eventstest.New(),
		presence: fakePresence{},
	}
	f.svc = NewService(f.store, f.rec, f.presence, zap.NewNop())

	ids := make([]uuid.UUID, 3)
	for i, email := range []string{"alice@x.io", "bob@x.io", "carol@x.io"} {
		u, err := f.store.Users().Create(ctx, email, email, "h")
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = u.ID
	}
	f.alice, f.bob, f.carol = ids[0], ids[1], ids[2]

	chat := &models.Chat{Type: models.ChatGroup, Name: "g", CreatedBy: f.alice}
	if err := f.store.Chats().Create(ctx, chat); err != nil {
		t.Fatal(err)
	}
	f.chatID = chat.ID
	for _, id := range ids {
		if err := f.store.Memberships().Insert(ctx, &models.Membership{ChatID: chat.ID, UserID: id, Role: models.RoleMember}); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func (f *fixture) send(t *testing.T, from uuid.UUID) *models.Message {
	t.Helper()
	ctx := context.Background()
	msg := &models.Message{ChatID: f.chatID, SenderID: from, Type: models.MessageText, Content: "hi"}
	if err := f.store.Messages().Create(ctx, msg); err != nil {
		t.Fatal(err)
	}
	members, _ := f.store.Memberships().ListActive(ctx, f.chatID)
	if _, err := f.svc.Seed(ctx, f.store, msg, members); err != nil {
		t.Fatal(err)
	}
	return msg
}

func (f *fixture) status(t *testing.T, msgID int64, user uuid.UUID) models.DeliveryStatus {
	t.Helper()
	st, err := f.store.Statuses().Get(context.Background(), msgID, user)
	if err != nil || st == nil {
		t.Fatalf("status row for %v missing: %v", user, err)
	}
	return st.Status
}

func TestSeedOneRowPerRecipient(t *testing.T) {
	f := newFixture(t)
	f.presence[f.bob] = true

	msg := f.send(t, f.alice)

	if st, _ := f.store.Statuses().Get(context.Background(), msg.ID, f.alice); st != nil {
		t.Error("sender has a status row for their own message")
	}
	if got := f.status(t, msg.ID, f.bob); got != models.StatusDelivered {
		t.Errorf("online recipient status = %v, want delivered", got)
	}
	if got := f.status(t, msg.ID, f.carol); got != models.StatusSent {
		t.Errorf("offline recipient status = %v, want sent", got)
	}
}

func TestSweepIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.send(t, f.alice)

	if err := f.svc.MarkChatRead(ctx, f.chatID, f.bob); err != nil {
		t.Fatal(err)
	}
	if got := f.status(t, msg.ID, f.bob); got != models.StatusRead {
		t.Fatalf("status after sweep = %v, want read", got)
	}

	changed, err := f.store.Statuses().AdvanceChat(ctx, f.chatID, f.bob, models.StatusDelivered)
	if err != nil {
		t.Fatal(err)
	}
	if changed != 0 {
		t.Errorf("marking delivered after read changed %d rows", changed)
	}
	if got := f.status(t, msg.ID, f.bob); got != models.StatusRead {
		t.Errorf("status regressed to %v", got)
	}

	if _, err := f.store.Statuses().AdvanceAll(ctx, f.bob, models.StatusDelivered); err != nil {
		t.Fatal(err)
	}
	if got := f.status(t, msg.ID, f.bob); got != models.StatusRead {
		t.Errorf("bulk delivered regressed status to %v", got)
	}
}

func TestMarkChatReadAnnounces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, f.alice)

	if err := f.svc.MarkChatRead(ctx, f.chatID, f.bob); err != nil {
		t.Fatal(err)
	}

	read := f.rec.ToChatNamed(f.chatID, events.NameMessagesRead)
	if len(read) != 1 {
		t.Fatalf("messages-read events = %d, want 1", len(read))
	}
	if read[0].Except != f.bob {
		t.Errorf("messages-read should skip the reader")
	}
	if ev := read[0].Event.(events.MessagesRead); ev.ReaderID != f.bob {
		t.Errorf("ReaderID = %v, want bob", ev.ReaderID)
	}
	if got := len(f.rec.ToChatNamed(f.chatID, events.NameMessageDelivered)); got != 1 {
		t.Errorf("message-delivered events = %d, want 1", got)
	}

	f.rec.Reset()
	if err := f.svc.MarkChatRead(ctx, f.chatID, f.bob); err != nil {
		t.Fatal(err)
	}
	if n := len(f.rec.All()); n != 0 {
		t.Errorf("second sweep emitted %d events, want 0", n)
	}
}

func TestMarkChatReadRequiresMembership(t *testing.T) {
	f := newFixture(t)
	err := f.svc.MarkChatRead(context.Background(), f.chatID, uuid.New())
	if !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("err = %v, want authorization error", err)
	}
}

func TestDeliverPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.send(t, f.alice)

	if err := f.svc.DeliverPending(ctx, f.carol); err != nil {
		t.Fatal(err)
	}
	if got := f.status(t, msg.ID, f.carol); got != models.StatusDelivered {
		t.Errorf("status = %v, want delivered", got)
	}
	if got := f.status(t, msg.ID, f.bob); got != models.StatusSent {
		t.Errorf("other recipient changed to %v", got)
	}
	ev := f.rec.ToChatNamed(f.chatID, events.NameMessageDelivered)
	if len(ev) != 1 || ev[0].Event.(events.MessageDelivered).UserID != f.carol {
		t.Errorf("message-delivered events = %+v", ev)
	}
}

func TestDeleteForMeIsLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.send(t, f.alice)

	for i := 0; i < 2; i++ {
		if err := f.svc.DeleteForMe(ctx, msg.ID, f.bob); err != nil {
			t.Fatalf("DeleteForMe() #%d error = %v", i+1, err)
		}
	}

	bobView, _ := f.store.Messages().ListVisible(ctx, f.chatID, f.bob, 0, 50)
	if len(bobView) != 0 {
		t.Errorf("bob still sees %d messages", len(bobView))
	}
	carolView, _ := f.store.Messages().ListVisible(ctx, f.chatID, f.carol, 0, 50)
	if len(carolView) != 1 {
		t.Errorf("carol sees %d messages, want 1", len(carolView))
	}
	if st, _ := f.store.Statuses().Get(ctx, msg.ID, f.carol); st.IsDeleted {
		t.Error("carol's row was flagged deleted")
	}
	if n := len(f.rec.All()); n != 0 {
		t.Errorf("delete-for-me emitted %d events", n)
	}
}

func TestDeleteForMeBySender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.send(t, f.alice)

	if err := f.svc.DeleteForMe(ctx, msg.ID, f.alice); err != nil {
		t.Fatal(err)
	}
	aliceView, _ := f.store.Messages().ListVisible(ctx, f.chatID, f.alice, 0, 50)
	if len(aliceView) != 0 {
		t.Errorf("sender still sees the message")
	}
	bobView, _ := f.store.Messages().ListVisible(ctx, f.chatID, f.bob, 0, 50)
	if len(bobView) != 1 {
		t.Errorf("bob sees %d messages, want 1", len(bobView))
	}
}

func TestDeleteForMeUnknownMessage(t *testing.T) {
	f := newFixture(t)
	err := f.svc.DeleteForMe(context.Background(), 999, f.bob)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestAttachAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.presence[f.bob] = true
	mine := f.send(t, f.alice)
	theirs := f.send(t, f.bob)

	msgs := []models.Message{*mine, *theirs}
	if err := f.svc.AttachAggregates(ctx, f.alice, msgs); err != nil {
		t.Fatal(err)
	}
	if msgs[0].Status == nil || *msgs[0].Status != models.StatusSent {
		t.Errorf("aggregate = %v, want sent (carol offline)", msgs[0].Status)
	}
	if msgs[1].Status != nil {
		t.Error("aggregate attached to someone else's message")
	}

	f.svc.MarkChatRead(ctx, f.chatID, f.bob)
	f.svc.MarkChatRead(ctx, f.chatID, f.carol)
	msgs = []models.Message{*mine}
	f.svc.AttachAggregates(ctx, f.alice, msgs)
	if *msgs[0].Status != models.StatusRead {
		t.Errorf("aggregate = %v, want read", *msgs[0].Status)
	}
}
