package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

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

type recordingNotifier struct {
	mu    sync.Mutex
	calls []models.Call
}

func (r *recordingNotifier) NotifyCall(_ context.Context, call *models.Call, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, *call)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fixture struct {
	store    *memstore.Store
	rec      *eventstest.Recorder
	presence fakePresence
	notifier *recordingNotifier
	registry *MemoryRegistry
	coord    *Coordinator
	alice    uuid.UUID
	bob      uuid.UUID
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.New(),
		rec:      eventstest.New(),
		presence: fakePresence{},
		notifier: &recordingNotifier{},
		registry: NewMemoryRegistry(),
	}
	ctx := context.Background()
	a, _ := f.store.Users().Create(ctx, "alice@x.io", "alice", "h")
	b, _ := f.store.Users().Create(ctx, "bob@x.io", "bob", "h")
	f.alice, f.bob = a.ID, b.ID
	f.presence[f.alice] = true
	f.presence[f.bob] = true

	opts = append([]Option{WithRegistry(f.registry)}, opts...)
	f.coord = NewCoordinator(f.store, f.rec, f.presence, f.notifier, zap.NewNop(), opts...)
	t.Cleanup(f.coord.Stop)
	return f
}

func (f *fixture) stored(t *testing.T, id uuid.UUID) *models.Call {
	t.Helper()
	c, err := f.store.Calls().GetByID(context.Background(), id)
	if err != nil || c == nil {
		t.Fatalf("GetByID(%v) = %v, %v", id, c, err)
	}
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartReceiverOffline(t *testing.T) {
	f := newFixture(t)
	f.presence[f.bob] = false

	call, err := f.coord.Start(context.Background(), f.alice, f.bob, models.CallVideo)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := f.stored(t, call.ID); got.Status != models.CallMissed || got.EndedAt == nil {
		t.Errorf("stored call = %+v, want missed", got)
	}
	got := f.rec.ToUserNamed(f.alice, events.NameCallUnavailable)
	if len(got) != 1 || got[0].(events.CallUnavailable).Reason != events.ReasonUserOffline {
		t.Errorf("call:unavailable to caller = %+v", got)
	}
	if n := len(f.rec.Named(events.NameCallIncoming)); n != 0 {
		t.Errorf("call:incoming sent %d times", n)
	}
	if f.notifier.count() != 1 || f.notifier.calls[0].ReceiverID != f.bob {
		t.Errorf("push = %+v, want one for bob", f.notifier.calls)
	}
	if f.registry.Len() != 0 {
		t.Error("offline call left in registry")
	}
}

func TestStartRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol, _ := f.store.Users().Create(ctx, "carol@x.io", "carol", "h")
	f.store.Blocks().Block(ctx, carol.ID, f.alice)

	tests := []struct {
		name     string
		receiver uuid.UUID
		typ      models.CallType
		want     error
	}{
		{"bad type", f.bob, "hologram", apperr.Validation(apperr.CodeInvalidCallType, "")},
		{"self call", f.alice, models.CallAudio, apperr.Validation(apperr.CodeSelfCall, "")},
		{"unknown receiver", uuid.New(), models.CallAudio, apperr.NotFound("user")},
		{"blocked", carol.ID, models.CallAudio, apperr.Blocked()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.coord.Start(ctx, f.alice, tt.receiver, tt.typ); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAcceptThenEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	call, err := f.coord.Start(ctx, f.alice, f.bob, models.CallAudio)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.rec.ToUserNamed(f.bob, events.NameCallIncoming); len(got) != 1 {
		t.Fatalf("call:incoming to bob = %d, want 1", len(got))
	}

	if _, err := f.coord.Accept(ctx, call.ID, f.alice); !errors.Is(err, errNotParticipant()) {
		t.Errorf("caller accept: err = %v", err)
	}
	if _, err := f.coord.Accept(ctx, call.ID, f.bob); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if got := f.stored(t, call.ID); got.Status != models.CallOngoing || got.StartedAt == nil {
		t.Errorf("stored = %+v, want ongoing with startedAt", got)
	}
	if got := f.rec.ToUserNamed(f.alice, events.NameCallAccepted); len(got) != 1 {
		t.Errorf("call:accepted to alice = %d", len(got))
	}
	if _, err := f.coord.Accept(ctx, call.ID, f.bob); !errors.Is(err, errNotLive()) {
		t.Errorf("second accept: err = %v", err)
	}

	if _, err := f.coord.End(ctx, call.ID, f.alice); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	ended := f.rec.ToUserNamed(f.bob, events.NameCallEnded)
	if len(ended) != 1 || ended[0].(events.CallEnded).By != f.alice {
		t.Errorf("call:ended to bob = %+v", ended)
	}
	if got := f.stored(t, call.ID); got.Status != models.CallEnded || got.EndedAt == nil {
		t.Errorf("stored = %+v, want ended", got)
	}
	if f.registry.Len() != 0 {
		t.Error("ended call left in registry")
	}
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	call, _ := f.coord.Start(ctx, f.alice, f.bob, models.CallAudio)

	if _, err := f.coord.Reject(ctx, call.ID, f.bob); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if got := f.stored(t, call.ID).Status; got != models.CallRejected {
		t.Errorf("status = %s, want rejected", got)
	}
	if got := f.rec.ToUserNamed(f.alice, events.NameCallRejected); len(got) != 1 {
		t.Errorf("call:rejected to alice = %d", len(got))
	}
	if _, err := f.coord.End(ctx, call.ID, f.alice); !errors.Is(err, errNotLive()) {
		t.Errorf("end after reject: err = %v", err)
	}
}

func TestRingTimeout(t *testing.T) {
	f := newFixture(t, WithRingTimeout(20*time.Millisecond))
	call, err := f.coord.Start(context.Background(), f.alice, f.bob, models.CallVideo)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(f.rec.ToUserNamed(f.alice, events.NameCallMissed)) == 1 })

	if got := f.stored(t, call.ID).Status; got != models.CallMissed {
		t.Errorf("status = %s, want missed", got)
	}
	if f.notifier.count() != 1 {
		t.Errorf("pushes = %d, want 1", f.notifier.count())
	}
	if _, err := f.coord.Accept(context.Background(), call.ID, f.bob); !errors.Is(err, errNotLive()) {
		t.Errorf("accept after timeout: err = %v", err)
	}
}

func TestAcceptRacesTimeout(t *testing.T) {
	f := newFixture(t, WithRingTimeout(time.Millisecond))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		call, err := f.coord.Start(ctx, f.alice, f.bob, models.CallAudio)
		if err != nil {
			t.Fatal(err)
		}
		_, acceptErr := f.coord.Accept(ctx, call.ID, f.bob)

		outcomes := func() int {
			var n int
			for _, e := range f.rec.ToUserNamed(f.alice, events.NameCallAccepted) {
				if e.(events.CallAccepted).CallID == call.ID {
					n++
				}
			}
			for _, e := range f.rec.ToUserNamed(f.alice, events.NameCallMissed) {
				if e.(events.CallMissed).CallID == call.ID {
					n++
				}
			}
			return n
		}
		waitFor(t, func() bool { return outcomes() > 0 })

		status := f.stored(t, call.ID).Status
		switch {
		case acceptErr == nil && status != models.CallOngoing:
			t.Fatalf("iteration %d: accept won but status = %s", i, status)
		case acceptErr != nil && status != models.CallMissed:
			t.Fatalf("iteration %d: timeout won but status = %s", i, status)
		}
		if n := outcomes(); n != 1 {
			t.Fatalf("iteration %d: %d outcomes emitted, want 1", i, n)
		}
		if acceptErr == nil {
			f.coord.End(ctx, call.ID, f.bob)
		}
	}
}

func TestReceiverBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol, _ := f.store.Users().Create(ctx, "carol@x.io", "carol", "h")
	f.presence[carol.ID] = true

	if _, err := f.coord.Start(ctx, f.alice, f.bob, models.CallAudio); err != nil {
		t.Fatal(err)
	}
	second, err := f.coord.Start(ctx, carol.ID, f.bob, models.CallAudio)
	if err != nil {
		t.Fatal(err)
	}
	got := f.rec.ToUserNamed(carol.ID, events.NameCallUnavailable)
	if len(got) != 1 || got[0].(events.CallUnavailable).Reason != events.ReasonUserBusy {
		t.Errorf("call:unavailable to carol = %+v", got)
	}
	if f.stored(t, second.ID).Status != models.CallMissed {
		t.Error("busy call not recorded as missed")
	}
}

func TestCallerBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol, _ := f.store.Users().Create(ctx, "carol@x.io", "carol", "h")
	f.presence[carol.ID] = true

	if _, err := f.coord.Start(ctx, f.alice, f.bob, models.CallAudio); err != nil {
		t.Fatal(err)
	}
	_, err := f.coord.Start(ctx, f.alice, carol.ID, models.CallVideo)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.CodeCallerBusy {
		t.Fatalf("err = %v, want caller busy", err)
	}
	if got := f.rec.ToUserNamed(carol.ID, events.NameCallIncoming); len(got) != 0 {
		t.Errorf("carol was rung: %+v", got)
	}
	if f.registry.Len() != 1 {
		t.Errorf("live calls = %d, want 1", f.registry.Len())
	}
}

func TestConcurrentStartsRingReceiverOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	callers := make([]uuid.UUID, 8)
	for i := range callers {
		u, _ := f.store.Users().Create(ctx, uuid.NewString()+"@x.io", "caller", "h")
		callers[i] = u.ID
	}

	var wg sync.WaitGroup
	for _, id := range callers {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.coord.Start(ctx, id, f.bob, models.CallAudio); err != nil {
				t.Errorf("Start() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(f.rec.ToUserNamed(f.bob, events.NameCallIncoming)); got != 1 {
		t.Errorf("call:incoming to receiver = %d, want 1", got)
	}
	if got := len(f.rec.Named(events.NameCallUnavailable)); got != len(callers)-1 {
		t.Errorf("call:unavailable = %d, want %d", got, len(callers)-1)
	}
}

func TestDisconnectEndsLiveCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	call, _ := f.coord.Start(ctx, f.alice, f.bob, models.CallVideo)
	f.coord.Accept(ctx, call.ID, f.bob)

	f.coord.HandleDisconnect(ctx, f.bob)

	ended := f.rec.ToUserNamed(f.alice, events.NameCallEnded)
	if len(ended) != 1 || ended[0].(events.CallEnded).By != f.bob {
		t.Errorf("call:ended to alice = %+v", ended)
	}
	if got := f.stored(t, call.ID).Status; got != models.CallEnded {
		t.Errorf("status = %s, want ended", got)
	}
	f.coord.HandleDisconnect(ctx, f.bob)
	if got := len(f.rec.Named(events.NameCallEnded)); got != 1 {
		t.Errorf("call:ended emitted %d times", got)
	}
}

func TestRelay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	call, _ := f.coord.Start(ctx, f.alice, f.bob, models.CallVideo)
	f.coord.Accept(ctx, call.ID, f.bob)

	tests := []struct {
		name   string
		user   uuid.UUID
		action string
		to     uuid.UUID
		event  string
		want   error
	}{
		{"mute", f.alice, events.CmdCallMute, f.bob, events.NameCallUserMuted, nil},
		{"camera off", f.bob, events.CmdCallCamOff, f.alice, events.NameCallUserCamOff, nil},
		{"outsider", uuid.New(), events.CmdCallUnmute, f.bob, events.NameCallUserUnmuted, errNotParticipant()},
		{"not a signal", f.alice, events.CmdCallAccept, f.bob, events.NameCallAccepted, apperr.Validation(apperr.CodeInvalidPayload, "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.rec.Reset()
			err := f.coord.Relay(call.ID, tt.user, tt.action)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			got := f.rec.ToUserNamed(tt.to, tt.event)
			if tt.want != nil {
				if len(got) != 0 {
					t.Errorf("relayed on error")
				}
				return
			}
			if len(got) != 1 || got[0].(events.CallSignal).UserID != tt.user {
				t.Errorf("relayed = %+v", got)
			}
		})
	}
	if got := f.stored(t, call.ID).Status; got != models.CallOngoing {
		t.Errorf("relay changed status to %s", got)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.presence[f.bob] = false
	for i := 0; i < 3; i++ {
		f.coord.Start(ctx, f.alice, f.bob, models.CallAudio)
	}

	for _, id := range []uuid.UUID{f.alice, f.bob} {
		got, err := f.coord.History(ctx, id, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Errorf("history for %v = %d calls, want 3", id, len(got))
		}
	}
}
