package presence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/events"
	"github.com/lalith-99/chatwire/internal/events/eventstest"
	"github.com/lalith-99/chatwire/internal/repository/memstore"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *memstore.Store, *eventstest.Recorder, uuid.UUID) {
	t.Helper()
	store := memstore.New()
	u, err := store.Users().Create(context.Background(), "a@example.com", "A", "x")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	rec := eventstest.New()
	reg := NewRegistry(NewMemoryStore(), store.Users(), rec, zap.NewNop(), opts...)
	t.Cleanup(reg.Stop)
	return reg, store, rec, u.ID
}

func TestRegistryRefCounting(t *testing.T) {
	reg, store, rec, userID := newTestRegistry(t)
	ctx := context.Background()

	cameOnline, err := reg.Opened(ctx, userID)
	if err != nil || !cameOnline {
		t.Fatalf("first Opened() = %v, %v; want true, nil", cameOnline, err)
	}
	cameOnline, _ = reg.Opened(ctx, userID)
	if cameOnline {
		t.Error("second Opened() reported a transition")
	}
	if !reg.IsOnline(userID) {
		t.Fatal("IsOnline() = false with two connections")
	}

	if err := reg.Closed(ctx, userID); err != nil {
		t.Fatal(err)
	}
	if !reg.IsOnline(userID) {
		t.Error("IsOnline() = false with one connection left")
	}
	if err := reg.Closed(ctx, userID); err != nil {
		t.Fatal(err)
	}
	if reg.IsOnline(userID) {
		t.Error("IsOnline() = true after last close")
	}

	if got := len(rec.Named(events.NameUserOnline)); got != 1 {
		t.Errorf("user-online broadcasts = %d, want 1", got)
	}
	off := rec.Named(events.NameUserOffline)
	if len(off) != 1 {
		t.Fatalf("user-offline broadcasts = %d, want 1", len(off))
	}
	if off[0].Except != userID {
		t.Errorf("offline broadcast except = %v, want the user", off[0].Except)
	}

	u, _ := store.Users().GetByID(ctx, userID)
	if u.IsOnline || u.LastSeen == nil {
		t.Errorf("persisted user = online:%v lastSeen:%v, want offline with last seen", u.IsOnline, u.LastSeen)
	}
}

func TestRegistryCloseWithoutOpenIsHarmless(t *testing.T) {
	reg, _, rec, userID := newTestRegistry(t)

	if err := reg.Closed(context.Background(), userID); err != nil {
		t.Fatal(err)
	}
	if len(rec.All()) != 0 {
		t.Errorf("emitted %d events, want none", len(rec.All()))
	}
}

func TestRegistryGraceReconnect(t *testing.T) {
	reg, _, rec, userID := newTestRegistry(t, WithGrace(time.Hour))
	ctx := context.Background()

	reg.Opened(ctx, userID)
	reg.Closed(ctx, userID)
	if !reg.IsOnline(userID) {
		t.Fatal("user went offline inside the grace window")
	}

	cameOnline, _ := reg.Opened(ctx, userID)
	if cameOnline {
		t.Error("reconnect inside grace reported a transition")
	}
	if got := len(rec.Named(events.NameUserOnline)); got != 1 {
		t.Errorf("user-online broadcasts = %d, want 1", got)
	}
	if got := len(rec.Named(events.NameUserOffline)); got != 0 {
		t.Errorf("user-offline broadcasts = %d, want 0", got)
	}
}

func TestRegistryGraceExpiry(t *testing.T) {
	reg, _, rec, userID := newTestRegistry(t, WithGrace(20*time.Millisecond))
	ctx := context.Background()

	reg.Opened(ctx, userID)
	reg.Closed(ctx, userID)

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.Named(events.NameUserOffline)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(rec.Named(events.NameUserOffline)); got != 1 {
		t.Fatalf("user-offline broadcasts = %d, want 1", got)
	}
	if reg.IsOnline(userID) {
		t.Error("user still online after grace expired")
	}
}

func TestMemoryStoreFloorsAtZero(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := uuid.New()

	n, _ := s.Decr(ctx, id)
	if n != 0 {
		t.Errorf("Decr() on empty = %d, want 0", n)
	}
	s.Incr(ctx, id)
	s.Incr(ctx, id)
	if n, _ := s.Count(ctx, id); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}
