package realtime

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/events"
	"go.uber.org/zap"
)

func testClient(h *Hub, userID uuid.UUID) *Client {
	c := newClient(nil, userID, nil)
	h.Register(c)
	return c
}

// connections counts the user's registered clients.
func connections(h *Hub, userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// drain returns the event names buffered for c.
func drain(t *testing.T, c *Client) []string {
	t.Helper()
	var names []string
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return names
			}
			var f struct {
				Event string `json:"event"`
			}
			if err := json.Unmarshal(frame, &f); err != nil {
				t.Fatalf("bad frame %s: %v", frame, err)
			}
			names = append(names, f.Event)
		default:
			return names
		}
	}
}

func TestHubRooms(t *testing.T) {
	h := NewHub(zap.NewNop())
	alice, bob := uuid.New(), uuid.New()
	chatID := uuid.New()

	a1, a2 := testClient(h, alice), testClient(h, alice)
	b1 := testClient(h, bob)
	h.Join(a1, chatID)
	h.Join(b1, chatID)

	h.ToChat(chatID, events.TypingStart{ChatID: chatID, UserID: alice}, alice)
	h.ToUser(alice, events.GroupRemoved{ChatID: chatID})
	h.Broadcast(events.UserOnline{UserID: bob}, bob)

	tests := []struct {
		name   string
		client *Client
		want   []string
	}{
		{"alice joined", a1, []string{events.NameGroupRemoved, events.NameUserOnline}},
		{"alice not joined", a2, []string{events.NameGroupRemoved, events.NameUserOnline}},
		{"bob", b1, []string{events.NameTypingStart}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := drain(t, tt.client)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("frame %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestHubEvictAndJoined(t *testing.T) {
	h := NewHub(zap.NewNop())
	alice := uuid.New()
	chatID := uuid.New()
	a1, a2 := testClient(h, alice), testClient(h, alice)
	h.Join(a1, chatID)
	h.Join(a2, chatID)

	if !h.Joined(alice, chatID) {
		t.Fatal("Joined() = false after join")
	}
	h.EvictFromChat(chatID, alice)
	if h.Joined(alice, chatID) {
		t.Error("Joined() = true after evict")
	}
	h.ToChat(chatID, events.TypingStop{ChatID: chatID}, uuid.Nil)
	if got := drain(t, a1); len(got) != 0 {
		t.Errorf("evicted client received %v", got)
	}
	if connections(h, alice) != 2 {
		t.Error("evict dropped the connections")
	}
}

func TestHubRegisterCountsConnections(t *testing.T) {
	h := NewHub(zap.NewNop())
	alice, bob := uuid.New(), uuid.New()

	if n := h.Register(newClient(nil, alice, nil)); n != 1 {
		t.Errorf("first connection count = %d, want 1", n)
	}
	if n := h.Register(newClient(nil, alice, nil)); n != 2 {
		t.Errorf("second connection count = %d, want 2", n)
	}
	if n := h.Register(newClient(nil, bob, nil)); n != 1 {
		t.Errorf("other user count = %d, want 1", n)
	}
}

func TestHubUnregister(t *testing.T) {
	h := NewHub(zap.NewNop())
	alice := uuid.New()
	a1, a2 := testClient(h, alice), testClient(h, alice)

	if n := h.Unregister(a1); n != 1 {
		t.Errorf("remaining = %d, want 1", n)
	}
	if _, ok := <-a1.send; ok {
		t.Error("send channel still open")
	}
	if n := h.Unregister(a1); n != 1 {
		t.Errorf("second unregister remaining = %d, want 1", n)
	}
	if n := h.Unregister(a2); n != 0 {
		t.Errorf("remaining = %d, want 0", n)
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	h := NewHub(zap.NewNop())
	alice, bob := uuid.New(), uuid.New()
	slow := testClient(h, alice)
	fast := testClient(h, bob)

	for i := 0; i < sendBuffer+1; i++ {
		h.Broadcast(events.UserOnline{UserID: uuid.New()}, uuid.Nil)
		drain(t, fast)
	}

	if connections(h, alice) != 0 {
		t.Fatal("slow client still registered")
	}
	n := 0
	for range slow.send {
		n++
	}
	if n != sendBuffer {
		t.Errorf("slow client buffered %d frames, want %d", n, sendBuffer)
	}
	if connections(h, bob) != 1 {
		t.Error("fast client dropped")
	}
}
