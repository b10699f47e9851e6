package calls

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/models"
)

func ringing(caller, receiver uuid.UUID) models.Call {
	return models.Call{ID: uuid.New(), CallerID: caller, ReceiverID: receiver, Status: models.CallRinging}
}

func TestAddIfIdle(t *testing.T) {
	alice, bob, carol, dave := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		name     string
		call     models.Call
		wantOK   bool
		wantBusy uuid.UUID
	}{
		{"unrelated pair", ringing(carol, dave), true, uuid.Nil},
		{"receiver already on a call", ringing(carol, bob), false, bob},
		{"caller already on a call", ringing(alice, carol), false, alice},
		{"caller is the receiver of a live call", ringing(bob, carol), false, bob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewMemoryRegistry()
			r.AddIfIdle(ringing(alice, bob))

			busy, ok := r.AddIfIdle(tt.call)
			if ok != tt.wantOK || busy != tt.wantBusy {
				t.Errorf("AddIfIdle() = %v, %v; want %v, %v", busy, ok, tt.wantBusy, tt.wantOK)
			}
			_, stored := r.Get(tt.call.ID)
			if stored != tt.wantOK {
				t.Errorf("stored = %v, want %v", stored, tt.wantOK)
			}
		})
	}
}

func TestAddIfIdleConcurrentCallers(t *testing.T) {
	r := NewMemoryRegistry()
	receiver := uuid.New()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.AddIfIdle(ringing(uuid.New(), receiver)); ok {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}
