package calls

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/models"
)

// Registry tracks calls that are ringing or ongoing. Transition is the
// only way state changes, and it is atomic: of two racing transitions out
// of the same state, exactly one succeeds.
type Registry interface {
	// AddIfIdle stores the call unless its caller or receiver is already a
	// party to a live call. The check and the insert happen under one lock,
	// so two calls racing for the same user cannot both go live. On refusal
	// it returns the busy user.
	AddIfIdle(call models.Call) (busy uuid.UUID, ok bool)
	Get(callID uuid.UUID) (models.Call, bool)
	// Transition moves the call to `to` if its status is one of from.
	// A terminal target removes the entry.
	Transition(callID uuid.UUID, from []models.CallStatus, to models.CallStatus) (models.Call, bool)
	// ForUser returns the live calls the user is a party to.
	ForUser(userID uuid.UUID) []models.Call
	// Len is the number of live calls.
	Len() int
}

type MemoryRegistry struct {
	mu    sync.Mutex
	calls map[uuid.UUID]models.Call
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{calls: make(map[uuid.UUID]models.Call)}
}

func (r *MemoryRegistry) AddIfIdle(call models.Call) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		for _, party := range []uuid.UUID{call.CallerID, call.ReceiverID} {
			if c.CallerID == party || c.ReceiverID == party {
				return party, false
			}
		}
	}
	r.calls[call.ID] = call
	return uuid.Nil, true
}

func (r *MemoryRegistry) Get(callID uuid.UUID) (models.Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	return c, ok
}

func (r *MemoryRegistry) Transition(callID uuid.UUID, from []models.CallStatus, to models.CallStatus) (models.Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok || !slices.Contains(from, c.Status) {
		return models.Call{}, false
	}
	c.Status = to
	if to.Terminal() {
		delete(r.calls, callID)
	} else {
		r.calls[callID] = c
	}
	return c, true
}

func (r *MemoryRegistry) ForUser(userID uuid.UUID) []models.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Call
	for _, c := range r.calls {
		if c.CallerID == userID || c.ReceiverID == userID {
			out = append(out, c)
		}
	}
	return out
}

func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
