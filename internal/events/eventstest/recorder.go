// Package eventstest provides an in-memory events.Emitter for tests.
package eventstest

import (
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/events"
)

type Target int

const (
	TargetChat Target = iota
	TargetUser
	TargetAll
)

// Emitted is one recorded emit call.
type Emitted struct {
	Target Target
	ID     uuid.UUID
	Except uuid.UUID
	Event  events.Event
}

// Recorder implements events.Emitter and events.Rooms.
type Recorder struct {
	mu      sync.Mutex
	emitted []Emitted
	evicted []Emitted
}

func New() *Recorder {
	return &Recorder{}
}

func (r *Recorder) ToChat(chatID uuid.UUID, ev events.Event, except uuid.UUID) {
	r.record(Emitted{Target: TargetChat, ID: chatID, Except: except, Event: ev})
}

func (r *Recorder) ToUser(userID uuid.UUID, ev events.Event) {
	r.record(Emitted{Target: TargetUser, ID: userID, Event: ev})
}

func (r *Recorder) Broadcast(ev events.Event, except uuid.UUID) {
	r.record(Emitted{Target: TargetAll, Except: except, Event: ev})
}

// EvictFromChat is recorded with ID set to the chat and Except to the user.
func (r *Recorder) EvictFromChat(chatID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, Emitted{Target: TargetChat, ID: chatID, Except: userID})
}

func (r *Recorder) record(e Emitted) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitted = append(r.emitted, e)
}

func (r *Recorder) All() []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Emitted, len(r.emitted))
	copy(out, r.emitted)
	return out
}

// Named returns every emit of the given event name, in order.
func (r *Recorder) Named(name string) []Emitted {
	var out []Emitted
	for _, e := range r.All() {
		if e.Event.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

// ToUserNamed returns events of the given name sent to a personal room.
func (r *Recorder) ToUserNamed(userID uuid.UUID, name string) []events.Event {
	var out []events.Event
	for _, e := range r.Named(name) {
		if e.Target == TargetUser && e.ID == userID {
			out = append(out, e.Event)
		}
	}
	return out
}

// ToChatNamed returns events of the given name sent to a chat room.
func (r *Recorder) ToChatNamed(chatID uuid.UUID, name string) []Emitted {
	var out []Emitted
	for _, e := range r.Named(name) {
		if e.Target == TargetChat && e.ID == chatID {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Evicted() []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Emitted, len(r.evicted))
	copy(out, r.evicted)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitted = nil
	r.evicted = nil
}
