// Package presence tracks which users have at least one live connection.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/events"
	"github.com/lalith-99/chatwire/internal/keymutex"
	"github.com/lalith-99/chatwire/internal/observ"
	"github.com/lalith-99/chatwire/internal/repository"
	"go.uber.org/zap"
)

const persistTimeout = 5 * time.Second

// Registry turns connection open/close into online/offline transitions.
//
// A user is online while their count is above zero. With a grace window the
// offline transition is deferred; a reconnect inside the window cancels it
// and neither transition is broadcast.
type Registry struct {
	store   Store
	users   repository.UserRepository
	emitter events.Emitter
	grace   time.Duration
	logger  *zap.Logger

	locks *keymutex.Map[uuid.UUID]

	mu      sync.RWMutex
	online  map[uuid.UUID]struct{}
	pending map[uuid.UUID]*graceTimer
}

type graceTimer struct {
	timer *time.Timer
}

type Option func(*Registry)

// WithGrace sets how long a user stays online after their last
// connection closes.
func WithGrace(d time.Duration) Option {
	return func(r *Registry) { r.grace = d }
}

func NewRegistry(store Store, users repository.UserRepository, emitter events.Emitter, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		users:   users,
		emitter: emitter,
		logger:  logger.Named("presence"),
		locks:   keymutex.New[uuid.UUID](),
		online:  make(map[uuid.UUID]struct{}),
		pending: make(map[uuid.UUID]*graceTimer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Opened records a new connection. It reports true when the user just
// came online, which is the caller's cue to run the connect-time sweep.
func (r *Registry) Opened(ctx context.Context, userID uuid.UUID) (bool, error) {
	unlock := r.locks.Lock(userID)
	defer unlock()

	n, err := r.store.Incr(ctx, userID)
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}

	r.mu.Lock()
	if g, ok := r.pending[userID]; ok {
		g.timer.Stop()
		delete(r.pending, userID)
		r.mu.Unlock()
		r.logger.Debug("reconnect inside grace window", zap.String("user_id", userID.String()))
		return false, nil
	}
	r.online[userID] = struct{}{}
	r.mu.Unlock()

	observ.OnlineUsers.Inc()
	r.persist(ctx, userID, true)
	r.emitter.Broadcast(events.UserOnline{UserID: userID}, userID)
	return true, nil
}

// Closed records a closed connection.
func (r *Registry) Closed(ctx context.Context, userID uuid.UUID) error {
	unlock := r.locks.Lock(userID)
	defer unlock()

	n, err := r.store.Decr(ctx, userID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if r.grace > 0 {
		g := &graceTimer{}
		r.mu.Lock()
		g.timer = time.AfterFunc(r.grace, func() { r.expire(userID, g) })
		r.pending[userID] = g
		r.mu.Unlock()
		return nil
	}

	r.goOffline(ctx, userID)
	return nil
}

// IsOnline is a map lookup; it never touches the store.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.online[userID]
	return ok
}

// OnlineCount is the number of users currently online.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.online)
}

// Stop cancels pending grace timers. Users they covered are left online in
// memory; the process is going away.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, g := range r.pending {
		g.timer.Stop()
		delete(r.pending, id)
	}
}

func (r *Registry) expire(userID uuid.UUID, g *graceTimer) {
	unlock := r.locks.Lock(userID)
	defer unlock()

	r.mu.Lock()
	current, ok := r.pending[userID]
	if !ok || current != g {
		r.mu.Unlock()
		return
	}
	delete(r.pending, userID)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if n, err := r.store.Count(ctx, userID); err != nil || n > 0 {
		return
	}
	r.goOffline(ctx, userID)
}

func (r *Registry) goOffline(ctx context.Context, userID uuid.UUID) {
	r.mu.Lock()
	_, was := r.online[userID]
	delete(r.online, userID)
	r.mu.Unlock()
	if !was {
		return
	}

	observ.OnlineUsers.Dec()
	lastSeen := r.persist(ctx, userID, false)
	r.emitter.Broadcast(events.UserOffline{UserID: userID, LastSeen: lastSeen}, userID)
}

// persist mirrors the transition onto the user row. Failure is logged: the
// in-memory state stays authoritative for this process.
func (r *Registry) persist(ctx context.Context, userID uuid.UUID, online bool) time.Time {
	now := time.Now().UTC()
	if err := r.users.SetPresence(ctx, userID, online, now); err != nil {
		r.logger.Warn("persist presence failed",
			zap.String("user_id", userID.String()),
			zap.Bool("online", online),
			zap.Error(err),
		)
	}
	return now
}
