// Package calls runs call signaling: a small state machine per call with
// guarded transitions, a ring timeout, and relays between the two parties.
//
//	ringing -> ongoing -> ended
//	ringing -> rejected | missed | ended
package calls

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/apperr"
	"github.com/lalith-99/chatwire/internal/events"
	"github.com/lalith-99/chatwire/internal/models"
	"github.com/lalith-99/chatwire/internal/observ"
	"github.com/lalith-99/chatwire/internal/repository"
	"go.uber.org/zap"
)

const DefaultRingTimeout = 30 * time.Second

type Presence interface {
	IsOnline(userID uuid.UUID) bool
}

// Notifier pushes call notifications to the receiver.
type Notifier interface {
	NotifyCall(ctx context.Context, call *models.Call, body string)
}

var signalEvents = map[string]string{
	events.CmdCallMute:   events.NameCallUserMuted,
	events.CmdCallUnmute: events.NameCallUserUnmuted,
	events.CmdCallCamOn:  events.NameCallUserCamOn,
	events.CmdCallCamOff: events.NameCallUserCamOff,
}

// Coordinator runs the state machine in the package doc. The registry is the authority on a live call's state; the store is a
// record of it. Every move goes through Registry.Transition with the set of
// states it may leave, and only the caller that wins that compare-and-set
// persists and emits.
//
// The race that matters is accept against the ring timer. The timer's
// expire and Accept both try ringing -> something. Whichever transition
// lands first wins; the loser finds the call no longer ringing and does
// nothing (expire) or returns CALL_NOT_LIVE (Accept). Stopping the timer
// in Accept is only cleanup, since a timer that already fired is harmless.
type Coordinator struct {
	store       repository.Store
	registry    Registry
	emitter     events.Emitter
	presence    Presence
	notifier    Notifier
	ringTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

type Option func(*Coordinator)

func WithRingTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.ringTimeout = d }
}

func WithRegistry(r Registry) Option {
	return func(c *Coordinator) { c.registry = r }
}

func NewCoordinator(
	store repository.Store,
	emitter events.Emitter,
	presence Presence,
	notifier Notifier,
	logger *zap.Logger,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		store:       store,
		registry:    NewMemoryRegistry(),
		emitter:     emitter,
		presence:    presence,
		notifier:    notifier,
		ringTimeout: DefaultRingTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.Named("calls"),
		timers:      make(map[uuid.UUID]*time.Timer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func errNotLive() error {
	return apperr.New(apperr.KindNotFound, apperr.CodeCallNotLive, "call is not live")
}

func errCallerBusy() error {
	return apperr.New(apperr.KindConflict, apperr.CodeCallerBusy, "already on a call")
}

func errNotParticipant() error {
	return apperr.New(apperr.KindAuthorization, apperr.CodeNotParticipant, "user is not a party to this call")
}

// Start places a call. A receiver with no live connection, or already on
// a call, gets no call:incoming: the call is recorded as missed straight
// away and the caller receives call:unavailable. A caller who is already
// on a call is refused before anything is stored.
func (c *Coordinator) Start(ctx context.Context, callerID, receiverID uuid.UUID, typ models.CallType) (*models.Call, error) {
	if !typ.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidCallType, "call type must be audio or video")
	}
	if callerID == receiverID {
		return nil, apperr.Validation(apperr.CodeSelfCall, "cannot call yourself")
	}
	if len(c.registry.ForUser(callerID)) > 0 {
		return nil, errCallerBusy()
	}
	receiver, err := c.store.Users().GetByID(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("load receiver: %w", err)
	}
	if receiver == nil {
		return nil, apperr.NotFound("user")
	}
	blocked, err := c.store.Blocks().IsBlocked(ctx, callerID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("check block: %w", err)
	}
	if blocked {
		return nil, apperr.Blocked()
	}

	call := &models.Call{
		ID:         uuid.New(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Type:       typ,
		Status:     models.CallRinging,
	}
	if err := c.store.Calls().Create(ctx, call); err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}

	if !c.presence.IsOnline(receiverID) {
		c.unavailable(ctx, call, events.ReasonUserOffline)
		return call, nil
	}
	// The ForUser check above only spares a busy caller the stored row.
	// AddIfIdle is what keeps every user in at most one live call; losing
	// a race on either side is reported to the caller as USER_BUSY.
	if _, ok := c.registry.AddIfIdle(*call); !ok {
		c.unavailable(ctx, call, events.ReasonUserBusy)
		return call, nil
	}

	c.armTimer(call.ID)
	c.emitter.ToUser(receiverID, events.CallIncoming{CallID: call.ID, CallerID: callerID, Type: typ})
	c.logger.Debug("call ringing",
		zap.String("call_id", call.ID.String()),
		zap.String("caller_id", callerID.String()),
		zap.String("receiver_id", receiverID.String()),
	)
	return call, nil
}

func (c *Coordinator) unavailable(ctx context.Context, call *models.Call, reason string) {
	c.persist(ctx, call.ID, []models.CallStatus{models.CallRinging}, models.CallMissed)
	call.Status = models.CallMissed
	c.emitter.ToUser(call.CallerID, events.CallUnavailable{
		CallID:     call.ID,
		ReceiverID: call.ReceiverID,
		Reason:     reason,
	})
	c.notifier.NotifyCall(ctx, call, "Missed "+string(call.Type)+" call")
	observ.CallsTotal.WithLabelValues("unavailable").Inc()
}

// Accept is receiver-only and valid only while the call is ringing. The
// Get before Transition only picks the error; the Transition decides.
func (c *Coordinator) Accept(ctx context.Context, callID, userID uuid.UUID) (*models.Call, error) {
	live, ok := c.registry.Get(callID)
	if !ok {
		return nil, errNotLive()
	}
	if live.ReceiverID != userID {
		return nil, errNotParticipant()
	}
	call, ok := c.registry.Transition(callID, []models.CallStatus{models.CallRinging}, models.CallOngoing)
	if !ok {
		return nil, errNotLive()
	}
	c.stopTimer(callID)

	now := c.persist(ctx, callID, []models.CallStatus{models.CallRinging}, models.CallOngoing)
	call.StartedAt = &now
	c.emitter.ToUser(call.CallerID, events.CallAccepted{CallID: callID, StartedAt: now})
	return &call, nil
}

// Reject is receiver-only and valid only while the call is ringing.
func (c *Coordinator) Reject(ctx context.Context, callID, userID uuid.UUID) (*models.Call, error) {
	live, ok := c.registry.Get(callID)
	if !ok {
		return nil, errNotLive()
	}
	if live.ReceiverID != userID {
		return nil, errNotParticipant()
	}
	call, ok := c.registry.Transition(callID, []models.CallStatus{models.CallRinging}, models.CallRejected)
	if !ok {
		return nil, errNotLive()
	}
	c.stopTimer(callID)

	now := c.persist(ctx, callID, []models.CallStatus{models.CallRinging}, models.CallRejected)
	call.EndedAt = &now
	c.emitter.ToUser(call.CallerID, events.CallRejected{CallID: callID})
	observ.CallsTotal.WithLabelValues("rejected").Inc()
	return &call, nil
}

// End may be called by either party, ringing or ongoing. The other party
// is told who ended it.
func (c *Coordinator) End(ctx context.Context, callID, userID uuid.UUID) (*models.Call, error) {
	live, ok := c.registry.Get(callID)
	if !ok {
		return nil, errNotLive()
	}
	if live.CallerID != userID && live.ReceiverID != userID {
		return nil, errNotParticipant()
	}
	return c.end(ctx, callID, userID)
}

func (c *Coordinator) end(ctx context.Context, callID, by uuid.UUID) (*models.Call, error) {
	from := []models.CallStatus{models.CallRinging, models.CallOngoing}
	call, ok := c.registry.Transition(callID, from, models.CallEnded)
	if !ok {
		return nil, errNotLive()
	}
	c.stopTimer(callID)

	now := c.persist(ctx, callID, from, models.CallEnded)
	call.EndedAt = &now
	c.emitter.ToUser(call.Other(by), events.CallEnded{CallID: callID, By: by})
	observ.CallsTotal.WithLabelValues("ended").Inc()
	return &call, nil
}

// Relay forwards mute, unmute and camera toggles to the other party.
// Nothing is persisted.
func (c *Coordinator) Relay(callID, userID uuid.UUID, action string) error {
	name, ok := signalEvents[action]
	if !ok {
		return apperr.Validation(apperr.CodeInvalidPayload, "unknown call signal "+action)
	}
	live, ok := c.registry.Get(callID)
	if !ok {
		return errNotLive()
	}
	if live.CallerID != userID && live.ReceiverID != userID {
		return errNotParticipant()
	}
	c.emitter.ToUser(live.Other(userID), events.CallSignal{Kind: name, CallID: callID, UserID: userID})
	return nil
}

// HandleDisconnect ends every live call of a user whose last connection
// closed.
func (c *Coordinator) HandleDisconnect(ctx context.Context, userID uuid.UUID) {
	for _, live := range c.registry.ForUser(userID) {
		if _, err := c.end(ctx, live.ID, userID); err != nil {
			// Lost a race with another transition; nothing left to do.
			continue
		}
		c.logger.Info("call ended by disconnect",
			zap.String("call_id", live.ID.String()),
			zap.String("user_id", userID.String()),
		)
	}
}

// History lists the user's calls, newest first.
func (c *Coordinator) History(ctx context.Context, userID uuid.UUID, limit int) ([]models.Call, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	out, err := c.store.Calls().ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	return out, nil
}

// Stop cancels pending ring timers.
func (c *Coordinator) Stop() {
	if n := c.registry.Len(); n > 0 {
		c.logger.Info("stopping with live calls", zap.Int("live_calls", n))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Coordinator) armTimer(callID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers[callID] = time.AfterFunc(c.ringTimeout, func() { c.expire(callID) })
}

func (c *Coordinator) stopTimer(callID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[callID]; ok {
		t.Stop()
		delete(c.timers, callID)
	}
}

// expire fires when the ring timeout passes. The guarded transition makes
// it a no-op if the call was answered, rejected or ended first.
func (c *Coordinator) expire(callID uuid.UUID) {
	c.mu.Lock()
	delete(c.timers, callID)
	c.mu.Unlock()

	call, ok := c.registry.Transition(callID, []models.CallStatus{models.CallRinging}, models.CallMissed)
	if !ok {
		return
	}
	ctx := context.Background()
	now := c.persist(ctx, callID, []models.CallStatus{models.CallRinging}, models.CallMissed)
	call.EndedAt = &now

	c.emitter.ToUser(call.CallerID, events.CallMissed{CallID: callID})
	c.emitter.ToUser(call.ReceiverID, events.CallMissed{CallID: callID})
	c.notifier.NotifyCall(ctx, &call, "Missed "+string(call.Type)+" call")
	observ.CallsTotal.WithLabelValues("missed").Inc()
}

// persist mirrors a registry transition into the store. The registry has
// already decided the outcome, so a failure here is logged, not returned.
func (c *Coordinator) persist(ctx context.Context, callID uuid.UUID, from []models.CallStatus, to models.CallStatus) time.Time {
	now := c.now()
	ok, err := c.store.Calls().Transition(ctx, callID, from, to, now)
	if err != nil {
		c.logger.Warn("persist call transition failed",
			zap.String("call_id", callID.String()),
			zap.String("to", string(to)),
			zap.Error(err),
		)
	} else if !ok {
		c.logger.Warn("stored call was not in expected state",
			zap.String("call_id", callID.String()),
			zap.String("to", string(to)),
		)
	}
	return now
}
