package realtime

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/chatwire/internal/access"
	"github.com/lalith-99/chatwire/internal/apperr"
	"github.com/lalith-99/chatwire/internal/auth"
	"github.com/lalith-99/chatwire/internal/delivery"
	"github.com/lalith-99/chatwire/internal/events"
	"github.com/lalith-99/chatwire/internal/middleware"
	"github.com/lalith-99/chatwire/internal/models"
	"github.com/lalith-99/chatwire/internal/observ"
	"github.com/lalith-99/chatwire/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Presence interface {
	Opened(ctx context.Context, userID uuid.UUID) (bool, error)
	Closed(ctx context.Context, userID uuid.UUID) error
}

type Delivery interface {
	Sweep(ctx context.Context, chatID, userID uuid.UUID) (delivery.SweepResult, error)
	Announce(chatID, userID uuid.UUID, res delivery.SweepResult)
	MarkChatRead(ctx context.Context, chatID, userID uuid.UUID) error
	DeliverPending(ctx context.Context, userID uuid.UUID) error
}

type Typing interface {
	Start(chatID, userID uuid.UUID) error
	Stop(chatID, userID uuid.UUID) error
}

type Calls interface {
	Start(ctx context.Context, callerID, receiverID uuid.UUID, typ models.CallType) (*models.Call, error)
	Accept(ctx context.Context, callID, userID uuid.UUID) (*models.Call, error)
	Reject(ctx context.Context, callID, userID uuid.UUID) (*models.Call, error)
	End(ctx context.Context, callID, userID uuid.UUID) (*models.Call, error)
	Relay(callID, userID uuid.UUID, action string) error
	HandleDisconnect(ctx context.Context, userID uuid.UUID)
}

// Limits bounds inbound commands per connection.
type Limits struct {
	EventsPerSecond float64
	Burst           int
}

// Gateway is the socket entry point. For each connection it does the
// authentication and hub registration, the presence open/close and the
// pending-delivery sweep, and then dispatches inbound commands to the
// services. Replies to a command go only to the connection that sent it;
// everything else reaches clients through the hub's rooms.
type Gateway struct {
	hub      *Hub
	verifier *auth.Verifier
	store    repository.Store
	presence Presence
	delivery Delivery
	typing   Typing
	calls    Calls
	limits   Limits
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewGateway(
	hub *Hub,
	verifier *auth.Verifier,
	store repository.Store,
	presence Presence,
	deliverySvc Delivery,
	typing Typing,
	calls Calls,
	limits Limits,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		hub:      hub,
		verifier: verifier,
		store:    store,
		presence: presence,
		delivery: deliverySvc,
		typing:   typing,
		calls:    calls,
		limits:   limits,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.Named("gateway"),
	}
}

// ServeWS authenticates before upgrading: a missing or bad token is a
// plain 401 and no socket is ever opened.
func (g *Gateway) ServeWS(c *gin.Context) {
	claims, err := g.verifier.Verify(middleware.BearerToken(c))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or missing token",
			"code":  apperr.CodeUnauthenticated,
		})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	client := newClient(conn, claims.UserID, rate.NewLimiter(rate.Limit(g.limits.EventsPerSecond), g.limits.Burst))
	g.serve(client)
}

func (g *Gateway) serve(client *Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := g.logger.With(zap.String("user_id", client.userID.String()))

	conns := g.hub.Register(client)
	observ.WSConnections.Inc()
	log.Debug("client connected", zap.Int("connections", conns))

	if _, err := g.presence.Opened(ctx, client.userID); err != nil {
		log.Warn("presence open failed", zap.Error(err))
	}
	if err := g.delivery.DeliverPending(ctx, client.userID); err != nil {
		log.Warn("deliver pending failed", zap.Error(err))
	}

	go client.writePump()
	client.readPump(func(raw []byte) { g.handle(ctx, client, raw) })

	remaining := g.hub.Unregister(client)
	observ.WSConnections.Dec()
	log.Debug("client disconnected", zap.Int("connections", remaining))
	if err := g.presence.Closed(ctx, client.userID); err != nil {
		log.Warn("presence close failed", zap.Error(err))
	}
	if remaining == 0 {
		g.calls.HandleDisconnect(ctx, client.userID)
	}
}

func (g *Gateway) handle(ctx context.Context, c *Client, raw []byte) {
	if !c.limiter.Allow() {
		g.reply(c, events.EventName(raw), apperr.New(apperr.KindValidation, apperr.CodeRateLimited, "too many events"))
		return
	}

	cmd, err := events.Decode(raw)
	if err != nil {
		observ.InboundEvents.WithLabelValues("invalid").Inc()
		g.reply(c, events.EventName(raw), apperr.Validation(apperr.CodeInvalidPayload, err.Error()))
		return
	}
	observ.InboundEvents.WithLabelValues(cmd.Name()).Inc()

	if err := g.dispatch(ctx, c, cmd); err != nil {
		g.reply(c, cmd.Name(), err)
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *Client, cmd events.Command) error {
	user := c.userID
	switch cmd := cmd.(type) {
	case events.JoinChat:
		return g.joinChat(ctx, c, cmd.ChatID)
	case events.LeaveChat:
		g.hub.Leave(c, cmd.ChatID)
		return nil
	case events.StartTyping:
		return g.typing.Start(cmd.ChatID, user)
	case events.StopTyping:
		return g.typing.Stop(cmd.ChatID, user)
	case events.MarkRead:
		return g.delivery.MarkChatRead(ctx, cmd.ChatID, user)
	case events.StartCall:
		_, err := g.calls.Start(ctx, user, cmd.ReceiverID, cmd.Type)
		return err
	case events.CallAction:
		var err error
		switch cmd.Action {
		case events.CmdCallAccept:
			_, err = g.calls.Accept(ctx, cmd.CallID, user)
		case events.CmdCallReject:
			_, err = g.calls.Reject(ctx, cmd.CallID, user)
		case events.CmdCallEnd:
			_, err = g.calls.End(ctx, cmd.CallID, user)
		default:
			err = g.calls.Relay(cmd.CallID, user, cmd.Action)
		}
		return err
	}
	return apperr.Validation(apperr.CodeInvalidPayload, "unhandled event "+cmd.Name())
}

// joinChat is room join, then the delivered/read sweep, then the
// broadcast to the rest of the room.
func (g *Gateway) joinChat(ctx context.Context, c *Client, chatID uuid.UUID) error {
	if _, err := access.Chat(ctx, g.store, chatID); err != nil {
		return err
	}
	if _, err := access.ActiveMember(ctx, g.store, chatID, c.userID); err != nil {
		return err
	}
	g.hub.Join(c, chatID)

	res, err := g.delivery.Sweep(ctx, chatID, c.userID)
	if err != nil {
		return err
	}
	g.delivery.Announce(chatID, c.userID, res)
	return nil
}

// reply sends an error event to this connection only. Internal errors are
// logged and reported without detail.
func (g *Gateway) reply(c *Client, event string, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		g.logger.Error("command failed",
			zap.String("user_id", c.userID.String()),
			zap.String("event", event),
			zap.Error(err),
		)
		ae = apperr.New("", apperr.CodeInternal, "internal error")
	}
	frame, encErr := events.Encode(events.Error{Event: event, Code: ae.Code, Message: ae.Message})
	if encErr != nil {
		return
	}
	g.hub.sendTo(c, frame)
}
