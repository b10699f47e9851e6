package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/models"
	"github.com/lalith-99/chatwire/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Push is one push notification for one user. A push is about a chat or
// about a call, never both; the other ID stays nil and is left out of the
// payload.
type Push struct {
	Type   models.NotificationType `json:"type"`
	Title  string                  `json:"title"`
	Body   string                  `json:"body"`
	ChatID *uuid.UUID              `json:"chatId,omitempty"`
	CallID *uuid.UUID              `json:"callId,omitempty"`
}

// PushSender hands a push to whatever delivers it to devices.
type PushSender interface {
	Send(ctx context.Context, userID uuid.UUID, p Push) error
}

// job is the message published for push workers.
type job struct {
	UserID uuid.UUID `json:"userId"`
	Tokens []string  `json:"tokens"`
	Push
}

// RedisPublisher publishes push jobs on a Redis channel for an external
// worker that talks to APNs/FCM. Users without devices are skipped.
type RedisPublisher struct {
	rdb     *redis.Client
	devices repository.DeviceRepository
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(rdb *redis.Client, devices repository.DeviceRepository, channel string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		rdb:     rdb,
		devices: devices,
		channel: channel,
		logger:  logger.Named("push"),
	}
}

func (p *RedisPublisher) Send(ctx context.Context, userID uuid.UUID, push Push) error {
	devices, err := p.devices.ListForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		return nil
	}

	j := job{UserID: userID, Push: push, Tokens: make([]string, 0, len(devices))}
	for _, d := range devices {
		j.Tokens = append(j.Tokens, d.Token)
	}
	payload, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish push: %w", err)
	}
	p.logger.Debug("push published",
		zap.String("user_id", userID.String()),
		zap.String("type", string(push.Type)),
		zap.Int("devices", len(devices)),
	)
	return nil
}

// LogSender only logs. Used when no Redis is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.Named("push")}
}

func (s *LogSender) Send(_ context.Context, userID uuid.UUID, p Push) error {
	s.logger.Debug("push dropped, no sender configured",
		zap.String("user_id", userID.String()),
		zap.String("type", string(p.Type)),
	)
	return nil
}
