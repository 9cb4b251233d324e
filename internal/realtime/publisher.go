// Package realtime publishes per-recipient push messages and dashboard
// broadcasts over Redis pub/sub. All publishes are best-effort: a failure
// is logged and reflected to the caller but must never be allowed to fail
// the attendance or alert write path.
package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ephc-connect/attendance-service/internal/config"
)

// Publisher delivers targeted and broadcast real-time messages.
type Publisher interface {
	// PublishToRecipient sends a message to a single recipient's channel
	// and reports whether at least one live subscriber received it.
	PublishToRecipient(ctx context.Context, recipientID string, payload any) (bool, error)
	// Broadcast publishes to the shared dashboard channel.
	Broadcast(ctx context.Context, payload any) error
}

type redisPublisher struct {
	client *redis.Client
	cfg    config.NotificationConfig
	logger *zap.Logger
}

// NewRedisPublisher constructs a Redis pub/sub backed publisher.
func NewRedisPublisher(client *redis.Client, cfg config.NotificationConfig, logger *zap.Logger) Publisher {
	return &redisPublisher{client: client, cfg: cfg, logger: logger}
}

func (p *redisPublisher) PublishToRecipient(ctx context.Context, recipientID string, payload any) (bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	channel := p.cfg.RecipientChannelPrefix + recipientID
	receivers, err := p.client.Publish(ctx, channel, body).Result()
	if err != nil {
		p.logger.Warn("recipient publish failed", zap.String("channel", channel), zap.Error(err))
		return false, err
	}
	return receivers > 0, nil
}

func (p *redisPublisher) Broadcast(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.cfg.DashboardChannel, body).Err(); err != nil {
		p.logger.Warn("dashboard broadcast failed", zap.Error(err))
		return err
	}
	return nil
}
