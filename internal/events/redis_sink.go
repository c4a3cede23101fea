package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChannelPrefix namespaces event channels on the Redis bus.
const ChannelPrefix = "queue:events:"

// RedisSink forwards events to Redis pub/sub so every instance's websocket
// rooms see them. Publish failures are logged and dropped.
type RedisSink struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisSink builds the sink.
func NewRedisSink(client *redis.Client, logger *zap.Logger) *RedisSink {
	return &RedisSink{client: client, logger: logger}
}

// Deliver publishes the event to its topic channel.
func (s *RedisSink) Deliver(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("marshal event", zap.Error(err))
		return
	}
	if err := s.client.Publish(ctx, ChannelPrefix+string(event.Topic), payload).Err(); err != nil {
		s.logger.Warn("publish event to redis",
			zap.String("topic", string(event.Topic)),
			zap.Error(err))
	}
}
