package events

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher mirrors every event onto a Redis channel so other server
// instances (and the realtime gateway) see the same stream.
type RedisPublisher struct {
	client *redis.Client
	log    *zap.Logger
	local  *Hub
}

func NewRedisPublisher(client *redis.Client, log *zap.Logger, local *Hub) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		log:    log.Named("events.redis"),
		local:  local,
	}
}

func (p *RedisPublisher) Publish(topic string, event Event) {
	if p.local != nil {
		p.local.Publish(topic, event)
	}
	if p.client == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Warn("failed to encode event", zap.String("topic", topic), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, "events:"+topic, payload).Err(); err != nil {
		p.log.Warn("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}
