package events

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type publisherParams struct {
	fx.In

	Hub   *Hub
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

func newPublisher(p publisherParams) Publisher {
	if p.Redis != nil {
		return NewRedisPublisher(p.Redis, p.Log, p.Hub)
	}
	return p.Hub
}

var Module = fx.Module("events",
	fx.Provide(NewHub),
	fx.Provide(newPublisher),
)
