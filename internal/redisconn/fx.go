// Package redisconn provides the shared Redis client. The client is nil when
// no Redis address is configured; consumers degrade to in-process fallbacks.
package redisconn

import (
	"context"

	"github.com/hilive/hilive/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func New(cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	log.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	return client
}

func registerHooks(lc fx.Lifecycle, client *redis.Client) {
	if client == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			return client.Close()
		},
	})
}

var Module = fx.Module("redisconn",
	fx.Provide(New),
	fx.Invoke(registerHooks),
)
