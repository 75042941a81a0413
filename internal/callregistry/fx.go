package callregistry

import (
	"github.com/hilive/hilive/internal/clock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

type storeParams struct {
	fx.In

	Clock clock.Clock
	Redis *redis.Client `optional:"true"`
}

func newStore(p storeParams) Store {
	if p.Redis != nil {
		return NewRedisStore(p.Redis)
	}
	return NewMemoryStore(p.Clock)
}

var Module = fx.Module("callregistry",
	fx.Provide(newStore),
	fx.Provide(NewService),
)
