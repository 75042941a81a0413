package gift

import (
	"github.com/hilive/hilive/internal/gift/repository"
	"github.com/hilive/hilive/internal/gift/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gift.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
