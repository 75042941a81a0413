package liveroom

import (
	"github.com/hilive/hilive/internal/liveroom/repository"
	"github.com/hilive/hilive/internal/liveroom/service"
	"go.uber.org/fx"
)

var Module = fx.Module("liveroom.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
