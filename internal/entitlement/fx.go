package entitlement

import (
	"github.com/hilive/hilive/internal/entitlement/repository"
	"github.com/hilive/hilive/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
