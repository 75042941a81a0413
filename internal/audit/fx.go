package audit

import (
	"github.com/hilive/hilive/internal/audit/repository"
	"github.com/hilive/hilive/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
