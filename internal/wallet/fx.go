package wallet

import (
	"github.com/hilive/hilive/internal/wallet/repository"
	"github.com/hilive/hilive/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
