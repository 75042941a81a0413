package payment

import (
	paymentdomain "github.com/hilive/hilive/internal/payment/domain"
	"github.com/hilive/hilive/internal/payment/repository"
	"github.com/hilive/hilive/internal/payment/service"
	"github.com/hilive/hilive/internal/payment/verifier"
	"go.uber.org/fx"
)

func newRegistry() *verifier.Registry {
	return verifier.NewRegistry(verifier.NewDevPay())
}

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(fx.Annotate(newRegistry, fx.As(new(paymentdomain.Verifier)))),
	fx.Provide(service.NewService),
)
