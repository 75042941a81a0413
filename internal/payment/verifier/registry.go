// Package verifier routes payment verification to per-provider
// implementations.
package verifier

import (
	"context"
	"strings"

	paymentdomain "github.com/hilive/hilive/internal/payment/domain"
)

// ProviderVerifier is a Verifier bound to one provider name.
type ProviderVerifier interface {
	paymentdomain.Verifier
	Provider() string
}

type Registry struct {
	verifiers map[string]paymentdomain.Verifier
}

func NewRegistry(verifiers ...ProviderVerifier) *Registry {
	registry := &Registry{verifiers: map[string]paymentdomain.Verifier{}}
	for _, v := range verifiers {
		if v == nil {
			continue
		}
		provider := strings.ToLower(strings.TrimSpace(v.Provider()))
		if provider == "" {
			continue
		}
		registry.verifiers[provider] = v
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	_, ok := r.verifiers[provider]
	return ok
}

func (r *Registry) Verify(ctx context.Context, provider, providerEventID string, event *paymentdomain.PaymentEvent) (paymentdomain.VerifiedPayment, error) {
	if r == nil {
		return paymentdomain.VerifiedPayment{}, paymentdomain.ErrProviderNotFound
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	v, ok := r.verifiers[provider]
	if !ok {
		return paymentdomain.VerifiedPayment{}, paymentdomain.ErrProviderNotFound
	}
	return v.Verify(ctx, provider, providerEventID, event)
}
