package verifier

import (
	"context"

	paymentdomain "github.com/hilive/hilive/internal/payment/domain"
)

// DevPay trusts the event payload as-is. Wired only in local and test
// environments where no real provider sits behind the webhook.
type DevPay struct{}

func NewDevPay() *DevPay { return &DevPay{} }

func (DevPay) Provider() string { return "devpay" }

func (DevPay) Verify(ctx context.Context, provider, providerEventID string, event *paymentdomain.PaymentEvent) (paymentdomain.VerifiedPayment, error) {
	if event == nil {
		return paymentdomain.VerifiedPayment{}, paymentdomain.ErrInvalidEvent
	}
	return paymentdomain.VerifiedPayment{
		Verified: true,
		Amount:   event.Coins,
		Currency: event.Currency,
	}, nil
}
