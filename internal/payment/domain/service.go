package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PaymentEvent is the normalized form of one provider webhook.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	UserID          snowflake.ID
	Coins           int64
	Currency        string
}

// VerifiedPayment is the provider's answer for one payment reference.
type VerifiedPayment struct {
	Verified bool
	Amount   int64
	Currency string
}

// Verifier checks a payment reference against the provider before any coins
// move. Implementations wrap provider SDK calls or, in dev, trust the
// payload.
type Verifier interface {
	Verify(ctx context.Context, provider, providerEventID string, event *PaymentEvent) (VerifiedPayment, error)
}

// Service ingests provider events and credits coins exactly once per
// reference.
type Service interface {
	ProcessEvent(ctx context.Context, event *PaymentEvent, payload []byte) error
}

type Repository interface {
	// InsertEvent returns false when the (provider, provider_event_id) pair
	// already exists.
	InsertEvent(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	GetEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkVerified(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// MarkProcessed stamps ProcessedAt only when it is still unset, so the
	// caller holding the stamp is the one that credited.
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}

var (
	ErrInvalidEvent       = errors.New("invalid_payment_event")
	ErrInvalidProvider    = errors.New("invalid_provider")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrProviderNotFound   = errors.New("provider_not_found")
	ErrDuplicateReference = errors.New("duplicate_payment_reference")
	ErrPaymentNotVerified = errors.New("payment_not_verified")
	ErrAmountMismatch     = errors.New("payment_amount_mismatch")
)
