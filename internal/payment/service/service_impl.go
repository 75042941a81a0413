package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hilive/hilive/internal/audit/domain"
	paymentdomain "github.com/hilive/hilive/internal/payment/domain"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     paymentdomain.Repository
	Wallet   walletdomain.Service
	Verifier paymentdomain.Verifier
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     paymentdomain.Repository
	wallet   walletdomain.Service
	verifier paymentdomain.Verifier
	auditSvc auditdomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		wallet:   p.Wallet,
		verifier: p.Verifier,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent, payload []byte) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	now := time.Now().UTC()
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		UserID:          event.UserID,
		Coins:           event.Coins,
		Currency:        event.Currency,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return err
	}
	if !inserted {
		stored, err := s.repo.GetEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrDuplicateReference
		}
		// Unprocessed duplicate: a previous attempt crashed between insert
		// and credit. Resume it.
		record = stored
	}

	verified, err := s.verifier.Verify(ctx, event.Provider, event.ProviderEventID, event)
	if err != nil {
		return err
	}
	if !verified.Verified {
		s.auditEvent(ctx, record, "payment.rejected", false)
		return paymentdomain.ErrPaymentNotVerified
	}
	if verified.Amount != record.Coins {
		return paymentdomain.ErrAmountMismatch
	}
	if err := s.repo.MarkVerified(ctx, s.db, record.ID); err != nil {
		return err
	}

	// The processed stamp and the credit commit together: of two
	// concurrent deliveries only the one holding the stamp credits, and a
	// failed credit rolls the stamp back so the provider's retry resumes.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := s.repo.MarkProcessed(ctx, tx, record.ID, now)
		if err != nil {
			return err
		}
		if !claimed {
			return paymentdomain.ErrDuplicateReference
		}
		_, err = s.wallet.CreditTx(ctx, tx, walletdomain.MutateBalanceRequest{
			UserID:   record.UserID,
			Currency: walletdomain.CurrencyCoins,
			Amount:   record.Coins,
			Type:     walletdomain.TransactionTypePurchase,
			Metadata: map[string]any{
				"provider":          record.Provider,
				"provider_event_id": record.ProviderEventID,
			},
		})
		return err
	})
	if err != nil {
		return err
	}

	s.auditEvent(ctx, record, "payment.processed", true)
	return nil
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if event.UserID == 0 {
		return paymentdomain.ErrInvalidEvent
	}
	if event.Coins <= 0 {
		return paymentdomain.ErrInvalidEvent
	}
	currency := strings.TrimSpace(event.Currency)
	if currency == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Currency = strings.ToUpper(currency)
	return nil
}

func (s *Service) auditEvent(ctx context.Context, record *paymentdomain.EventRecord, action string, success bool) {
	if s.auditSvc == nil {
		return
	}
	targetID := record.ProviderEventID
	if err := s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeSystem, nil, action, "payment_event", &targetID, success, map[string]any{
		"provider": record.Provider,
		"user_id":  record.UserID.String(),
		"coins":    record.Coins,
	}); err != nil {
		s.log.Warn("failed to write payment audit log", zap.Error(err))
	}
}
