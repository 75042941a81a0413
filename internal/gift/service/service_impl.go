package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/hilive/hilive/internal/events"
	giftdomain "github.com/hilive/hilive/internal/gift/domain"
	liveroomdomain "github.com/hilive/hilive/internal/liveroom/domain"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
	"github.com/hilive/hilive/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      giftdomain.Repository
	Wallet    walletdomain.Service
	Liveroom  liveroomdomain.Service
	Publisher events.Publisher   `optional:"true"`
	Metrics   *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      giftdomain.Repository
	wallet    walletdomain.Service
	liveroom  liveroomdomain.Service
	publisher events.Publisher
	metrics   *telemetry.Metrics
}

func NewService(p Params) giftdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("gift.service"),
		repo:      p.Repo,
		wallet:    p.Wallet,
		liveroom:  p.Liveroom,
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

func (s *Service) Send(ctx context.Context, req giftdomain.SendGiftRequest) (*giftdomain.SendGiftResult, error) {
	if req.SenderUserID == 0 {
		return nil, giftdomain.ErrInvalidSender
	}
	if req.Count <= 0 || req.Count > giftdomain.MaxGiftCount {
		return nil, giftdomain.ErrInvalidCount
	}

	gift, err := s.GetByCode(ctx, req.GiftCode)
	if err != nil {
		return nil, err
	}
	if !gift.Active {
		return nil, giftdomain.ErrGiftInactive
	}

	view, err := s.liveroom.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if view.Session.Status != liveroomdomain.StatusStreaming {
		return nil, liveroomdomain.ErrSessionEnded
	}
	hostUserID := view.Session.HostUserID

	coins := gift.PriceCoins * req.Count
	diamonds := gift.DiamondValue * req.Count
	meta := map[string]any{
		"gift_code":  gift.Code,
		"count":      req.Count,
		"session_id": req.SessionID.String(),
	}

	senderBalance, err := s.wallet.Debit(ctx, walletdomain.MutateBalanceRequest{
		UserID:   req.SenderUserID,
		Currency: walletdomain.CurrencyCoins,
		Amount:   coins,
		Type:     walletdomain.TransactionTypeGiftSent,
		Metadata: meta,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.wallet.Credit(ctx, walletdomain.MutateBalanceRequest{
		UserID:   hostUserID,
		Currency: walletdomain.CurrencyDiamonds,
		Amount:   diamonds,
		Type:     walletdomain.TransactionTypeGiftReceived,
		Metadata: meta,
	}); err != nil {
		// Hand the coins back so a failed credit never strands the debit.
		s.refund(ctx, req.SenderUserID, coins, meta)
		return nil, err
	}

	if err := s.liveroom.RecordGift(ctx, req.SessionID, diamonds); err != nil {
		// Balances already moved; the session total is best-effort once the
		// session raced into its ended state.
		s.log.Warn("failed to record gift on session",
			zap.String("session_id", req.SessionID.String()),
			zap.Error(err),
		)
	}

	if s.metrics != nil {
		s.metrics.IncGiftSent()
	}
	if s.publisher != nil {
		s.publisher.Publish(events.TopicGiftSent, events.Event{
			Topic:     events.TopicGiftSent,
			SessionID: req.SessionID.String(),
			Payload: map[string]any{
				"sender_user_id": req.SenderUserID.String(),
				"gift_code":      gift.Code,
				"count":          req.Count,
				"diamonds":       diamonds,
			},
		})
	}

	return &giftdomain.SendGiftResult{
		Gift:            *gift,
		Count:           req.Count,
		CoinsSpent:      coins,
		DiamondsAwarded: diamonds,
		SenderBalance:   senderBalance,
	}, nil
}

func (s *Service) ListCatalog(ctx context.Context, includeInactive bool) ([]giftdomain.Gift, error) {
	return s.repo.List(ctx, s.db, includeInactive)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*giftdomain.Gift, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, giftdomain.ErrGiftNotFound
	}
	gift, err := s.repo.GetByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if gift == nil {
		return nil, giftdomain.ErrGiftNotFound
	}
	return gift, nil
}

func (s *Service) refund(ctx context.Context, userID snowflake.ID, coins int64, meta map[string]any) {
	refundMeta := map[string]any{"refund": true}
	for k, v := range meta {
		refundMeta[k] = v
	}
	if _, err := s.wallet.Credit(ctx, walletdomain.MutateBalanceRequest{
		UserID:   userID,
		Currency: walletdomain.CurrencyCoins,
		Amount:   coins,
		Type:     walletdomain.TransactionTypeReward,
		Metadata: refundMeta,
	}); err != nil {
		s.log.Error("failed to refund gift debit",
			zap.String("user_id", userID.String()),
			zap.Int64("coins", coins),
			zap.Error(err),
		)
	}
}
