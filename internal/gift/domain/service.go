package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
	"gorm.io/gorm"
)

// maxGiftCount bounds a single send so a typo cannot drain an account in
// one request.
const MaxGiftCount = 999

type SendGiftRequest struct {
	SessionID    snowflake.ID
	SenderUserID snowflake.ID
	GiftCode     string
	Count        int64
}

type SendGiftResult struct {
	Gift            Gift                 `json:"gift"`
	Count           int64                `json:"count"`
	CoinsSpent      int64                `json:"coins_spent"`
	DiamondsAwarded int64                `json:"diamonds_awarded"`
	SenderBalance   walletdomain.Balance `json:"sender_balance"`
}

// Service moves gift value between wallets: the sender pays coins, the
// session host earns diamonds, and the session's running total advances.
type Service interface {
	Send(ctx context.Context, req SendGiftRequest) (*SendGiftResult, error)
	ListCatalog(ctx context.Context, includeInactive bool) ([]Gift, error)
	GetByCode(ctx context.Context, code string) (*Gift, error)
}

type Repository interface {
	GetByCode(ctx context.Context, db *gorm.DB, code string) (*Gift, error)
	List(ctx context.Context, db *gorm.DB, includeInactive bool) ([]Gift, error)
	Upsert(ctx context.Context, db *gorm.DB, gift *Gift, now time.Time) error
}

var (
	ErrGiftNotFound  = errors.New("gift_not_found")
	ErrGiftInactive  = errors.New("gift_inactive")
	ErrInvalidCount  = errors.New("invalid_gift_count")
	ErrInvalidSender = errors.New("invalid_sender")
)
