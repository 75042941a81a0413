package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/hilive/hilive/pkg/db/pagination"
	"gorm.io/gorm"
)

type MutateBalanceRequest struct {
	UserID   snowflake.ID
	Currency Currency
	Amount   int64
	Type     TransactionType
	Metadata map[string]any
}

type Balance struct {
	UserID      snowflake.ID `json:"user_id"`
	Coins       int64        `json:"coins"`
	Diamonds    int64        `json:"diamonds"`
	Points      int64        `json:"points"`
	WealthLevel int          `json:"wealth_level"`
	LiveLevel   int          `json:"live_level"`
}

type ListTransactionsRequest struct {
	pagination.Pagination
	UserID   snowflake.ID
	Currency string
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []Transaction `json:"transactions"`
}

// Service owns balance mutations. Every mutation writes the balance change
// and its transaction row in one database transaction: either both commit or
// neither does.
type Service interface {
	Credit(ctx context.Context, req MutateBalanceRequest) (Balance, error)
	// CreditTx applies the credit inside the caller's transaction so the
	// caller's own bookkeeping commits or rolls back with the balance
	// change.
	CreditTx(ctx context.Context, tx *gorm.DB, req MutateBalanceRequest) (Balance, error)
	Debit(ctx context.Context, req MutateBalanceRequest) (Balance, error)
	Get(ctx context.Context, userID snowflake.ID) (Balance, error)
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)
}

var (
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidCurrency   = errors.New("invalid_currency")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidType       = errors.New("invalid_transaction_type")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrInsufficientFunds = errors.New("insufficient_funds")
)

// InsufficientFundsError carries the balance detail the caller needs to act.
type InsufficientFundsError struct {
	Currency Currency
	Required int64
	Current  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient_funds: need %d %s, have %d", e.Required, e.Currency, e.Current)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// ValidCurrency reports whether the currency names a balance column.
func ValidCurrency(c Currency) bool {
	switch c {
	case CurrencyCoins, CurrencyDiamonds, CurrencyPoints:
		return true
	default:
		return false
	}
}

// ValidTransactionType reports whether the type is a known ledger entry kind.
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TransactionTypePurchase, TransactionTypeReward, TransactionTypeGiftSent, TransactionTypeGiftReceived:
		return true
	default:
		return false
	}
}
