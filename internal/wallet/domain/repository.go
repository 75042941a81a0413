package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type TransactionFilter struct {
	UserID   snowflake.ID
	Currency string
	Cursor   *TransactionCursor
	Limit    int
}

type TransactionCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type Repository interface {
	// EnsureAccount inserts the account row if it does not exist yet.
	EnsureAccount(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) error
	GetAccount(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Account, error)
	// AddBalance unconditionally adds delta (positive) to the currency column.
	AddBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID, currency Currency, delta int64, now time.Time) error
	// SubtractBalance subtracts delta only when the balance covers it; the
	// floor check runs inside the store so concurrent debits cannot both see
	// a stale sufficient-funds snapshot. Returns false when the conditional
	// update matched no row.
	SubtractBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID, currency Currency, delta int64, now time.Time) (bool, error)
	// AddLifetimeTotals bumps the cumulative counters feeding level derivation.
	AddLifetimeTotals(ctx context.Context, db *gorm.DB, userID snowflake.ID, coinsSpent, diamondsEarned int64) error
	SetLevels(ctx context.Context, db *gorm.DB, userID snowflake.ID, wealthLevel, liveLevel int) error
	SetGuardedBy(ctx context.Context, db *gorm.DB, userID snowflake.ID, guardedBy *snowflake.ID) error
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *Transaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, filter TransactionFilter) ([]*Transaction, error)
}
