// Package domain contains persistence models for user balances and the
// append-only transaction ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Currency identifies one of the three balance columns.
type Currency string

const (
	CurrencyCoins    Currency = "coins"
	CurrencyDiamonds Currency = "diamonds"
	CurrencyPoints   Currency = "points"
)

// TransactionType classifies ledger entries.
type TransactionType string

const (
	TransactionTypePurchase     TransactionType = "purchase"
	TransactionTypeReward       TransactionType = "reward"
	TransactionTypeGiftSent     TransactionType = "gift_sent"
	TransactionTypeGiftReceived TransactionType = "gift_received"
)

// Account holds one user's balances and derived levels. Balances never go
// negative; levels are recomputed from the cumulative totals, never mutated
// independently.
type Account struct {
	UserID              snowflake.ID  `gorm:"primaryKey"`
	Coins               int64         `gorm:"not null;default:0"`
	Diamonds            int64         `gorm:"not null;default:0"`
	Points              int64         `gorm:"not null;default:0"`
	TotalCoinsSpent     int64         `gorm:"not null;default:0"`
	TotalDiamondsEarned int64         `gorm:"not null;default:0"`
	WealthLevel         int           `gorm:"not null;default:0"`
	LiveLevel           int           `gorm:"not null;default:0"`
	GuardedByUserID     *snowflake.ID `gorm:"index"`
	CreatedAt           time.Time     `gorm:"not null"`
	UpdatedAt           time.Time     `gorm:"not null"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }

// Transaction is an append-only ledger entry. Amount is signed: credits are
// positive, debits negative. Rows are never mutated after insert.
type Transaction struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	UserID    snowflake.ID      `gorm:"not null;index"`
	Type      TransactionType   `gorm:"type:text;not null"`
	Currency  Currency          `gorm:"type:text;not null"`
	Amount    int64             `gorm:"not null"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;index"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }
