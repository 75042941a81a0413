package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
	"github.com/hilive/hilive/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() walletdomain.Repository {
	return &repo{}
}

func balanceColumn(currency walletdomain.Currency) (string, error) {
	switch currency {
	case walletdomain.CurrencyCoins:
		return "coins", nil
	case walletdomain.CurrencyDiamonds:
		return "diamonds", nil
	case walletdomain.CurrencyPoints:
		return "points", nil
	default:
		return "", walletdomain.ErrInvalidCurrency
	}
}

func (r *repo) EnsureAccount(ctx context.Context, gdb *gorm.DB, userID snowflake.ID, now time.Time) error {
	err := gdb.WithContext(ctx).Exec(
		`INSERT INTO accounts (user_id, coins, diamonds, points, total_coins_spent,
			total_diamonds_earned, wealth_level, live_level, created_at, updated_at)
		 VALUES (?, 0, 0, 0, 0, 0, 0, 0, ?, ?)`,
		userID, now, now,
	).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (r *repo) GetAccount(ctx context.Context, gdb *gorm.DB, userID snowflake.ID) (*walletdomain.Account, error) {
	var account walletdomain.Account
	err := gdb.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) AddBalance(ctx context.Context, gdb *gorm.DB, userID snowflake.ID, currency walletdomain.Currency, delta int64, now time.Time) error {
	column, err := balanceColumn(currency)
	if err != nil {
		return err
	}
	return gdb.WithContext(ctx).Exec(
		fmt.Sprintf(`UPDATE accounts SET %s = %s + ?, updated_at = ? WHERE user_id = ?`, column, column),
		delta, now, userID,
	).Error
}

func (r *repo) SubtractBalance(ctx context.Context, gdb *gorm.DB, userID snowflake.ID, currency walletdomain.Currency, delta int64, now time.Time) (bool, error) {
	column, err := balanceColumn(currency)
	if err != nil {
		return false, err
	}
	result := gdb.WithContext(ctx).Exec(
		fmt.Sprintf(`UPDATE accounts SET %s = %s - ?, updated_at = ? WHERE user_id = ? AND %s >= ?`, column, column, column),
		delta, now, userID, delta,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) AddLifetimeTotals(ctx context.Context, gdb *gorm.DB, userID snowflake.ID, coinsSpent, diamondsEarned int64) error {
	if coinsSpent == 0 && diamondsEarned == 0 {
		return nil
	}
	return gdb.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET total_coins_spent = total_coins_spent + ?,
		     total_diamonds_earned = total_diamonds_earned + ?
		 WHERE user_id = ?`,
		coinsSpent, diamondsEarned, userID,
	).Error
}

func (r *repo) SetLevels(ctx context.Context, gdb *gorm.DB, userID snowflake.ID, wealthLevel, liveLevel int) error {
	return gdb.WithContext(ctx).Exec(
		`UPDATE accounts SET wealth_level = ?, live_level = ? WHERE user_id = ?`,
		wealthLevel, liveLevel, userID,
	).Error
}

func (r *repo) SetGuardedBy(ctx context.Context, gdb *gorm.DB, userID snowflake.ID, guardedBy *snowflake.ID) error {
	return gdb.WithContext(ctx).Exec(
		`UPDATE accounts SET guarded_by_user_id = ? WHERE user_id = ?`,
		guardedBy, userID,
	).Error
}

func (r *repo) InsertTransaction(ctx context.Context, gdb *gorm.DB, txn *walletdomain.Transaction) error {
	return gdb.WithContext(ctx).Exec(
		`INSERT INTO transactions (id, user_id, type, currency, amount, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.UserID,
		txn.Type,
		txn.Currency,
		txn.Amount,
		txn.Metadata,
		txn.CreatedAt,
	).Error
}

func (r *repo) ListTransactions(ctx context.Context, gdb *gorm.DB, filter walletdomain.TransactionFilter) ([]*walletdomain.Transaction, error) {
	var txns []*walletdomain.Transaction
	stmt := gdb.WithContext(ctx).Model(&walletdomain.Transaction{}).
		Where("user_id = ?", filter.UserID)

	if currency := strings.TrimSpace(filter.Currency); currency != "" {
		stmt = stmt.Where("currency = ?", currency)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
