// Package seed bootstraps reference data on startup: the gift catalog from
// the gamification config, plus optional demo accounts for local
// development.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hilive/hilive/internal/config"
	giftdomain "github.com/hilive/hilive/internal/gift/domain"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
	"gorm.io/gorm"
)

const demoStartingCoins = 1000

var demoUserIDs = []snowflake.ID{1001, 1002}

// EnsureGiftCatalog upserts the configured gift catalog. Existing rows keep
// their ID; price and value follow the config so operators can retune the
// catalog without a migration.
func EnsureGiftCatalog(db *gorm.DB, node *snowflake.Node, gifts []config.GiftDef) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range gifts {
			code := strings.ToLower(strings.TrimSpace(def.Code))
			if code == "" {
				continue
			}

			res := tx.Exec(`
UPDATE gifts
SET name = ?, price_coins = ?, diamond_value = ?, active = true, updated_at = ?
WHERE code = ?`,
				def.Name, def.PriceCoins, def.DiamondValue, now, code)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				continue
			}

			gift := giftdomain.Gift{
				ID:           node.Generate(),
				Code:         code,
				Name:         def.Name,
				PriceCoins:   def.PriceCoins,
				DiamondValue: def.DiamondValue,
				Active:       true,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.Create(&gift).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureDemoAccounts seeds a pair of funded accounts for local development.
// Never enabled in production.
func EnsureDemoAccounts(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, userID := range demoUserIDs {
			var count int64
			if err := tx.Model(&walletdomain.Account{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}

			account := walletdomain.Account{
				UserID:    userID,
				Coins:     demoStartingCoins,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Create(&account).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
