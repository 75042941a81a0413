package repository

import (
	"context"
	"errors"
	"time"

	giftdomain "github.com/hilive/hilive/internal/gift/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() giftdomain.Repository {
	return &repo{}
}

func (r *repo) GetByCode(ctx context.Context, gdb *gorm.DB, code string) (*giftdomain.Gift, error) {
	var gift giftdomain.Gift
	err := gdb.WithContext(ctx).
		Where("code = ?", code).
		First(&gift).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &gift, nil
}

func (r *repo) List(ctx context.Context, gdb *gorm.DB, includeInactive bool) ([]giftdomain.Gift, error) {
	var gifts []giftdomain.Gift
	stmt := gdb.WithContext(ctx).Model(&giftdomain.Gift{})
	if !includeInactive {
		stmt = stmt.Where("active = ?", true)
	}
	if err := stmt.Order("price_coins asc, code asc").Find(&gifts).Error; err != nil {
		return nil, err
	}
	return gifts, nil
}

func (r *repo) Upsert(ctx context.Context, gdb *gorm.DB, gift *giftdomain.Gift, now time.Time) error {
	result := gdb.WithContext(ctx).Exec(
		`UPDATE gifts SET name = ?, price_coins = ?, diamond_value = ?, active = ?, updated_at = ?
		 WHERE code = ?`,
		gift.Name, gift.PriceCoins, gift.DiamondValue, gift.Active, now, gift.Code,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return gdb.WithContext(ctx).Exec(
		`INSERT INTO gifts (id, code, name, price_coins, diamond_value, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		gift.ID, gift.Code, gift.Name, gift.PriceCoins, gift.DiamondValue, gift.Active, now, now,
	).Error
}
