package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hilive/hilive/internal/entitlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind domain.Kind) (*domain.Entitlement, error) {
	var ent domain.Entitlement
	err := db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, kind).
		First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ent, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Entitlement, error) {
	var ents []domain.Entitlement
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("kind asc").
		Find(&ents).Error
	if err != nil {
		return nil, err
	}
	return ents, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, ent *domain.Entitlement) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET tier = ?, active = ?, expires_at = ?, target_user_id = ?, updated_at = ?
		 WHERE user_id = ? AND kind = ?`,
		ent.Tier,
		ent.Active,
		ent.ExpiresAt,
		ent.TargetUserID,
		ent.UpdatedAt,
		ent.UserID,
		ent.Kind,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO entitlements (id, user_id, kind, tier, active, expires_at, target_user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ent.ID,
		ent.UserID,
		ent.Kind,
		ent.Tier,
		ent.Active,
		ent.ExpiresAt,
		ent.TargetUserID,
		ent.CreatedAt,
		ent.UpdatedAt,
	).Error
}

func (r *repo) ExpireLapsed(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET active = ?, updated_at = ?
		 WHERE user_id = ? AND active = ? AND expires_at <= ?`,
		false, now, userID, true, now,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListLapsedUserIDs(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT user_id FROM entitlements
		 WHERE active = ? AND expires_at <= ?
		 ORDER BY user_id
		 LIMIT ?`,
		true, now, limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListActiveUserIDs(ctx context.Context, db *gorm.DB, kind domain.Kind, now time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT user_id FROM entitlements
		 WHERE kind = ? AND active = ? AND expires_at > ? AND user_id > ?
		 ORDER BY user_id
		 LIMIT ?`,
		kind, true, now, afterID, limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
