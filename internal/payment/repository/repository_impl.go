package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/hilive/hilive/internal/payment/domain"
	"github.com/hilive/hilive/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, gdb *gorm.DB, record *paymentdomain.EventRecord) (bool, error) {
	err := gdb.WithContext(ctx).Exec(
		`INSERT INTO payment_events (id, provider, provider_event_id, user_id, coins,
			currency, verified, payload, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Provider,
		record.ProviderEventID,
		record.UserID,
		record.Coins,
		record.Currency,
		record.Verified,
		record.Payload,
		record.ReceivedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repo) GetEvent(ctx context.Context, gdb *gorm.DB, provider, providerEventID string) (*paymentdomain.EventRecord, error) {
	var record paymentdomain.EventRecord
	err := gdb.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) MarkVerified(ctx context.Context, gdb *gorm.DB, id snowflake.ID) error {
	return gdb.WithContext(ctx).Exec(
		`UPDATE payment_events SET verified = ? WHERE id = ?`,
		true, id,
	).Error
}

func (r *repo) MarkProcessed(ctx context.Context, gdb *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := gdb.WithContext(ctx).Exec(
		`UPDATE payment_events SET processed_at = ? WHERE id = ? AND processed_at IS NULL`,
		now, id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
