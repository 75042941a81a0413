// Package domain defines the coin top-up pipeline fed by payment provider
// webhooks.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is one received provider event. The (provider,
// provider_event_id) pair is unique: redelivered webhooks land on the same
// row instead of crediting twice.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"not null;uniqueIndex:ux_payment_events,priority:1"`
	ProviderEventID string         `gorm:"not null;uniqueIndex:ux_payment_events,priority:2"`
	UserID          snowflake.ID   `gorm:"not null;index"`
	Coins           int64          `gorm:"not null"`
	Currency        string         `gorm:"not null"`
	Verified        bool           `gorm:"not null;default:false"`
	Payload         datatypes.JSON `gorm:"type:jsonb"`
	ReceivedAt      time.Time      `gorm:"not null"`
	ProcessedAt     *time.Time     `gorm:""`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "payment_events" }
