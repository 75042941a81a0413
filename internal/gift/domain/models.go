// Package domain defines the gift catalog and the send-gift contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Gift is one catalog entry. PriceCoins is what the sender pays per unit;
// DiamondValue is what the host receives per unit.
type Gift struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Code         string       `gorm:"uniqueIndex;not null" json:"code"`
	Name         string       `gorm:"not null" json:"name"`
	PriceCoins   int64        `gorm:"not null" json:"price_coins"`
	DiamondValue int64        `gorm:"not null" json:"diamond_value"`
	Active       bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Gift) TableName() string { return "gifts" }
