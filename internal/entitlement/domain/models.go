// Package domain contains persistence models for time-bounded entitlements:
// VIP, MVP, and Guardian subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Kind identifies the entitlement family.
type Kind string

const (
	KindVIP      Kind = "vip"
	KindMVP      Kind = "mvp"
	KindGuardian Kind = "guardian"
)

// Entitlement is one user's grant of a kind. At most one row per
// (user, kind); re-activation extends the same row.
//
// Active is a gate, not the truth: readers must treat the grant as active
// only when Active && ExpiresAt > now. Expiry is lazy: flipped on read
// paths and by the background sweep, never guaranteed to transition the
// moment it lapses.
type Entitlement struct {
	ID           snowflake.ID  `gorm:"primaryKey"`
	UserID       snowflake.ID  `gorm:"not null;uniqueIndex:ux_entitlements_user_kind,priority:1"`
	Kind         Kind          `gorm:"type:text;not null;uniqueIndex:ux_entitlements_user_kind,priority:2"`
	Tier         string        `gorm:"type:text;not null"`
	Active       bool          `gorm:"not null;default:false"`
	ExpiresAt    time.Time     `gorm:"not null"`
	TargetUserID *snowflake.ID `gorm:"index"`
	CreatedAt    time.Time     `gorm:"not null"`
	UpdatedAt    time.Time     `gorm:"not null"`
}

// TableName sets the database table name.
func (Entitlement) TableName() string { return "entitlements" }
