// Package domain contains structured audit records for economic and
// moderation actions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

// AuditLog is an append-only record of one sensitive action.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	ActorType  string            `gorm:"type:text;not null"`
	ActorID    *snowflake.ID     `gorm:"index"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text;index"`
	Success    bool              `gorm:"not null;default:true"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;index"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
