// Package domain contains persistence models for live sessions, party
// seats, and viewer membership.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SessionKind distinguishes plain broadcasts from seat-based party rooms.
type SessionKind string

const (
	KindBroadcast  SessionKind = "broadcast"
	KindPartyVideo SessionKind = "party-video"
	KindPartyAudio SessionKind = "party-audio"
)

// SessionStatus is the session lifecycle state. Ended is terminal: a session
// never transitions back to streaming.
type SessionStatus string

const (
	StatusStreaming SessionStatus = "streaming"
	StatusEnded     SessionStatus = "ended"
)

// LiveSession is one stream. IsGhost is derived from heartbeat age by the
// sweep; it is orthogonal to Status and never authoritative on its own.
type LiveSession struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	HostUserID     snowflake.ID  `gorm:"not null;index"`
	Kind           SessionKind   `gorm:"type:text;not null"`
	ChairCount     int           `gorm:"not null;default:0"`
	IsPrivate      bool          `gorm:"not null;default:false"`
	Status         SessionStatus `gorm:"type:text;not null;index"`
	IsGhost        bool          `gorm:"not null;default:false"`
	LastHeartbeat  time.Time     `gorm:"not null"`
	DiamondsEarned int64         `gorm:"not null;default:0"`
	CreatedAt      time.Time     `gorm:"not null;index"`
	EndedAt        *time.Time    `gorm:""`
}

// TableName sets the database table name.
func (LiveSession) TableName() string { return "live_sessions" }

// Seat is one chair in a party session. OccupantUserID nil means empty; the
// flag columns are only meaningful while occupied.
type Seat struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	SessionID      snowflake.ID  `gorm:"not null;uniqueIndex:ux_seats_session_idx,priority:1"`
	Idx            int           `gorm:"not null;uniqueIndex:ux_seats_session_idx,priority:2"`
	OccupantUserID *snowflake.ID `gorm:"index"`
	CanTalk        bool          `gorm:"not null;default:false"`
	AudioEnabled   bool          `gorm:"not null;default:false"`
	VideoEnabled   bool          `gorm:"not null;default:false"`
	UpdatedAt      time.Time     `gorm:"not null"`
}

// TableName sets the database table name.
func (Seat) TableName() string { return "seats" }

// SessionMute records a host mute for display and audit. Orthogonal to the
// seat's AudioEnabled flag.
type SessionMute struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	SessionID snowflake.ID `gorm:"not null;uniqueIndex:ux_session_mutes,priority:1"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_session_mutes,priority:2"`
	CreatedAt time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (SessionMute) TableName() string { return "session_mutes" }

// SessionRemoval bans a user from rejoining a session for its lifetime.
type SessionRemoval struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	SessionID snowflake.ID `gorm:"not null;uniqueIndex:ux_session_removals,priority:1"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_session_removals,priority:2"`
	CreatedAt time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (SessionRemoval) TableName() string { return "session_removals" }

// ViewerMembership tracks one user's watch history in one session. Leaving
// never deletes the row: Watching flips off and the cumulative watch time is
// stamped, which keeps lifetime analytics separate from live membership.
type ViewerMembership struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	SessionID    snowflake.ID `gorm:"not null;uniqueIndex:ux_viewer_memberships,priority:1"`
	UserID       snowflake.ID `gorm:"not null;uniqueIndex:ux_viewer_memberships,priority:2"`
	Watching     bool         `gorm:"not null;default:false"`
	JoinedAt     time.Time    `gorm:"not null"`
	LeftAt       *time.Time   `gorm:""`
	WatchSeconds int64        `gorm:"not null;default:0"`
}

// TableName sets the database table name.
func (ViewerMembership) TableName() string { return "viewer_memberships" }

// ValidKind reports whether kind names a session kind.
func ValidKind(k SessionKind) bool {
	switch k {
	case KindBroadcast, KindPartyVideo, KindPartyAudio:
		return true
	default:
		return false
	}
}

// IsParty reports whether the kind carries seats.
func (k SessionKind) IsParty() bool {
	return k == KindPartyVideo || k == KindPartyAudio
}
