package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type SessionCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type SessionFilter struct {
	Kind   string
	Cursor *SessionCursor
	Limit  int
}

type Repository interface {
	InsertSession(ctx context.Context, db *gorm.DB, session *LiveSession) error
	InsertSeats(ctx context.Context, db *gorm.DB, seats []Seat) error
	GetSession(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*LiveSession, error)
	ListSessions(ctx context.Context, db *gorm.DB, filter SessionFilter) ([]*LiveSession, error)
	// TouchHeartbeat stamps LastHeartbeat and clears the ghost flag in one
	// update, only while the session is still streaming.
	TouchHeartbeat(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, now time.Time) (bool, error)

	GetSeat(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, idx int) (*Seat, error)
	// SeatByOccupant returns the seat the user holds, nil when unseated.
	SeatByOccupant(ctx context.Context, db *gorm.DB, sessionID, userID snowflake.ID) (*Seat, error)
	ListSeats(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) ([]Seat, error)
	// ClaimSeat assigns the occupant only when the seat is empty; the
	// compare-and-swap runs in the store so two racing claims cannot both
	// win. Returns false when the seat was already taken.
	ClaimSeat(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, idx int, userID snowflake.ID, canTalk bool, now time.Time) (bool, error)
	// ReleaseSeatByUser vacates whichever seat the user occupies. Returns
	// the number of seats cleared (0 or 1 given the exclusivity invariant).
	ReleaseSeatByUser(ctx context.Context, db *gorm.DB, sessionID, userID snowflake.ID, now time.Time) (int64, error)
	// ReleaseSeatAt vacates the seat only when the occupant matches.
	ReleaseSeatAt(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, idx int, userID snowflake.ID, now time.Time) (bool, error)
	// SetSeatFlags updates moderation flags only while the occupant matches.
	SetSeatFlags(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, idx int, userID snowflake.ID, canTalk, audioEnabled, videoEnabled bool, now time.Time) (bool, error)
	ClearSeats(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, now time.Time) error

	AddMute(ctx context.Context, db *gorm.DB, sessionID, userID, id snowflake.ID, now time.Time) error
	RemoveMutes(ctx context.Context, db *gorm.DB, sessionID, userID snowflake.ID) error
	ListMutedUserIDs(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) ([]snowflake.ID, error)

	AddRemoval(ctx context.Context, db *gorm.DB, sessionID, userID, id snowflake.ID, now time.Time) error
	IsRemoved(ctx context.Context, db *gorm.DB, sessionID, userID snowflake.ID) (bool, error)

	UpsertViewer(ctx context.Context, db *gorm.DB, membership *ViewerMembership) error
	GetViewer(ctx context.Context, db *gorm.DB, sessionID, userID snowflake.ID) (*ViewerMembership, error)
	// MarkViewerLeft flips a watching membership off and accumulates watch
	// time. Returns false when the user was not watching (idempotent leave).
	MarkViewerLeft(ctx context.Context, db *gorm.DB, sessionID, userID snowflake.ID, now time.Time) (bool, error)
	CountWatching(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (int64, error)
	CloseAllViewers(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, now time.Time) error

	// EndSession flips streaming to ended. The conditional update is the
	// terminality guard: an already-ended session matches no row.
	EndSession(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, now time.Time) (bool, error)
	AddDiamonds(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, amount int64) (bool, error)

	MarkGhosts(ctx context.Context, db *gorm.DB, heartbeatBefore time.Time, limit int) ([]snowflake.ID, error)
	ListReclaimable(ctx context.Context, db *gorm.DB, createdBefore time.Time, limit int) ([]snowflake.ID, error)
}
