package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hilive/hilive/pkg/db/pagination"
)

// HostActionKind is the closed set of host moderation actions. Dispatch is a
// switch over this type so a new action cannot be added without handling it.
type HostActionKind string

const (
	HostActionMute         HostActionKind = "mute"
	HostActionUnmute       HostActionKind = "unmute"
	HostActionDisableVideo HostActionKind = "disable_video"
	HostActionApproveAudio HostActionKind = "approve_audio"
	HostActionRemoveUser   HostActionKind = "remove_user"
)

// ValidHostAction reports whether the action is a known moderation action.
func ValidHostAction(a HostActionKind) bool {
	switch a {
	case HostActionMute, HostActionUnmute, HostActionDisableVideo, HostActionApproveAudio, HostActionRemoveUser:
		return true
	default:
		return false
	}
}

type CreateSessionRequest struct {
	HostUserID snowflake.ID
	Kind       SessionKind
	ChairCount int
	IsPrivate  bool
}

type HostActionRequest struct {
	SessionID    snowflake.ID
	ActorUserID  snowflake.ID
	TargetUserID snowflake.ID
	SeatIdx      int
	Action       HostActionKind
}

type SessionView struct {
	Session LiveSession `json:"session"`
	Seats   []Seat      `json:"seats,omitempty"`
	Viewers int64       `json:"viewers"`
}

type ListSessionsRequest struct {
	pagination.Pagination
	Kind string
}

type ListSessionsResponse struct {
	pagination.PageInfo
	Sessions []LiveSession `json:"sessions"`
}

// Service is the live session registry: session lifecycle, seat state
// machine, viewer membership, and host moderation. Every mutating operation
// re-checks the session status and fails closed once the session has ended.
type Service interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionView, error)
	GetSession(ctx context.Context, sessionID snowflake.ID) (*SessionView, error)
	ListSessions(ctx context.Context, req ListSessionsRequest) (ListSessionsResponse, error)
	Heartbeat(ctx context.Context, sessionID, hostUserID snowflake.ID) error

	JoinAsViewer(ctx context.Context, sessionID, userID snowflake.ID) (int64, error)
	LeaveAsViewer(ctx context.Context, sessionID, userID snowflake.ID) error

	JoinSeat(ctx context.Context, sessionID snowflake.ID, seatIdx int, userID snowflake.ID) (*Seat, error)
	LeaveSeat(ctx context.Context, sessionID snowflake.ID, seatIdx int, userID snowflake.ID) error
	HostAction(ctx context.Context, req HostActionRequest) error

	EndSession(ctx context.Context, sessionID, callerUserID snowflake.ID) error

	// RecordGift adds to the session's running diamond total. Only called by
	// the gift pipeline after the balances have moved.
	RecordGift(ctx context.Context, sessionID snowflake.ID, diamonds int64) error

	// Sweep support. MarkGhosts flags party sessions whose heartbeat is
	// older than the cutoff. ListReclaimable pages ghost sessions past the
	// cleanup threshold; Reclaim tears one down.
	MarkGhosts(ctx context.Context, heartbeatBefore time.Time, limit int) ([]snowflake.ID, error)
	ListReclaimable(ctx context.Context, createdBefore time.Time, limit int) ([]snowflake.ID, error)
	Reclaim(ctx context.Context, sessionID snowflake.ID) error
}

var (
	ErrSessionNotFound   = errors.New("session_not_found")
	ErrSessionEnded      = errors.New("session_ended")
	ErrInvalidKind       = errors.New("invalid_session_kind")
	ErrInvalidChairCount = errors.New("invalid_chair_count")
	ErrInvalidSeat       = errors.New("invalid_seat")
	ErrSeatOccupied      = errors.New("seat_occupied")
	ErrNotInSeat         = errors.New("not_in_seat")
	ErrNotHost           = errors.New("not_host")
	ErrSeatMismatch      = errors.New("seat_mismatch")
	ErrUserRemoved       = errors.New("user_removed")
	ErrInvalidAction     = errors.New("invalid_host_action")
	ErrNotPartySession   = errors.New("not_party_session")
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
)
