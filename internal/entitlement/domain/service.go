package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ActivateRequest struct {
	UserID       snowflake.ID
	Kind         Kind
	Tier         string
	Months       int
	TargetUserID snowflake.ID // guardian only
}

type Service interface {
	// Activate grants or extends an entitlement. Remaining duration carries
	// forward: expiry becomes max(now, currentExpiresAt) plus the purchased
	// months. The tier is overwritten with the newly purchased value.
	Activate(ctx context.Context, req ActivateRequest) (time.Time, error)
	// Get returns the user's entitlements after applying lazy expiry.
	Get(ctx context.Context, userID snowflake.ID) ([]Entitlement, error)
	// CheckAndExpire deactivates lapsed grants. Idempotent; a no-op when
	// nothing has expired.
	CheckAndExpire(ctx context.Context, userID snowflake.ID) error
	// IsActive reports active && expiresAt > now at read time.
	IsActive(ctx context.Context, userID snowflake.ID, kind Kind) (bool, error)
}

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind Kind) (*Entitlement, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Entitlement, error)
	Upsert(ctx context.Context, db *gorm.DB, ent *Entitlement) error
	// ExpireLapsed flips Active off for lapsed grants of one user; returns
	// the number of rows changed.
	ExpireLapsed(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (int64, error)
	// ListLapsedUserIDs pages users with lapsed-but-active grants, for the
	// background sweep.
	ListLapsedUserIDs(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)
	// ListActiveUserIDs pages users whose grant of the kind is active at the
	// given instant, re-derived from expiry rather than the Active flag.
	ListActiveUserIDs(ctx context.Context, db *gorm.DB, kind Kind, now time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error)
}

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidKind     = errors.New("invalid_entitlement_kind")
	ErrInvalidTier     = errors.New("invalid_tier")
	ErrInvalidDuration = errors.New("invalid_duration")
	ErrMissingTarget   = errors.New("missing_guardian_target")
)

// ValidKind reports whether the kind is a known entitlement family.
func ValidKind(k Kind) bool {
	switch k {
	case KindVIP, KindMVP, KindGuardian:
		return true
	default:
		return false
	}
}
