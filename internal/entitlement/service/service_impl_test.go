package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/hilive/hilive/internal/audit/domain"
	"github.com/hilive/hilive/internal/clock"
	"github.com/hilive/hilive/internal/entitlement/domain"
	entrepo "github.com/hilive/hilive/internal/entitlement/repository"
	walletrepo "github.com/hilive/hilive/internal/wallet/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type auditStub struct{}

func (auditStub) AuditLog(ctx context.Context, actorType string, actorID *snowflake.ID, action string, targetType string, targetID *string, success bool, metadata map[string]any) error {
	return nil
}

func (auditStub) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func setupEntitlementService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	prepareEntitlementSchema(t, db)

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fakeClock,
		Repo:       entrepo.Provide(),
		WalletRepo: walletrepo.Provide(),
		AuditSvc:   auditStub{},
	})
	return svc, db, fakeClock, node
}

func prepareEntitlementSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entitlements (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			tier TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 0,
			expires_at DATETIME NOT NULL,
			target_user_id INTEGER,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(user_id, kind)
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			user_id INTEGER PRIMARY KEY,
			coins INTEGER NOT NULL DEFAULT 0,
			diamonds INTEGER NOT NULL DEFAULT 0,
			points INTEGER NOT NULL DEFAULT 0,
			total_coins_spent INTEGER NOT NULL DEFAULT 0,
			total_diamonds_earned INTEGER NOT NULL DEFAULT 0,
			wealth_level INTEGER NOT NULL DEFAULT 0,
			live_level INTEGER NOT NULL DEFAULT 0,
			guarded_by_user_id INTEGER,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func TestActivateStacksRemainingTime(t *testing.T) {
	svc, _, fakeClock, node := setupEntitlementService(t)
	userID := node.Generate()
	ctx := context.Background()

	// First purchase: 1 month from now.
	first, err := svc.Activate(ctx, domain.ActivateRequest{
		UserID: userID,
		Kind:   domain.KindVIP,
		Tier:   "gold",
		Months: 1,
	})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if want := fakeClock.Now().AddDate(0, 1, 0); !first.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, first)
	}

	// 20 days later, 10 days remain. Buying another month extends from the
	// current expiry, not from now.
	fakeClock.Advance(20 * 24 * time.Hour)
	second, err := svc.Activate(ctx, domain.ActivateRequest{
		UserID: userID,
		Kind:   domain.KindVIP,
		Tier:   "gold",
		Months: 1,
	})
	if err != nil {
		t.Fatalf("activate again: %v", err)
	}
	if want := first.AddDate(0, 1, 0); !second.Equal(want) {
		t.Fatalf("expected stacked expiry %v, got %v", want, second)
	}
	remaining := second.Sub(fakeClock.Now())
	if remaining < 39*24*time.Hour || remaining > 42*24*time.Hour {
		t.Fatalf("expected roughly 1 month + 10 days remaining, got %v", remaining)
	}
}

func TestActivateAfterLapseResetsFromNow(t *testing.T) {
	svc, _, fakeClock, node := setupEntitlementService(t)
	userID := node.Generate()
	ctx := context.Background()

	if _, err := svc.Activate(ctx, domain.ActivateRequest{
		UserID: userID,
		Kind:   domain.KindMVP,
		Tier:   "standard",
		Months: 1,
	}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	fakeClock.Advance(90 * 24 * time.Hour)
	expiresAt, err := svc.Activate(ctx, domain.ActivateRequest{
		UserID: userID,
		Kind:   domain.KindMVP,
		Tier:   "standard",
		Months: 1,
	})
	if err != nil {
		t.Fatalf("re-activate: %v", err)
	}
	if want := fakeClock.Now().AddDate(0, 1, 0); !expiresAt.Equal(want) {
		t.Fatalf("lapsed grant must extend from now; expected %v, got %v", want, expiresAt)
	}
}

func TestActivateOverwritesTier(t *testing.T) {
	svc, db, _, node := setupEntitlementService(t)
	userID := node.Generate()
	ctx := context.Background()

	if _, err := svc.Activate(ctx, domain.ActivateRequest{
		UserID: userID, Kind: domain.KindVIP, Tier: "silver", Months: 2,
	}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := svc.Activate(ctx, domain.ActivateRequest{
		UserID: userID, Kind: domain.KindVIP, Tier: "diamond", Months: 1,
	}); err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	var tier string
	if err := db.Raw(`SELECT tier FROM entitlements WHERE user_id = ? AND kind = ?`, userID, domain.KindVIP).Scan(&tier).Error; err != nil {
		t.Fatalf("read tier: %v", err)
	}
	if tier != "diamond" {
		t.Fatalf("expected tier diamond, got %s", tier)
	}
}

func TestLazyExpiry(t *testing.T) {
	svc, _, fakeClock, node := setupEntitlementService(t)
	userID := node.Generate()
	ctx := context.Background()

	if _, err := svc.Activate(ctx, domain.ActivateRequest{
		UserID: userID, Kind: domain.KindVIP, Tier: "gold", Months: 1,
	}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	active, err := svc.IsActive(ctx, userID, domain.KindVIP)
	if err != nil || !active {
		t.Fatalf("expected active grant, got %v %v", active, err)
	}

	fakeClock.Advance(32 * 24 * time.Hour)

	// Expired by time even though the Active column has not flipped yet.
	active, err = svc.IsActive(ctx, userID, domain.KindVIP)
	if err != nil || active {
		t.Fatalf("expected lapsed grant to read inactive, got %v %v", active, err)
	}

	ents, err := svc.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(ents) != 1 || ents[0].Active {
		t.Fatalf("expected lazy expiry to flip active off, got %+v", ents)
	}
	if ents[0].Tier != "gold" {
		t.Fatalf("expiry must keep the historical tier, got %s", ents[0].Tier)
	}

	// Idempotent: a second pass changes nothing.
	if err := svc.CheckAndExpire(ctx, userID); err != nil {
		t.Fatalf("second expiry pass: %v", err)
	}
}

func TestGuardianMirrorsGuardedBy(t *testing.T) {
	svc, db, _, node := setupEntitlementService(t)
	guardian := node.Generate()
	target := node.Generate()
	ctx := context.Background()

	if _, err := svc.Activate(ctx, domain.ActivateRequest{
		UserID:       guardian,
		Kind:         domain.KindGuardian,
		Tier:         "silver",
		Months:       1,
		TargetUserID: target,
	}); err != nil {
		t.Fatalf("activate guardian: %v", err)
	}

	var guardedBy snowflake.ID
	if err := db.Raw(`SELECT guarded_by_user_id FROM accounts WHERE user_id = ?`, target).Scan(&guardedBy).Error; err != nil {
		t.Fatalf("read guarded_by: %v", err)
	}
	if guardedBy != guardian {
		t.Fatalf("expected guarded_by %s, got %s", guardian, guardedBy)
	}

	// Switching targets clears the old mirror.
	newTarget := node.Generate()
	if _, err := svc.Activate(ctx, domain.ActivateRequest{
		UserID:       guardian,
		Kind:         domain.KindGuardian,
		Tier:         "silver",
		Months:       1,
		TargetUserID: newTarget,
	}); err != nil {
		t.Fatalf("switch guardian target: %v", err)
	}

	var oldGuardedBy *int64
	if err := db.Raw(`SELECT guarded_by_user_id FROM accounts WHERE user_id = ?`, target).Scan(&oldGuardedBy).Error; err != nil {
		t.Fatalf("read old guarded_by: %v", err)
	}
	if oldGuardedBy != nil {
		t.Fatalf("expected old target's mirror cleared, got %v", *oldGuardedBy)
	}
}

func TestActivateValidation(t *testing.T) {
	svc, _, _, node := setupEntitlementService(t)
	userID := node.Generate()
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.ActivateRequest
		want error
	}{
		{"bad kind", domain.ActivateRequest{UserID: userID, Kind: "super", Tier: "x", Months: 1}, domain.ErrInvalidKind},
		{"zero months", domain.ActivateRequest{UserID: userID, Kind: domain.KindVIP, Tier: "x", Months: 0}, domain.ErrInvalidDuration},
		{"empty tier", domain.ActivateRequest{UserID: userID, Kind: domain.KindVIP, Tier: "  ", Months: 1}, domain.ErrInvalidTier},
		{"guardian without target", domain.ActivateRequest{UserID: userID, Kind: domain.KindGuardian, Tier: "x", Months: 1}, domain.ErrMissingTarget},
		{"guardian of self", domain.ActivateRequest{UserID: userID, Kind: domain.KindGuardian, Tier: "x", Months: 1, TargetUserID: userID}, domain.ErrMissingTarget},
	}
	for _, tc := range cases {
		if _, err := svc.Activate(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}
