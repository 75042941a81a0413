package scheduler

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
	"github.com/hilive/hilive/internal/config"
	entitlementdomain "github.com/hilive/hilive/internal/entitlement/domain"
	entitlementrepo "github.com/hilive/hilive/internal/entitlement/repository"
	entitlementservice "github.com/hilive/hilive/internal/entitlement/service"
	liveroomdomain "github.com/hilive/hilive/internal/liveroom/domain"
	liveroomrepo "github.com/hilive/hilive/internal/liveroom/repository"
	liveroomservice "github.com/hilive/hilive/internal/liveroom/service"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
	walletrepo "github.com/hilive/hilive/internal/wallet/repository"
	walletservice "github.com/hilive/hilive/internal/wallet/service"
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

type fixture struct {
	sched       *Scheduler
	liveroom    liveroomdomain.Service
	wallet      walletdomain.Service
	entitlement entitlementdomain.Service
	entRepo     entitlementdomain.Repository
	clock       *clock.FakeClock
	db          *gorm.DB
}

func setupScheduler(t *testing.T) *fixture {
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
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	prepareSchema(t, db)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	walletSvc := walletservice.NewService(walletservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fakeClock,
		Repo:     walletrepo.Provide(),
		AuditSvc: auditStub{},
	})
	liveroomSvc := liveroomservice.NewService(liveroomservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fakeClock,
		Cfg:      &config.Config{MaxChairCount: 12},
		Repo:     liveroomrepo.Provide(),
		AuditSvc: auditStub{},
	})
	entRepo := entitlementrepo.Provide()
	entitlementSvc := entitlementservice.NewService(entitlementservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fakeClock,
		Repo:       entRepo,
		WalletRepo: walletrepo.Provide(),
		AuditSvc:   auditStub{},
	})

	sched, err := New(Params{
		DB:              db,
		Log:             zap.NewNop(),
		Clock:           fakeClock,
		LiveroomSvc:     liveroomSvc,
		WalletSvc:       walletSvc,
		EntitlementSvc:  entitlementSvc,
		EntitlementRepo: entRepo,
		Config: Config{
			RunInterval:      5 * time.Minute,
			GhostTimeout:     15 * time.Minute,
			CleanupThreshold: 20 * time.Minute,
			BatchSize:        100,
			VIPBonusCoins:    100,
		},
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	return &fixture{
		sched:       sched,
		liveroom:    liveroomSvc,
		wallet:      walletSvc,
		entitlement: entitlementSvc,
		entRepo:     entRepo,
		clock:       fakeClock,
		db:          db,
	}
}

func prepareSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS live_sessions (
			id INTEGER PRIMARY KEY,
			host_user_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			chair_count INTEGER NOT NULL DEFAULT 0,
			is_private BOOLEAN NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			is_ghost BOOLEAN NOT NULL DEFAULT 0,
			last_heartbeat DATETIME NOT NULL,
			diamonds_earned INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS seats (
			id INTEGER PRIMARY KEY,
			session_id INTEGER NOT NULL,
			idx INTEGER NOT NULL,
			occupant_user_id INTEGER,
			can_talk BOOLEAN NOT NULL DEFAULT 0,
			audio_enabled BOOLEAN NOT NULL DEFAULT 0,
			video_enabled BOOLEAN NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL,
			UNIQUE (session_id, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS session_mutes (
			id INTEGER PRIMARY KEY,
			session_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (session_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS session_removals (
			id INTEGER PRIMARY KEY,
			session_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (session_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS viewer_memberships (
			id INTEGER PRIMARY KEY,
			session_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			watching BOOLEAN NOT NULL DEFAULT 0,
			joined_at DATETIME NOT NULL,
			left_at DATETIME,
			watch_seconds INTEGER NOT NULL DEFAULT 0,
			UNIQUE (session_id, user_id)
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
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			currency TEXT NOT NULL,
			amount INTEGER NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL
		)`,
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
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
}

func TestSweepMarksThenReclaims(t *testing.T) {
	f := setupScheduler(t)
	host := snowflake.ID(101)

	view, err := f.liveroom.CreateSession(context.Background(), liveroomdomain.CreateSessionRequest{
		HostUserID: host,
		Kind:       liveroomdomain.KindPartyVideo,
		ChairCount: 4,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	sessionID := view.Session.ID

	// 16 minutes of silence: past the ghost timeout, short of cleanup.
	f.clock.Advance(16 * time.Minute)
	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	got, err := f.liveroom.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.Session.IsGhost {
		t.Fatalf("expected session marked ghost")
	}
	if got.Session.Status != liveroomdomain.StatusStreaming {
		t.Fatalf("session must not be reclaimed yet, got %s", got.Session.Status)
	}

	// Past the cleanup threshold the reclaim pass tears it down.
	f.clock.Advance(5 * time.Minute)
	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	got, err = f.liveroom.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Session.Status != liveroomdomain.StatusEnded {
		t.Fatalf("expected session reclaimed, got %s", got.Session.Status)
	}
	for _, seat := range got.Seats {
		if seat.OccupantUserID != nil {
			t.Fatalf("expected seats cleared, seat %d occupied", seat.Idx)
		}
	}

	if _, err := f.liveroom.JoinSeat(context.Background(), sessionID, 1, 202); !errors.Is(err, liveroomdomain.ErrSessionEnded) {
		t.Fatalf("join after reclaim should fail, got %v", err)
	}
}

// flakyLiveroom fails every reclaim of one session and delegates the rest.
type flakyLiveroom struct {
	liveroomdomain.Service
	failID       snowflake.ID
	failAttempts int
}

func (s *flakyLiveroom) Reclaim(ctx context.Context, id snowflake.ID) error {
	if id == s.failID {
		s.failAttempts++
		return errors.New("teardown failed")
	}
	return s.Service.Reclaim(ctx, id)
}

func TestReclaimContinuesPastFailure(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()

	var ids []snowflake.ID
	for _, host := range []snowflake.ID{101, 102, 103} {
		view, err := f.liveroom.CreateSession(ctx, liveroomdomain.CreateSessionRequest{
			HostUserID: host,
			Kind:       liveroomdomain.KindPartyVideo,
			ChairCount: 4,
		})
		if err != nil {
			t.Fatalf("create session: %v", err)
		}
		ids = append(ids, view.Session.ID)
	}

	flaky := &flakyLiveroom{Service: f.liveroom, failID: ids[1]}
	sched, err := New(Params{
		DB:              f.db,
		Log:             zap.NewNop(),
		Clock:           f.clock,
		LiveroomSvc:     flaky,
		WalletSvc:       f.wallet,
		EntitlementSvc:  f.entitlement,
		EntitlementRepo: f.entRepo,
		Config: Config{
			RunInterval:      5 * time.Minute,
			GhostTimeout:     15 * time.Minute,
			CleanupThreshold: 20 * time.Minute,
			BatchSize:        100,
		},
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	f.clock.Advance(21 * time.Minute)
	if err := sched.GhostMarkJob(ctx); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := sched.GhostReclaimJob(ctx); err == nil {
		t.Fatal("expected the failing session's error to surface")
	}

	for i, id := range ids {
		got, err := f.liveroom.GetSession(ctx, id)
		if err != nil {
			t.Fatalf("get session %d: %v", i, err)
		}
		want := liveroomdomain.StatusEnded
		if id == flaky.failID {
			want = liveroomdomain.StatusStreaming
		}
		if got.Session.Status != want {
			t.Fatalf("session %d: status %s, want %s", i, got.Session.Status, want)
		}
	}

	// The second list pass sees only the failing session, makes no
	// progress, and the job bails instead of spinning on it.
	if flaky.failAttempts != 2 {
		t.Fatalf("expected 2 reclaim attempts on the failing session, got %d", flaky.failAttempts)
	}
}

func TestHeartbeatRescuesSession(t *testing.T) {
	f := setupScheduler(t)
	host := snowflake.ID(101)

	view, err := f.liveroom.CreateSession(context.Background(), liveroomdomain.CreateSessionRequest{
		HostUserID: host,
		Kind:       liveroomdomain.KindPartyAudio,
		ChairCount: 2,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	f.clock.Advance(16 * time.Minute)
	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if err := f.liveroom.Heartbeat(context.Background(), view.Session.ID, host); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	f.clock.Advance(10 * time.Minute)
	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	got, err := f.liveroom.GetSession(context.Background(), view.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Session.Status != liveroomdomain.StatusStreaming {
		t.Fatalf("heartbeat should keep session alive, got %s", got.Session.Status)
	}
	if got.Session.IsGhost {
		t.Fatalf("heartbeat should clear ghost flag")
	}
}

func TestSweepIgnoresBroadcasts(t *testing.T) {
	f := setupScheduler(t)

	view, err := f.liveroom.CreateSession(context.Background(), liveroomdomain.CreateSessionRequest{
		HostUserID: 101,
		Kind:       liveroomdomain.KindBroadcast,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	f.clock.Advance(30 * time.Minute)
	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	got, err := f.liveroom.GetSession(context.Background(), view.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Session.IsGhost || got.Session.Status != liveroomdomain.StatusStreaming {
		t.Fatalf("broadcast must not be swept, got %+v", got.Session)
	}
}

func TestVIPDailyBonusOncePerDay(t *testing.T) {
	f := setupScheduler(t)
	vip := snowflake.ID(101)
	lapsed := snowflake.ID(202)

	if _, err := f.entitlement.Activate(context.Background(), entitlementdomain.ActivateRequest{
		UserID: vip,
		Kind:   entitlementdomain.KindVIP,
		Tier:   "gold",
		Months: 1,
	}); err != nil {
		t.Fatalf("activate vip: %v", err)
	}
	if _, err := f.entitlement.Activate(context.Background(), entitlementdomain.ActivateRequest{
		UserID: lapsed,
		Kind:   entitlementdomain.KindVIP,
		Tier:   "gold",
		Months: 1,
	}); err != nil {
		t.Fatalf("activate vip: %v", err)
	}
	// Push the second grant into the past without a sweep noticing.
	if err := f.db.Exec(`UPDATE entitlements SET expires_at = ? WHERE user_id = ?`,
		f.clock.Now().Add(-time.Hour), lapsed).Error; err != nil {
		t.Fatalf("backdate entitlement: %v", err)
	}

	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	balance, err := f.wallet.Get(context.Background(), vip)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Coins != 100 {
		t.Fatalf("expected 100 bonus coins, got %d", balance.Coins)
	}
	lapsedBalance, err := f.wallet.Get(context.Background(), lapsed)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if lapsedBalance.Coins != 0 {
		t.Fatalf("lapsed vip must earn nothing, got %d", lapsedBalance.Coins)
	}

	// Same day, second run: no double credit.
	f.clock.Advance(time.Hour)
	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	balance, err = f.wallet.Get(context.Background(), vip)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Coins != 100 {
		t.Fatalf("bonus must be once per day, got %d", balance.Coins)
	}

	// Next UTC day earns again.
	f.clock.Advance(24 * time.Hour)
	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	balance, err = f.wallet.Get(context.Background(), vip)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Coins != 200 {
		t.Fatalf("expected second day bonus, got %d", balance.Coins)
	}
}

func TestEntitlementSweepExpiresLapsed(t *testing.T) {
	f := setupScheduler(t)
	user := snowflake.ID(101)

	if _, err := f.entitlement.Activate(context.Background(), entitlementdomain.ActivateRequest{
		UserID: user,
		Kind:   entitlementdomain.KindMVP,
		Tier:   "silver",
		Months: 1,
	}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	f.clock.Advance(32 * 24 * time.Hour)
	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	var active bool
	if err := f.db.Raw(`SELECT active FROM entitlements WHERE user_id = ? AND kind = ?`,
		user, entitlementdomain.KindMVP).Scan(&active).Error; err != nil {
		t.Fatalf("load entitlement: %v", err)
	}
	if active {
		t.Fatalf("sweep should flip lapsed grant inactive")
	}
}

func TestDisabledJobSkipped(t *testing.T) {
	f := setupScheduler(t)
	f.sched.cfg.EnabledJobs = []string{"ghost_mark"}

	view, err := f.liveroom.CreateSession(context.Background(), liveroomdomain.CreateSessionRequest{
		HostUserID: 101,
		Kind:       liveroomdomain.KindPartyVideo,
		ChairCount: 2,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	f.clock.Advance(30 * time.Minute)
	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	got, err := f.liveroom.GetSession(context.Background(), view.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.Session.IsGhost {
		t.Fatalf("mark job should still run")
	}
	if got.Session.Status != liveroomdomain.StatusStreaming {
		t.Fatalf("reclaim job disabled, session must survive, got %s", got.Session.Status)
	}
}
