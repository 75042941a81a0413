package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/hilive/hilive/internal/audit/domain"
	"github.com/hilive/hilive/internal/clock"
	"github.com/hilive/hilive/internal/config"
	liveroomdomain "github.com/hilive/hilive/internal/liveroom/domain"
	liveroomrepo "github.com/hilive/hilive/internal/liveroom/repository"
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

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func setupLiveroomService(t *testing.T) (liveroomdomain.Service, *gorm.DB, *clock.FakeClock) {
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
	prepareLiveroomSchema(t, db)

	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    mustNode(t),
		Clock:    fakeClock,
		Cfg:      &config.Config{MaxChairCount: 12},
		Repo:     liveroomrepo.Provide(),
		AuditSvc: auditStub{},
	})
	return svc, db, fakeClock
}

func prepareLiveroomSchema(t *testing.T, db *gorm.DB) {
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
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
}

func mustCreateParty(t *testing.T, svc liveroomdomain.Service, host snowflake.ID, chairs int) *liveroomdomain.SessionView {
	t.Helper()
	view, err := svc.CreateSession(context.Background(), liveroomdomain.CreateSessionRequest{
		HostUserID: host,
		Kind:       liveroomdomain.KindPartyVideo,
		ChairCount: chairs,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return view
}

func TestCreateSessionSeedsSeats(t *testing.T) {
	svc, _, _ := setupLiveroomService(t)
	host := snowflake.ID(101)

	view := mustCreateParty(t, svc, host, 4)
	if len(view.Seats) != 4 {
		t.Fatalf("expected 4 seats, got %d", len(view.Seats))
	}
	first := view.Seats[0]
	if first.OccupantUserID == nil || *first.OccupantUserID != host {
		t.Fatalf("expected host in seat 0, got %+v", first.OccupantUserID)
	}
	if !first.CanTalk || !first.AudioEnabled {
		t.Fatalf("expected host seat approved to talk, got %+v", first)
	}
	for _, seat := range view.Seats[1:] {
		if seat.OccupantUserID != nil {
			t.Fatalf("expected seat %d empty, got %v", seat.Idx, *seat.OccupantUserID)
		}
	}

	broadcast, err := svc.CreateSession(context.Background(), liveroomdomain.CreateSessionRequest{
		HostUserID: host,
		Kind:       liveroomdomain.KindBroadcast,
		ChairCount: 5,
	})
	if err != nil {
		t.Fatalf("create broadcast: %v", err)
	}
	if len(broadcast.Seats) != 0 || broadcast.Session.ChairCount != 0 {
		t.Fatalf("broadcast should carry no seats, got %+v", broadcast)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	svc, _, _ := setupLiveroomService(t)

	cases := []struct {
		name string
		req  liveroomdomain.CreateSessionRequest
		want error
	}{
		{"missing host", liveroomdomain.CreateSessionRequest{Kind: liveroomdomain.KindBroadcast}, liveroomdomain.ErrInvalidUser},
		{"bad kind", liveroomdomain.CreateSessionRequest{HostUserID: 1, Kind: "karaoke"}, liveroomdomain.ErrInvalidKind},
		{"zero chairs", liveroomdomain.CreateSessionRequest{HostUserID: 1, Kind: liveroomdomain.KindPartyAudio}, liveroomdomain.ErrInvalidChairCount},
		{"too many chairs", liveroomdomain.CreateSessionRequest{HostUserID: 1, Kind: liveroomdomain.KindPartyVideo, ChairCount: 13}, liveroomdomain.ErrInvalidChairCount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateSession(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestJoinSeatSelfEvicts(t *testing.T) {
	svc, _, _ := setupLiveroomService(t)
	view := mustCreateParty(t, svc, 101, 4)
	user := snowflake.ID(202)

	seat, err := svc.JoinSeat(context.Background(), view.Session.ID, 1, user)
	if err != nil {
		t.Fatalf("join seat 1: %v", err)
	}
	if seat.CanTalk || !seat.AudioEnabled || seat.VideoEnabled {
		t.Fatalf("unexpected seat defaults: %+v", seat)
	}

	if _, err := svc.JoinSeat(context.Background(), view.Session.ID, 2, user); err != nil {
		t.Fatalf("join seat 2: %v", err)
	}

	after, err := svc.GetSession(context.Background(), view.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	occupied := 0
	for _, s := range after.Seats {
		if s.OccupantUserID != nil && *s.OccupantUserID == user {
			occupied++
			if s.Idx != 2 {
				t.Fatalf("expected user in seat 2, found in %d", s.Idx)
			}
		}
	}
	if occupied != 1 {
		t.Fatalf("user occupies %d seats, want 1", occupied)
	}
}

func TestJoinSeatOccupied(t *testing.T) {
	svc, _, _ := setupLiveroomService(t)
	view := mustCreateParty(t, svc, 101, 4)

	if _, err := svc.JoinSeat(context.Background(), view.Session.ID, 1, 202); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := svc.JoinSeat(context.Background(), view.Session.ID, 1, 303); !errors.Is(err, liveroomdomain.ErrSeatOccupied) {
		t.Fatalf("expected ErrSeatOccupied, got %v", err)
	}
	if _, err := svc.JoinSeat(context.Background(), view.Session.ID, 9, 303); !errors.Is(err, liveroomdomain.ErrInvalidSeat) {
		t.Fatalf("expected ErrInvalidSeat, got %v", err)
	}
}

func TestConcurrentSeatClaimsSingleWinner(t *testing.T) {
	svc, _, _ := setupLiveroomService(t)
	view := mustCreateParty(t, svc, 101, 4)

	const contenders = 8
	var wg sync.WaitGroup
	results := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.JoinSeat(context.Background(), view.Session.ID, 3, snowflake.ID(userID))
			results <- err
		}(int64(1000 + i))
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
		} else if !errors.Is(err, liveroomdomain.ErrSeatOccupied) {
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}
}

func TestSeatClaimRefusedOnEndedSession(t *testing.T) {
	svc, db, fakeClock := setupLiveroomService(t)
	view := mustCreateParty(t, svc, 101, 4)

	if err := svc.EndSession(context.Background(), view.Session.ID, 101); err != nil {
		t.Fatalf("end: %v", err)
	}

	// A claim whose status check raced the teardown must still lose: the
	// compare-and-swap itself refuses seats on a non-streaming session.
	repo := liveroomrepo.Provide()
	claimed, err := repo.ClaimSeat(context.Background(), db, view.Session.ID, 2, 202, false, fakeClock.Now())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed {
		t.Fatalf("seat claimed on ended session")
	}

	var seat liveroomdomain.Seat
	if err := db.Where("session_id = ? AND idx = ?", view.Session.ID, 2).First(&seat).Error; err != nil {
		t.Fatalf("load seat: %v", err)
	}
	if seat.OccupantUserID != nil {
		t.Fatalf("expected vacant seat after teardown, got occupant %d", *seat.OccupantUserID)
	}

	if _, err := svc.JoinSeat(context.Background(), view.Session.ID, 2, 202); !errors.Is(err, liveroomdomain.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestLeaveSeat(t *testing.T) {
	svc, _, _ := setupLiveroomService(t)
	view := mustCreateParty(t, svc, 101, 4)

	if _, err := svc.JoinSeat(context.Background(), view.Session.ID, 1, 202); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.LeaveSeat(context.Background(), view.Session.ID, 1, 303); !errors.Is(err, liveroomdomain.ErrNotInSeat) {
		t.Fatalf("expected ErrNotInSeat for wrong user, got %v", err)
	}
	if err := svc.LeaveSeat(context.Background(), view.Session.ID, 1, 202); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := svc.LeaveSeat(context.Background(), view.Session.ID, 1, 202); !errors.Is(err, liveroomdomain.ErrNotInSeat) {
		t.Fatalf("expected ErrNotInSeat after leaving, got %v", err)
	}
}

func TestHostActionFlags(t *testing.T) {
	svc, db, _ := setupLiveroomService(t)
	view := mustCreateParty(t, svc, 101, 4)
	guest := snowflake.ID(202)

	if _, err := svc.JoinSeat(context.Background(), view.Session.ID, 1, guest); err != nil {
		t.Fatalf("join: %v", err)
	}

	act := func(action liveroomdomain.HostActionKind) error {
		return svc.HostAction(context.Background(), liveroomdomain.HostActionRequest{
			SessionID:    view.Session.ID,
			ActorUserID:  101,
			TargetUserID: guest,
			SeatIdx:      1,
			Action:       action,
		})
	}
	seatState := func() liveroomdomain.Seat {
		var seat liveroomdomain.Seat
		if err := db.Where("session_id = ? AND idx = ?", view.Session.ID, 1).First(&seat).Error; err != nil {
			t.Fatalf("load seat: %v", err)
		}
		return seat
	}

	if err := act(liveroomdomain.HostActionMute); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if seat := seatState(); seat.AudioEnabled {
		t.Fatalf("expected audio disabled after mute, got %+v", seat)
	}
	var mutes int64
	if err := db.Model(&liveroomdomain.SessionMute{}).Where("session_id = ?", view.Session.ID).Count(&mutes).Error; err != nil {
		t.Fatalf("count mutes: %v", err)
	}
	if mutes != 1 {
		t.Fatalf("expected 1 mute row, got %d", mutes)
	}

	if err := act(liveroomdomain.HostActionUnmute); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	seat := seatState()
	if !seat.CanTalk || !seat.AudioEnabled {
		t.Fatalf("expected unmute to restore talk and audio, got %+v", seat)
	}
	if err := db.Model(&liveroomdomain.SessionMute{}).Where("session_id = ?", view.Session.ID).Count(&mutes).Error; err != nil {
		t.Fatalf("count mutes: %v", err)
	}
	if mutes != 1 {
		t.Fatalf("expected mute row kept after unmute, got %d", mutes)
	}

	if err := act(liveroomdomain.HostActionApproveAudio); err != nil {
		t.Fatalf("approve audio: %v", err)
	}
	seat = seatState()
	if !seat.CanTalk || !seat.AudioEnabled {
		t.Fatalf("expected approved seat, got %+v", seat)
	}
	if err := db.Model(&liveroomdomain.SessionMute{}).Where("session_id = ?", view.Session.ID).Count(&mutes).Error; err != nil {
		t.Fatalf("count mutes: %v", err)
	}
	if mutes != 0 {
		t.Fatalf("expected mute rows cleared, got %d", mutes)
	}

	if err := act(liveroomdomain.HostActionDisableVideo); err != nil {
		t.Fatalf("disable video: %v", err)
	}
	if seat := seatState(); seat.VideoEnabled {
		t.Fatalf("expected video disabled, got %+v", seat)
	}
}

func TestHostActionAuthorization(t *testing.T) {
	svc, _, _ := setupLiveroomService(t)
	view := mustCreateParty(t, svc, 101, 4)
	guest := snowflake.ID(202)

	if _, err := svc.JoinSeat(context.Background(), view.Session.ID, 1, guest); err != nil {
		t.Fatalf("join: %v", err)
	}

	err := svc.HostAction(context.Background(), liveroomdomain.HostActionRequest{
		SessionID:    view.Session.ID,
		ActorUserID:  guest,
		TargetUserID: 101,
		SeatIdx:      0,
		Action:       liveroomdomain.HostActionMute,
	})
	if !errors.Is(err, liveroomdomain.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}

	err = svc.HostAction(context.Background(), liveroomdomain.HostActionRequest{
		SessionID:    view.Session.ID,
		ActorUserID:  101,
		TargetUserID: guest,
		SeatIdx:      2,
		Action:       liveroomdomain.HostActionMute,
	})
	if !errors.Is(err, liveroomdomain.ErrSeatMismatch) {
		t.Fatalf("expected ErrSeatMismatch, got %v", err)
	}

	err = svc.HostAction(context.Background(), liveroomdomain.HostActionRequest{
		SessionID:    view.Session.ID,
		ActorUserID:  101,
		TargetUserID: guest,
		SeatIdx:      1,
		Action:       "shadowban",
	})
	if !errors.Is(err, liveroomdomain.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}

func TestRemoveUserIsPermanent(t *testing.T) {
	svc, _, _ := setupLiveroomService(t)
	view := mustCreateParty(t, svc, 101, 4)
	guest := snowflake.ID(202)

	if _, err := svc.JoinAsViewer(context.Background(), view.Session.ID, guest); err != nil {
		t.Fatalf("join viewer: %v", err)
	}
	if _, err := svc.JoinSeat(context.Background(), view.Session.ID, 1, guest); err != nil {
		t.Fatalf("join seat: %v", err)
	}

	err := svc.HostAction(context.Background(), liveroomdomain.HostActionRequest{
		SessionID:    view.Session.ID,
		ActorUserID:  101,
		TargetUserID: guest,
		SeatIdx:      2,
		Action:       liveroomdomain.HostActionRemoveUser,
	})
	if !errors.Is(err, liveroomdomain.ErrSeatMismatch) {
		t.Fatalf("expected ErrSeatMismatch for wrong seat, got %v", err)
	}

	err = svc.HostAction(context.Background(), liveroomdomain.HostActionRequest{
		SessionID:    view.Session.ID,
		ActorUserID:  101,
		TargetUserID: guest,
		SeatIdx:      1,
		Action:       liveroomdomain.HostActionRemoveUser,
	})
	if err != nil {
		t.Fatalf("remove user: %v", err)
	}

	after, err := svc.GetSession(context.Background(), view.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	for _, seat := range after.Seats {
		if seat.OccupantUserID != nil && *seat.OccupantUserID == guest {
			t.Fatalf("removed user still in seat %d", seat.Idx)
		}
	}
	if after.Viewers != 0 {
		t.Fatalf("expected 0 viewers after removal, got %d", after.Viewers)
	}

	if _, err := svc.JoinAsViewer(context.Background(), view.Session.ID, guest); !errors.Is(err, liveroomdomain.ErrUserRemoved) {
		t.Fatalf("expected ErrUserRemoved on viewer rejoin, got %v", err)
	}
	if _, err := svc.JoinSeat(context.Background(), view.Session.ID, 2, guest); !errors.Is(err, liveroomdomain.ErrUserRemoved) {
		t.Fatalf("expected ErrUserRemoved on seat rejoin, got %v", err)
	}
}

func TestViewerJoinIdempotent(t *testing.T) {
	svc, db, fakeClock := setupLiveroomService(t)
	view := mustCreateParty(t, svc, 101, 4)
	user := snowflake.ID(202)

	count, err := svc.JoinAsViewer(context.Background(), view.Session.ID, user)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 viewer, got %d", count)
	}

	count, err = svc.JoinAsViewer(context.Background(), view.Session.ID, user)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if count != 1 {
		t.Fatalf("rejoin should not double-count, got %d", count)
	}

	fakeClock.Advance(90 * time.Second)
	if err := svc.LeaveAsViewer(context.Background(), view.Session.ID, user); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := svc.LeaveAsViewer(context.Background(), view.Session.ID, user); err != nil {
		t.Fatalf("second leave should be a no-op: %v", err)
	}

	var membership liveroomdomain.ViewerMembership
	if err := db.Where("session_id = ? AND user_id = ?", view.Session.ID, user).First(&membership).Error; err != nil {
		t.Fatalf("load membership: %v", err)
	}
	if membership.Watching {
		t.Fatalf("expected watching off")
	}
	if membership.WatchSeconds != 90 {
		t.Fatalf("expected 90 watch seconds, got %d", membership.WatchSeconds)
	}
	if membership.LeftAt == nil {
		t.Fatalf("expected LeftAt stamped")
	}

	count, err = svc.JoinAsViewer(context.Background(), view.Session.ID, user)
	if err != nil {
		t.Fatalf("rejoin after leave: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 viewer after rejoin, got %d", count)
	}
}

func TestEndSessionTerminal(t *testing.T) {
	svc, _, _ := setupLiveroomService(t)
	view := mustCreateParty(t, svc, 101, 4)

	if _, err := svc.JoinSeat(context.Background(), view.Session.ID, 1, 202); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := svc.JoinAsViewer(context.Background(), view.Session.ID, 303); err != nil {
		t.Fatalf("join viewer: %v", err)
	}

	if err := svc.EndSession(context.Background(), view.Session.ID, 202); !errors.Is(err, liveroomdomain.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	if err := svc.EndSession(context.Background(), view.Session.ID, 101); err != nil {
		t.Fatalf("end: %v", err)
	}

	after, err := svc.GetSession(context.Background(), view.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if after.Session.Status != liveroomdomain.StatusEnded || after.Session.EndedAt == nil {
		t.Fatalf("expected ended session, got %+v", after.Session)
	}
	for _, seat := range after.Seats {
		if seat.OccupantUserID != nil {
			t.Fatalf("expected seats cleared, seat %d still occupied", seat.Idx)
		}
	}
	if after.Viewers != 0 {
		t.Fatalf("expected viewers closed, got %d", after.Viewers)
	}

	if err := svc.EndSession(context.Background(), view.Session.ID, 101); !errors.Is(err, liveroomdomain.ErrSessionEnded) {
		t.Fatalf("second end should fail terminal, got %v", err)
	}
	if _, err := svc.JoinSeat(context.Background(), view.Session.ID, 1, 404); !errors.Is(err, liveroomdomain.ErrSessionEnded) {
		t.Fatalf("join after end should fail, got %v", err)
	}
	if _, err := svc.JoinAsViewer(context.Background(), view.Session.ID, 404); !errors.Is(err, liveroomdomain.ErrSessionEnded) {
		t.Fatalf("viewer join after end should fail, got %v", err)
	}
	if err := svc.Heartbeat(context.Background(), view.Session.ID, 101); !errors.Is(err, liveroomdomain.ErrSessionEnded) {
		t.Fatalf("heartbeat after end should fail, got %v", err)
	}
}

func TestRecordGift(t *testing.T) {
	svc, _, _ := setupLiveroomService(t)
	view := mustCreateParty(t, svc, 101, 4)

	if err := svc.RecordGift(context.Background(), view.Session.ID, 250); err != nil {
		t.Fatalf("record gift: %v", err)
	}
	if err := svc.RecordGift(context.Background(), view.Session.ID, 50); err != nil {
		t.Fatalf("record gift: %v", err)
	}

	after, err := svc.GetSession(context.Background(), view.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if after.Session.DiamondsEarned != 300 {
		t.Fatalf("expected 300 diamonds earned, got %d", after.Session.DiamondsEarned)
	}

	if err := svc.RecordGift(context.Background(), view.Session.ID, 0); !errors.Is(err, liveroomdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	if err := svc.EndSession(context.Background(), view.Session.ID, 101); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := svc.RecordGift(context.Background(), view.Session.ID, 10); !errors.Is(err, liveroomdomain.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestGhostMarkAndReclaim(t *testing.T) {
	svc, _, fakeClock := setupLiveroomService(t)
	view := mustCreateParty(t, svc, 101, 4)

	// 16 minutes of silence passes the 15 minute ghost timeout.
	fakeClock.Advance(16 * time.Minute)
	now := fakeClock.Now()

	marked, err := svc.MarkGhosts(context.Background(), now.Add(-15*time.Minute), 100)
	if err != nil {
		t.Fatalf("mark ghosts: %v", err)
	}
	if len(marked) != 1 || marked[0] != view.Session.ID {
		t.Fatalf("expected session marked, got %v", marked)
	}

	// A heartbeat rescues the session from the reclaim pass.
	if err := svc.Heartbeat(context.Background(), view.Session.ID, 101); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	after, err := svc.GetSession(context.Background(), view.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if after.Session.IsGhost {
		t.Fatalf("heartbeat should clear ghost flag")
	}

	ids, err := svc.ListReclaimable(context.Background(), now.Add(-20*time.Minute), 100)
	if err != nil {
		t.Fatalf("list reclaimable: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("rescued session should not be reclaimable, got %v", ids)
	}

	// Silence again: marked, then old enough to reclaim.
	fakeClock.Advance(21 * time.Minute)
	now = fakeClock.Now()
	if _, err := svc.MarkGhosts(context.Background(), now.Add(-15*time.Minute), 100); err != nil {
		t.Fatalf("mark ghosts: %v", err)
	}
	ids, err = svc.ListReclaimable(context.Background(), now.Add(-20*time.Minute), 100)
	if err != nil {
		t.Fatalf("list reclaimable: %v", err)
	}
	if len(ids) != 1 || ids[0] != view.Session.ID {
		t.Fatalf("expected session reclaimable, got %v", ids)
	}

	if err := svc.Reclaim(context.Background(), view.Session.ID); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	after, err = svc.GetSession(context.Background(), view.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if after.Session.Status != liveroomdomain.StatusEnded {
		t.Fatalf("expected reclaimed session ended, got %s", after.Session.Status)
	}
	if _, err := svc.JoinSeat(context.Background(), view.Session.ID, 1, 202); !errors.Is(err, liveroomdomain.ErrSessionEnded) {
		t.Fatalf("join after reclaim should fail, got %v", err)
	}
	if err := svc.Reclaim(context.Background(), view.Session.ID); !errors.Is(err, liveroomdomain.ErrSessionEnded) {
		t.Fatalf("second reclaim should fail terminal, got %v", err)
	}
}

func TestMarkGhostsSkipsActiveSessions(t *testing.T) {
	svc, _, fakeClock := setupLiveroomService(t)
	stale := mustCreateParty(t, svc, 101, 4)
	fakeClock.Advance(16 * time.Minute)
	fresh := mustCreateParty(t, svc, 102, 4)

	marked, err := svc.MarkGhosts(context.Background(), fakeClock.Now().Add(-15*time.Minute), 100)
	if err != nil {
		t.Fatalf("mark ghosts: %v", err)
	}
	if len(marked) != 1 || marked[0] != stale.Session.ID {
		t.Fatalf("expected only stale session marked, got %v", marked)
	}

	view, err := svc.GetSession(context.Background(), fresh.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if view.Session.IsGhost {
		t.Fatalf("fresh session must not be ghosted")
	}
}
