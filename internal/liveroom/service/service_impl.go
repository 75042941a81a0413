package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hilive/hilive/internal/audit/domain"
	"github.com/hilive/hilive/internal/clock"
	"github.com/hilive/hilive/internal/config"
	"github.com/hilive/hilive/internal/events"
	liveroomdomain "github.com/hilive/hilive/internal/liveroom/domain"
	"github.com/hilive/hilive/pkg/db/pagination"
	"github.com/hilive/hilive/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       *config.Config
	Repo      liveroomdomain.Repository
	AuditSvc  auditdomain.Service
	Publisher events.Publisher   `optional:"true"`
	Metrics   *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       *config.Config
	repo      liveroomdomain.Repository
	auditSvc  auditdomain.Service
	publisher events.Publisher
	metrics   *telemetry.Metrics
}

func NewService(p Params) liveroomdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("liveroom.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Cfg,
		repo:      p.Repo,
		auditSvc:  p.AuditSvc,
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

func (s *Service) CreateSession(ctx context.Context, req liveroomdomain.CreateSessionRequest) (*liveroomdomain.SessionView, error) {
	if req.HostUserID == 0 {
		return nil, liveroomdomain.ErrInvalidUser
	}
	if !liveroomdomain.ValidKind(req.Kind) {
		return nil, liveroomdomain.ErrInvalidKind
	}

	chairCount := req.ChairCount
	if req.Kind.IsParty() {
		if chairCount <= 0 || chairCount > s.cfg.MaxChairCount {
			return nil, liveroomdomain.ErrInvalidChairCount
		}
	} else {
		chairCount = 0
	}

	now := s.clock.Now()
	session := &liveroomdomain.LiveSession{
		ID:            s.genID.Generate(),
		HostUserID:    req.HostUserID,
		Kind:          req.Kind,
		ChairCount:    chairCount,
		IsPrivate:     req.IsPrivate,
		Status:        liveroomdomain.StatusStreaming,
		LastHeartbeat: now,
		CreatedAt:     now,
	}

	var seats []liveroomdomain.Seat
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertSession(ctx, tx, session); err != nil {
			return err
		}
		if chairCount == 0 {
			return nil
		}
		seats = make([]liveroomdomain.Seat, 0, chairCount)
		for idx := 0; idx < chairCount; idx++ {
			seat := liveroomdomain.Seat{
				ID:        s.genID.Generate(),
				SessionID: session.ID,
				Idx:       idx,
				UpdatedAt: now,
			}
			if idx == 0 {
				// The host takes the first chair and starts approved to talk.
				hostID := req.HostUserID
				seat.OccupantUserID = &hostID
				seat.CanTalk = true
				seat.AudioEnabled = true
			}
			seats = append(seats, seat)
		}
		return s.repo.InsertSeats(ctx, tx, seats)
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.TopicSessionCreated, session.ID, map[string]any{
		"host_user_id": session.HostUserID.String(),
		"kind":         string(session.Kind),
	})
	s.audit(ctx, auditdomain.ActorTypeUser, req.HostUserID, "liveroom.session_created", session.ID, map[string]any{
		"kind":        string(session.Kind),
		"chair_count": chairCount,
	})

	return &liveroomdomain.SessionView{Session: *session, Seats: seats}, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID snowflake.ID) (*liveroomdomain.SessionView, error) {
	session, err := s.repo.GetSession(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, liveroomdomain.ErrSessionNotFound
	}

	view := &liveroomdomain.SessionView{Session: *session}
	if session.Kind.IsParty() {
		seats, err := s.repo.ListSeats(ctx, s.db, sessionID)
		if err != nil {
			return nil, err
		}
		view.Seats = seats
	}
	viewers, err := s.repo.CountWatching(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	view.Viewers = viewers
	return view, nil
}

func (s *Service) ListSessions(ctx context.Context, req liveroomdomain.ListSessionsRequest) (liveroomdomain.ListSessionsResponse, error) {
	var cursor *liveroomdomain.SessionCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return liveroomdomain.ListSessionsResponse{}, liveroomdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return liveroomdomain.ListSessionsResponse{}, liveroomdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return liveroomdomain.ListSessionsResponse{}, liveroomdomain.ErrInvalidPageToken
		}
		cursor = &liveroomdomain.SessionCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.ListSessions(ctx, s.db, liveroomdomain.SessionFilter{
		Kind:   req.Kind,
		Cursor: cursor,
		Limit:  pageSize,
	})
	if err != nil {
		return liveroomdomain.ListSessionsResponse{}, err
	}

	resp := liveroomdomain.ListSessionsResponse{}
	hasMore := len(items) > pageSize
	if hasMore {
		items = items[:pageSize]
	}
	resp.HasMore = hasMore

	sessions := make([]liveroomdomain.LiveSession, 0, len(items))
	for _, item := range items {
		sessions = append(sessions, *item)
	}
	resp.Sessions = sessions

	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err == nil {
			resp.NextPageToken = token
		}
	}

	return resp, nil
}

func (s *Service) Heartbeat(ctx context.Context, sessionID, hostUserID snowflake.ID) error {
	session, err := s.repo.GetSession(ctx, s.db, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return liveroomdomain.ErrSessionNotFound
	}
	if session.HostUserID != hostUserID {
		return liveroomdomain.ErrNotHost
	}

	ok, err := s.repo.TouchHeartbeat(ctx, s.db, sessionID, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return liveroomdomain.ErrSessionEnded
	}
	return nil
}

func (s *Service) JoinAsViewer(ctx context.Context, sessionID, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, liveroomdomain.ErrInvalidUser
	}
	session, err := s.requireStreaming(ctx, s.db, sessionID)
	if err != nil {
		return 0, err
	}
	removed, err := s.repo.IsRemoved(ctx, s.db, sessionID, userID)
	if err != nil {
		return 0, err
	}
	if removed {
		return 0, liveroomdomain.ErrUserRemoved
	}

	var count int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpsertViewer(ctx, tx, &liveroomdomain.ViewerMembership{
			ID:        s.genID.Generate(),
			SessionID: sessionID,
			UserID:    userID,
			Watching:  true,
			JoinedAt:  s.clock.Now(),
		}); err != nil {
			return err
		}
		var err error
		count, err = s.repo.CountWatching(ctx, tx, sessionID)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.publish(events.TopicViewerJoined, session.ID, map[string]any{
		"user_id": userID.String(),
		"viewers": count,
	})
	return count, nil
}

func (s *Service) LeaveAsViewer(ctx context.Context, sessionID, userID snowflake.ID) error {
	if userID == 0 {
		return liveroomdomain.ErrInvalidUser
	}
	session, err := s.repo.GetSession(ctx, s.db, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return liveroomdomain.ErrSessionNotFound
	}

	changed, err := s.repo.MarkViewerLeft(ctx, s.db, sessionID, userID, s.clock.Now())
	if err != nil {
		return err
	}
	if !changed {
		// Leaving twice is a no-op.
		return nil
	}

	s.publish(events.TopicViewerLeft, sessionID, map[string]any{
		"user_id": userID.String(),
	})
	return nil
}

func (s *Service) JoinSeat(ctx context.Context, sessionID snowflake.ID, seatIdx int, userID snowflake.ID) (*liveroomdomain.Seat, error) {
	if userID == 0 {
		return nil, liveroomdomain.ErrInvalidUser
	}
	session, err := s.requireStreaming(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Kind.IsParty() {
		return nil, liveroomdomain.ErrNotPartySession
	}
	if seatIdx < 0 || seatIdx >= session.ChairCount {
		return nil, liveroomdomain.ErrInvalidSeat
	}
	removed, err := s.repo.IsRemoved(ctx, s.db, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if removed {
		return nil, liveroomdomain.ErrUserRemoved
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Vacate any seat the user already holds so a user never occupies
		// two chairs, then compare-and-swap into the target.
		if _, err := s.repo.ReleaseSeatByUser(ctx, tx, sessionID, userID, now); err != nil {
			return err
		}
		claimed, err := s.repo.ClaimSeat(ctx, tx, sessionID, seatIdx, userID, false, now)
		if err != nil {
			return err
		}
		if !claimed {
			// The claim refuses both a taken seat and a session the reaper
			// ended after the earlier status check. Tell the two apart
			// inside the transaction.
			if _, err := s.requireStreaming(ctx, tx, sessionID); err != nil {
				return err
			}
			return liveroomdomain.ErrSeatOccupied
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncSeatClaimed()
	}
	seat, err := s.repo.GetSeat(ctx, s.db, sessionID, seatIdx)
	if err != nil {
		return nil, err
	}
	s.publishSeat(sessionID, seat)
	return seat, nil
}

func (s *Service) LeaveSeat(ctx context.Context, sessionID snowflake.ID, seatIdx int, userID snowflake.ID) error {
	if userID == 0 {
		return liveroomdomain.ErrInvalidUser
	}
	session, err := s.requireStreaming(ctx, s.db, sessionID)
	if err != nil {
		return err
	}
	if !session.Kind.IsParty() {
		return liveroomdomain.ErrNotPartySession
	}
	if seatIdx < 0 || seatIdx >= session.ChairCount {
		return liveroomdomain.ErrInvalidSeat
	}

	released, err := s.repo.ReleaseSeatAt(ctx, s.db, sessionID, seatIdx, userID, s.clock.Now())
	if err != nil {
		return err
	}
	if !released {
		return liveroomdomain.ErrNotInSeat
	}

	seat, err := s.repo.GetSeat(ctx, s.db, sessionID, seatIdx)
	if err == nil {
		s.publishSeat(sessionID, seat)
	}
	return nil
}

func (s *Service) HostAction(ctx context.Context, req liveroomdomain.HostActionRequest) error {
	if req.ActorUserID == 0 || req.TargetUserID == 0 {
		return liveroomdomain.ErrInvalidUser
	}
	if !liveroomdomain.ValidHostAction(req.Action) {
		return liveroomdomain.ErrInvalidAction
	}
	session, err := s.requireStreaming(ctx, s.db, req.SessionID)
	if err != nil {
		return err
	}
	if session.HostUserID != req.ActorUserID {
		return liveroomdomain.ErrNotHost
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch req.Action {
		case liveroomdomain.HostActionRemoveUser:
			return s.removeUser(ctx, tx, req, now)
		default:
			return s.moderateSeat(ctx, tx, session, req, now)
		}
	})
	if err != nil {
		return err
	}

	s.publish(events.TopicHostAction, req.SessionID, map[string]any{
		"action":         string(req.Action),
		"target_user_id": req.TargetUserID.String(),
		"seat_idx":       req.SeatIdx,
	})
	s.audit(ctx, auditdomain.ActorTypeUser, req.ActorUserID, "liveroom.host_action", req.SessionID, map[string]any{
		"action":         string(req.Action),
		"target_user_id": req.TargetUserID.String(),
	})

	if req.Action != liveroomdomain.HostActionRemoveUser {
		seat, err := s.repo.GetSeat(ctx, s.db, req.SessionID, req.SeatIdx)
		if err == nil {
			s.publishSeat(req.SessionID, seat)
		}
	}
	return nil
}

// moderateSeat applies a flag-level action to the target's seat. The target
// must actually occupy the named seat.
func (s *Service) moderateSeat(ctx context.Context, tx *gorm.DB, session *liveroomdomain.LiveSession, req liveroomdomain.HostActionRequest, now time.Time) error {
	if !session.Kind.IsParty() {
		return liveroomdomain.ErrNotPartySession
	}
	if req.SeatIdx < 0 || req.SeatIdx >= session.ChairCount {
		return liveroomdomain.ErrInvalidSeat
	}
	seat, err := s.repo.GetSeat(ctx, tx, req.SessionID, req.SeatIdx)
	if err != nil {
		return err
	}
	if seat == nil || seat.OccupantUserID == nil || *seat.OccupantUserID != req.TargetUserID {
		return liveroomdomain.ErrSeatMismatch
	}

	canTalk := seat.CanTalk
	audio := seat.AudioEnabled
	video := seat.VideoEnabled

	switch req.Action {
	case liveroomdomain.HostActionMute:
		audio = false
		if err := s.repo.AddMute(ctx, tx, req.SessionID, req.TargetUserID, s.genID.Generate(), now); err != nil {
			return err
		}
	case liveroomdomain.HostActionUnmute:
		// Unmute restores talk alongside audio but leaves the mute record;
		// only an explicit audio approval wipes it.
		canTalk = true
		audio = true
	case liveroomdomain.HostActionApproveAudio:
		canTalk = true
		audio = true
		if err := s.repo.RemoveMutes(ctx, tx, req.SessionID, req.TargetUserID); err != nil {
			return err
		}
	case liveroomdomain.HostActionDisableVideo:
		video = false
	default:
		return liveroomdomain.ErrInvalidAction
	}

	ok, err := s.repo.SetSeatFlags(ctx, tx, req.SessionID, req.SeatIdx, req.TargetUserID, canTalk, audio, video, now)
	if err != nil {
		return err
	}
	if !ok {
		return liveroomdomain.ErrSeatMismatch
	}
	return nil
}

// removeUser evicts the target from any seat, closes their viewer
// membership, and bans them from the session for its remaining lifetime.
func (s *Service) removeUser(ctx context.Context, tx *gorm.DB, req liveroomdomain.HostActionRequest, now time.Time) error {
	if req.TargetUserID == req.ActorUserID {
		return liveroomdomain.ErrInvalidUser
	}
	// A seated target must be named by their actual seat; unseated viewers
	// are removable regardless of the index in the request.
	seat, err := s.repo.SeatByOccupant(ctx, tx, req.SessionID, req.TargetUserID)
	if err != nil {
		return err
	}
	if seat != nil && seat.Idx != req.SeatIdx {
		return liveroomdomain.ErrSeatMismatch
	}
	if _, err := s.repo.ReleaseSeatByUser(ctx, tx, req.SessionID, req.TargetUserID, now); err != nil {
		return err
	}
	if _, err := s.repo.MarkViewerLeft(ctx, tx, req.SessionID, req.TargetUserID, now); err != nil {
		return err
	}
	return s.repo.AddRemoval(ctx, tx, req.SessionID, req.TargetUserID, s.genID.Generate(), now)
}

func (s *Service) EndSession(ctx context.Context, sessionID, callerUserID snowflake.ID) error {
	session, err := s.repo.GetSession(ctx, s.db, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return liveroomdomain.ErrSessionNotFound
	}
	if session.HostUserID != callerUserID {
		return liveroomdomain.ErrNotHost
	}

	if err := s.teardown(ctx, sessionID); err != nil {
		return err
	}
	s.audit(ctx, auditdomain.ActorTypeUser, callerUserID, "liveroom.session_ended", sessionID, nil)
	return nil
}

func (s *Service) RecordGift(ctx context.Context, sessionID snowflake.ID, diamonds int64) error {
	if diamonds <= 0 {
		return liveroomdomain.ErrInvalidAmount
	}
	ok, err := s.repo.AddDiamonds(ctx, s.db, sessionID, diamonds)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	session, err := s.repo.GetSession(ctx, s.db, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return liveroomdomain.ErrSessionNotFound
	}
	return liveroomdomain.ErrSessionEnded
}

func (s *Service) MarkGhosts(ctx context.Context, heartbeatBefore time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ids, err = s.repo.MarkGhosts(ctx, tx, heartbeatBefore, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.log.Info("marked ghost sessions",
			zap.Int("count", len(ids)),
			zap.Time("heartbeat_before", heartbeatBefore),
		)
	}
	return ids, nil
}

func (s *Service) ListReclaimable(ctx context.Context, createdBefore time.Time, limit int) ([]snowflake.ID, error) {
	return s.repo.ListReclaimable(ctx, s.db, createdBefore, limit)
}

func (s *Service) Reclaim(ctx context.Context, sessionID snowflake.ID) error {
	if err := s.teardown(ctx, sessionID); err != nil {
		return err
	}
	s.audit(ctx, auditdomain.ActorTypeSystem, 0, "liveroom.session_reclaimed", sessionID, nil)
	return nil
}

// teardown ends the session and closes its seats and viewer memberships in
// one transaction. The conditional status flip makes ended terminal: a
// session torn down twice fails the second time.
func (s *Service) teardown(ctx context.Context, sessionID snowflake.ID) error {
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ended, err := s.repo.EndSession(ctx, tx, sessionID, now)
		if err != nil {
			return err
		}
		if !ended {
			return liveroomdomain.ErrSessionEnded
		}
		if err := s.repo.ClearSeats(ctx, tx, sessionID, now); err != nil {
			return err
		}
		return s.repo.CloseAllViewers(ctx, tx, sessionID, now)
	})
	if err != nil {
		return err
	}

	s.publish(events.TopicSessionEnded, sessionID, nil)
	return nil
}

func (s *Service) requireStreaming(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID) (*liveroomdomain.LiveSession, error) {
	session, err := s.repo.GetSession(ctx, gdb, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, liveroomdomain.ErrSessionNotFound
	}
	if session.Status != liveroomdomain.StatusStreaming {
		return nil, liveroomdomain.ErrSessionEnded
	}
	return session, nil
}

func (s *Service) publish(topic string, sessionID snowflake.ID, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(topic, events.Event{
		Topic:     topic,
		SessionID: sessionID.String(),
		Payload:   payload,
	})
}

func (s *Service) publishSeat(sessionID snowflake.ID, seat *liveroomdomain.Seat) {
	if seat == nil {
		return
	}
	payload := map[string]any{
		"idx":           seat.Idx,
		"can_talk":      seat.CanTalk,
		"audio_enabled": seat.AudioEnabled,
		"video_enabled": seat.VideoEnabled,
	}
	if seat.OccupantUserID != nil {
		payload["occupant_user_id"] = seat.OccupantUserID.String()
	}
	s.publish(events.TopicSeatUpdated, sessionID, payload)
}

func (s *Service) audit(ctx context.Context, actorType string, actorID snowflake.ID, action string, sessionID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	var actor *snowflake.ID
	if actorID != 0 {
		actor = &actorID
	}
	targetID := sessionID.String()
	if err := s.auditSvc.AuditLog(ctx, actorType, actor, action, "live_session", &targetID, true, metadata); err != nil {
		s.log.Warn("failed to write liveroom audit log", zap.Error(err))
	}
}
