package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	liveroomdomain "github.com/hilive/hilive/internal/liveroom/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() liveroomdomain.Repository {
	return &repo{}
}

func (r *repo) InsertSession(ctx context.Context, gdb *gorm.DB, session *liveroomdomain.LiveSession) error {
	return gdb.WithContext(ctx).Exec(
		`INSERT INTO live_sessions (id, host_user_id, kind, chair_count, is_private,
			status, is_ghost, last_heartbeat, diamonds_earned, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.HostUserID,
		session.Kind,
		session.ChairCount,
		session.IsPrivate,
		session.Status,
		session.IsGhost,
		session.LastHeartbeat,
		session.DiamondsEarned,
		session.CreatedAt,
	).Error
}

func (r *repo) InsertSeats(ctx context.Context, gdb *gorm.DB, seats []liveroomdomain.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	return gdb.WithContext(ctx).Create(&seats).Error
}

func (r *repo) GetSession(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID) (*liveroomdomain.LiveSession, error) {
	var session liveroomdomain.LiveSession
	err := gdb.WithContext(ctx).
		Where("id = ?", sessionID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) ListSessions(ctx context.Context, gdb *gorm.DB, filter liveroomdomain.SessionFilter) ([]*liveroomdomain.LiveSession, error) {
	var sessions []*liveroomdomain.LiveSession
	stmt := gdb.WithContext(ctx).Model(&liveroomdomain.LiveSession{}).
		Where("status = ?", liveroomdomain.StatusStreaming).
		Where("is_private = ?", false)

	if kind := strings.TrimSpace(filter.Kind); kind != "" {
		stmt = stmt.Where("kind = ?", kind)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *repo) TouchHeartbeat(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID, now time.Time) (bool, error) {
	result := gdb.WithContext(ctx).Exec(
		`UPDATE live_sessions SET last_heartbeat = ?, is_ghost = ?
		 WHERE id = ? AND status = ?`,
		now, false, sessionID, liveroomdomain.StatusStreaming,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) GetSeat(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID, idx int) (*liveroomdomain.Seat, error) {
	var seat liveroomdomain.Seat
	err := gdb.WithContext(ctx).
		Where("session_id = ? AND idx = ?", sessionID, idx).
		First(&seat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &seat, nil
}

func (r *repo) SeatByOccupant(ctx context.Context, gdb *gorm.DB, sessionID, userID snowflake.ID) (*liveroomdomain.Seat, error) {
	var seat liveroomdomain.Seat
	err := gdb.WithContext(ctx).
		Where("session_id = ? AND occupant_user_id = ?", sessionID, userID).
		First(&seat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &seat, nil
}

func (r *repo) ListSeats(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID) ([]liveroomdomain.Seat, error) {
	var seats []liveroomdomain.Seat
	err := gdb.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("idx asc").
		Find(&seats).Error
	if err != nil {
		return nil, err
	}
	return seats, nil
}

func (r *repo) ClaimSeat(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID, idx int, userID snowflake.ID, canTalk bool, now time.Time) (bool, error) {
	// The streaming predicate makes the claim race-safe against the reaper:
	// once a session flips to ended, no seat on it can be taken.
	result := gdb.WithContext(ctx).Exec(
		`UPDATE seats
		 SET occupant_user_id = ?, can_talk = ?, audio_enabled = ?, video_enabled = ?, updated_at = ?
		 WHERE session_id = ? AND idx = ? AND occupant_user_id IS NULL
		   AND EXISTS (
			SELECT 1 FROM live_sessions
			WHERE live_sessions.id = seats.session_id AND live_sessions.status = ?
		 )`,
		userID, canTalk, true, false, now, sessionID, idx, liveroomdomain.StatusStreaming,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ReleaseSeatByUser(ctx context.Context, gdb *gorm.DB, sessionID, userID snowflake.ID, now time.Time) (int64, error) {
	result := gdb.WithContext(ctx).Exec(
		`UPDATE seats
		 SET occupant_user_id = NULL, can_talk = ?, audio_enabled = ?, video_enabled = ?, updated_at = ?
		 WHERE session_id = ? AND occupant_user_id = ?`,
		false, false, false, now, sessionID, userID,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) ReleaseSeatAt(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID, idx int, userID snowflake.ID, now time.Time) (bool, error) {
	result := gdb.WithContext(ctx).Exec(
		`UPDATE seats
		 SET occupant_user_id = NULL, can_talk = ?, audio_enabled = ?, video_enabled = ?, updated_at = ?
		 WHERE session_id = ? AND idx = ? AND occupant_user_id = ?`,
		false, false, false, now, sessionID, idx, userID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SetSeatFlags(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID, idx int, userID snowflake.ID, canTalk, audioEnabled, videoEnabled bool, now time.Time) (bool, error) {
	result := gdb.WithContext(ctx).Exec(
		`UPDATE seats
		 SET can_talk = ?, audio_enabled = ?, video_enabled = ?, updated_at = ?
		 WHERE session_id = ? AND idx = ? AND occupant_user_id = ?`,
		canTalk, audioEnabled, videoEnabled, now, sessionID, idx, userID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ClearSeats(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID, now time.Time) error {
	return gdb.WithContext(ctx).Exec(
		`UPDATE seats
		 SET occupant_user_id = NULL, can_talk = ?, audio_enabled = ?, video_enabled = ?, updated_at = ?
		 WHERE session_id = ? AND occupant_user_id IS NOT NULL`,
		false, false, false, now, sessionID,
	).Error
}

func (r *repo) AddMute(ctx context.Context, gdb *gorm.DB, sessionID, userID, id snowflake.ID, now time.Time) error {
	return gdb.WithContext(ctx).Exec(
		`INSERT INTO session_mutes (id, session_id, user_id, created_at)
		 SELECT ?, ?, ?, ?
		 WHERE NOT EXISTS (
			SELECT 1 FROM session_mutes WHERE session_id = ? AND user_id = ?
		 )`,
		id, sessionID, userID, now, sessionID, userID,
	).Error
}

func (r *repo) RemoveMutes(ctx context.Context, gdb *gorm.DB, sessionID, userID snowflake.ID) error {
	return gdb.WithContext(ctx).Exec(
		`DELETE FROM session_mutes WHERE session_id = ? AND user_id = ?`,
		sessionID, userID,
	).Error
}

func (r *repo) ListMutedUserIDs(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := gdb.WithContext(ctx).
		Model(&liveroomdomain.SessionMute{}).
		Where("session_id = ?", sessionID).
		Order("created_at asc").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) AddRemoval(ctx context.Context, gdb *gorm.DB, sessionID, userID, id snowflake.ID, now time.Time) error {
	return gdb.WithContext(ctx).Exec(
		`INSERT INTO session_removals (id, session_id, user_id, created_at)
		 SELECT ?, ?, ?, ?
		 WHERE NOT EXISTS (
			SELECT 1 FROM session_removals WHERE session_id = ? AND user_id = ?
		 )`,
		id, sessionID, userID, now, sessionID, userID,
	).Error
}

func (r *repo) IsRemoved(ctx context.Context, gdb *gorm.DB, sessionID, userID snowflake.ID) (bool, error) {
	var count int64
	err := gdb.WithContext(ctx).
		Model(&liveroomdomain.SessionRemoval{}).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) UpsertViewer(ctx context.Context, gdb *gorm.DB, membership *liveroomdomain.ViewerMembership) error {
	result := gdb.WithContext(ctx).Exec(
		`UPDATE viewer_memberships
		 SET watching = ?, joined_at = ?, left_at = NULL
		 WHERE session_id = ? AND user_id = ? AND watching = ?`,
		true, membership.JoinedAt, membership.SessionID, membership.UserID, false,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	err := gdb.WithContext(ctx).
		Model(&liveroomdomain.ViewerMembership{}).
		Where("session_id = ? AND user_id = ?", membership.SessionID, membership.UserID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		// Already watching; join is idempotent.
		return nil
	}

	return gdb.WithContext(ctx).Exec(
		`INSERT INTO viewer_memberships (id, session_id, user_id, watching, joined_at, watch_seconds)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		membership.ID, membership.SessionID, membership.UserID, true, membership.JoinedAt,
	).Error
}

func (r *repo) GetViewer(ctx context.Context, gdb *gorm.DB, sessionID, userID snowflake.ID) (*liveroomdomain.ViewerMembership, error) {
	var membership liveroomdomain.ViewerMembership
	err := gdb.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &membership, nil
}

func (r *repo) MarkViewerLeft(ctx context.Context, gdb *gorm.DB, sessionID, userID snowflake.ID, now time.Time) (bool, error) {
	var membership liveroomdomain.ViewerMembership
	err := gdb.WithContext(ctx).
		Where("session_id = ? AND user_id = ? AND watching = ?", sessionID, userID, true).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	elapsed := int64(now.Sub(membership.JoinedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	result := gdb.WithContext(ctx).Exec(
		`UPDATE viewer_memberships
		 SET watching = ?, left_at = ?, watch_seconds = watch_seconds + ?
		 WHERE session_id = ? AND user_id = ? AND watching = ?`,
		false, now, elapsed, sessionID, userID, true,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) CountWatching(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID) (int64, error) {
	var count int64
	err := gdb.WithContext(ctx).
		Model(&liveroomdomain.ViewerMembership{}).
		Where("session_id = ? AND watching = ?", sessionID, true).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) CloseAllViewers(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID, now time.Time) error {
	var memberships []liveroomdomain.ViewerMembership
	err := gdb.WithContext(ctx).
		Where("session_id = ? AND watching = ?", sessionID, true).
		Find(&memberships).Error
	if err != nil {
		return err
	}
	for i := range memberships {
		elapsed := int64(now.Sub(memberships[i].JoinedAt).Seconds())
		if elapsed < 0 {
			elapsed = 0
		}
		err = gdb.WithContext(ctx).Exec(
			`UPDATE viewer_memberships
			 SET watching = ?, left_at = ?, watch_seconds = watch_seconds + ?
			 WHERE id = ?`,
			false, now, elapsed, memberships[i].ID,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) EndSession(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID, now time.Time) (bool, error) {
	result := gdb.WithContext(ctx).Exec(
		`UPDATE live_sessions SET status = ?, ended_at = ?
		 WHERE id = ? AND status = ?`,
		liveroomdomain.StatusEnded, now, sessionID, liveroomdomain.StatusStreaming,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) AddDiamonds(ctx context.Context, gdb *gorm.DB, sessionID snowflake.ID, amount int64) (bool, error) {
	result := gdb.WithContext(ctx).Exec(
		`UPDATE live_sessions SET diamonds_earned = diamonds_earned + ?
		 WHERE id = ? AND status = ?`,
		amount, sessionID, liveroomdomain.StatusStreaming,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkGhosts(ctx context.Context, gdb *gorm.DB, heartbeatBefore time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	stmt := gdb.WithContext(ctx).
		Model(&liveroomdomain.LiveSession{}).
		Where("status = ? AND is_ghost = ? AND last_heartbeat < ? AND kind IN ?",
			liveroomdomain.StatusStreaming, false, heartbeatBefore,
			[]liveroomdomain.SessionKind{liveroomdomain.KindPartyVideo, liveroomdomain.KindPartyAudio}).
		Order("last_heartbeat asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err := gdb.WithContext(ctx).Exec(
		`UPDATE live_sessions SET is_ghost = ? WHERE id IN ?`,
		true, ids,
	).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListReclaimable(ctx context.Context, gdb *gorm.DB, createdBefore time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	stmt := gdb.WithContext(ctx).
		Model(&liveroomdomain.LiveSession{}).
		Where("status = ? AND is_ghost = ? AND created_at < ?",
			liveroomdomain.StatusStreaming, true, createdBefore).
		Order("created_at asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
