// Package scheduler runs the periodic sweeps: ghost marking, ghost
// reclamation, entitlement expiry, and the daily VIP bonus.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hilive/hilive/internal/clock"
	entitlementdomain "github.com/hilive/hilive/internal/entitlement/domain"
	liveroomdomain "github.com/hilive/hilive/internal/liveroom/domain"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
	"github.com/hilive/hilive/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	LiveroomSvc     liveroomdomain.Service
	WalletSvc       walletdomain.Service
	EntitlementSvc  entitlementdomain.Service
	EntitlementRepo entitlementdomain.Repository
	Metrics         *telemetry.Metrics `optional:"true"`
	Config          Config             `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	liveroomSvc     liveroomdomain.Service
	walletSvc       walletdomain.Service
	entitlementSvc  entitlementdomain.Service
	entitlementRepo entitlementdomain.Repository
	metrics         *telemetry.Metrics

	mu           sync.Mutex
	lastBonusDay string
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.LiveroomSvc == nil || p.WalletSvc == nil || p.EntitlementSvc == nil || p.EntitlementRepo == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		liveroomSvc:     p.LiveroomSvc,
		walletSvc:       p.WalletSvc,
		entitlementSvc:  p.EntitlementSvc,
		entitlementRepo: p.EntitlementRepo,
		metrics:         p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if s.metrics != nil {
		s.metrics.IncSweepRun(name)
	}
	err := fn(ctx)
	if s.metrics != nil {
		s.metrics.ObserveSweepDuration(name, time.Since(start))
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// Soft timeout: the next tick picks up where this one stopped.
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncSweepError(name)
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Timeout time.Duration
		Run     func(context.Context) error
	}{
		{"ghost_mark", 30 * time.Second, s.GhostMarkJob},
		{"ghost_reclaim", 2 * time.Minute, s.GhostReclaimJob},
		{"entitlement_sweep", 30 * time.Second, s.EntitlementSweepJob},
		{"vip_daily_bonus", 5 * time.Minute, s.VIPDailyBonusJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Timeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty EnabledJobs list enables everything (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// GhostMarkJob flags streaming party sessions whose heartbeat has gone
// stale.
func (s *Scheduler) GhostMarkJob(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.GhostTimeout)
	total := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		marked, err := s.liveroomSvc.MarkGhosts(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		total += len(marked)
		if len(marked) < s.cfg.BatchSize {
			break
		}
	}
	if total > 0 {
		s.log.Info("ghost mark pass complete", zap.Int("marked", total))
	}
	return nil
}

// GhostReclaimJob tears down ghost sessions past the cleanup threshold. A
// failure on one session is logged and the pass moves on.
func (s *Scheduler) GhostReclaimJob(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.CleanupThreshold)
	var jobErr error
	reaped := 0
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		ids, err := s.liveroomSvc.ListReclaimable(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(ids) == 0 {
			break
		}
		progressed := 0
		for _, id := range ids {
			if err := s.liveroomSvc.Reclaim(ctx, id); err != nil {
				if errors.Is(err, liveroomdomain.ErrSessionEnded) {
					continue
				}
				jobErr = errors.Join(jobErr, err)
				s.log.Warn("failed to reclaim ghost session",
					zap.String("session_id", id.String()),
					zap.Error(err),
				)
				continue
			}
			progressed++
			reaped++
		}
		if progressed == 0 {
			// Every remaining candidate failed; bail rather than spin.
			break
		}
	}
	if reaped > 0 {
		if s.metrics != nil {
			s.metrics.IncSessionsReaped(reaped)
		}
		s.log.Info("ghost reclaim pass complete", zap.Int("reclaimed", reaped))
	}
	return jobErr
}

// EntitlementSweepJob proactively flips lapsed grants so expiry shows up
// without waiting for the next read.
func (s *Scheduler) EntitlementSweepJob(ctx context.Context) error {
	now := s.clock.Now()
	var jobErr error
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		userIDs, err := s.entitlementRepo.ListLapsedUserIDs(ctx, s.db, now, s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(userIDs) == 0 {
			break
		}
		for _, userID := range userIDs {
			if err := s.entitlementSvc.CheckAndExpire(ctx, userID); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.log.Warn("failed to expire entitlements",
					zap.String("user_id", userID.String()),
					zap.Error(err),
				)
			}
		}
		if len(userIDs) < s.cfg.BatchSize {
			break
		}
	}
	return jobErr
}

// VIPDailyBonusJob credits the daily coin bonus to every account whose VIP
// grant is active right now. Activity is re-derived from the expiry rather
// than the stored flag, so a lapsed-but-unswept grant earns nothing. Runs at
// most once per UTC day.
func (s *Scheduler) VIPDailyBonusJob(ctx context.Context) error {
	now := s.clock.Now().UTC()
	day := now.Format("2006-01-02")

	s.mu.Lock()
	if s.lastBonusDay == day {
		s.mu.Unlock()
		return nil
	}
	s.lastBonusDay = day
	s.mu.Unlock()

	var jobErr error
	credited := 0
	var afterID snowflake.ID
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		userIDs, err := s.entitlementRepo.ListActiveUserIDs(ctx, s.db, entitlementdomain.KindVIP, now, afterID, s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(userIDs) == 0 {
			break
		}
		for _, userID := range userIDs {
			if _, err := s.walletSvc.Credit(ctx, walletdomain.MutateBalanceRequest{
				UserID:   userID,
				Currency: walletdomain.CurrencyCoins,
				Amount:   s.cfg.VIPBonusCoins,
				Type:     walletdomain.TransactionTypeReward,
				Metadata: map[string]any{
					"reason": "vip_daily_bonus",
					"day":    day,
				},
			}); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.log.Warn("failed to credit vip bonus",
					zap.String("user_id", userID.String()),
					zap.Error(err),
				)
				continue
			}
			credited++
		}
		afterID = userIDs[len(userIDs)-1]
		if len(userIDs) < s.cfg.BatchSize {
			break
		}
	}
	if credited > 0 {
		s.log.Info("vip daily bonus pass complete",
			zap.String("day", day),
			zap.Int("credited", credited),
		)
	}
	return jobErr
}
