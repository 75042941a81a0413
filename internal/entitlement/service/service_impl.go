package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hilive/hilive/internal/audit/domain"
	"github.com/hilive/hilive/internal/clock"
	"github.com/hilive/hilive/internal/entitlement/domain"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxActivationMonths = 36

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	WalletRepo walletdomain.Repository
	AuditSvc   auditdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	walletRepo walletdomain.Repository
	auditSvc   auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("entitlement.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		walletRepo: p.WalletRepo,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) Activate(ctx context.Context, req domain.ActivateRequest) (time.Time, error) {
	if req.UserID == 0 {
		return time.Time{}, domain.ErrInvalidUser
	}
	if !domain.ValidKind(req.Kind) {
		return time.Time{}, domain.ErrInvalidKind
	}
	req.Tier = strings.TrimSpace(req.Tier)
	if req.Tier == "" {
		return time.Time{}, domain.ErrInvalidTier
	}
	if req.Months <= 0 || req.Months > maxActivationMonths {
		return time.Time{}, domain.ErrInvalidDuration
	}
	if req.Kind == domain.KindGuardian {
		if req.TargetUserID == 0 || req.TargetUserID == req.UserID {
			return time.Time{}, domain.ErrMissingTarget
		}
	} else if req.TargetUserID != 0 {
		return time.Time{}, domain.ErrInvalidKind
	}

	now := s.clock.Now()
	var expiresAt time.Time
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.Get(ctx, tx, req.UserID, req.Kind)
		if err != nil {
			return err
		}

		// Remaining time stacks: extension starts from whichever is later.
		base := now
		if existing != nil && existing.ExpiresAt.After(now) {
			base = existing.ExpiresAt
		}
		expiresAt = base.AddDate(0, req.Months, 0)

		ent := domain.Entitlement{
			ID:        s.genID.Generate(),
			UserID:    req.UserID,
			Kind:      req.Kind,
			Tier:      req.Tier,
			Active:    true,
			ExpiresAt: expiresAt,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if existing != nil {
			ent.ID = existing.ID
			ent.CreatedAt = existing.CreatedAt
		}
		if req.Kind == domain.KindGuardian {
			target := req.TargetUserID
			ent.TargetUserID = &target

			// The guardedBy pointer on the target's account is denormalized;
			// it changes in the same transaction as its source of truth.
			if existing != nil && existing.TargetUserID != nil && *existing.TargetUserID != target {
				if err := s.walletRepo.SetGuardedBy(ctx, tx, *existing.TargetUserID, nil); err != nil {
					return err
				}
			}
			if err := s.walletRepo.EnsureAccount(ctx, tx, target, now); err != nil {
				return err
			}
			guardian := req.UserID
			if err := s.walletRepo.SetGuardedBy(ctx, tx, target, &guardian); err != nil {
				return err
			}
		}

		return s.repo.Upsert(ctx, tx, &ent)
	})
	if err != nil {
		return time.Time{}, err
	}

	s.auditActivation(ctx, req, expiresAt)
	return expiresAt, nil
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID) ([]domain.Entitlement, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if err := s.CheckAndExpire(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, s.db, userID)
}

func (s *Service) CheckAndExpire(ctx context.Context, userID snowflake.ID) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	changed, err := s.repo.ExpireLapsed(ctx, s.db, userID, s.clock.Now())
	if err != nil {
		return err
	}
	if changed > 0 {
		s.log.Debug("expired entitlements", zap.String("user_id", userID.String()), zap.Int64("count", changed))
	}
	return nil
}

func (s *Service) IsActive(ctx context.Context, userID snowflake.ID, kind domain.Kind) (bool, error) {
	if userID == 0 {
		return false, domain.ErrInvalidUser
	}
	if !domain.ValidKind(kind) {
		return false, domain.ErrInvalidKind
	}
	ent, err := s.repo.Get(ctx, s.db, userID, kind)
	if err != nil {
		return false, err
	}
	if ent == nil {
		return false, nil
	}
	return ent.Active && ent.ExpiresAt.After(s.clock.Now()), nil
}

func (s *Service) auditActivation(ctx context.Context, req domain.ActivateRequest, expiresAt time.Time) {
	if s.auditSvc == nil {
		return
	}
	targetID := req.UserID.String()
	userID := req.UserID
	metadata := map[string]any{
		"kind":       string(req.Kind),
		"tier":       req.Tier,
		"months":     req.Months,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}
	if req.Kind == domain.KindGuardian {
		metadata["guarded_user_id"] = req.TargetUserID.String()
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeUser, &userID, "entitlement.activate", "entitlement", &targetID, true, metadata); err != nil {
		s.log.Warn("failed to write entitlement audit log", zap.Error(err))
	}
}
