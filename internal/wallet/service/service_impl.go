package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hilive/hilive/internal/audit/domain"
	"github.com/hilive/hilive/internal/clock"
	"github.com/hilive/hilive/internal/config"
	"github.com/hilive/hilive/internal/level"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
	"github.com/hilive/hilive/pkg/db/pagination"
	"github.com/hilive/hilive/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     walletdomain.Repository
	AuditSvc auditdomain.Service
	GameCfg  *config.GamificationConfigHolder `optional:"true"`
	Metrics  *telemetry.Metrics               `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     walletdomain.Repository
	auditSvc auditdomain.Service
	gameCfg  *config.GamificationConfigHolder
	metrics  *telemetry.Metrics
}

func NewService(p Params) walletdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("wallet.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		gameCfg:  p.GameCfg,
		metrics:  p.Metrics,
	}
}

func (s *Service) Credit(ctx context.Context, req walletdomain.MutateBalanceRequest) (walletdomain.Balance, error) {
	if err := validateMutation(req); err != nil {
		return walletdomain.Balance{}, err
	}

	var balance walletdomain.Balance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.applyCredit(ctx, tx, req)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return walletdomain.Balance{}, err
	}

	s.auditBalanceChange(ctx, req, "wallet.credit")
	return balance, nil
}

func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, req walletdomain.MutateBalanceRequest) (walletdomain.Balance, error) {
	if err := validateMutation(req); err != nil {
		return walletdomain.Balance{}, err
	}
	balance, err := s.applyCredit(ctx, tx, req)
	if err != nil {
		return walletdomain.Balance{}, err
	}
	s.auditBalanceChange(ctx, req, "wallet.credit")
	return balance, nil
}

func (s *Service) applyCredit(ctx context.Context, tx *gorm.DB, req walletdomain.MutateBalanceRequest) (walletdomain.Balance, error) {
	now := s.clock.Now()
	if err := s.repo.EnsureAccount(ctx, tx, req.UserID, now); err != nil {
		return walletdomain.Balance{}, err
	}
	if err := s.repo.AddBalance(ctx, tx, req.UserID, req.Currency, req.Amount, now); err != nil {
		return walletdomain.Balance{}, err
	}
	if req.Currency == walletdomain.CurrencyDiamonds {
		if err := s.repo.AddLifetimeTotals(ctx, tx, req.UserID, 0, req.Amount); err != nil {
			return walletdomain.Balance{}, err
		}
	}
	if err := s.insertTransaction(ctx, tx, req, req.Amount, now); err != nil {
		return walletdomain.Balance{}, err
	}
	updated, err := s.refreshLevels(ctx, tx, req.UserID)
	if err != nil {
		return walletdomain.Balance{}, err
	}
	return toBalance(updated), nil
}

func (s *Service) Debit(ctx context.Context, req walletdomain.MutateBalanceRequest) (walletdomain.Balance, error) {
	if err := validateMutation(req); err != nil {
		return walletdomain.Balance{}, err
	}

	var balance walletdomain.Balance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		if err := s.repo.EnsureAccount(ctx, tx, req.UserID, now); err != nil {
			return err
		}
		ok, err := s.repo.SubtractBalance(ctx, tx, req.UserID, req.Currency, req.Amount, now)
		if err != nil {
			return err
		}
		if !ok {
			current, err := s.currentBalance(ctx, tx, req.UserID, req.Currency)
			if err != nil {
				return err
			}
			return &walletdomain.InsufficientFundsError{
				Currency: req.Currency,
				Required: req.Amount,
				Current:  current,
			}
		}
		if req.Currency == walletdomain.CurrencyCoins {
			if err := s.repo.AddLifetimeTotals(ctx, tx, req.UserID, req.Amount, 0); err != nil {
				return err
			}
		}
		if err := s.insertTransaction(ctx, tx, req, -req.Amount, now); err != nil {
			return err
		}
		updated, err := s.refreshLevels(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		balance = toBalance(updated)
		return nil
	})
	if err != nil {
		if _, denied := errAsInsufficient(err); denied && s.metrics != nil {
			s.metrics.IncWalletDenial()
		}
		return walletdomain.Balance{}, err
	}

	s.auditBalanceChange(ctx, req, "wallet.debit")
	return balance, nil
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID) (walletdomain.Balance, error) {
	if userID == 0 {
		return walletdomain.Balance{}, walletdomain.ErrInvalidUser
	}
	account, err := s.repo.GetAccount(ctx, s.db, userID)
	if err != nil {
		return walletdomain.Balance{}, err
	}
	if account == nil {
		// Accounts are created lazily; an untouched user has empty balances.
		return walletdomain.Balance{UserID: userID}, nil
	}
	return toBalance(account), nil
}

func (s *Service) ListTransactions(ctx context.Context, req walletdomain.ListTransactionsRequest) (walletdomain.ListTransactionsResponse, error) {
	if req.UserID == 0 {
		return walletdomain.ListTransactionsResponse{}, walletdomain.ErrInvalidUser
	}

	var cursor *walletdomain.TransactionCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return walletdomain.ListTransactionsResponse{}, walletdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return walletdomain.ListTransactionsResponse{}, walletdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return walletdomain.ListTransactionsResponse{}, walletdomain.ErrInvalidPageToken
		}
		cursor = &walletdomain.TransactionCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.ListTransactions(ctx, s.db, walletdomain.TransactionFilter{
		UserID:   req.UserID,
		Currency: req.Currency,
		Cursor:   cursor,
		Limit:    pageSize,
	})
	if err != nil {
		return walletdomain.ListTransactionsResponse{}, err
	}

	resp := walletdomain.ListTransactionsResponse{}
	hasMore := len(items) > pageSize
	if hasMore {
		items = items[:pageSize]
	}
	resp.HasMore = hasMore

	txns := make([]walletdomain.Transaction, 0, len(items))
	for _, item := range items {
		txns = append(txns, *item)
	}
	resp.Transactions = txns

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

func (s *Service) insertTransaction(ctx context.Context, tx *gorm.DB, req walletdomain.MutateBalanceRequest, signedAmount int64, now time.Time) error {
	metadata := map[string]any{}
	for key, value := range req.Metadata {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	return s.repo.InsertTransaction(ctx, tx, &walletdomain.Transaction{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		Type:      req.Type,
		Currency:  req.Currency,
		Amount:    signedAmount,
		Metadata:  datatypes.JSONMap(metadata),
		CreatedAt: now,
	})
}

// refreshLevels re-derives wealth and live levels from the cumulative totals
// and persists them when they moved. Must run inside the mutation's
// transaction so a level bump is never visible without its cause.
func (s *Service) refreshLevels(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*walletdomain.Account, error) {
	account, err := s.repo.GetAccount(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, gorm.ErrRecordNotFound
	}

	wealthTable, liveTable := s.thresholdTables()
	wealthLevel := level.Compute(account.TotalCoinsSpent, wealthTable)
	liveLevel := level.Compute(account.TotalDiamondsEarned, liveTable)
	if wealthLevel != account.WealthLevel || liveLevel != account.LiveLevel {
		if err := s.repo.SetLevels(ctx, tx, userID, wealthLevel, liveLevel); err != nil {
			return nil, err
		}
		account.WealthLevel = wealthLevel
		account.LiveLevel = liveLevel
	}
	return account, nil
}

func (s *Service) thresholdTables() ([]int64, []int64) {
	wealthTable := level.WealthThresholds
	liveTable := level.LiveThresholds
	if s.gameCfg != nil {
		cfg := s.gameCfg.Get()
		if len(cfg.WealthThresholds) > 0 {
			wealthTable = cfg.WealthThresholds
		}
		if len(cfg.LiveThresholds) > 0 {
			liveTable = cfg.LiveThresholds
		}
	}
	return wealthTable, liveTable
}

func (s *Service) currentBalance(ctx context.Context, tx *gorm.DB, userID snowflake.ID, currency walletdomain.Currency) (int64, error) {
	account, err := s.repo.GetAccount(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, nil
	}
	switch currency {
	case walletdomain.CurrencyCoins:
		return account.Coins, nil
	case walletdomain.CurrencyDiamonds:
		return account.Diamonds, nil
	case walletdomain.CurrencyPoints:
		return account.Points, nil
	default:
		return 0, walletdomain.ErrInvalidCurrency
	}
}

func (s *Service) auditBalanceChange(ctx context.Context, req walletdomain.MutateBalanceRequest, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := req.UserID.String()
	userID := req.UserID
	if err := s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeUser, &userID, action, "account", &targetID, true, map[string]any{
		"currency": string(req.Currency),
		"amount":   req.Amount,
		"type":     string(req.Type),
	}); err != nil {
		s.log.Warn("failed to write wallet audit log", zap.Error(err))
	}
}

func validateMutation(req walletdomain.MutateBalanceRequest) error {
	if req.UserID == 0 {
		return walletdomain.ErrInvalidUser
	}
	if !walletdomain.ValidCurrency(req.Currency) {
		return walletdomain.ErrInvalidCurrency
	}
	if req.Amount <= 0 {
		return walletdomain.ErrInvalidAmount
	}
	if !walletdomain.ValidTransactionType(req.Type) {
		return walletdomain.ErrInvalidType
	}
	return nil
}

func toBalance(account *walletdomain.Account) walletdomain.Balance {
	return walletdomain.Balance{
		UserID:      account.UserID,
		Coins:       account.Coins,
		Diamonds:    account.Diamonds,
		Points:      account.Points,
		WealthLevel: account.WealthLevel,
		LiveLevel:   account.LiveLevel,
	}
}

func errAsInsufficient(err error) (*walletdomain.InsufficientFundsError, bool) {
	var denied *walletdomain.InsufficientFundsError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}
