package callregistry

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/hilive/hilive/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidCall = errors.New("invalid_call")

// Offer is one pending call held in the registry.
type Offer struct {
	CalleeUserID snowflake.ID `json:"callee_user_id"`
	CallerUserID snowflake.ID `json:"caller_user_id"`
	Token        string       `json:"token"`
}

type Params struct {
	fx.In

	Log   *zap.Logger
	Cfg   *config.Config
	Store Store
}

// Service keys call offers by callee so a user can only be rung by one
// caller at a time.
type Service struct {
	log   *zap.Logger
	cfg   *config.Config
	store Store
}

func NewService(p Params) *Service {
	return &Service{
		log:   p.Log.Named("callregistry.service"),
		cfg:   p.Cfg,
		store: p.Store,
	}
}

func (s *Service) Offer(ctx context.Context, callerID, calleeID snowflake.ID) (*Offer, error) {
	if callerID == 0 || calleeID == 0 || callerID == calleeID {
		return nil, ErrInvalidCall
	}
	token := callerID.String() + ":" + uuid.NewString()
	if err := s.store.Put(ctx, calleeID.String(), token, s.cfg.CallTTL); err != nil {
		return nil, err
	}
	return &Offer{CalleeUserID: calleeID, CallerUserID: callerID, Token: token}, nil
}

// Answer consumes the pending offer for the callee and returns who was
// calling. The callee owns their key, so no token is required.
func (s *Service) Answer(ctx context.Context, calleeID snowflake.ID) (*Offer, error) {
	if calleeID == 0 {
		return nil, ErrInvalidCall
	}
	key := calleeID.String()
	token, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	offer, err := parseOffer(calleeID, token)
	if err != nil {
		return nil, err
	}
	if err := s.store.Release(ctx, key, token); err != nil {
		return nil, err
	}
	return offer, nil
}

// Cancel withdraws an offer. Only the token holder (the caller) may cancel.
func (s *Service) Cancel(ctx context.Context, calleeID snowflake.ID, token string) error {
	if calleeID == 0 || strings.TrimSpace(token) == "" {
		return ErrInvalidCall
	}
	return s.store.Release(ctx, calleeID.String(), token)
}

// Extend pushes the offer's expiry out while the caller keeps ringing.
func (s *Service) Extend(ctx context.Context, calleeID snowflake.ID, token string) error {
	if calleeID == 0 || strings.TrimSpace(token) == "" {
		return ErrInvalidCall
	}
	return s.store.Extend(ctx, calleeID.String(), token, s.cfg.CallTTL)
}

func parseOffer(calleeID snowflake.ID, token string) (*Offer, error) {
	caller, _, ok := strings.Cut(token, ":")
	if !ok {
		return nil, ErrInvalidCall
	}
	callerID, err := snowflake.ParseString(caller)
	if err != nil {
		return nil, ErrInvalidCall
	}
	return &Offer{CalleeUserID: calleeID, CallerUserID: callerID, Token: token}, nil
}
