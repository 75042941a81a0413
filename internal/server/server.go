package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hilive/hilive/internal/audit"
	auditdomain "github.com/hilive/hilive/internal/audit/domain"
	"github.com/hilive/hilive/internal/callregistry"
	"github.com/hilive/hilive/internal/clock"
	"github.com/hilive/hilive/internal/config"
	"github.com/hilive/hilive/internal/entitlement"
	entitlementdomain "github.com/hilive/hilive/internal/entitlement/domain"
	"github.com/hilive/hilive/internal/events"
	"github.com/hilive/hilive/internal/gift"
	giftdomain "github.com/hilive/hilive/internal/gift/domain"
	"github.com/hilive/hilive/internal/identity"
	"github.com/hilive/hilive/internal/liveroom"
	liveroomdomain "github.com/hilive/hilive/internal/liveroom/domain"
	"github.com/hilive/hilive/internal/logger"
	"github.com/hilive/hilive/internal/payment"
	paymentdomain "github.com/hilive/hilive/internal/payment/domain"
	"github.com/hilive/hilive/internal/redisconn"
	"github.com/hilive/hilive/internal/wallet"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
	"github.com/hilive/hilive/pkg/db"
	"github.com/hilive/hilive/pkg/telemetry"
)

var Module = fx.Module("http.server",
	config.Module,
	logger.Module,
	clock.Module,
	telemetry.Module,
	db.Module,
	redisconn.Module,
	identity.Module,
	audit.Module,
	events.Module,
	wallet.Module,
	entitlement.Module,
	liveroom.Module,
	gift.Module,
	payment.Module,
	callregistry.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(metrics *telemetry.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if metrics != nil {
		r.Use(telemetry.GinMiddleware(metrics))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	}

	return r
}

type engineParams struct {
	fx.In

	Metrics *telemetry.Metrics `optional:"true"`
}

func registerGin(p engineParams) *gin.Engine {
	return NewEngine(p.Metrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config

	liveroomSvc    liveroomdomain.Service
	walletSvc      walletdomain.Service
	entitlementSvc entitlementdomain.Service
	giftSvc        giftdomain.Service
	paymentSvc     paymentdomain.Service
	callSvc        *callregistry.Service
	auditSvc       auditdomain.Service
	hub            *events.Hub
	verifier       identity.Verifier
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	LiveroomSvc    liveroomdomain.Service
	WalletSvc      walletdomain.Service
	EntitlementSvc entitlementdomain.Service
	GiftSvc        giftdomain.Service
	PaymentSvc     paymentdomain.Service
	CallSvc        *callregistry.Service
	AuditSvc       auditdomain.Service
	Hub            *events.Hub `optional:"true"`
	Verifier       identity.Verifier
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		liveroomSvc:    p.LiveroomSvc,
		walletSvc:      p.WalletSvc,
		entitlementSvc: p.EntitlementSvc,
		giftSvc:        p.GiftSvc,
		paymentSvc:     p.PaymentSvc,
		callSvc:        p.CallSvc,
		auditSvc:       p.AuditSvc,
		hub:            p.Hub,
		verifier:       p.Verifier,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	// Provider-authenticated; no bearer token on webhooks.
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)

	// -------- Sessions --------
	api.POST("/sessions", s.AuthRequired(), s.CreateSession)
	api.GET("/sessions", s.AuthRequired(), s.ListSessions)
	api.GET("/sessions/:id", s.AuthRequired(), s.GetSession)
	api.POST("/sessions/:id/heartbeat", s.AuthRequired(), s.Heartbeat)
	api.POST("/sessions/:id/end", s.AuthRequired(), s.EndSession)
	api.GET("/sessions/:id/events", s.AuthRequired(), s.StreamSessionEvents)

	// -------- Seats --------
	api.POST("/sessions/:id/seats/:idx", s.AuthRequired(), s.JoinSeat)
	api.DELETE("/sessions/:id/seats/:idx", s.AuthRequired(), s.LeaveSeat)
	api.POST("/sessions/:id/host-actions", s.AuthRequired(), s.HostAction)

	// -------- Viewers --------
	api.POST("/sessions/:id/viewers", s.AuthRequired(), s.JoinAsViewer)
	api.DELETE("/sessions/:id/viewers", s.AuthRequired(), s.LeaveAsViewer)

	// -------- Gifts --------
	api.GET("/gifts", s.AuthRequired(), s.ListGifts)
	api.POST("/sessions/:id/gifts", s.AuthRequired(), s.SendGift)

	// -------- Wallet --------
	api.GET("/wallet", s.AuthRequired(), s.GetWallet)
	api.GET("/wallet/transactions", s.AuthRequired(), s.ListWalletTransactions)

	// -------- Entitlements --------
	api.GET("/entitlements", s.AuthRequired(), s.ListEntitlements)
	api.POST("/entitlements", s.AuthRequired(), s.ActivateEntitlement)

	// -------- Calls --------
	api.POST("/calls", s.AuthRequired(), s.OfferCall)
	api.POST("/calls/answer", s.AuthRequired(), s.AnswerCall)
	api.POST("/calls/cancel", s.AuthRequired(), s.CancelCall)
	api.POST("/calls/extend", s.AuthRequired(), s.ExtendCall)

	// -------- Audit --------
	api.GET("/audit-logs", s.AuthRequired(), s.ListAuditLogs)
}
