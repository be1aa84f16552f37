// Package server exposes the billing engines over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	cartdomain "github.com/billinglab/subledger/internal/cart/domain"
	chargedomain "github.com/billinglab/subledger/internal/charge/domain"
	checkoutdomain "github.com/billinglab/subledger/internal/checkout/domain"
	"github.com/billinglab/subledger/internal/clock"
	"github.com/billinglab/subledger/internal/config"
	coupondomain "github.com/billinglab/subledger/internal/coupon/domain"
	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	organizationdomain "github.com/billinglab/subledger/internal/organization/domain"
	plandomain "github.com/billinglab/subledger/internal/plan/domain"
	"github.com/billinglab/subledger/internal/platform"
	subscriptiondomain "github.com/billinglab/subledger/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewEngine(log *zap.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	platform        platform.Context
	organizationSvc organizationdomain.Service
	planRepo        plandomain.Repository
	subscriptionSvc subscriptiondomain.Service
	cartRepo        cartdomain.Repository
	checkoutSvc     checkoutdomain.Service
	chargeSvc       chargedomain.Service
	couponSvc       coupondomain.Service
	couponRepo      coupondomain.Repository
	ledgerSvc       ledgerdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Platform        platform.Context
	OrganizationSvc organizationdomain.Service
	PlanRepo        plandomain.Repository
	SubscriptionSvc subscriptiondomain.Service
	CartRepo        cartdomain.Repository
	CheckoutSvc     checkoutdomain.Service
	ChargeSvc       chargedomain.Service
	CouponSvc       coupondomain.Service
	CouponRepo      coupondomain.Repository
	LedgerSvc       ledgerdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		genID:           p.GenID,
		clock:           p.Clock,
		platform:        p.Platform,
		organizationSvc: p.OrganizationSvc,
		planRepo:        p.PlanRepo,
		subscriptionSvc: p.SubscriptionSvc,
		cartRepo:        p.CartRepo,
		checkoutSvc:     p.CheckoutSvc,
		chargeSvc:       p.ChargeSvc,
		couponSvc:       p.CouponSvc,
		couponRepo:      p.CouponRepo,
		ledgerSvc:       p.LedgerSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/v1")

	api.POST("/organizations", s.CreateOrganization)
	api.GET("/organizations/:slug", s.GetOrganization)
	api.GET("/organizations/:slug/balance", s.GetOrganizationBalance)
	api.POST("/organizations/:slug/card", s.AssociateCard)
	api.POST("/organizations/:slug/withdraw", s.Withdraw)
	api.POST("/organizations/:slug/members", s.AddMember)

	api.POST("/organizations/:slug/plans", s.CreatePlan)
	api.GET("/organizations/:slug/plans/:plan", s.GetPlan)
	api.DELETE("/organizations/:slug/plans/:plan", s.DeletePlan)

	api.GET("/organizations/:slug/subscriptions", s.ListSubscriptions)
	api.DELETE("/subscriptions/:id", s.Unsubscribe)
	api.GET("/subscriptions/:id/balance", s.SubscriptionBalance)

	api.POST("/cart", s.AddCartItem)
	api.GET("/organizations/:slug/checkout", s.PreviewCheckout)
	api.POST("/organizations/:slug/checkout", s.Checkout)
	api.POST("/organizations/:slug/charges/deferred", s.ChargeDeferred)

	api.GET("/charges/:id", s.GetCharge)
	api.POST("/charges/:id/refund", s.RefundCharge)

	api.POST("/organizations/:slug/coupons", s.MintCoupon)
	api.GET("/organizations/:slug/coupons", s.ListCoupons)

	s.engine.POST("/webhooks/:provider", s.HandleProcessorWebhook)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)
