// Package api exposes the token ledger over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Aidin1998/tokenledger/api/responses"
	"github.com/Aidin1998/tokenledger/common/apiutil"
	"github.com/Aidin1998/tokenledger/common/auth"
	"github.com/Aidin1998/tokenledger/internal/config"
	"github.com/Aidin1998/tokenledger/internal/tokensale/market"
	"github.com/Aidin1998/tokenledger/internal/tokensale/marketdata"
	"github.com/Aidin1998/tokenledger/internal/tokensale/purchase"
	"github.com/Aidin1998/tokenledger/internal/tokensale/sale"
	"github.com/Aidin1998/tokenledger/internal/wallet"
	"github.com/Aidin1998/tokenledger/pkg/validation"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Services are the domain services the handlers call into.
type Services struct {
	Sale       *sale.Service
	Purchases  *purchase.Service
	Market     *market.Service
	MarketData *marketdata.Service
	Hub        *marketdata.Hub
	Addresses  *wallet.Registry
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// Server represents the API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        config.ServerConfig
	auth       config.AuthConfig
	svc        Services
	validator  *validation.Validator
	limiter    *apiutil.RateLimiter
	logger     *zap.Logger
}

// NewServer creates the API server and registers every route.
func NewServer(cfg config.ServerConfig, authCfg config.AuthConfig, svc Services, v *validation.Validator, limiter *apiutil.RateLimiter, logger *zap.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		auth:      authCfg,
		svc:       svc,
		validator: v,
		limiter:   limiter,
		logger:    logger.Named("api"),
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware("tokenledger-api"))
	router.Use(traceIDMiddleware())
	router.Use(apiutil.MetricsMiddleware())

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	router.Use(cors.New(corsCfg))

	s.router = router
	s.registerRoutes()
	return s
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("Starting API server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	public := s.router.Group("/api/v1")
	{
		public.GET("/health", s.healthCheck)
		public.GET("/metrics", gin.WrapH(promhttp.Handler()))

		public.GET("/token/ticks", s.limiter.Handler(nil), s.listTicks)
		public.GET("/token/candles", s.limiter.Handler(nil), s.listCandles)
		public.GET("/market/stream", s.streamMarket)
	}

	user := s.router.Group("/api/v1/token")
	user.Use(auth.Middleware(s.auth, s.logger), s.limiter.Handler(userKey))
	{
		user.GET("/sale", s.getSale)

		user.POST("/purchases", s.createPurchase)
		user.GET("/purchases", s.listPurchases)
		user.GET("/purchases/:id", s.getPurchase)
		user.POST("/purchases/:id/proof", s.submitProof)

		user.POST("/market/buy", s.buy)
		user.POST("/market/sell", s.sell)
		user.POST("/unstake", s.unstake)

		user.GET("/wallet", s.getWallet)
		user.GET("/wallet/entries", s.listWalletEntries)

		user.POST("/deposit-addresses", s.linkDepositAddress)
		user.GET("/deposit-addresses", s.listDepositAddresses)
		user.GET("/deposits", s.listDeposits)
	}

	admin := s.router.Group("/api/v1/admin/token")
	admin.Use(auth.Middleware(s.auth, s.logger), auth.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/purchases/pending", s.listPendingPurchases)
		admin.POST("/purchases/:id/confirm", s.confirmPurchase)
		admin.POST("/purchases/:id/reject", s.rejectPurchase)
		admin.POST("/sale/active", s.setSaleActive)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	if s.svc.Ready != nil {
		if err := s.svc.Ready(c.Request.Context()); err != nil {
			s.logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) streamMarket(c *gin.Context) {
	s.svc.Hub.ServeWS(c.Writer, c.Request)
}

// traceIDMiddleware exposes the request span's trace id to problem documents.
func traceIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := responses.TraceID(c); id != "" {
			c.Set("trace_id", id)
		}
		c.Next()
	}
}

func userKey(c *gin.Context) string {
	if id, ok := auth.UserID(c); ok {
		return id.String()
	}
	return ""
}
