package api

import (
	"context"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	internalapi "lootbox-hub/internal/api/internal"
	"lootbox-hub/internal/api/middleware"
	v1 "lootbox-hub/internal/api/v1"
	"lootbox-hub/internal/service"
	"lootbox-hub/internal/sse"
	jwtutil "lootbox-hub/pkg/jwt"
)

const (
	openRateLimit     = 30
	redeemRateLimit   = 10
	withdrawRateLimit = 10
	rateLimitWindow   = time.Minute
)

type RouterConfig struct {
	AllowOrigins   []string
	InternalToken  string
	CallbackSecret string
	TokenVerifier  *jwtutil.Verifier
	PingTimeout    time.Duration
	PprofEnabled   bool
}

type Services struct {
	Lootboxes   *service.LootboxService
	Withdrawals *service.WithdrawalService
	Codes       *service.ActivationCodeService
	Exchanges   *service.ExchangeService
	Coupons     *service.CouponService
	Deposits    *service.DepositService
	Users       *service.UserService
	Audit       *service.AuditService
	Tickets     *service.TicketService
	Dashboard   *service.DashboardService
	SSEHub      *sse.SSEHub
	System      *v1.SystemHandler
}

// NewRouter builds the public /api/v1 surface and the token-guarded
// /internal surface on one engine.
func NewRouter(cfg RouterConfig, svc Services, pool *pgxpool.Pool, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(buildCORSMiddleware(cfg.AllowOrigins))
	router.Use(middleware.RequestLogger(logger))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	readyHandler := func(c *gin.Context) {
		if pool == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		timeout := cfg.PingTimeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"error":  "database unavailable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}

	router.GET("/health", healthHandler)
	router.GET("/health/ready", readyHandler)
	router.GET("/api/v1/health", healthHandler)
	router.GET("/api/v1/health/ready", readyHandler)

	internal := router.Group("/internal")
	internal.Use(middleware.InternalOnly(cfg.InternalToken))
	internalapi.RegisterMetricsRoutes(internal)
	if svc.Deposits != nil {
		internalapi.RegisterDepositCallbackRoutes(internal, svc.Deposits, cfg.CallbackSecret, logger.Named("payment_callback"))
	}
	if svc.Users != nil {
		internalapi.RegisterTelegramRoutes(internal, svc.Users)
	}

	if cfg.PprofEnabled {
		registerPprofRoutes(router)
		logger.Info("pprof endpoint enabled", zap.String("path", "/debug/pprof/"))
	}

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.JWTAuth(cfg.TokenVerifier))
	admin := apiV1.Group("/admin")
	admin.Use(middleware.RequireOperator())

	openLimit := middleware.NewLimiter("open", openRateLimit, rateLimitWindow).Middleware()
	redeemLimit := middleware.NewLimiter("redeem", redeemRateLimit, rateLimitWindow).Middleware()
	withdrawLimit := middleware.NewLimiter("withdraw", withdrawRateLimit, rateLimitWindow).Middleware()

	v1.RegisterLootboxRoutes(apiV1, svc.Lootboxes, openLimit, logger)
	v1.RegisterWithdrawalRoutes(apiV1, admin, svc.Withdrawals, withdrawLimit, logger)
	v1.RegisterCodeRoutes(admin, svc.Codes, logger)
	v1.RegisterExchangeRoutes(apiV1, svc.Exchanges, logger)
	v1.RegisterCouponRoutes(apiV1, admin, svc.Coupons, redeemLimit, logger)
	v1.RegisterDepositRoutes(apiV1, svc.Deposits, logger)
	v1.RegisterUserRoutes(apiV1, admin, svc.Users, logger)
	v1.RegisterAuditRoutes(admin, svc.Audit, logger)
	v1.RegisterTicketRoutes(apiV1, admin, svc.Tickets, logger)
	v1.RegisterDashboardRoutes(admin, svc.Dashboard, logger)
	v1.RegisterSystemRoutes(apiV1, svc.System)
	if svc.SSEHub != nil {
		v1.RegisterSSERoutes(apiV1, svc.SSEHub)
	}

	return router
}

func buildCORSMiddleware(allowOrigins []string) gin.HandlerFunc {
	origins := make([]string, 0, len(allowOrigins))
	for _, origin := range allowOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		origins = append(origins, trimmed)
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Last-Event-ID", "X-Client-Fingerprint"},
		ExposeHeaders:    []string{"Content-Type", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func registerPprofRoutes(router *gin.Engine) {
	pprofGroup := router.Group("/debug/pprof")
	pprofGroup.GET("/", gin.WrapF(pprof.Index))
	pprofGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
	pprofGroup.GET("/symbol", gin.WrapF(pprof.Symbol))
	pprofGroup.POST("/symbol", gin.WrapF(pprof.Symbol))
	pprofGroup.GET("/trace", gin.WrapF(pprof.Trace))
	pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
}
