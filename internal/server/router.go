package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/config"
	"github.com/chungtau/ledger-bank/internal/handler"
	"github.com/chungtau/ledger-bank/internal/middleware"
)

// Deps are the services the HTTP edge dispatches to. Redis is optional;
// without it rate limiting and idempotent replay are disabled.
type Deps struct {
	Ledger   handler.Ledger
	Queries  handler.Queries
	Accounts handler.Accounts
	Health   *handler.HealthHandler
	Redis    *redis.Client
	Log      *zap.Logger
}

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.DevMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Logging(deps.Log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.IdempotencyHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader, middleware.IdempotencyHitHeader, "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	transactionHandler := handler.NewTransactionHandler(deps.Ledger, deps.Queries)
	accountHandler := handler.NewAccountHandler(deps.Accounts)
	balanceHandler := handler.NewBalanceHandler(deps.Queries)
	authHandler := handler.NewAuthHandler(cfg.JWTSecret, cfg.DevMode)

	// Health check endpoints (no auth required)
	router.GET("/health", deps.Health.Liveness)
	router.GET("/health/ready", deps.Health.Readiness)

	if cfg.DevMode {
		router.POST("/auth/dev/token", authHandler.GenerateDevToken)
	}

	v1 := router.Group("/v1")
	{
		v1.Use(middleware.Auth(cfg.JWTSecret))

		if deps.Redis != nil {
			rateLimiter := middleware.NewRateLimiter(deps.Redis, cfg.RateLimitRPS, cfg.RateLimitBurst)
			v1.Use(rateLimiter.Middleware())
		}

		transactions := v1.Group("/transactions")
		{
			transfer := []gin.HandlerFunc{transactionHandler.Transfer}
			if deps.Redis != nil {
				idem := middleware.NewIdempotency(deps.Redis, cfg.IdempotencyTTL)
				transfer = append([]gin.HandlerFunc{idem.Middleware()}, transfer...)
			}

			transactions.POST("/deposit", transactionHandler.Deposit)
			transactions.POST("/withdraw", transactionHandler.Withdraw)
			transactions.POST("/transfer", transfer...)
			transactions.GET("", transactionHandler.List)
			transactions.GET("/:id", transactionHandler.Get)
		}

		accounts := v1.Group("/accounts")
		{
			accounts.POST("", accountHandler.Create)
			accounts.GET("", accountHandler.List)
			accounts.GET("/:id", accountHandler.Get)
			accounts.PATCH("/:id", accountHandler.Update)
			accounts.DELETE("/:id", accountHandler.Delete)
			accounts.GET("/:id/balance", balanceHandler.Get)
		}
	}

	return router
}
