package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/laundryos/auth-api/api/swagger"
	"github.com/laundryos/auth-api/internal/handler"
	"github.com/laundryos/auth-api/internal/middleware"
	"github.com/laundryos/auth-api/internal/repository"
	"github.com/laundryos/auth-api/internal/service"
	"github.com/laundryos/auth-api/pkg/cache"
	"github.com/laundryos/auth-api/pkg/config"
	"github.com/laundryos/auth-api/pkg/database"
	"github.com/laundryos/auth-api/pkg/logger"
	"github.com/laundryos/auth-api/pkg/mailer"
	corsmiddleware "github.com/laundryos/auth-api/pkg/middleware/cors"
	reqidmiddleware "github.com/laundryos/auth-api/pkg/middleware/requestid"
)

// @title Laundry OS Auth API
// @version 1.0.0
// @description Authentication, device trust, and session management
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The blacklist degrades to always-empty without Redis; revocation
		// via token_version and session state keeps working.
		logr.Sugar().Warnw("redis unavailable, token blacklist disabled", "error", err)
		redisClient = nil
	}

	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	otps := repository.NewOTPRepository(db)
	devices := repository.NewDeviceRepository(db)
	attempts := repository.NewAttemptRepository(db)
	blacklist := repository.NewBlacklistRepository(redisClient, logr)
	defer blacklist.Close()

	metricsSvc := service.NewMetricsService()
	notifier := service.NewMailNotifier(mailer.NewSMTPSender(cfg.SMTP))

	tokenSvc := service.NewTokenService(users, sessions, logr, metricsSvc, service.TokenConfig{
		Secret:        cfg.JWT.Secret,
		Issuer:        cfg.JWT.Issuer,
		AccessExpiry:  cfg.JWT.AccessExpiry,
		RefreshExpiry: cfg.JWT.RefreshExpiry,
	})
	otpSvc := service.NewOTPService(otps, logr, metricsSvc, cfg.OTP)
	authSvc := service.NewAuthService(users, devices, attempts, tokenSvc, otpSvc, notifier, nil, logr, metricsSvc, cfg.Lockout)
	revocationSvc := service.NewRevocationService(sessions, blacklist, tokenSvc, logr, metricsSvc)

	authHandler := handler.NewAuthHandler(authSvc, tokenSvc, revocationSvc)
	sessionHandler := handler.NewSessionHandler(revocationSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", middleware.RequireDeviceID(), authHandler.Login)
	auth.POST("/verify-otp", middleware.RequireDeviceID(), authHandler.VerifyOTP)
	auth.POST("/resend-otp", authHandler.ResendOTP)
	auth.POST("/refresh-token", authHandler.Refresh)

	protected := auth.Group("")
	protected.Use(middleware.JWT(tokenSvc, blacklist, users, logr))
	protected.POST("/logout", authHandler.Logout)
	protected.POST("/logout-all", authHandler.LogoutAll)
	protected.GET("/me", authHandler.Me)
	protected.GET("/sessions", sessionHandler.List)
	protected.POST("/sessions/revoke", sessionHandler.Revoke)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
