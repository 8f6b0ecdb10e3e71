package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusport/achievement-api/api/swagger"
	"github.com/campusport/achievement-api/internal/handler"
	"github.com/campusport/achievement-api/internal/middleware"
	"github.com/campusport/achievement-api/internal/migrate"
	"github.com/campusport/achievement-api/internal/models"
	"github.com/campusport/achievement-api/internal/repository"
	"github.com/campusport/achievement-api/internal/service"
	"github.com/campusport/achievement-api/pkg/cache"
	"github.com/campusport/achievement-api/pkg/config"
	"github.com/campusport/achievement-api/pkg/database"
	"github.com/campusport/achievement-api/pkg/logger"
	corsmiddleware "github.com/campusport/achievement-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusport/achievement-api/pkg/middleware/requestid"
	"github.com/campusport/achievement-api/pkg/storage"
)

// @title CampusPort Achievement API
// @version 0.1.0
// @description Student achievement submission and verification workflow
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

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := migrate.Up(ctx, database.DSN(cfg.Database)); err != nil {
			cancel()
			logr.Sugar().Fatalw("migrations failed", "error", err)
		}
		cancel()
		logr.Info("migrations applied")
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	claimRepo := repository.NewClaimRepository(db)
	userRepo := repository.NewUserRepository(db)

	metricsSvc := service.NewMetricsService()

	validate := validator.New()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	claimOpts := []service.ClaimServiceOption{
		service.WithClaimMetrics(metricsSvc),
		service.WithClaimLimits(service.ClaimLimits{
			MaxEvidenceFiles:    cfg.Evidence.MaxFiles,
			MaxEvidenceSize:     cfg.Evidence.MaxFileSizeBytes,
			AllowedEvidenceMIME: cfg.Evidence.AllowedMIMEs,
		}),
	}
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, claim list caching disabled", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			claimOpts = append(claimOpts, service.WithClaimCache(cacheRepo, cfg.Claims.ListCacheTTL))
		}
	}
	claimSvc := service.NewClaimService(claimRepo, userRepo, logr, claimOpts...)

	evidenceStore, err := storage.NewLocalStorage(cfg.Evidence.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init evidence storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)
	evidenceSvc := service.NewEvidenceService(evidenceStore, signer, service.EvidenceLimits{
		MaxFileSizeBytes: cfg.Evidence.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Evidence.AllowedMIMEs,
	}, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	claimHandler := handler.NewClaimHandler(claimSvc)
	evidenceHandler := handler.NewEvidenceHandler(evidenceSvc)

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
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.GET("/claims", claimHandler.List)
		authed.GET("/claims/:id", claimHandler.Get)
		authed.POST("/claims", middleware.RequireRoles(models.RoleStudent), claimHandler.Submit)
		authed.POST("/claims/:id/review", middleware.RequireRoles(models.RoleFaculty, models.RoleAdmin), claimHandler.Review)
		authed.POST("/evidence", middleware.RequireRoles(models.RoleStudent), evidenceHandler.Upload)
	}

	// Signed tokens carry their own authorization; no JWT needed here.
	api.GET("/evidence/:token", evidenceHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
