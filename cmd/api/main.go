package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/coachdesk/coachdesk-api/api/swagger"
	"github.com/coachdesk/coachdesk-api/internal/handler"
	"github.com/coachdesk/coachdesk-api/internal/middleware"
	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/repository"
	"github.com/coachdesk/coachdesk-api/internal/service"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
	"github.com/coachdesk/coachdesk-api/pkg/cache"
	"github.com/coachdesk/coachdesk-api/pkg/config"
	"github.com/coachdesk/coachdesk-api/pkg/database"
	"github.com/coachdesk/coachdesk-api/pkg/jobs"
	"github.com/coachdesk/coachdesk-api/pkg/logger"
	corsmiddleware "github.com/coachdesk/coachdesk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/coachdesk/coachdesk-api/pkg/middleware/requestid"
	"github.com/coachdesk/coachdesk-api/pkg/storage"
)

// @title CoachDesk API
// @version 1.0.0
// @description Coaching academy administration backend
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	store := docstore.NewPostgresStore(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		logr.Sugar().Fatalw("failed to prepare document store", "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	// Repositories.
	credentialRepo := repository.NewCredentialRepository(store)
	userRepo := repository.NewUserRepository(store)
	studentRepo := repository.NewStudentRepository(store)
	assignmentRepo := repository.NewAssignmentRepository(store)
	classRepo := repository.NewClassRepository(store)
	tokenRepo := repository.NewTokenRepository(store)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	// Services.
	authSvc := service.NewAuthService(credentialRepo, userRepo, tokenRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	rosterSvc := service.NewRosterService(assignmentRepo, studentRepo, userRepo, metrics, logr)
	coachSvc := service.NewCoachService(credentialRepo, userRepo, assignmentRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, userRepo, rosterSvc, validate, logr)
	classSvc := service.NewClassService(classRepo, userRepo, studentRepo, cacheSvc, validate, logr)
	dashboardSvc := service.NewDashboardService(studentRepo, userRepo, classSvc, cacheSvc, logr, service.DashboardServiceConfig{
		CacheTTL:      cfg.Dashboard.CacheTTL,
		RecentClasses: cfg.Dashboard.RecentClasses,
	})

	var reportSvc *service.ReportService
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportRepo := repository.NewReportRepository(store)
		reportSvc = service.NewReportService(classSvc, reportRepo, files, signer, metrics, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
		})
		reportQueue = jobs.NewQueue("reports", reportSvc.Process, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportSvc.SetQueue(reportQueue)
		reportQueue.Start(context.Background())
		defer reportQueue.Stop()
		reportSvc.RecoverQueued(context.Background())
		reportSvc.StartCleanup(context.Background())
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	coachHandler := handler.NewCoachHandler(coachSvc, rosterSvc)
	rosterHandler := handler.NewRosterHandler(rosterSvc)
	classHandler := handler.NewClassHandler(classSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

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
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	authed := auth.Group("", middleware.JWT(authSvc))
	authed.POST("/logout", authHandler.Logout)
	authed.PUT("/password", authHandler.ChangePassword)
	authed.GET("/me", authHandler.Me)

	protected := api.Group("", middleware.JWT(authSvc))

	admin := protected.Group("", middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/students", studentHandler.List)
	admin.POST("/students", studentHandler.Create)
	admin.GET("/students/:id", studentHandler.Get)
	admin.PUT("/students/:id", studentHandler.Update)
	admin.DELETE("/students/:id", studentHandler.Delete)
	admin.GET("/students/:id/coach", rosterHandler.CurrentCoach)
	admin.PUT("/students/:id/coach", rosterHandler.Assign)
	admin.DELETE("/students/:id/coach", rosterHandler.Unassign)
	admin.GET("/students/:id/assignments", rosterHandler.History)

	admin.GET("/coaches", coachHandler.List)
	admin.POST("/coaches", coachHandler.Create)
	admin.GET("/coaches/:id", coachHandler.Get)
	admin.DELETE("/coaches/:id", coachHandler.Delete)
	admin.GET("/coaches/:id/roster", coachHandler.Roster)

	admin.GET("/payments", classHandler.Payments)
	admin.PUT("/payments/:id", classHandler.SetPaymentStatus)
	admin.POST("/payments/bulk-complete", classHandler.BulkCompletePayments)
	admin.GET("/dashboard/stats", dashboardHandler.Stats)
	admin.GET("/dashboard/recent-classes", dashboardHandler.RecentClasses)

	coach := protected.Group("", middleware.RequireRoles(models.RoleAdmin, models.RoleCoach))
	coach.POST("/classes", classHandler.Create)
	coach.GET("/classes", classHandler.ListMine)
	coach.DELETE("/classes/:id", classHandler.Delete)

	if reportSvc != nil {
		reportHandler := handler.NewReportHandler(reportSvc)
		coach.POST("/reports", reportHandler.Create)
		coach.GET("/reports/:id", reportHandler.Status)
		api.GET("/reports/download", reportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
