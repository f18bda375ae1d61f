package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/studiva/automation-api/api/swagger"
	"github.com/studiva/automation-api/internal/handler"
	"github.com/studiva/automation-api/internal/middleware"
	"github.com/studiva/automation-api/internal/models"
	"github.com/studiva/automation-api/internal/repository"
	"github.com/studiva/automation-api/internal/service"
	"github.com/studiva/automation-api/pkg/cache"
	"github.com/studiva/automation-api/pkg/config"
	"github.com/studiva/automation-api/pkg/database"
	"github.com/studiva/automation-api/pkg/logger"
	corsmiddleware "github.com/studiva/automation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/studiva/automation-api/pkg/middleware/requestid"
)

// @title Studiva Automation API
// @version 1.0.0
// @description Relationship inference and workflow automation for school records
// @BasePath /api
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, suggestion caching disabled", "error", err)
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	studentRepo := repository.NewStudentRepository(db)
	parentRepo := repository.NewParentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	suggestionRepo := repository.NewSuggestionRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Inference.CacheTTL, logr, redisClient != nil)

	auditSvc := service.NewAuditService(auditRepo, cfg.Audit, logr)
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	entitySvc := service.NewEntityService(studentRepo, parentRepo, teacherRepo, classRepo, logr)
	analyzerSvc := service.NewAnalyzerService(entitySvc, suggestionRepo, cacheSvc, metrics, cfg.Inference.CandidateCap, logr)
	suggestionSvc := service.NewSuggestionService(suggestionRepo, validate, logr,
		service.WithSuggestionCache(cacheSvc, cfg.Inference.CacheTTL),
		service.WithSuggestionAudit(auditSvc),
		service.WithSuggestionDefaultLimit(cfg.Suggestions.DefaultLimit),
	)
	applierSvc := service.NewApplierService(db, suggestionRepo, studentRepo, parentRepo, teacherRepo, classRepo, logr,
		service.WithApplierCache(cacheSvc),
		service.WithApplierAudit(auditSvc),
		service.WithApplierMetrics(metrics),
	)
	workflowSvc := service.NewWorkflowService(workflowRepo, analyzerSvc, entitySvc, studentRepo, classRepo, validate, logr,
		service.WithWorkflowAudit(auditSvc),
		service.WithWorkflowMetrics(metrics),
		service.WithWorkflowSubjects(subjectRepo),
	)
	tokenSvc := service.NewTokenService(cfg.JWT)

	workflowHandler := handler.NewWorkflowHandler(workflowSvc)
	suggestionHandler := handler.NewSuggestionHandler(analyzerSvc, suggestionSvc, applierSvc,
		cfg.Inference.MinConfidence, cfg.Suggestions.ExportEnabled)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))

	workflows := api.Group("/workflows")
	operators := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleOperator)
	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	if cfg.Workflows.Enabled {
		workflows.POST("/execute", operators, workflowHandler.Execute)
		workflows.GET("", workflowHandler.List)
		workflows.GET("/:id/status", workflowHandler.Status)
		workflows.POST("/:id/rollback", admins, workflowHandler.Rollback)
	}
	if cfg.Inference.Enabled {
		workflows.POST("/infer-relationships",
			middleware.Audit(auditSvc, models.AuditActionInferenceRun, "relationship_suggestion"),
			suggestionHandler.Infer)
		workflows.GET("/relationship-suggestions", suggestionHandler.List)
		workflows.GET("/relationship-suggestions/:entityType/:entityId", suggestionHandler.ListForEntity)
		workflows.POST("/apply-relationship", operators, suggestionHandler.Apply)
		workflows.GET("/suggestions", suggestionHandler.List)
		workflows.GET("/suggestions/export", suggestionHandler.Export)
		workflows.PUT("/suggestions/:id", admins, suggestionHandler.Review)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
