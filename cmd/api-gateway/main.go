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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/preenroll-api/api/swagger"
	"github.com/noah-isme/preenroll-api/internal/enrollment"
	"github.com/noah-isme/preenroll-api/internal/handler"
	"github.com/noah-isme/preenroll-api/internal/middleware"
	"github.com/noah-isme/preenroll-api/internal/repository"
	"github.com/noah-isme/preenroll-api/internal/service"
	"github.com/noah-isme/preenroll-api/pkg/cache"
	"github.com/noah-isme/preenroll-api/pkg/config"
	"github.com/noah-isme/preenroll-api/pkg/database"
	"github.com/noah-isme/preenroll-api/pkg/jobs"
	"github.com/noah-isme/preenroll-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/preenroll-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/preenroll-api/pkg/middleware/requestid"
)

// @title Pre-enrollment API
// @version 1.0.0
// @description Course pre-enrollment for students and the administrative console.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := enrollment.LoadLocation(cfg.Enrollment.TimeZone)
	if err != nil {
		logr.Fatal("invalid timezone", zap.String("timezone", cfg.Enrollment.TimeZone), zap.Error(err))
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, running without cache and idempotency", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	admins := repository.NewAdminRepository(db)
	careers := repository.NewCareerRepository(db)
	subjects := repository.NewSubjectRepository(db)
	careerSubjects := repository.NewCareerSubjectRepository(db)
	periods := repository.NewPeriodRepository(db)
	students := repository.NewStudentRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	refreshTokens := repository.NewRefreshTokenRepository(db)
	submissionLogs := repository.NewSubmissionLogRepository(db)
	idempotency := repository.NewIdempotencyRepository(redisClient)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	logSvc := service.NewSubmissionLogService(submissionLogs, metrics, loc, logr)
	logQueue := jobs.NewQueue("submission-logs", logSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.SubmissionLogs.Workers,
		BufferSize: cfg.SubmissionLogs.BufferSize,
		MaxRetries: cfg.SubmissionLogs.MaxRetries,
		RetryDelay: cfg.SubmissionLogs.RetryDelay,
		Logger:     logr,
	})
	// The queue outlives the signal context so requests finishing during shutdown can still log.
	logQueue.Start(context.Background())
	logSvc.UseQueue(logQueue)

	authSvc := service.NewAuthService(admins, students, careers, refreshTokens, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	careerSvc := service.NewCareerService(careers, cacheSvc, logSvc, validate, logr)
	subjectSvc := service.NewSubjectService(subjects, cacheSvc, logSvc, validate, logr)
	careerSubjectSvc := service.NewCareerSubjectService(careerSubjects, careers, subjects, cacheSvc, logSvc, validate, logr)
	periodSvc := service.NewPeriodService(periods, cacheSvc, logSvc, validate, logr, service.PeriodConfig{
		Location:    loc,
		MaxSemester: cfg.Enrollment.MaxSemester,
	})
	studentSvc := service.NewStudentService(students, careers, cacheSvc, logSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollments, students, periods, careerSubjects, idempotency, metrics, validate, logr, service.EnrollmentConfig{
		MaxSubjects:    cfg.Enrollment.MaxSubjects,
		Location:       loc,
		IdempotencyTTL: cfg.Enrollment.IdempotencyTTL,
	})
	dashboardSvc := service.NewDashboardService(admins, students, cacheSvc, logr, service.DashboardServiceConfig{})
	dbaSvc := service.NewDBAService(cfg.DBA.Token, students, refreshTokens, cacheSvc, logSvc, validate, logr)
	if cfg.DBA.Token == "" {
		logr.Warn("DBA_TOKEN is empty, maintenance routes will reject every request")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/metrics", "/health", "/ready"))
	r.Use(middleware.WithResponseMeta())

	checks := []handler.ReadinessCheck{{Name: "database", Ping: db.PingContext}}
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Ping: cacheRepo.Ping})
	}
	ops := handler.NewMetricsHandler(metrics, checks...)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:           handler.NewAuthHandler(authSvc, handler.AuthCookie{Name: cfg.JWT.CookieName, Secure: cfg.JWT.CookieSecure}),
		Career:         handler.NewCareerHandler(careerSvc),
		Subject:        handler.NewSubjectHandler(subjectSvc),
		CareerSubject:  handler.NewCareerSubjectHandler(careerSubjectSvc),
		Period:         handler.NewPeriodHandler(periodSvc),
		Student:        handler.NewStudentHandler(studentSvc),
		Enrollment:     handler.NewEnrollmentHandler(enrollmentSvc),
		Dashboard:      handler.NewDashboardHandler(dashboardSvc),
		DBA:            handler.NewDBAHandler(dbaSvc),
		SubmissionLogs: handler.NewSubmissionLogHandler(logSvc),
	}, handler.RouteGuards{
		Tokens:     authSvc,
		DBATokens:  dbaSvc,
		CookieName: cfg.JWT.CookieName,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logQueue.Stop()
}
