// Package main runs the attention tracking HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-interview/attention/config"
	"github.com/aura-interview/attention/internal/analytics"
	"github.com/aura-interview/attention/internal/auth"
	"github.com/aura-interview/attention/internal/focus"
	"github.com/aura-interview/attention/internal/metrics"
	"github.com/aura-interview/attention/internal/middleware"
	"github.com/aura-interview/attention/internal/models"
	"github.com/aura-interview/attention/internal/realtime"
	"github.com/aura-interview/attention/internal/reports"
	"github.com/aura-interview/attention/internal/sessions"
	"github.com/aura-interview/attention/internal/worker"
	"github.com/aura-interview/attention/pkg/database"
	"github.com/aura-interview/attention/pkg/logger"
	"github.com/aura-interview/attention/pkg/queue"
	"github.com/aura-interview/attention/pkg/redis"
	"github.com/aura-interview/attention/pkg/response"
	"github.com/aura-interview/attention/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	log := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer log.Sync()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, log); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" && cfg.Reports.Bucket != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReportsBucket:        cfg.Reports.Bucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, log)
		if err != nil {
			log.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	m := metrics.New()
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, log)
	hub := realtime.NewHub(log, redisPubSub, redisPubSub, m)
	peers := realtime.NewPeerManager(log, realtime.ParseICEServers(cfg.WebRTC.ICEUrls))
	jobQueue := queue.NewQueue(rdb.Client, log)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, log)

	// Sessions: reports are only scheduled when there is somewhere to store them.
	sessionRepo := sessions.NewRepository(pool)
	var (
		reportQueue sessions.ReportQueue
		linker      sessions.ReportLinker
	)
	if s3Client != nil {
		reportQueue = jobQueue
		linker = s3Client
	}
	policy, _ := focus.ParseResetPolicy(cfg.Tracking.ResetPolicy)
	registry := sessions.NewRegistry(cfg.Tracking.IdleTimeout, log, m)
	sessionService := sessions.NewService(sessionRepo, registry, hub, reportQueue, m, sessions.Options{
		HistorySize:       cfg.Tracking.HistorySize,
		CalibrationPoints: cfg.Tracking.CalibrationPoints,
		QueueSize:         cfg.Tracking.SampleQueueSize,
		MarginRatio:       cfg.Tracking.MarginRatio,
		ResetPolicy:       policy,
	}, log)
	sessionHandler := sessions.NewHandler(sessionService, linker, log)

	// Analytics
	analyticsHandler := analytics.NewHandler(analytics.NewRepository(pool), log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(log))

	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok", "active_sessions": registry.Len()})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	var limiters *middleware.LimiterManager
	if cfg.RateLimit.Enabled {
		limiters = middleware.NewLimiterManager(float64(cfg.RateLimit.RequestsPerMinute)/60, cfg.RateLimit.Burst, 10*time.Minute)
		defer limiters.Close()
		api.Use(middleware.RateLimit(limiters, log))
	}
	{
		api.GET("/users", middleware.RequireRole(models.RoleAdmin), authHandler.List)

		sessionHandler.Register(api)

		api.GET("/candidates/:id/attention", analyticsHandler.GetByCandidate)
		api.GET("/analytics/least-attentive", middleware.RequireRole(models.RoleAdmin, models.RoleInterviewer), analyticsHandler.LeastAttentive)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(realtime.Deps{
		Hub:             hub,
		Tracker:         sessionService,
		Validator:       jwtService,
		Peers:           peers,
		MaxSampleRateHz: cfg.Tracking.MaxSampleRateHz,
		Logger:          log,
		Metrics:         m,
	}))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go sessionService.Run(bgCtx)

	// Background worker (report export to S3)
	if s3Client != nil {
		breaker := reports.NewBreaker(reports.BreakerSettings{
			MaxRequests: cfg.Reports.BreakerMaxRequests,
			Timeout:     cfg.Reports.BreakerTimeout,
			MinFailures: cfg.Reports.BreakerFailureMinimum,
		}, log)
		exporter := reports.NewExporter(sessionRepo, s3Client, breaker, m, log)
		go worker.NewReportProcessor(exporter, jobQueue, log).Run(bgCtx)
		log.Info("report worker started")
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	bgCancel()
	registry.Shutdown()
	log.Info("server stopped")
}
