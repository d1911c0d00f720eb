// Package main runs the background job worker (attention report export to S3).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aura-interview/attention/config"
	"github.com/aura-interview/attention/internal/reports"
	"github.com/aura-interview/attention/internal/sessions"
	"github.com/aura-interview/attention/internal/worker"
	"github.com/aura-interview/attention/pkg/database"
	"github.com/aura-interview/attention/pkg/logger"
	"github.com/aura-interview/attention/pkg/queue"
	"github.com/aura-interview/attention/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		ReportsBucket:        cfg.Reports.Bucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, log)
	if err != nil {
		log.Fatal("s3", zap.Error(err))
	}

	breaker := reports.NewBreaker(reports.BreakerSettings{
		MaxRequests: cfg.Reports.BreakerMaxRequests,
		Timeout:     cfg.Reports.BreakerTimeout,
		MinFailures: cfg.Reports.BreakerFailureMinimum,
	}, log)
	exporter := reports.NewExporter(sessions.NewRepository(pool), s3Client, breaker, nil, log)
	processor := worker.NewReportProcessor(exporter, queue.NewQueue(rdb.Client, log), log)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	log.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	log.Info("worker stopped")
}
