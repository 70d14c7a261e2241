// Package main runs the exam proctoring backend: HTTP API, WebSocket stream
// relay, and graceful shutdown.
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
	"go.uber.org/zap/zapcore"

	"github.com/ueexam/backend/config"
	"github.com/ueexam/backend/internal/auth"
	"github.com/ueexam/backend/internal/directory"
	"github.com/ueexam/backend/internal/exams"
	"github.com/ueexam/backend/internal/middleware"
	"github.com/ueexam/backend/internal/monitoring"
	"github.com/ueexam/backend/internal/realtime"
	"github.com/ueexam/backend/internal/reports"
	"github.com/ueexam/backend/internal/submissions"
	"github.com/ueexam/backend/internal/worker"
	"github.com/ueexam/backend/pkg/database"
	"github.com/ueexam/backend/pkg/queue"
	"github.com/ueexam/backend/pkg/redis"
	"github.com/ueexam/backend/pkg/response"
	"github.com/ueexam/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReportsBucket:        cfg.AWS.ReportsBucket,
			SubmissionsBucket:    cfg.AWS.SubmissionsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Stream relay core
	registry := realtime.NewRegistry(logger)
	hub := realtime.NewHub(registry, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Exams
	examRepo := exams.NewRepository(pool)
	examHandler := exams.NewHandler(examRepo, logger)

	// Directory, reports, monitoring
	directoryRepo := directory.NewRepository(pool)
	reportRepo := reports.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	reportHandler := reports.NewHandler(reportRepo, s3Client, jobQueue, logger)
	exportProcessor := worker.NewReportExportProcessor(reportRepo, s3Client, jobQueue, logger)

	attendingWindow := time.Duration(cfg.Proctor.AttendingWindow) * time.Second
	aggregator := monitoring.NewAggregator(examRepo, directoryRepo, reportRepo, registry, attendingWindow, logger)
	monitoringHandler := monitoring.NewHandler(aggregator, registry, logger)

	// Submissions
	submissionRepo := submissions.NewRepository(pool)
	submissionHandler := submissions.NewHandler(submissionRepo, s3Client, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		dbStatus := "ok"
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			dbStatus = "down"
		}
		examIDs := registry.ActiveExamIDs()
		total := 0
		for _, id := range examIDs {
			total += registry.SessionCount(id)
		}
		response.OK(c, gin.H{
			"status":        "ok",
			"database":      dbStatus,
			"activeExams":   len(examIDs),
			"activeStreams": total,
		})
	})
	router.GET("/api/websocket/status", monitoringHandler.WebSocketStatus)

	// Auth (public)
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/get-role", authHandler.GetRole)
	}

	// Protected API (JWT required)
	api := router.Group("/api")
	api.Use(middleware.JWT(jwtService))
	{
		// Exams
		api.GET("/exams", examHandler.List)
		api.GET("/exams/:examId", examHandler.GetByID)
		api.POST("/exams", middleware.RequireRole("admin", "staff"), examHandler.Create)
		api.PUT("/exams/:examId", middleware.RequireRole("admin", "staff"), examHandler.Update)
		api.DELETE("/exams/:examId", middleware.RequireRole("admin"), examHandler.Delete)

		// Live monitoring (staff dashboard)
		api.GET("/exams/:examId/live-monitoring", middleware.RequireRole("admin", "staff"), monitoringHandler.GetLiveMonitoring)
		api.GET("/exams/:examId/video-chunk/:uid", middleware.RequireRole("admin", "staff"), monitoringHandler.GetVideoChunk)

		// Violation reports
		api.POST("/exams/:examId/report/upload", reportHandler.Upload)
		api.GET("/exams/:examId/report/:uid", middleware.RequireRole("admin", "staff"), reportHandler.Get)
		api.GET("/exams/:examId/reports", middleware.RequireRole("admin", "staff"), reportHandler.List)

		// Answer file submissions
		api.POST("/exams/upload-file", submissionHandler.Upload)
		api.GET("/exams/:examId/submissions/:uid", middleware.RequireRole("admin", "staff"), submissionHandler.List)
	}

	// WebSocket stream endpoints (no JWT; identity comes from the URL path)
	monitorOpts := realtime.MonitorOptions{
		StatusInterval:  time.Duration(cfg.Proctor.StatusInterval) * time.Second,
		AttendingWindow: attendingWindow,
		SendDepth:       cfg.Proctor.MonitorSendDepth,
	}
	router.GET("/video-stream/*stream", realtime.ServeIngest(registry, hub, cfg.Proctor.MaxChunkBytes, logger))
	router.GET("/admin-stream/*stream", realtime.ServeMonitor(registry, hub, aggregator, monitorOpts, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (report export archival to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		go exportProcessor.Run(workerCtx)
		logger.Info("report export worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
