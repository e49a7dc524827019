package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dessert-api/api"
	"dessert-api/config"
	"dessert-api/models"
	"dessert-api/services"
	"dessert-api/storage"
)

var orphanedUploadsCounter prometheus.Counter

func init() {
	orphanedUploadsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orphaned_uploads_removed_total",
			Help: "Total number of unreferenced upload objects removed by the sweep job.",
		},
	)
	prometheus.MustRegister(orphanedUploadsCounter)
}

func newLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	return cfg.Build()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logging, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Datenbank
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logging.Fatal("Failed to get database handle", zap.Error(err))
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.Dessert{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Upload-Speicher
	uploads, err := storage.New(ctx, cfg)
	if err != nil {
		logging.Fatal("Upload store creation failed", zap.Error(err), zap.String("backend", cfg.UploadBackend))
	}
	logging.Info("Upload store ready", zap.String("backend", cfg.UploadBackend))

	desserts := services.NewDessertService(db, logging)

	router := api.NewRouter(api.RouterConfig{
		Desserts:        desserts,
		Uploads:         uploads,
		Logger:          logging,
		Metrics:         api.NewMetrics(prometheus.DefaultRegisterer),
		MetricsHandler:  promhttp.Handler(),
		Ping:            sqlDB.PingContext,
		AllowOrigins:    cfg.AllowedOrigins(),
		UploadURLPrefix: cfg.UploadURLPrefix,
		UploadMaxBytes:  cfg.UploadMaxBytes,
	})

	// Cron
	cronScheduler := cron.New()
	if cfg.UploadSweepSchedule != "" {
		reconciler := services.NewUploadReconciler(uploads, desserts, cfg.UploadSweepGrace, logging)
		_, err := cronScheduler.AddFunc(cfg.UploadSweepSchedule, func() {
			logging.Info("Running scheduled upload sweep...")
			removed, err := reconciler.Sweep(ctx)
			if err != nil {
				logging.Error("Upload sweep failed", zap.Error(err))
				return
			}
			logging.Info("Upload sweep completed", zap.Int("removed", removed))
			orphanedUploadsCounter.Add(float64(removed))
		})
		if err != nil {
			logging.Fatal("Invalid UPLOAD_SWEEP_SCHEDULE", zap.String("schedule", cfg.UploadSweepSchedule), zap.Error(err))
		}
	}
	cronScheduler.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("Failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logging.Info("Shutting down...")

	<-cronScheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Graceful shutdown failed", zap.Error(err))
	}
	if err := sqlDB.Close(); err != nil {
		logging.Warn("Closing database failed", zap.Error(err))
	}
	logging.Info("Server stopped")
}
