// PixelHub Server
//
// Features:
// - Prometheus metrics & structured logging (zap)
// - Multi-backend image storage (local, S3, MinIO, GitHub, Gitee)
// - Upload routing with per-backend retry
// - Image file proxy honoring the backend recorded at write time
// - Gallery listing with search, trash and keyset pagination
// - Runtime storage settings with env seeding
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yuhuotech/pixelhub/internal/api"
	"github.com/yuhuotech/pixelhub/internal/auth"
	"github.com/yuhuotech/pixelhub/internal/config"
	"github.com/yuhuotech/pixelhub/internal/logging"
	"github.com/yuhuotech/pixelhub/internal/metadata/postgres"
	"github.com/yuhuotech/pixelhub/internal/metrics"
	"github.com/yuhuotech/pixelhub/internal/proxy"
	"github.com/yuhuotech/pixelhub/internal/settings"
	"github.com/yuhuotech/pixelhub/internal/upload"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("PixelHub Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logging.Info("connecting to PostgreSQL...")
	metaStore, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("database connection failed", zap.Error(err))
	}
	defer metaStore.Close()

	// Run migrations
	migrationsDir := findMigrationsDir()
	if migrationsDir != "" {
		logging.Info("running migrations...", zap.String("dir", migrationsDir))
		if err := metaStore.Migrate(migrationsDir); err != nil {
			logging.Fatal("migration failed", zap.Error(err))
		}
	}

	db := metaStore.DB()

	// Seed storage settings from the environment on first run
	settingsStore := settings.New(db)
	if err := settingsStore.Seed(ctx); err != nil {
		logging.Fatal("settings seed failed", zap.Error(err))
	}

	// Initialize auth and the admin account
	authHandler := auth.New(db, cfg.JWTSecret)
	if err := authHandler.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logging.Fatal("failed to ensure admin user", zap.Error(err))
	}

	uploader := upload.New(metaStore, cfg.MaxUploadSize)
	fileProxy := proxy.New(metaStore)

	srv := api.NewServer(api.Options{
		Store:         metaStore,
		Settings:      settingsStore,
		Auth:          authHandler,
		Uploader:      uploader,
		Proxy:         fileProxy,
		MaxUploadSize: cfg.MaxUploadSize,
		BaseURL:       cfg.BaseURL,
	})

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		httpServer.Close()
		metricsServer.Close()
	}()

	// Start periodic metrics update
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metaStore.UpdateConnectionMetrics()
			}
		}
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
}

func findMigrationsDir() string {
	candidates := []string{
		"migrations",
		"../migrations",
	}

	exe, _ := os.Executable()
	if exe != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "migrations"))
	}

	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}
