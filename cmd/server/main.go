package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"remindly/internal/config"
	"remindly/internal/domain/reminder"
	"remindly/internal/infra/queue"
	"remindly/internal/infra/store"
	"remindly/internal/infra/template"
	"remindly/internal/router"

	"github.com/hibiken/asynq"
)

// queueEnqueuer adapts the asynq client to the reminder.RunEnqueuer interface.
type queueEnqueuer struct {
	client   *asynq.Client
	maxRetry int
}

func (q *queueEnqueuer) EnqueueRun(dryRun bool) error {
	return queue.EnqueueRun(q.client, dryRun, q.maxRetry)
}

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded", "port", cfg.Server.Port, "mode", cfg.Server.Mode)

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	// Reminder tiers (fatal on malformed configuration)
	tiers, err := reminder.TiersFromConfig(cfg.Reminders.Tiers)
	if err != nil {
		slog.Error("invalid reminder tier configuration", "error", err)
		os.Exit(1)
	}

	// Ledger: Supabase in production, in-memory without a configured URL
	var ledger reminder.Ledger
	if cfg.Supabase.URL != "" {
		supaStore, err := store.NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
		if err != nil {
			slog.Error("failed to initialize supabase store", "error", err)
			os.Exit(1)
		}
		ledger = supaStore
		slog.Info("supabase store initialized")
	} else {
		ledger = store.NewMemory()
		slog.Warn("no supabase url configured, using in-memory store")
	}

	// Template engine (serves the template catalog)
	templatesDir := resolveTemplatesDir()
	tmplEngine, err := template.NewEngine(templatesDir, cfg.Reminders.SiteName, tiers)
	if err != nil {
		slog.Error("failed to initialize template engine", "error", err, "dir", templatesDir)
		os.Exit(1)
	}
	slog.Info("template engine initialized", "dir", templatesDir)

	// Asynq Client (for enqueuing runs)
	asynqClient := queue.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	defer asynqClient.Close()
	slog.Info("asynq client initialized", "redis", cfg.Redis.Address)

	enqueuer := &queueEnqueuer{
		client:   asynqClient,
		maxRetry: cfg.Queue.MaxRetry,
	}

	// Handler
	reminderHandler := reminder.NewHandler(enqueuer, ledger, tmplEngine)

	// Router
	r := router.New(cfg, reminderHandler)

	// ==========================================
	// HTTP Server with Graceful Shutdown
	// ==========================================

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// resolveTemplatesDir finds the templates directory.
func resolveTemplatesDir() string {
	// Check if running in Docker (production)
	if _, err := os.Stat("/app/templates"); err == nil {
		return "/app/templates"
	}

	// Development: resolve relative to the source file location
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "internal/infra/template/templates"
	}

	// Navigate from cmd/server/main.go to internal/infra/template/templates
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	return filepath.Join(projectRoot, "internal", "infra", "template", "templates")
}
