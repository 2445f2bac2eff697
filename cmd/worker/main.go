package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"remindly/internal/config"
	"remindly/internal/domain/reminder"
	"remindly/internal/infra/diag"
	"remindly/internal/infra/email"
	"remindly/internal/infra/queue"
	"remindly/internal/infra/store"
	"remindly/internal/infra/template"
	"remindly/internal/infra/veto"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

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

	slog.Info("worker configuration loaded")

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	// Reminder tiers (fatal on malformed configuration)
	tiers, err := reminder.TiersFromConfig(cfg.Reminders.Tiers)
	if err != nil {
		slog.Error("invalid reminder tier configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("reminder tiers loaded", "count", len(tiers))

	// Template Engine
	templatesDir := resolveTemplatesDir()
	tmplEngine, err := template.NewEngine(templatesDir, cfg.Reminders.SiteName, tiers)
	if err != nil {
		slog.Error("failed to initialize template engine", "error", err, "dir", templatesDir)
		os.Exit(1)
	}
	slog.Info("template engine initialized", "dir", templatesDir)

	// Email Provider (Resend)
	emailProvider := email.NewResendProvider(
		cfg.Email.APIKey,
		cfg.Email.FromAddress,
		cfg.Email.FromName,
	)

	// Subscription source, ledger, directory, levels: Supabase in production,
	// in-memory when no URL is configured (local development).
	var (
		source    reminder.SubscriptionSource
		ledger    reminder.Ledger
		directory reminder.MemberDirectory
		levels    reminder.LevelSource
	)
	if cfg.Supabase.URL != "" {
		supaStore, err := store.NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
		if err != nil {
			slog.Error("failed to initialize supabase store", "error", err)
			os.Exit(1)
		}
		source, ledger, directory, levels = supaStore, supaStore, supaStore, supaStore
		slog.Info("supabase store initialized")
	} else {
		mem := store.NewMemory()
		source, ledger, directory, levels = mem, mem, mem, mem
		slog.Warn("no supabase url configured, using in-memory store")
	}

	// Veto hook: per-recipient daily send cap over Redis, when enabled
	var vetoHook reminder.VetoHook
	if cfg.VetoRateLimit.MaxPerDay > 0 {
		sendCap := veto.NewRedisSendCap(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.VetoRateLimit.MaxPerDay,
		)
		defer sendCap.Close()
		vetoHook = sendCap
		slog.Info("send cap veto hook enabled", "max_per_day", cfg.VetoRateLimit.MaxPerDay)
	}

	// Diagnostic sink per debug mode
	var sink reminder.DiagnosticSink
	switch cfg.Debug.Mode {
	case "file":
		sink = diag.NewFileSink(cfg.Debug.File)
		slog.Info("diagnostic log to file", "path", cfg.Debug.File)
	case "email":
		if cfg.Email.AdminAddress == "" {
			slog.Error("debug.mode is email but email.admin_address is not set")
			os.Exit(1)
		}
		sink = diag.NewEmailSink(emailProvider, cfg.Email.AdminAddress)
		slog.Info("diagnostic log to email", "to", cfg.Email.AdminAddress)
	}

	// Core: finder, dispatcher, runner
	finder := reminder.NewFinder(source, ledger)
	dispatcher := reminder.NewDispatcher(
		directory,
		levels,
		tmplEngine,
		emailProvider,
		ledger,
		vetoHook,
		reminder.SiteSettings{
			Name:           cfg.Reminders.SiteName,
			Email:          cfg.Reminders.SiteEmail,
			LoginURL:       cfg.Reminders.LoginURL,
			CancelURL:      cfg.Reminders.CancelURL,
			CurrencySymbol: cfg.Reminders.CurrencySymbol,
			DateFormat:     cfg.Reminders.DateFormat,
		},
		cfg.Reminders.VetoMarksNotified,
	)
	runner := reminder.NewRunner(reminder.StaticTiers(tiers), finder, dispatcher, sink)

	// Asynq client: the cron trigger funnels through the same run queue as
	// manual runs, so every run goes through the single-concurrency worker.
	asynqClient := queue.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	defer asynqClient.Close()

	// ==========================================
	// Asynq Server (run processing)
	// ==========================================

	asynqServer := queue.NewServer(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)

	mux := asynq.NewServeMux()
	mux.HandleFunc(reminder.TaskTypeRun, func(ctx context.Context, task *asynq.Task) error {
		payload, err := reminder.ParseRunTaskPayload(task.Payload())
		if err != nil {
			return err
		}
		_, err = runner.Run(ctx, reminder.RunOptions{DryRun: payload.DryRun})
		return err
	})

	go func() {
		slog.Info("worker starting", "redis", cfg.Redis.Address)
		if err := asynqServer.Run(mux); err != nil {
			slog.Error("worker failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// ==========================================
	// Daily Trigger
	// ==========================================

	cronEngine := cron.New()
	if _, err := cronEngine.AddFunc(cfg.Reminders.Schedule, func() {
		slog.Info("scheduled reminder run triggered", "schedule", cfg.Reminders.Schedule)
		if err := queue.EnqueueRun(asynqClient, false, cfg.Queue.MaxRetry); err != nil {
			slog.Error("failed to enqueue scheduled run", "error", err)
		}
	}); err != nil {
		slog.Error("invalid reminder schedule", "schedule", cfg.Reminders.Schedule, "error", err)
		os.Exit(1)
	}
	cronEngine.Start()
	slog.Info("daily trigger scheduled", "schedule", cfg.Reminders.Schedule)

	// ==========================================
	// Graceful Shutdown
	// ==========================================

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cronCtx := cronEngine.Stop()
	<-cronCtx.Done()
	asynqServer.Shutdown()
	slog.Info("worker exited gracefully")
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

	// Navigate from cmd/worker/main.go to internal/infra/template/templates
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	return filepath.Join(projectRoot, "internal", "infra", "template", "templates")
}
