package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/autonoc/autonoc/internal/analysis"
	"github.com/autonoc/autonoc/internal/api"
	"github.com/autonoc/autonoc/internal/auth"
	"github.com/autonoc/autonoc/internal/config"
	"github.com/autonoc/autonoc/internal/device"
	"github.com/autonoc/autonoc/internal/events"
	"github.com/autonoc/autonoc/internal/notify"
	"github.com/autonoc/autonoc/internal/pipeline"
	"github.com/autonoc/autonoc/internal/probe"
	"github.com/autonoc/autonoc/internal/runner"
	"github.com/autonoc/autonoc/internal/sanitize"
	"github.com/autonoc/autonoc/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	flag.Parse()

	// A .env file is optional; real environment variables win either way.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	logger := initLogger(cfg.Logging)
	logger.Info("Starting autonoc server",
		"version", "1.0.0",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Initialize database connection
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, store.Options{
		DSN:             cfg.Database.GetDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetimeMinutes) * time.Minute,
	}, logger)
	if err != nil {
		log.Fatalf("DB init failed: %v", err)
	}
	defer db.Close()

	// Run embedded migrations (compiled into the binary)
	if err := db.RunMigrations(); err != nil {
		log.Fatalf("Migrations failed: %v", err)
	}

	// Initialize authentication service
	authService, err := auth.NewService(
		cfg.Auth.JWTSecret,
		cfg.Auth.EncryptionKey,
		cfg.Auth.AdminUsername,
		cfg.Auth.AdminPassword,
		cfg.Auth.GetJWTExpiry(),
	)
	if err != nil {
		log.Fatalf("Failed to initialize auth service: %v", err)
	}

	// Initialize event channels
	channels := events.NewChannels(events.Config{
		StageBufferSize:      cfg.Runner.EventBuffer,
		CompletionBufferSize: cfg.Runner.EventBuffer,
	}, logger)
	logger.Info("Event channels initialized", "buffer", cfg.Runner.EventBuffer)

	// Initialize AMQP notifier (optional)
	var completionSink events.CompletionSink
	var notifier *notify.Notifier
	if cfg.Notify.Enabled {
		notifier = notify.New(notify.Config{
			URL:        cfg.Notify.URL,
			Exchange:   cfg.Notify.Exchange,
			RoutingKey: cfg.Notify.RoutingKey,
		}, logger)
		if err := notifier.Connect(ctx); err != nil {
			logger.Error("AMQP connect failed, completions will be logged only", "error", err)
		} else {
			completionSink = notifier
		}
	}

	// Build the diagnostic pipeline
	sanitizer := sanitize.New()
	dialers := pipeline.Dialers{
		SSH: device.NewSSHDialer(device.SSHOptions{
			ConnectTimeout: cfg.Device.GetConnectTimeout(),
			BannerTimeout:  cfg.Device.GetBannerTimeout(),
			CommandTimeout: cfg.Device.GetCommandTimeout(),
			DelayFactor:    cfg.Device.DelayFactor,
		}),
		WinRM: device.NewWinRMDialer(device.WinRMOptions{
			ConnectTimeout: cfg.Device.GetConnectTimeout(),
			UseHTTPS:       cfg.Device.WinRMHTTPS,
			SkipVerify:     cfg.Device.WinRMInsecure,
		}),
	}
	analyzer := analysis.NewClient(analysis.Options{
		BaseURL: cfg.Analysis.BaseURL,
		APIKey:  cfg.Analysis.APIKey,
		Model:   cfg.Analysis.Model,
		Timeout: cfg.Analysis.GetTimeout(),
	}, logger)
	pipe := pipeline.New(dialers, sanitizer, analyzer, logger)
	pipe.Pacing = cfg.Device.GetPacing()

	// Initialize the run worker
	runWorker := runner.New(runner.Config{
		QueueCapacity: cfg.Runner.QueueCapacity,
		HistoryLimit:  cfg.Runner.HistoryLimit,
	}, pipe, channels, db, logger)

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := runWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Run worker error", "error", err)
		}
	}()

	// Fan events out to websocket subscribers and the notifier
	wsHub := api.NewHub(logger)
	events.StartStageForwarder(ctx, channels, wsHub)
	events.StartCompletionForwarder(ctx, channels, completionSink, logger)

	prober := probe.New(cfg.Probe.GetTimeout(), sanitizer, logger)

	// Create API router
	router := api.NewRouter(cfg, &api.Dependencies{
		Querier:   db,
		Auth:      authService,
		Runner:    runWorker,
		Hub:       wsHub,
		Sanitizer: sanitizer,
		Prober:    prober,
		Pinger:    db,
		Logger:    logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Stop the worker and wait for an in-flight run to abort. The event
	// channels close only once their last publisher has stopped.
	cancel()
	select {
	case <-runnerDone:
		channels.Close()
	case <-shutdownCtx.Done():
		logger.Error("Run worker did not stop in time")
	}

	if notifier != nil {
		if err := notifier.Close(); err != nil {
			logger.Error("AMQP close failed", "error", err)
		}
	}

	logger.Info("Server stopped gracefully")
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	// Set log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Set format
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
