package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/gauntlet/config"
	"github.com/alejandrodnm/gauntlet/internal/adapters/agents"
	"github.com/alejandrodnm/gauntlet/internal/adapters/binance"
	"github.com/alejandrodnm/gauntlet/internal/adapters/notify"
	"github.com/alejandrodnm/gauntlet/internal/adapters/storage"
	"github.com/alejandrodnm/gauntlet/internal/api"
	"github.com/alejandrodnm/gauntlet/internal/application/agent"
	"github.com/alejandrodnm/gauntlet/internal/application/engine"
	"github.com/alejandrodnm/gauntlet/internal/application/scheduler"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("gauntlet starting",
		"config", *configPath,
		"listen", cfg.HTTP.Listen,
		"universe", cfg.Market.Universe,
		"db", cfg.Storage.DSN,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	market := binance.NewClient(cfg.Market.BinanceBase)
	registry := agents.NewRegistry(agents.Keys{
		Anthropic: cfg.Agents.AnthropicAPIKey,
		OpenAI:    cfg.Agents.OpenAIAPIKey,
		DeepSeek:  cfg.Agents.DeepSeekAPIKey,
		Qwen:      cfg.Agents.QwenAPIKey,
	})

	locks := engine.NewLockRegistry()
	eng := engine.NewTradingEngine(store, market, locks)
	invoker := agent.NewInvoker(store, market, registry, eng, cfg.Market.Universe)

	sched := scheduler.New(scheduler.Config{
		MarkToMarketInterval: cfg.MarkToMarketInterval(),
		DecisionPollInterval: cfg.DecisionPollInterval(),
		MaxConcurrentAgents:  cfg.Scheduler.MaxConcurrentAgents,
	}, store, market, invoker, locks, notify.NewConsole())

	server := api.NewServer(store, market, invoker, cfg.HTTP.AdminKey, cfg.Market.Universe)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Listen,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		slog.Info("http server listening", "addr", cfg.HTTP.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "err", err)
			cancel()
		}
	}()

	if err := sched.Run(ctx); err != nil {
		slog.Error("scheduler exited with error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}

	slog.Info("gauntlet stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
