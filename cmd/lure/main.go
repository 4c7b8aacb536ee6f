package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MikeSquared-Agency/lure/internal/anthropic"
	"github.com/MikeSquared-Agency/lure/internal/api"
	"github.com/MikeSquared-Agency/lure/internal/classifier"
	"github.com/MikeSquared-Agency/lure/internal/config"
	"github.com/MikeSquared-Agency/lure/internal/engine"
	"github.com/MikeSquared-Agency/lure/internal/events"
	"github.com/MikeSquared-Agency/lure/internal/notifier"
	"github.com/MikeSquared-Agency/lure/internal/persona"
	"github.com/MikeSquared-Agency/lure/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("lure starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence
	db, err := store.Open(ctx, cfg.DatabaseURL, slog.Default())
	if err != nil {
		slog.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("session store ready")

	// Generative-text client is optional; without it the classifier and
	// responder run on their deterministic fallbacks.
	var llm *anthropic.Client
	if cfg.AnthropicAPIKey != "" {
		llm = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		slog.Info("anthropic client ready", "model", cfg.AnthropicModel)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, running on deterministic fallbacks only")
	}

	var cls *classifier.Classifier
	var resp *persona.Responder
	if llm != nil {
		cls = classifier.New(llm, slog.Default())
		resp = persona.New(llm, slog.Default())
	} else {
		cls = classifier.New(nil, slog.Default())
		resp = persona.New(nil, slog.Default())
	}

	// Result callback (optional; without it completed sessions are only
	// visible through the read APIs).
	var ntf engine.ResultNotifier
	if cfg.CallbackURL != "" {
		ntf = notifier.New(cfg.CallbackURL, slog.Default())
		slog.Info("result notifier ready", "url", cfg.CallbackURL)
	} else {
		slog.Warn("CALLBACK_URL not set, final results will not be delivered externally")
	}

	// NATS lifecycle events (optional)
	var ev engine.EventPublisher
	if cfg.NatsURL != "" {
		natsClient, err := events.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		ev = natsClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	// Conversation-state engine
	eng := engine.New(db, cls, resp, ntf, ev, slog.Default())

	// HTTP API
	if cfg.APIKey == "" {
		slog.Warn("LURE_API_KEY not set, API authentication disabled")
	}
	srv := api.NewServer(cfg.Port, cfg.APIKey, eng, db, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("lure ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("lure stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
