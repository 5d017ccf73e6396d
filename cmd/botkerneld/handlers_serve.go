package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tgdsl/runtime/internal/actions"
	"github.com/tgdsl/runtime/internal/broadcast"
	"github.com/tgdsl/runtime/internal/channels"
	"github.com/tgdsl/runtime/internal/channels/telegram"
	"github.com/tgdsl/runtime/internal/config"
	"github.com/tgdsl/runtime/internal/dsl"
	"github.com/tgdsl/runtime/internal/events"
	"github.com/tgdsl/runtime/internal/gateway"
	"github.com/tgdsl/runtime/internal/i18n"
	"github.com/tgdsl/runtime/internal/interpreter"
	"github.com/tgdsl/runtime/internal/llm"
	"github.com/tgdsl/runtime/internal/llmbreaker"
	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/internal/wizard"
)

// runServe loads configuration, wires every core component, and serves
// until ctx is cancelled (SIGINT/SIGTERM).
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	logger := slog.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded", "config", configPath, "http_port", cfg.Server.HTTPPort, "llm_enabled", cfg.LLM.Enabled)

	stores, closeStores, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStores()

	resolver := i18n.New(stores.Locales, stores.I18n)
	metrics := events.NewMetrics(prometheus.DefaultRegisterer)
	sink := events.New(stores.Events, metrics, logger)
	sink.SetMaskSensitiveData(cfg.Observability.MaskSensitiveData)
	wizards := wizard.New(stores.Wizards)

	retention := events.NewRetentionJob(stores.Events, cfg.Events.RetentionDays, logger)
	retention.Start(ctx)
	defer retention.Stop()
	specs := dsl.NewCache(stores.Specs)

	var breaker *llmbreaker.Breaker
	if cfg.LLM.Enabled {
		client := llm.NewClient(os.Getenv("OPENAI_API_KEY"))
		breaker = llmbreaker.New(client, stores.Budgets)
		breaker.OnStateChange(func(botID, to string) {
			sink.LLMBreaker(ctx, botID, events.NewTraceID(), "state_change", to)
		})
	}

	execs := actions.New(stores.DB, resolver, breaker, sink)
	interp := interpreter.New(stores.Bots, specs, wizards, resolver, execs, sink)

	registry := channels.NewRegistry()
	var tgAdapter *telegram.Adapter
	if cfg.Telegram.BotToken != "" {
		tgAdapter, err = telegram.New(telegram.Config{
			Token:     cfg.Telegram.BotToken,
			RateLimit: cfg.Telegram.RateLimit,
			RateBurst: cfg.Telegram.RateBurst,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("telegram adapter: %w", err)
		}
		registry.Register("telegram", tgAdapter)
	} else {
		logger.Warn("no telegram bot token configured, outbound sends are disabled")
	}

	broadcasts := broadcast.New(stores.Broadcasts, stores.BotUsers, resolver, registry, sink, logger)
	resumeBroadcasts(ctx, broadcasts, stores, logger)

	srv := gateway.New(gateway.Deps{
		Bots:        stores.Bots,
		SpecStore:   stores.Specs,
		Specs:       specs,
		I18n:        stores.I18n,
		Broadcasts:  stores.Broadcasts,
		Bookings:    stores.Bookings,
		Events:      stores.Events,
		Interpreter: interp,
		Telegram:    tgAdapter,
		Channels:    registry,
		DB:          stores.DB,
		LLMEnabled:  cfg.LLM.Enabled,
		Logger:      logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	if err := srv.Start(addr); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	srv.Stop(shutdownCtx)

	logger.Info("server stopped")
	return nil
}

// openStores picks Postgres when a DSN is configured, otherwise an
// in-memory store (local development / tests only, no sql_exec/sql_query
// action support).
func openStores(cfg *config.Config) (storage.StoreSet, func(), error) {
	if cfg.Database.DSN == "" {
		slog.Warn("no database DSN configured, using in-memory storage")
		stores := storage.NewMemoryStores()
		return stores, func() { _ = stores.Close() }, nil
	}
	stores, err := storage.NewPostgresStoresFromDSN(cfg.Database.DSN, nil)
	if err != nil {
		return storage.StoreSet{}, func() {}, err
	}
	return stores, func() { _ = stores.Close() }, nil
}

// resumeBroadcasts relaunches any broadcast left pending or running by a
// prior process, per §4.8's resumability requirement.
func resumeBroadcasts(ctx context.Context, engine *broadcast.Engine, stores storage.StoreSet, logger *slog.Logger) {
	pending, err := stores.Broadcasts.ListPending(ctx)
	if err != nil {
		logger.Warn("failed to list pending broadcasts", "error", err)
		return
	}
	for _, b := range pending {
		b := b
		go func() {
			if err := engine.Run(ctx, b); err != nil {
				logger.Error("broadcast run failed", "broadcast_id", b.ID, "error", err)
			}
		}()
	}
}
