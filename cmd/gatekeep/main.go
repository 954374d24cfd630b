package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukerupert/gatekeep/internal/access"
	"github.com/dukerupert/gatekeep/internal/bot"
	"github.com/dukerupert/gatekeep/internal/config"
	"github.com/dukerupert/gatekeep/internal/database"
	"github.com/dukerupert/gatekeep/internal/logging"
	"github.com/dukerupert/gatekeep/internal/payment"
	"github.com/dukerupert/gatekeep/internal/plan"
	"github.com/dukerupert/gatekeep/internal/scheduler"
	"github.com/dukerupert/gatekeep/internal/store"
	"github.com/dukerupert/gatekeep/internal/subscription"
	"github.com/dukerupert/gatekeep/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)

	var subStore store.Store = store.NewMemory()
	var sqliteStore *store.SQLite
	if cfg.DBPath != "" {
		db, err := database.Open(cfg.DBPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		sqliteStore = store.NewSQLite(db)
		subStore = sqliteStore
	}

	expiryTimers := scheduler.New(logger.With("component", "expiry"))
	inviteTimers := scheduler.New(logger.With("component", "invites"))
	defer expiryTimers.StopAll()
	defer inviteTimers.StopAll()

	subs := subscription.NewService(subStore, expiryTimers, logger.With("component", "subscription"))

	tg := telegram.NewClient(cfg.TelegramToken)
	mp := payment.NewClient(cfg.MercadoPagoToken)

	ctrl := access.NewController(tg, subs, inviteTimers, cfg.GroupID, logger.With("component", "access"))
	subs.SetOnExpire(func(principal int64) {
		ctrl.Revoke(context.Background(), principal)
	})

	watcher := payment.NewWatcher(mp, logger.With("component", "watcher"),
		payment.WithInterval(cfg.PollInterval),
		payment.WithCeiling(cfg.WatchCeiling),
	)
	defer watcher.StopAll()

	// Records survive a restart when the sqlite store is in use; timers
	// never do, so rebuild them before taking traffic.
	if sqliteStore != nil {
		principals, err := sqliteStore.ActivePrincipals()
		if err != nil {
			slog.Error("list active principals", "error", err)
		} else {
			subs.RearmAll(principals)
			slog.Info("expiry timers rebuilt", "count", len(principals))
		}
	}

	b := bot.New(tg, plan.Default(), subs, ctrl, mp, watcher, logger.With("component", "bot"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down")
		cancel()
	}()

	slog.Info("gatekeep running", "group", cfg.GroupID)
	b.Run(ctx)
}
