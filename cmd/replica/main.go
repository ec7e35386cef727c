// The replica daemon keeps a local wallet copy in sqlite and reconciles it
// with the sync API on an interval. It is the headless counterpart of the
// mobile client: edits made through its store survive offline and flow to
// the server when connectivity returns.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/debitumapp/debitum/internal/replica/engine"
	"github.com/debitumapp/debitum/internal/replica/store"
	"github.com/debitumapp/debitum/internal/replica/transport"
	"github.com/debitumapp/debitum/pkg/config"
	"github.com/debitumapp/debitum/pkg/logger"
	"github.com/debitumapp/debitum/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "replica"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "replica",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":       cfg.App.Env,
		"base_url":  cfg.Replica.BaseURL,
		"wallet_id": cfg.Replica.WalletID,
		"store":     cfg.Replica.StorePath,
	})

	if cfg.Replica.BaseURL == "" || cfg.Replica.WalletID == "" {
		logg.Error(ctx, "replica requires DEBITUM_REPLICA_BASE_URL and DEBITUM_REPLICA_WALLET_ID", nil)
		os.Exit(1)
	}

	localStore, err := store.Open(cfg.Replica.StorePath)
	if err != nil {
		logg.Error(ctx, "failed to open replica store", err)
		os.Exit(1)
	}
	defer func() {
		if err := localStore.Close(); err != nil {
			logg.Error(ctx, "error closing replica store", err)
		}
	}()

	client := transport.NewClient(cfg.Replica)
	syncEngine := engine.NewEngine(localStore, client, cfg.Replica, logg)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The pub/sub nudge is best effort: without redis the engine still syncs
	// on its interval.
	if redisClient, err := redis.New(runCtx, cfg.Redis, logg); err != nil {
		logg.Warn(ctx, "redis unavailable, syncing on interval only")
	} else {
		defer redisClient.Close()
		go nudgeOnWalletEvents(runCtx, redisClient, cfg.Replica.WalletID, syncEngine, logg)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-shutdown
		logg.Info(ctx, "shutting down on signal "+sig.String())
		cancel()
	}()

	logg.Info(ctx, "starting replica sync loop")
	syncEngine.Run(runCtx)
}

// nudgeOnWalletEvents kicks the engine whenever the server announces newly
// accepted events for this wallet.
func nudgeOnWalletEvents(ctx context.Context, client *redis.Client, walletID string, syncEngine *engine.Engine, logg *logger.Logger) {
	sub, err := client.Subscribe(ctx, client.WalletEventsChannel(walletID))
	if err != nil {
		logg.Warn(ctx, "wallet events subscription failed, syncing on interval only")
		return
	}
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			syncEngine.Kick()
		}
	}
}
