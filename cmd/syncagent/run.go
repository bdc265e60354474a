package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pathfinderhq/syncagent/internal/cache"
	apperrors "github.com/pathfinderhq/syncagent/internal/errors"
	"github.com/pathfinderhq/syncagent/internal/events"
	"github.com/pathfinderhq/syncagent/internal/logging"
	"github.com/pathfinderhq/syncagent/internal/netmon"
	"github.com/pathfinderhq/syncagent/internal/queue"
	"github.com/pathfinderhq/syncagent/internal/server"
	syncengine "github.com/pathfinderhq/syncagent/internal/sync"
	"github.com/pathfinderhq/syncagent/internal/sync/scheduler"
	"github.com/pathfinderhq/syncagent/internal/wakeup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync agent until interrupted",
	RunE:  runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.API.BaseURL == "" {
		return apperrors.New(apperrors.ErrNotConfigured, "api.base_url is not configured")
	}

	database, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queueStore := queue.NewStore(database.DB)
	queueStore.SetDefaultMaxAttempts(cfg.Sync.MaxAttempts)
	cacheStore := cache.NewStore(database.DB)
	lock := queue.NewDrainLock(database.DB, cfg.LeaseTTL())
	bus := events.NewBus()

	monitor := netmon.NewMonitor(netmon.NewHTTPProber(cfg.ProbeURL()), cfg.ProbeInterval())
	executor := syncengine.NewAPIExecutor(cfg.API.BaseURL, cfg.API.Token, cfg.AttemptTimeout())

	engine := syncengine.NewEngine(queueStore, executor, bus, lock,
		syncengine.WithOnlineCheck(monitor.IsOnline),
		syncengine.WithBackoff(syncengine.Backoff{
			Base:   cfg.BackoffBase(),
			Max:    cfg.BackoffMax(),
			Jitter: true,
		}),
	)

	// Offline drains re-arm themselves on a timer when connectivity edges
	// alone are not enough, e.g. the process started offline.
	wake := wakeup.NewTimer(cfg.SyncInterval(), func(tag string) {
		if _, err := engine.SyncNow(ctx); err != nil {
			logging.Error("scheduled wakeup drain failed", err, zap.String("tag", tag))
		}
	})
	syncengine.WithWakeup(wake)(engine)

	sched := scheduler.New(engine, monitor, cfg.SyncInterval())
	srv := server.New(cfg.Server.Addr, engine, queueStore, cacheStore, bus)

	monitor.Start(ctx)
	sched.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logging.Info("sync agent started",
		zap.String("version", version),
		zap.String("data_dir", cfg.DataDir),
		zap.String("api", cfg.API.BaseURL),
		zap.String("lock_holder", lock.Holder()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logging.Error("control server failed", err)
			return err
		}
	}

	cancel()
	sched.Stop()
	monitor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("control server shutdown failed", err)
	}

	logging.Sync()
	return nil
}
