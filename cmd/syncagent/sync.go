package main

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "github.com/pathfinderhq/syncagent/internal/errors"
	"github.com/pathfinderhq/syncagent/internal/events"
	"github.com/pathfinderhq/syncagent/internal/queue"
	syncengine "github.com/pathfinderhq/syncagent/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one drain pass and exit",
	Long: `Drains the pending queue once against the configured API. Useful from cron
or for debugging; a running agent is not required, the drain lock keeps the
two from draining concurrently.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
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

	queueStore := queue.NewStore(database.DB)
	queueStore.SetDefaultMaxAttempts(cfg.Sync.MaxAttempts)
	lock := queue.NewDrainLock(database.DB, cfg.LeaseTTL())
	executor := syncengine.NewAPIExecutor(cfg.API.BaseURL, cfg.API.Token, cfg.AttemptTimeout())
	engine := syncengine.NewEngine(queueStore, executor, events.NewBus(), lock,
		syncengine.WithBackoff(syncengine.Backoff{
			Base:   cfg.BackoffBase(),
			Max:    cfg.BackoffMax(),
			Jitter: true,
		}))

	result, err := engine.SyncNow(cmd.Context())
	if err != nil {
		return err
	}

	if result.Skipped {
		fmt.Println("drain skipped: another process holds the drain lock")
		return nil
	}
	fmt.Printf("drained %d operation(s): %d succeeded, %d retried, %d failed terminally (%.2fs)\n",
		result.Attempted, result.Succeeded, result.Retried, result.TerminalFailures,
		result.Duration.Seconds())
	return nil
}
