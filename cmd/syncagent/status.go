package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pathfinderhq/syncagent/internal/db"
	"github.com/pathfinderhq/syncagent/internal/models"
	"github.com/pathfinderhq/syncagent/internal/queue"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth and schema state of the local store",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	store := queue.NewStore(database.DB)
	total, err := store.Count()
	if err != nil {
		return err
	}
	byPriority, err := store.CountByPriority()
	if err != nil {
		return err
	}

	version, err := db.NewMigrator(database.DB).CurrentVersion()
	if err != nil {
		return err
	}

	fmt.Printf("data dir:       %s\n", cfg.DataDir)
	fmt.Printf("schema version: %d\n", version)
	fmt.Printf("pending:        %d\n", total)
	for _, p := range []models.Priority{models.PriorityHigh, models.PriorityNormal, models.PriorityLow} {
		if n := byPriority[p]; n > 0 {
			fmt.Printf("  %-8s      %d\n", p, n)
		}
	}
	return nil
}
