package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pathfinderhq/syncagent/internal/models"
	"github.com/pathfinderhq/syncagent/internal/queue"
)

var queueTenant string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the pending sync queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending operations in drain order",
	RunE:  runQueueList,
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a pending operation without syncing it",
	Long: `Removes an operation from the queue. The mutation it carried is lost; use
this only for operations that are known to be stale or poisoned.`,
	Args: cobra.ExactArgs(1),
	RunE: runQueueRemove,
}

func init() {
	queueListCmd.Flags().StringVar(&queueTenant, "tenant", "", "only show operations of this tenant")
	queueCmd.AddCommand(queueListCmd, queueRemoveCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
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

	var ops []*models.SyncOperation
	if queueTenant != "" {
		ops, err = store.ListTenant(queueTenant)
	} else {
		ops, err = store.List()
	}
	if err != nil {
		return err
	}

	if len(ops) == 0 {
		fmt.Println("queue is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tPRIORITY\tTENANT\tATTEMPTS\tCREATED\tLAST ERROR")
	for _, op := range ops {
		lastError := ""
		if op.LastError != nil {
			lastError = *op.LastError
			if len(lastError) > 60 {
				lastError = lastError[:57] + "..."
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			op.ID, op.Kind, op.Priority, op.TenantID,
			op.AttemptCount, op.MaxAttempts,
			op.CreatedAtTime().Format(time.RFC3339), lastError)
	}
	return w.Flush()
}

func runQueueRemove(cmd *cobra.Command, args []string) error {
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
	id := models.UUID(args[0])
	if _, err := store.Get(id); err != nil {
		return err
	}
	if err := store.Remove(id); err != nil {
		return err
	}
	fmt.Println("removed", id)
	return nil
}
