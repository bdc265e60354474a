// Command syncagent runs the Pathfinder local sync agent: a durable offline
// mutation queue, a tenant-scoped cache and the engine that drains both to the
// Pathfinder API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pathfinderhq/syncagent/internal/config"
	"github.com/pathfinderhq/syncagent/internal/db"
	apperrors "github.com/pathfinderhq/syncagent/internal/errors"
	"github.com/pathfinderhq/syncagent/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "syncagent",
	Short: "Pathfinder offline sync agent",
	Long: `syncagent keeps locally captured mutations (check-ins, RSVPs, progress
updates) in a durable queue and replays them against the Pathfinder API when
connectivity allows. It also maintains a tenant-scoped local cache of server
data for offline reads.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the agent version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("syncagent " + version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file (YAML)")
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads configuration and initializes logging once per invocation.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	return cfg, nil
}

// openStore opens the agent database and brings the schema up to date.
func openStore(cfg *config.Config) (*db.DB, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		database.Close()
		return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to initialize migrations", err)
	}
	if err := migrator.Up(); err != nil {
		database.Close()
		return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to apply migrations", err)
	}
	return database, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
