package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/p2g/internal/errors"
)

var rootCmd = &cobra.Command{
	Use:   "p2g",
	Short: "p2g - Pingdom to Graphite",
	Long: `p2g copies Pingdom monitoring data into a hosted Graphite endpoint.

Each update pass fetches only what was not delivered before, using the
watermarks kept in the state file (or sqlite database).

Examples:
  p2g list --config p2g.toml       # List checks and transaction monitors
  p2g init --config p2g.toml       # Store the catalog in the manifest
  p2g update --config p2g.toml     # Sync everything new to Graphite
  p2g status --config p2g.toml     # Push the current up/down status`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (TOML)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (-v debug logs, -vv every progress step)")
	_ = rootCmd.MarkPersistentFlagRequired("config")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(probesCmd)
	rootCmd.AddCommand(adviceCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		pterm.Error.Println(err.Error())
		for _, hint := range errors.GetAllHints(err) {
			pterm.Info.Println(hint)
		}
		os.Exit(1)
	}
}
