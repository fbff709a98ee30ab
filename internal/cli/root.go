// Package cli holds the tallyd command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tallyd",
	Short: "Back-office ledger daemon for customer credits and event deposits",
	Long: `tallyd keeps the credits and deposits ledgers in sync with the shared
store, serves their read models over HTTP, and applies mutations
write-through. When the store is unreachable at startup it serves the
last locally persisted snapshot in a degraded, read-mostly mode.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tally.toml", "Path to the configuration file")
}

// Execute runs the command tree and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
