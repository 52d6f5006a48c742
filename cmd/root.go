package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claimant-intake/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "claimant-intake",
	Short: "Bulk claimant import with header inference and duplicate detection",
	Long:  "Imports claimant spreadsheets, maps their columns onto the claimant schema, flags duplicates against existing records and stages uploads for confirmation.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
