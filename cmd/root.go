package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daybreak-data/holiday-registry/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "holiday-registry",
	Short: "Multi-source public holiday reconciliation",
	Long:  "Fetches holiday calendars from multiple public APIs, reconciles conflicting mentions into canonical records, fact-checks them against a Claude oracle, and maintains a versioned registry.",
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
