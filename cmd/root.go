package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placegate/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "placegate",
	Short: "Unified gateway for address geocoding and place reviews",
	Long:  "Routes geocoding through the cheapest available upstream (free US Census first, paid Google fallback) and aggregates place reviews into a deduplicated, paginated stream.",
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
