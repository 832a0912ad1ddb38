package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/irs-iip/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "irs-iip",
	Short: "Proximity analysis of residential school sites and infrastructure projects",
	Long:  "Buffers former Indian Residential School sites, joins Indigenous-led infrastructure projects to the buffers and to their nearest site, summarises the results and estimates the cross-K function.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; environment and config.yaml still apply.
		_ = godotenv.Load()

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
