package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/streetgen/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "streetgen",
	Short: "Street aggregation stage of the geodata generation pipeline",
	Long: `Groups raw road, square, and address-point features into per-region street
entities with merged multilingual names and composite geometry, rewrites the
street feature stream with the aggregated geometry, and exports one key-value
record per street for downstream search storage.`,
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
