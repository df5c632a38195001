package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/citypath/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "citypath",
	Short: "Urban heat, greenspace and siting analysis on a hex grid",
	Long:  "Aggregates satellite temperature, vegetation and population rasters onto H3 hex cells, persists the feature table, and ranks hexes for heat mitigation, park siting and clinic siting.",
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
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
