package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/citypath/internal/monitoring"
	"github.com/sells-group/citypath/internal/pipeline"
	"github.com/sells-group/citypath/internal/raster"
)

var buildRunID string

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Aggregate rasters onto the hex grid and persist the feature table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("build"); err != nil {
			return err
		}

		st, err := openWritableStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p := pipeline.New(cfg, raster.NewGDALReader(), st,
			pipeline.WithMetrics(monitoring.NewMetrics()),
			pipeline.WithRunID(buildRunID),
		)
		res, err := p.Run(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("build complete",
			zap.String("run_id", res.Run.ID),
			zap.Int("rows", res.Run.RowCount),
			zap.Int("dropped", res.Stats.Dropped),
			zap.Int("rings", res.Coverage.Rings),
		)
		return printJSON(cmd.OutOrStdout(), res.Run)
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildRunID, "run-id", "", "build run id (default: generated)")
	rootCmd.AddCommand(buildCmd)
}
