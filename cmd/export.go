package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/citypath/internal/export"
	"github.com/sells-group/citypath/internal/scorer"
)

var (
	exportFormat   string
	exportOut      string
	exportTheme    string
	exportBoundary bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the feature table (shp, xlsx) or a theme score map (png)",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormat, exportOut)
		if err != nil {
			return err
		}
		eng, st, err := loadEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows := eng.Grid(eng.Len())
		switch format {
		case export.FormatShapefile:
			err = export.WriteShapefile(exportOut, rows, export.ShapefileOptions{Boundaries: exportBoundary})
		case export.FormatXLSX:
			err = export.WriteXLSX(exportOut, rows)
		case export.FormatPNG:
			err = exportScoreMap(eng)
		default:
			err = eris.Errorf("export: unsupported format %q", format)
		}
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("format", string(format)),
			zap.String("path", exportOut),
			zap.Int("rows", len(rows)),
		)
		return nil
	},
}

func exportScoreMap(eng *scorer.Engine) error {
	theme, err := scorer.ParseTheme(exportTheme)
	if err != nil {
		return err
	}
	recs, err := eng.Rank(theme, eng.Len())
	if err != nil {
		return err
	}
	return export.WritePNG(exportOut, cfg.City.Name+" "+string(theme), recs)
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "shp, xlsx or png (default: from --out extension)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file path")
	exportCmd.Flags().StringVar(&exportTheme, "theme", string(scorer.ThemeHeat), "theme scored in png exports")
	exportCmd.Flags().BoolVar(&exportBoundary, "boundary", false, "write hex outlines instead of centroids (shp)")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}
