package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/citypath/internal/hexgrid"
	"github.com/sells-group/citypath/internal/model"
	"github.com/sells-group/citypath/internal/scorer"
)

var (
	rankTheme    string
	rankLimit    int
	suggestLimit int
	gridLimit    int
	gridBoundary bool
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank hexes for a theme (heat, greenspace, cool)",
	RunE: func(cmd *cobra.Command, args []string) error {
		theme, err := scorer.ParseTheme(rankTheme)
		if err != nil {
			return err
		}
		eng, st, err := loadEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := eng.Rank(theme, rankLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), recs)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats HEX_ID",
	Short: "Show rounded metrics for one hex",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, err := loadEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		s, ok := eng.Stats(args[0])
		if !ok {
			return eris.Errorf("hex %s not found", args[0])
		}
		return printJSON(cmd.OutOrStdout(), s)
	},
}

var suggestCmd = &cobra.Command{
	Use:       "suggest parks|clinics",
	Short:     "Suggest hexes for new parks or clinics",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(scorer.KindParks), string(scorer.KindClinics)},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := scorer.ParseKind(args[0])
		if err != nil {
			return err
		}
		eng, st, err := loadEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := eng.Suggest(kind, suggestLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), recs)
	},
}

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "List feature rows in table order",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, err := loadEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		items, err := gridItems(eng.Grid(gridLimit), gridBoundary)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), items)
	},
}

// gridItem is a feature row with an optional GeoJSON hex outline.
type gridItem struct {
	model.HexFeatureRow
	Boundary *geojson.Geometry `json:"boundary,omitempty"`
}

func gridItems(rows []model.HexFeatureRow, boundary bool) ([]gridItem, error) {
	items := make([]gridItem, len(rows))
	for i, r := range rows {
		items[i].HexFeatureRow = r
		if !boundary {
			continue
		}
		cell, ok := hexgrid.ParseID(r.HexID)
		if !ok {
			continue
		}
		poly, err := hexgrid.Boundary(cell)
		if err != nil {
			return nil, err
		}
		g, err := geojson.Encode(poly)
		if err != nil {
			return nil, eris.Wrapf(err, "encode boundary of %s", r.HexID)
		}
		items[i].Boundary = g
	}
	return items, nil
}

func init() {
	rankCmd.Flags().StringVar(&rankTheme, "theme", string(scorer.ThemeHeat), "theme: heat, greenspace or cool")
	rankCmd.Flags().IntVar(&rankLimit, "limit", scorer.DefaultRankLimit, "maximum records")
	suggestCmd.Flags().IntVar(&suggestLimit, "limit", scorer.DefaultSuggestLimit, "maximum records")
	gridCmd.Flags().IntVar(&gridLimit, "limit", scorer.DefaultGridLimit, "maximum rows")
	gridCmd.Flags().BoolVar(&gridBoundary, "boundary", false, "include hex outlines as GeoJSON")

	rootCmd.AddCommand(rankCmd, statsCmd, suggestCmd, gridCmd)
}
