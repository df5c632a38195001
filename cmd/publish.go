package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/citypath/internal/publish"
	"github.com/sells-group/citypath/internal/store"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the SQLite artifact and build manifest to S3",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("publish"); err != nil {
			return err
		}

		st, err := store.OpenSQLite(cfg.Store.DatabaseURL, false)
		if err != nil {
			return err
		}
		err = st.Checkpoint(ctx)
		st.Close() //nolint:errcheck
		if err != nil {
			return err
		}

		pub, err := publish.New(ctx, cfg.Publish)
		if err != nil {
			return err
		}
		objs, err := pub.Upload(ctx, cfg.Store.DatabaseURL, cfg.Pipeline.ManifestPath)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), objs)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the feature table and build log schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}
		st, err := openWritableStore(cmd.Context())
		if err != nil {
			return err
		}
		return st.Close()
	},
}

func init() {
	rootCmd.AddCommand(publishCmd, migrateCmd)
}
