package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/citypath/internal/hexstore"
	"github.com/sells-group/citypath/internal/scorer"
	"github.com/sells-group/citypath/internal/store"
)

// openStore opens the configured feature store for reading. Nothing is
// created: a table that was never built fails the first load.
func openStore(ctx context.Context) (store.FeatureStore, error) {
	return store.OpenReadOnly(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}

// openWritableStore opens the configured feature store and applies its
// schema.
func openWritableStore(ctx context.Context) (store.FeatureStore, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// loadEngine opens the store and loads the scoring engine over its
// snapshot. The caller closes the returned store.
func loadEngine(ctx context.Context) (*scorer.Engine, store.FeatureStore, error) {
	if err := cfg.Validate("query"); err != nil {
		return nil, nil, err
	}
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	snap, err := hexstore.NewHandle(st).Load(ctx)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}
	return scorer.New(snap), st, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
