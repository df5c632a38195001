// Package store persists the hex feature table and the build run log.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/citypath/internal/model"
)

// Table names.
const (
	FeaturesTable = "hex_features"
	RunsTable     = "build_runs"
)

// ErrNotBuilt is returned when the feature table has not been built yet.
var ErrNotBuilt = eris.New("store: feature table not built")

var runColumns = []string{"run_id", "started_at", "finished_at", "row_count", "resolution", "ref_grid"}

// FeatureStore defines the persistence interface for the feature table.
type FeatureStore interface {
	// ReplaceFeatures swaps the table contents for rows and records run,
	// in one transaction.
	ReplaceFeatures(ctx context.Context, run model.BuildRun, rows []model.HexFeatureRow) error
	// ReadTable returns the persisted table as stored, with its own column
	// names. Validation is left to the caller.
	ReadTable(ctx context.Context) (*RawTable, error)
	// LatestRun returns the most recent build, or nil when none exist.
	LatestRun(ctx context.Context) (*model.BuildRun, error)

	Migrate(ctx context.Context) error
	Close() error
}

// RawTable is an untyped view of a stored table. Rows hold driver values
// (string, float64, int64, []byte or nil) in column order.
type RawTable struct {
	Columns []string
	Rows    [][]any
}

// Open returns the store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (FeatureStore, error) {
	switch strings.ToLower(driver) {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// OpenReadOnly returns the store for driver without creating or migrating
// anything.
func OpenReadOnly(ctx context.Context, driver, dsn string) (FeatureStore, error) {
	switch strings.ToLower(driver) {
	case "sqlite":
		return OpenSQLite(dsn, true)
	case "postgres":
		return NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// featureArgs returns row values in model.FeatureColumns order.
func featureArgs(r model.HexFeatureRow) []any {
	return []any{r.HexID, r.Lat, r.Lon, r.VegetationIndex, r.Temperature, r.PopulationDensity}
}
