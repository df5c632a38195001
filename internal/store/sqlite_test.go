package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/citypath/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func f(v float64) *float64 { return &v }

func sampleRows() []model.HexFeatureRow {
	return []model.HexFeatureRow{
		{HexID: "89283082803ffff", Lat: 23.81, Lon: 90.41, VegetationIndex: f(0.42), Temperature: f(31.5), PopulationDensity: f(12000)},
		{HexID: "89283082807ffff", Lat: 23.82, Lon: 90.42, Temperature: f(33.25)},
	}
}

func sampleRun(id string, finished time.Time) model.BuildRun {
	return model.BuildRun{
		ID:         id,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		RowCount:   2,
		Resolution: 9,
		RefGrid:    "1200x1200 EPSG:4326",
	}
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_ReplaceAndReadTable(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.ReplaceFeatures(ctx, sampleRun("run-1", now), sampleRows()))

	tbl, err := st.ReadTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.FeatureColumns, tbl.Columns)
	require.Len(t, tbl.Rows, 2)

	assert.Equal(t, "89283082803ffff", tbl.Rows[0][0])
	assert.InDelta(t, 23.81, tbl.Rows[0][1], 1e-12)
	assert.InDelta(t, 0.42, tbl.Rows[0][3], 1e-12)

	// Missing metrics come back as NULL.
	assert.Equal(t, "89283082807ffff", tbl.Rows[1][0])
	assert.Nil(t, tbl.Rows[1][3])
	assert.InDelta(t, 33.25, tbl.Rows[1][4], 1e-12)
	assert.Nil(t, tbl.Rows[1][5])
}

func TestSQLite_ReplaceSwapsContents(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.ReplaceFeatures(ctx, sampleRun("run-1", now), sampleRows()))
	next := []model.HexFeatureRow{{HexID: "8928308280bffff", Lat: 23.9, Lon: 90.5, VegetationIndex: f(0.1)}}
	require.NoError(t, st.ReplaceFeatures(ctx, sampleRun("run-2", now.Add(time.Hour)), next))

	tbl, err := st.ReadTable(ctx)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "8928308280bffff", tbl.Rows[0][0])
}

func TestSQLite_ReplaceRollsBackOnDuplicate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.ReplaceFeatures(ctx, sampleRun("run-1", now), sampleRows()))

	dup := []model.HexFeatureRow{
		{HexID: "a", Lat: 1, Lon: 1, Temperature: f(1)},
		{HexID: "a", Lat: 1, Lon: 1, Temperature: f(2)},
	}
	err := st.ReplaceFeatures(ctx, sampleRun("run-2", now.Add(time.Hour)), dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert hex a")

	// Previous contents survive the failed swap.
	tbl, err := st.ReadTable(ctx)
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 2)

	run, err := st.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
}

func TestSQLite_LatestRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.LatestRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, run)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.ReplaceFeatures(ctx, sampleRun("run-1", now), sampleRows()))
	require.NoError(t, st.ReplaceFeatures(ctx, sampleRun("run-2", now.Add(time.Hour)), sampleRows()))

	run, err = st.LatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "run-2", run.ID)
	assert.Equal(t, 2, run.RowCount)
	assert.Equal(t, 9, run.Resolution)
	assert.Equal(t, "1200x1200 EPSG:4326", run.RefGrid)
	assert.True(t, now.Add(time.Hour).Equal(run.FinishedAt))
}

func TestSQLite_ReadTableCustomSchema(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// A table written by another tool may carry other columns.
	_, err := st.db.ExecContext(ctx, `DROP TABLE hex_features`)
	require.NoError(t, err)
	_, err = st.db.ExecContext(ctx, `CREATE TABLE hex_features (hex_id TEXT, lat REAL)`)
	require.NoError(t, err)
	_, err = st.db.ExecContext(ctx, `INSERT INTO hex_features VALUES ('x', 1.5)`)
	require.NoError(t, err)

	tbl, err := st.ReadTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hex_id", "lat"}, tbl.Columns)
	require.Len(t, tbl.Rows, 1)
}

func TestSQLite_Checkpoint(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.ReplaceFeatures(ctx, sampleRun("run-1", time.Now().UTC()), sampleRows()))
	require.NoError(t, st.Checkpoint(ctx))

	info, err := os.Stat(dbPath + "-wal")
	if err == nil {
		assert.Zero(t, info.Size())
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), "SQLite", filepath.Join(t.TempDir(), "o.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	_, ok := st.(*SQLiteStore)
	assert.True(t, ok)
}

func TestOpenSQLite_MissingFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "never_built.db")

	for _, readOnly := range []bool{true, false} {
		_, err := OpenSQLite(dbPath, readOnly)
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrNotBuilt))
	}
	_, err := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err), "no file is created")
}

func TestOpenSQLite_ReadOnlyWithoutTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	require.NoError(t, os.WriteFile(dbPath, nil, 0o644))

	st, err := OpenSQLite(dbPath, true)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	ctx := context.Background()

	_, err = st.ReadTable(ctx)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotBuilt))

	run, err := st.LatestRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, run)

	assert.Error(t, st.Migrate(ctx), "read-only connection cannot create tables")
}

func TestOpenSQLite_ReadOnlyReadsBuiltTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "built.db")
	w, err := NewSQLite(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, w.Migrate(ctx))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.ReplaceFeatures(ctx, sampleRun("run-1", now), sampleRows()))
	require.NoError(t, w.Close())

	st, err := OpenReadOnly(ctx, "sqlite", dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	tbl, err := st.ReadTable(ctx)
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 2)

	run, err := st.LatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "run-1", run.ID)

	assert.Error(t, st.ReplaceFeatures(ctx, sampleRun("run-2", now), nil))
}

func TestOpenReadOnly_UnknownDriver(t *testing.T) {
	_, err := OpenReadOnly(context.Background(), "mysql", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestInsertSQL(t *testing.T) {
	assert.Equal(t, "INSERT INTO t (a, b, c) VALUES (?, ?, ?)", insertSQL("t", []string{"a", "b", "c"}))
}
