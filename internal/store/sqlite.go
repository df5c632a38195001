package store

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/citypath/internal/model"
)

// SQLiteStore implements FeatureStore using modernc.org/sqlite. The
// database file is the published artifact.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// OpenSQLite opens an existing database file. A missing file is
// ErrNotBuilt; nothing is created. With readOnly the connection never
// writes, so the file can be served while it is being published.
func OpenSQLite(path string, readOnly bool) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrNotBuilt, "sqlite: %s does not exist", path)
		}
		return nil, eris.Wrapf(err, "sqlite: stat %s", path)
	}
	if !readOnly {
		return NewSQLite(path)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open read-only")
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: exec PRAGMA busy_timeout")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) hasTable(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: look up table %s", name)
	}
	return n > 0, nil
}

// Checkpoint folds the write-ahead log into the main database file so the
// file can be copied on its own.
func (s *SQLiteStore) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return eris.Wrap(err, "sqlite: checkpoint")
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS hex_features (
	hex_id             TEXT PRIMARY KEY,
	lat                REAL NOT NULL,
	lon                REAL NOT NULL,
	vegetation_index   REAL,
	temperature        REAL,
	population_density REAL
);

CREATE TABLE IF NOT EXISTS build_runs (
	run_id      TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	row_count   INTEGER NOT NULL,
	resolution  INTEGER NOT NULL,
	ref_grid    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_build_runs_finished_at ON build_runs(finished_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReplaceFeatures(ctx context.Context, run model.BuildRun, rows []model.HexFeatureRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+FeaturesTable); err != nil {
		return eris.Wrap(err, "sqlite: clear features")
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(FeaturesTable, model.FeatureColumns))
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, featureArgs(r)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert hex %s", r.HexID)
		}
	}

	_, err = tx.ExecContext(ctx, insertSQL(RunsTable, runColumns),
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.RowCount,
		run.Resolution,
		run.RefGrid,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) ReadTable(ctx context.Context) (*RawTable, error) {
	ok, err := s.hasTable(ctx, FeaturesTable)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, eris.Wrapf(ErrNotBuilt, "sqlite: no %s table", FeaturesTable)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+FeaturesTable+" ORDER BY rowid")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read features")
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read columns")
	}

	out := &RawTable{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feature row")
		}
		out.Rows = append(out.Rows, vals)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate features")
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.BuildRun, error) {
	var (
		run               model.BuildRun
		started, finished string
	)
	ok, err := s.hasTable(ctx, RunsTable)
	if err != nil || !ok {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT run_id, started_at, finished_at, row_count, resolution, ref_grid
		 FROM build_runs ORDER BY finished_at DESC LIMIT 1`,
	).Scan(&run.ID, &started, &finished, &run.RowCount, &run.Resolution, &run.RefGrid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest run")
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse started_at")
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse finished_at")
	}
	return &run, nil
}

func insertSQL(table string, columns []string) string {
	return "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (?" +
		strings.Repeat(", ?", len(columns)-1) + ")"
}
