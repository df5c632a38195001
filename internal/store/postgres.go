package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/citypath/internal/db"
	"github.com/sells-group/citypath/internal/model"
)

// PostgresStore implements FeatureStore on a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to connString and returns a PostgresStore.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, 0)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS hex_features (
	hex_id             TEXT PRIMARY KEY,
	lat                DOUBLE PRECISION NOT NULL,
	lon                DOUBLE PRECISION NOT NULL,
	vegetation_index   DOUBLE PRECISION,
	temperature        DOUBLE PRECISION,
	population_density DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS build_runs (
	run_id      TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	row_count   INTEGER NOT NULL,
	resolution  INTEGER NOT NULL,
	ref_grid    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_build_runs_finished_at ON build_runs(finished_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ReplaceFeatures(ctx context.Context, run model.BuildRun, rows []model.HexFeatureRow) error {
	data := make([][]any, len(rows))
	for i, r := range rows {
		data[i] = featureArgs(r)
	}

	recordRun := func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, db.InsertSQL(RunsTable, runColumns),
			run.ID, run.StartedAt, run.FinishedAt, run.RowCount, run.Resolution, run.RefGrid)
		return err
	}

	_, err := db.ReplaceTable(ctx, s.pool, db.ReplaceConfig{
		Table:   FeaturesTable,
		Columns: model.FeatureColumns,
	}, data, recordRun)
	return eris.Wrapf(err, "postgres: replace features for run %s", run.ID)
}

func (s *PostgresStore) ReadTable(ctx context.Context) (*RawTable, error) {
	rows, err := s.pool.Query(ctx, "SELECT * FROM "+FeaturesTable)
	if undefinedTable(err) {
		return nil, eris.Wrapf(ErrNotBuilt, "postgres: no %s table", FeaturesTable)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read features")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := &RawTable{Columns: make([]string, len(fields))}
	for i, f := range fields {
		out.Columns[i] = f.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan feature row")
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		if undefinedTable(err) {
			return nil, eris.Wrapf(ErrNotBuilt, "postgres: no %s table", FeaturesTable)
		}
		return nil, eris.Wrap(err, "postgres: iterate features")
	}
	return out, nil
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*model.BuildRun, error) {
	var run model.BuildRun
	err := s.pool.QueryRow(ctx,
		`SELECT run_id, started_at, finished_at, row_count, resolution, ref_grid
		 FROM build_runs ORDER BY finished_at DESC LIMIT 1`,
	).Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.RowCount, &run.Resolution, &run.RefGrid)
	if errors.Is(err, pgx.ErrNoRows) || undefinedTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run")
	}
	return &run, nil
}

// undefinedTable reports whether err is PostgreSQL's undefined_table.
func undefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
