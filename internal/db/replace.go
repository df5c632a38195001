package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ReplaceConfig names the table whose contents are swapped.
type ReplaceConfig struct {
	Table   string
	Columns []string
}

// ReplaceTable atomically replaces every row of cfg.Table with rows:
//  1. DELETE FROM table
//  2. COPY rows into table
//  3. run finish (if non-nil) inside the same transaction
//  4. commit
//
// Readers never observe a partially written table.
func ReplaceTable(ctx context.Context, pool Pool, cfg ReplaceConfig, rows [][]any, finish func(context.Context, pgx.Tx) error) (int64, error) {
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "DELETE FROM "+sanitizeTable(cfg.Table)); err != nil {
		return 0, eris.Wrapf(err, "db: replace: clear %s", cfg.Table)
	}

	n, err := CopyFrom(ctx, tx, cfg.Table, cfg.Columns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace")
	}

	if finish != nil {
		if err := finish(ctx, tx); err != nil {
			return 0, eris.Wrapf(err, "db: replace: finish %s", cfg.Table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit tx")
	}
	return n, nil
}

// InsertSQL builds a positional INSERT statement for table and columns.
func InsertSQL(table string, columns []string) string {
	params := make([]string, len(columns))
	for i := range columns {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sanitizeTable(table), quoteAndJoin(columns), strings.Join(params, ", "))
}

// sanitizeTable handles schema-qualified table names like "public.hex_features".
func sanitizeTable(table string) string {
	return identifier(table).Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
