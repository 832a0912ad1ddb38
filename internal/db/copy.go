package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// copier is anything that speaks the COPY protocol: a pool or a transaction.
type copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Identifier splits a possibly schema-qualified table name ("irsiip.runs")
// into a pgx identifier.
func Identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.SplitN(table, ".", 2))
}

// CopyFrom bulk-inserts rows into a table using PostgreSQL COPY protocol.
func CopyFrom(ctx context.Context, c copier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := c.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}

	return n, nil
}

// ReplaceConfig describes a keyed bulk replace.
type ReplaceConfig struct {
	Table    string   // target table, optionally schema-qualified
	Columns  []string // columns being copied
	KeyCol   string   // column scoping the rows to replace, e.g. run_id
	KeyValue any
}

// ReplaceRows deletes every row where KeyCol = KeyValue and copies rows in
// their place, in one transaction. Rewriting a run's results is idempotent.
func ReplaceRows(ctx context.Context, pool Pool, cfg ReplaceConfig, rows [][]any) (int64, error) {
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}
	if cfg.KeyCol == "" {
		return 0, eris.New("db: replace: no key column specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	del := "DELETE FROM " + Identifier(cfg.Table).Sanitize() + " WHERE " + pgx.Identifier{cfg.KeyCol}.Sanitize() + " = $1"
	if _, err := tx.Exec(ctx, del, cfg.KeyValue); err != nil {
		return 0, eris.Wrapf(err, "db: replace: delete from %s", cfg.Table)
	}

	n, err := CopyFrom(ctx, tx, cfg.Table, cfg.Columns, rows)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit tx")
	}
	return n, nil
}
