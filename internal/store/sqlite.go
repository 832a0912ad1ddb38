package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/irs-iip/internal/aggregate"
	"github.com/sells-group/irs-iip/internal/crossk"
	"github.com/sells-group/irs-iip/internal/join"
	"github.com/sells-group/irs-iip/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	inputs     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS aggregate_rows (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	table_name TEXT NOT NULL,
	row_index  INTEGER NOT NULL,
	key_names  TEXT NOT NULL,
	key_values TEXT NOT NULL,
	count      INTEGER NOT NULL,
	n_values   INTEGER NOT NULL,
	mean       REAL,
	median     REAL,
	min        REAL,
	max        REAL,
	PRIMARY KEY (run_id, table_name, row_index)
);

CREATE TABLE IF NOT EXISTS crossk_samples (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	variant TEXT NOT NULL,
	step    INTEGER NOT NULL,
	r       REAL NOT NULL,
	k       REAL NOT NULL,
	PRIMARY KEY (run_id, variant, step)
);

CREATE TABLE IF NOT EXISTS nearest_records (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	point_id     TEXT NOT NULL,
	category     TEXT,
	status       TEXT,
	x            REAL NOT NULL,
	y            REAL NOT NULL,
	nearest_id   TEXT NOT NULL,
	nearest_name TEXT,
	distance     REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
CREATE INDEX IF NOT EXISTS idx_nearest_records_run_id ON nearest_records(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, inputs model.RunInputs) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal inputs")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, inputs, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(inputsJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Inputs:    inputs,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(finalStatus(result)), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, inputs, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, inputs, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_stages (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, name, string(model.StageStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert stage for run %s", runID)
	}

	return &model.RunStage{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.StageStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE run_stages SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), string(resultJSON), stageID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete stage %s", stageID)
	}
	return checkRowsAffected(res, "stage", stageID)
}

func (s *SQLiteStore) SaveTables(ctx context.Context, runID string, tables []aggregate.Table) error {
	return s.replace(ctx, "aggregate_rows", runID,
		`INSERT INTO aggregate_rows (run_id, table_name, row_index, key_names, key_values, count, n_values, mean, median, min, max)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, t := range tables {
				names, err := json.Marshal(t.Keys)
				if err != nil {
					return eris.Wrapf(err, "sqlite: marshal keys of %s", t.Name)
				}
				for i, row := range t.Rows {
					vals, err := json.Marshal(row.Key)
					if err != nil {
						return eris.Wrapf(err, "sqlite: marshal row key of %s", t.Name)
					}
					if _, err := stmt.ExecContext(ctx, runID, t.Name, i, string(names), string(vals),
						row.Count, row.Values, row.Mean, row.Median, row.Min, row.Max); err != nil {
						return eris.Wrapf(err, "sqlite: insert row %d of %s", i, t.Name)
					}
				}
			}
			return nil
		})
}

func (s *SQLiteStore) SaveCurves(ctx context.Context, runID string, samples []crossk.Sample) error {
	return s.replace(ctx, "crossk_samples", runID,
		`INSERT INTO crossk_samples (run_id, variant, step, r, k) VALUES (?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, smp := range samples {
				for i := range smp.R {
					if _, err := stmt.ExecContext(ctx, runID, string(smp.Variant), i, smp.R[i], smp.K[i]); err != nil {
						return eris.Wrapf(err, "sqlite: insert %s step %d", smp.Variant, i)
					}
				}
			}
			return nil
		})
}

func (s *SQLiteStore) SaveNearest(ctx context.Context, runID string, records []join.NearestRecord) error {
	return s.replace(ctx, "nearest_records", runID,
		`INSERT INTO nearest_records (run_id, point_id, category, status, x, y, nearest_id, nearest_name, distance)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, r := range records {
				if _, err := stmt.ExecContext(ctx, runID, r.Point.ID, r.Point.Category, r.Point.Status,
					r.Point.X, r.Point.Y, r.Nearest.ID, r.Nearest.Name, r.Distance); err != nil {
					return eris.Wrapf(err, "sqlite: insert nearest record %s", r.Point.ID)
				}
			}
			return nil
		})
}

// replace deletes a run's rows from table and re-inserts them through one
// prepared statement, in a single transaction.
func (s *SQLiteStore) replace(ctx context.Context, table, runID, insert string, fill func(*sql.Stmt) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin %s", table)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear %s for run %s", table, runID)
	}

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare %s insert", table)
	}
	defer stmt.Close()

	if err := fill(stmt); err != nil {
		return err
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", table)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var inputsJSON string
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &inputsJSON, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(inputsJSON), &r.Inputs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal inputs")
	}
	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}
