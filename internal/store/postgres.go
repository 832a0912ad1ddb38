package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/irs-iip/internal/aggregate"
	"github.com/sells-group/irs-iip/internal/crossk"
	"github.com/sells-group/irs-iip/internal/db"
	"github.com/sells-group/irs-iip/internal/join"
	"github.com/sells-group/irs-iip/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	srid    int
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool. srid tags the
// geometries written by SaveNearest; pass 0 when the analysis CRS has no EPSG
// code.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, srid int) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, srid: srid}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	inputs     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS aggregate_rows (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	table_name TEXT NOT NULL,
	row_index  INTEGER NOT NULL,
	key_names  JSONB NOT NULL,
	key_values JSONB NOT NULL,
	count      INTEGER NOT NULL,
	n_values   INTEGER NOT NULL,
	mean       DOUBLE PRECISION,
	median     DOUBLE PRECISION,
	min        DOUBLE PRECISION,
	max        DOUBLE PRECISION,
	PRIMARY KEY (run_id, table_name, row_index)
);

CREATE TABLE IF NOT EXISTS crossk_samples (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	variant TEXT NOT NULL,
	step    INTEGER NOT NULL,
	r       DOUBLE PRECISION NOT NULL,
	k       DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, variant, step)
);

CREATE TABLE IF NOT EXISTS nearest_records (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	point_id     TEXT NOT NULL,
	category     TEXT,
	status       TEXT,
	geom         BYTEA NOT NULL,
	nearest_id   TEXT NOT NULL,
	nearest_name TEXT,
	distance     DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
CREATE INDEX IF NOT EXISTS idx_nearest_records_run_id ON nearest_records(run_id);
`

var (
	aggregateColumns = []string{"run_id", "table_name", "row_index", "key_names", "key_values", "count", "n_values", "mean", "median", "min", "max"}
	curveColumns     = []string{"run_id", "variant", "step", "r", "k"}
	nearestColumns   = []string{"run_id", "point_id", "category", "status", "geom", "nearest_id", "nearest_name", "distance"}
)

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

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

func (s *PostgresStore) CreateRun(ctx context.Context, inputs model.RunInputs) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal inputs")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, inputs, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, inputsJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Inputs:    inputs,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(finalStatus(result)), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, inputs, status, result, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, inputs, status, result, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list runs")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row scannable) (*model.Run, error) {
	var r model.Run
	var inputsJSON []byte
	var resultNull *[]byte

	if err := row.Scan(&r.ID, &inputsJSON, &r.Status, &resultNull, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, eris.Wrap(err, "scan run")
	}
	if err := json.Unmarshal(inputsJSON, &r.Inputs); err != nil {
		return nil, eris.Wrap(err, "unmarshal inputs")
	}
	if resultNull != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(*resultNull, r.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_stages (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, runID, name, string(model.StageStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert stage for run %s", runID)
	}

	return &model.RunStage{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.StageStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE run_stages SET status = $1, result = $2 WHERE id = $3`,
		string(result.Status), resultJSON, stageID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete stage %s", stageID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("stage not found: %s", stageID)
	}
	return nil
}

func (s *PostgresStore) SaveTables(ctx context.Context, runID string, tables []aggregate.Table) error {
	var rows [][]any
	for _, t := range tables {
		names, err := json.Marshal(t.Keys)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal keys of %s", t.Name)
		}
		for i, row := range t.Rows {
			vals, err := json.Marshal(row.Key)
			if err != nil {
				return eris.Wrapf(err, "postgres: marshal row key of %s", t.Name)
			}
			rows = append(rows, []any{runID, t.Name, i, names, vals,
				row.Count, row.Values, row.Mean, row.Median, row.Min, row.Max})
		}
	}

	_, err := db.ReplaceRows(ctx, s.pool, db.ReplaceConfig{
		Table:    "aggregate_rows",
		Columns:  aggregateColumns,
		KeyCol:   "run_id",
		KeyValue: runID,
	}, rows)
	return eris.Wrapf(err, "postgres: save tables for run %s", runID)
}

func (s *PostgresStore) SaveCurves(ctx context.Context, runID string, samples []crossk.Sample) error {
	var rows [][]any
	for _, smp := range samples {
		for i := range smp.R {
			rows = append(rows, []any{runID, string(smp.Variant), i, smp.R[i], smp.K[i]})
		}
	}

	_, err := db.ReplaceRows(ctx, s.pool, db.ReplaceConfig{
		Table:    "crossk_samples",
		Columns:  curveColumns,
		KeyCol:   "run_id",
		KeyValue: runID,
	}, rows)
	return eris.Wrapf(err, "postgres: save curves for run %s", runID)
}

func (s *PostgresStore) SaveNearest(ctx context.Context, runID string, records []join.NearestRecord) error {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		g, err := encodePoint(r.Point, s.srid)
		if err != nil {
			return err
		}
		rows = append(rows, []any{runID, r.Point.ID, r.Point.Category, r.Point.Status,
			g, r.Nearest.ID, r.Nearest.Name, r.Distance})
	}

	_, err := db.ReplaceRows(ctx, s.pool, db.ReplaceConfig{
		Table:    "nearest_records",
		Columns:  nearestColumns,
		KeyCol:   "run_id",
		KeyValue: runID,
	}, rows)
	return eris.Wrapf(err, "postgres: save nearest for run %s", runID)
}
