package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crossborder-kde/internal/model"
)

// SQLiteLedger implements Ledger using modernc.org/sqlite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteLedger, error) {
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
	return &SQLiteLedger{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	signature  TEXT NOT NULL,
	params     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	pairs      INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_pairs (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	pair    TEXT NOT NULL,
	status  TEXT NOT NULL,
	kind    TEXT NOT NULL DEFAULT '',
	reason  TEXT NOT NULL DEFAULT '',
	records INTEGER NOT NULL DEFAULT 0,
	area    REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, pair)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_signature ON runs(signature);
CREATE INDEX IF NOT EXISTS idx_run_pairs_status ON run_pairs(status);
`

func (s *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

func (s *SQLiteLedger) CreateRun(ctx context.Context, params model.Params, pairs int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, signature, params, status, pairs, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, params.Signature(), string(paramsJSON), string(model.RunStatusRunning), pairs, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Signature: params.Signature(),
		Params:    params,
		Status:    model.RunStatusRunning,
		Pairs:     pairs,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteLedger) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const runColumns = `r.id, r.signature, r.params, r.status, r.pairs, r.created_at, r.updated_at,
	(SELECT COUNT(*) FROM run_pairs p WHERE p.run_id = r.id AND p.status = 'ok'),
	(SELECT COUNT(*) FROM run_pairs p WHERE p.run_id = r.id AND p.status = 'failed')`

func (s *SQLiteLedger) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs r WHERE r.id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteLedger) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs r WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND r.status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Signature != "" {
		query += ` AND r.signature = ?`
		args = append(args, filter.Signature)
	}
	query += ` ORDER BY r.created_at DESC`

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

// RecordPair stores the outcome of a pair, replacing an earlier outcome of
// the same pair in the same run.
func (s *SQLiteLedger) RecordPair(ctx context.Context, o model.PairOutcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_pairs (run_id, pair, status, kind, reason, records, area) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, pair) DO UPDATE SET
			status = excluded.status, kind = excluded.kind, reason = excluded.reason,
			records = excluded.records, area = excluded.area`,
		o.RunID, o.Pair, string(o.Status), string(o.Kind), o.Reason, o.Records, o.Area,
	)
	return eris.Wrapf(err, "sqlite: record pair %s", o.Pair)
}

func (s *SQLiteLedger) ListPairs(ctx context.Context, runID string) ([]model.PairOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, pair, status, kind, reason, records, area FROM run_pairs WHERE run_id = ? ORDER BY pair`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list pairs of run %s", runID)
	}
	defer rows.Close()

	var out []model.PairOutcome
	for rows.Next() {
		var o model.PairOutcome
		var status, kind string
		if err := rows.Scan(&o.RunID, &o.Pair, &status, &kind, &o.Reason, &o.Records, &o.Area); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pair")
		}
		o.Status = model.PairStatus(status)
		o.Kind = model.Kind(kind)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list pairs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrDataAbsent, "%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var paramsJSON, status string

	err := row.Scan(&r.ID, &r.Signature, &paramsJSON, &status, &r.Pairs, &r.CreatedAt, &r.UpdatedAt, &r.Succeeded, &r.Failed)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(model.ErrDataAbsent, "run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = model.RunStatus(status)

	if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal params")
	}
	return &r, nil
}
