package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mascril/internal/measure"
)

// ErrNotFound is returned by GetRun for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Run is one catalogue entry.
type Run struct {
	ID         uuid.UUID      `json:"run_id"`
	Script     string         `json:"script"`
	DataPath   string         `json:"data_path"`
	Params     map[string]any `json:"params,omitempty"`
	State      measure.State  `json:"state"`
	Error      string         `json:"error,omitempty"`
	StopReason string         `json:"stop_reason,omitempty"`
	Steps      int            `json:"steps"`
	Total      int            `json:"total_steps"`
	Rows       int            `json:"rows_written"`
	Alarms     map[string]int `json:"alarms,omitempty"`
	Started    time.Time      `json:"started_at"`
	Finished   *time.Time     `json:"finished_at,omitempty"`
}

var _ measure.Journal = (*DB)(nil)

// Begin records a run as running. It implements measure.Journal.
func (db *DB) Begin(ctx context.Context, info measure.RunInfo) error {
	params, err := json.Marshal(info.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if info.Params == nil {
		params = []byte("{}")
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (run_id, script, data_path, params, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		info.ID.String(), info.Script, info.DataPath, string(params),
		string(measure.StateRunning), info.Started.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", info.ID, err)
	}
	return nil
}

// Finish records the outcome of a run. It implements measure.Journal and
// accepts only terminal states.
func (db *DB) Finish(ctx context.Context, res *measure.Result) error {
	if !res.State.Terminal() {
		return fmt.Errorf("finish run %s: state %q is not an outcome", res.ID, res.State)
	}
	alarms, err := json.Marshal(res.Alarms)
	if err != nil {
		return fmt.Errorf("encode alarms: %w", err)
	}
	if res.Alarms == nil {
		alarms = []byte("{}")
	}
	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}
	out, err := db.ExecContext(ctx, `
		UPDATE runs SET state = ?, error = ?, stop_reason = ?, steps = ?,
			total_steps = ?, rows_written = ?, alarms = ?, finished_at = ?
		WHERE run_id = ?`,
		string(res.State), errText, res.StopReason, res.Steps, res.Total,
		res.Rows, string(alarms), res.Finished.UnixNano(), res.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", res.ID, err)
	}
	if n, err := out.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run %s: %w", res.ID, ErrNotFound)
	}
	return nil
}

const selectRuns = `
	SELECT run_id, script, data_path, params, state, error, stop_reason,
		steps, total_steps, rows_written, alarms, started_at, finished_at
	FROM runs`

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + ` ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given ID.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	row := db.QueryRowContext(ctx, selectRuns+` WHERE run_id = ?`, id.String())
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r              Run
		id, state      string
		params, alarms string
		started        int64
		finished       sql.NullInt64
	)
	err := s.Scan(&id, &r.Script, &r.DataPath, &params, &state, &r.Error, &r.StopReason,
		&r.Steps, &r.Total, &r.Rows, &alarms, &started, &finished)
	if err != nil {
		return Run{}, err
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return Run{}, fmt.Errorf("run id %q: %w", id, err)
	}
	r.State = measure.State(state)
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return Run{}, fmt.Errorf("run %s params: %w", id, err)
	}
	if err := json.Unmarshal([]byte(alarms), &r.Alarms); err != nil {
		return Run{}, fmt.Errorf("run %s alarms: %w", id, err)
	}
	r.Started = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		r.Finished = &t
	}
	return r, nil
}
