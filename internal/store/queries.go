package store

import (
	"context"
	"database/sql"
)

type Run struct {
	ID         string
	InputPath  string
	OutputPath string
	Resumed    bool
	StartedAt  int64
	FinishedAt sql.NullInt64
}

type OutcomeRow struct {
	RunID          string
	Idx            int64
	Gtin           string
	Classification string
	ErrorKind      string
	ErrorDetail    string
	FieldsJson     string
	ElapsedMs      int64
	FinishedAt     int64
}

const createRun = `insert into runs (id, input_path, output_path, resumed, started_at)
values (?, ?, ?, ?, ?)`

func (q *Queries) CreateRun(ctx context.Context, arg Run) error {
	_, err := q.db.ExecContext(ctx, createRun,
		arg.ID,
		arg.InputPath,
		arg.OutputPath,
		arg.Resumed,
		arg.StartedAt,
	)
	return err
}

const finishRun = `update runs set finished_at = ? where id = ?`

func (q *Queries) FinishRun(ctx context.Context, id string, finishedAt int64) error {
	_, err := q.db.ExecContext(ctx, finishRun, finishedAt, id)
	return err
}

const getRuns = `select id, input_path, output_path, resumed, started_at, finished_at from runs
order by started_at desc, rowid desc limit ?`

func (q *Queries) GetRuns(ctx context.Context, limit int64) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, getRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Run
	for rows.Next() {
		var i Run
		if err := rows.Scan(&i.ID, &i.InputPath, &i.OutputPath, &i.Resumed, &i.StartedAt, &i.FinishedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getLatestRun = `select id, input_path, output_path, resumed, started_at, finished_at from runs
order by started_at desc, rowid desc limit 1`

func (q *Queries) GetLatestRun(ctx context.Context) (Run, error) {
	row := q.db.QueryRowContext(ctx, getLatestRun)
	var i Run
	err := row.Scan(&i.ID, &i.InputPath, &i.OutputPath, &i.Resumed, &i.StartedAt, &i.FinishedAt)
	return i, err
}

const createOutcome = `insert or replace into outcomes (
    run_id, idx, gtin, classification, error_kind, error_detail,
    fields_json, elapsed_ms, finished_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateOutcome(ctx context.Context, arg OutcomeRow) error {
	_, err := q.db.ExecContext(ctx, createOutcome,
		arg.RunID,
		arg.Idx,
		arg.Gtin,
		arg.Classification,
		arg.ErrorKind,
		arg.ErrorDetail,
		arg.FieldsJson,
		arg.ElapsedMs,
		arg.FinishedAt,
	)
	return err
}

const getOutcomesForRun = `select run_id, idx, gtin, classification, error_kind,
error_detail, fields_json, elapsed_ms, finished_at
from outcomes where run_id = ? order by idx`

func (q *Queries) GetOutcomesForRun(ctx context.Context, runID string) ([]OutcomeRow, error) {
	rows, err := q.db.QueryContext(ctx, getOutcomesForRun, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OutcomeRow
	for rows.Next() {
		var i OutcomeRow
		if err := rows.Scan(
			&i.RunID,
			&i.Idx,
			&i.Gtin,
			&i.Classification,
			&i.ErrorKind,
			&i.ErrorDetail,
			&i.FieldsJson,
			&i.ElapsedMs,
			&i.FinishedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// getTerminalGtins only looks at runs writing to the given output since the
// latest run that started that output from scratch.
const getTerminalGtins = `select distinct o.gtin from outcomes o
join runs r on r.id = o.run_id
where o.classification in ('found', 'no_result')
and r.output_path = ?
and r.rowid >= (
    select coalesce(max(rowid), 0) from runs
    where output_path = ? and resumed = 0
)`

func (q *Queries) GetTerminalGtins(ctx context.Context, outputPath string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, getTerminalGtins, outputPath, outputPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var gtin string
		if err := rows.Scan(&gtin); err != nil {
			return nil, err
		}
		items = append(items, gtin)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteOutcomesForRun = `delete from outcomes where run_id = ?`

func (q *Queries) DeleteOutcomesForRun(ctx context.Context, runID string) error {
	_, err := q.db.ExecContext(ctx, deleteOutcomesForRun, runID)
	return err
}

const deleteRun = `delete from runs where id = ?`

func (q *Queries) DeleteRun(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteRun, id)
	return err
}
