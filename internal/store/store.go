// Package store keeps the history of every lookup outcome across runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gtinlookup/internal/components/chrono"
	"gtinlookup/internal/lookup"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is a sqlite backed run history.
type Store struct {
	db     *sql.DB
	qry    *Queries
	makeTx MakeTx
	clock  chrono.API
}

// Open opens (or creates) the history database at path, ":memory:" is allowed.
func Open(ctx context.Context, path string, clock chrono.API) (*Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// every connection to ":memory:" is its own database
	database.SetMaxOpenConns(1)

	_, err = database.ExecContext(ctx, Schema)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	err = upgrade(ctx, database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("upgrade schema: %w", err)
	}
	return NewStore(database, clock), nil
}

// addedColumns were added to runs after the first release, history files
// created before that get them on open.
var addedColumns = []struct {
	name string
	ddl  string
}{
	{"output_path", "alter table runs add column output_path text not null default ''"},
	{"resumed", "alter table runs add column resumed integer not null default 0"},
}

func upgrade(ctx context.Context, database *sql.DB) error {
	rows, err := database.QueryContext(ctx, "select name from pragma_table_info('runs')")
	if err != nil {
		return err
	}
	existing := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		existing[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, column := range addedColumns {
		if existing[column.name] {
			continue
		}
		_, err = database.ExecContext(ctx, column.ddl)
		if err != nil {
			return fmt.Errorf("add column %s: %w", column.name, err)
		}
	}
	return nil
}

func NewStore(database *sql.DB, clock chrono.API) *Store {
	return &Store{
		db:     database,
		qry:    New(database),
		makeTx: NewMakeTx(database),
		clock:  clock,
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun registers a new run and returns its id. A run that does not
// resume starts outputPath from scratch, which makes every earlier outcome
// recorded for that output irrelevant to Completed.
func (s *Store) StartRun(ctx context.Context, inputPath, outputPath string, resume bool) (string, error) {
	id := uuid.NewString()
	err := s.qry.CreateRun(ctx, Run{
		ID:         id,
		InputPath:  inputPath,
		OutputPath: outputPath,
		Resumed:    resume,
		StartedAt:  s.clock.Now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) FinishRun(ctx context.Context, runID string) error {
	return s.qry.FinishRun(ctx, runID, s.clock.Now().UnixMilli())
}

// Record stores the outcome of the idx'th identifier of a run.
func (s *Store) Record(ctx context.Context, runID string, idx int, outcome lookup.Outcome) error {
	fields := outcome.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	fieldsJson, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	row := OutcomeRow{
		RunID:          runID,
		Idx:            int64(idx),
		Gtin:           outcome.Identifier,
		Classification: outcome.Classification.String(),
		FieldsJson:     string(fieldsJson),
		ElapsedMs:      outcome.Elapsed.Milliseconds(),
		FinishedAt:     s.clock.Now().UnixMilli(),
	}
	switch {
	case outcome.Err != nil:
		row.ErrorKind = outcome.Err.Kind.String()
		row.ErrorDetail = outcome.Err.Error()
	case outcome.Reason != "":
		row.ErrorDetail = outcome.Reason
	}
	return s.qry.CreateOutcome(ctx, row)
}

// Completed returns the identifiers that reached a terminal outcome (found or
// no result) for outputPath since it was last started from scratch, these
// need not be looked up again when resuming into the same output.
func (s *Store) Completed(ctx context.Context, outputPath string) (map[string]struct{}, error) {
	gtins, err := s.qry.GetTerminalGtins(ctx, outputPath)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(gtins))
	for _, gtin := range gtins {
		out[gtin] = struct{}{}
	}
	return out, nil
}

// RunInfo is a run as shown by the history command.
type RunInfo struct {
	ID         string
	InputPath  string
	OutputPath string
	Resumed    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

func toRunInfo(run Run) RunInfo {
	info := RunInfo{
		ID:         run.ID,
		InputPath:  run.InputPath,
		OutputPath: run.OutputPath,
		Resumed:    run.Resumed,
		StartedAt:  time.UnixMilli(run.StartedAt),
	}
	if run.FinishedAt.Valid {
		info.FinishedAt = time.UnixMilli(run.FinishedAt.Int64)
	}
	return info
}

func (s *Store) Runs(ctx context.Context, limit int) ([]RunInfo, error) {
	runs, err := s.qry.GetRuns(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]RunInfo, len(runs))
	for i, run := range runs {
		out[i] = toRunInfo(run)
	}
	return out, nil
}

// LatestRun returns the most recently started run, ok is false if there is none.
func (s *Store) LatestRun(ctx context.Context) (RunInfo, bool, error) {
	run, err := s.qry.GetLatestRun(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, false, nil
	}
	if err != nil {
		return RunInfo{}, false, err
	}
	return toRunInfo(run), true, nil
}

// Entry is a recorded outcome.
type Entry struct {
	Idx            int
	Gtin           string
	Classification lookup.Classification
	ErrorKind      string
	Detail         string
	Fields         map[string]string
	Elapsed        time.Duration
}

func (s *Store) Outcomes(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.qry.GetOutcomesForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(rows))
	for i, row := range rows {
		class, err := lookup.ParseClassification(row.Classification)
		if err != nil {
			return nil, err
		}
		var fields map[string]string
		err = json.Unmarshal([]byte(row.FieldsJson), &fields)
		if err != nil {
			return nil, fmt.Errorf("outcome %d: %w", row.Idx, err)
		}
		out[i] = Entry{
			Idx:            int(row.Idx),
			Gtin:           row.Gtin,
			Classification: class,
			ErrorKind:      row.ErrorKind,
			Detail:         row.ErrorDetail,
			Fields:         fields,
			Elapsed:        time.Duration(row.ElapsedMs) * time.Millisecond,
		}
	}
	return out, nil
}

// DeleteRun removes a run together with its outcomes.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	tx, discard, commit, err := s.makeTx()
	if err != nil {
		return err
	}
	defer discard()

	err = tx.DeleteOutcomesForRun(ctx, runID)
	if err != nil {
		return err
	}
	err = tx.DeleteRun(ctx, runID)
	if err != nil {
		return err
	}
	return commit()
}
