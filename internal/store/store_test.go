package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gtinlookup/internal/components/chrono"
	"gtinlookup/internal/lookup"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func setup(t testing.TB) (*Store, *chrono.FakeImpl) {
	clock := chrono.NewFakeImpl(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s, err := Open(context.Background(), ":memory:", clock)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
	})
	return s, clock
}

func TestRecordAndOutcomes(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()

	runID, err := s.StartRun(ctx, "input.csv", "/data/out.csv", false)
	require.NoError(t, err)

	outcomes := []lookup.Outcome{
		{
			Identifier:     "3283950912914",
			Classification: lookup.ClassFound,
			Fields:         map[string]string{lookup.FieldPdfLink: "https://x/a.pdf"},
			Elapsed:        1500 * time.Millisecond,
		},
		{
			Identifier:     "0000000000000",
			Classification: lookup.ClassNoResult,
		},
		{
			Identifier:     "1",
			Classification: lookup.ClassError,
			Err: &lookup.Error{
				Kind:  lookup.KindNavigation,
				State: lookup.StateInit,
				Err:   errors.New("connection refused"),
			},
		},
		{
			Identifier:     "2",
			Classification: lookup.ClassStructureMissing,
			Reason:         "result container missing",
		},
	}
	for i, outcome := range outcomes {
		require.NoError(t, s.Record(ctx, runID, i, outcome))
	}
	require.NoError(t, s.FinishRun(ctx, runID))

	entries, err := s.Outcomes(ctx, runID)
	require.NoError(t, err)

	expected := []Entry{
		{
			Idx:            0,
			Gtin:           "3283950912914",
			Classification: lookup.ClassFound,
			Fields:         map[string]string{lookup.FieldPdfLink: "https://x/a.pdf"},
			Elapsed:        1500 * time.Millisecond,
		},
		{
			Idx:            1,
			Gtin:           "0000000000000",
			Classification: lookup.ClassNoResult,
			Fields:         map[string]string{},
		},
		{
			Idx:            2,
			Gtin:           "1",
			Classification: lookup.ClassError,
			ErrorKind:      "navigation",
			Detail:         outcomes[2].Err.Error(),
			Fields:         map[string]string{},
		},
		{
			Idx:            3,
			Gtin:           "2",
			Classification: lookup.ClassStructureMissing,
			Detail:         "result container missing",
			Fields:         map[string]string{},
		},
	}
	if diff := cmp.Diff(expected, entries); diff != "" {
		t.Fatal(diff)
	}

	completed, err := s.Completed(ctx, "/data/out.csv")
	require.NoError(t, err)
	require.Equal(t, map[string]struct{}{
		"3283950912914": {},
		"0000000000000": {},
	}, completed)
}

func TestRuns(t *testing.T) {
	s, clock := setup(t)
	ctx := context.Background()

	_, ok, err := s.LatestRun(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	first, err := s.StartRun(ctx, "a.csv", "/data/a-out.csv", false)
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, first))
	require.NoError(t, clock.Sleep(ctx, time.Minute))
	second, err := s.StartRun(ctx, "b.csv", "/data/a-out.csv", true)
	require.NoError(t, err)

	latest, ok, err := s.LatestRun(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second, latest.ID)
	require.True(t, latest.FinishedAt.IsZero())

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "b.csv", runs[0].InputPath)
	require.True(t, runs[0].Resumed)
	require.Equal(t, "a.csv", runs[1].InputPath)
	require.False(t, runs[1].Resumed)
	require.Equal(t, "/data/a-out.csv", runs[1].OutputPath)
	require.False(t, runs[1].FinishedAt.IsZero())

	require.NoError(t, s.Record(ctx, first, 0, lookup.Outcome{
		Identifier:     "9",
		Classification: lookup.ClassFound,
	}))
	require.NoError(t, s.DeleteRun(ctx, first))

	runs, err = s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	entries, err := s.Outcomes(ctx, first)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCompletedScopedToOutput(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()

	found := lookup.Outcome{Identifier: "3283950912914", Classification: lookup.ClassFound}
	none := lookup.Outcome{Identifier: "0000000000000", Classification: lookup.ClassNoResult}

	first, err := s.StartRun(ctx, "in.csv", "/data/a.csv", false)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, first, 0, found))

	resumed, err := s.StartRun(ctx, "in.csv", "/data/a.csv", true)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, resumed, 1, none))

	completed, err := s.Completed(ctx, "/data/a.csv")
	require.NoError(t, err)
	require.Equal(t, map[string]struct{}{
		"3283950912914": {},
		"0000000000000": {},
	}, completed)

	// nothing was ever written to another output
	completed, err = s.Completed(ctx, "/data/b.csv")
	require.NoError(t, err)
	require.Empty(t, completed)

	// a fresh run removes the old output, what came before it no longer counts
	fresh, err := s.StartRun(ctx, "in.csv", "/data/a.csv", false)
	require.NoError(t, err)
	completed, err = s.Completed(ctx, "/data/a.csv")
	require.NoError(t, err)
	require.Empty(t, completed)

	require.NoError(t, s.Record(ctx, fresh, 0, none))
	completed, err = s.Completed(ctx, "/data/a.csv")
	require.NoError(t, err)
	require.Equal(t, map[string]struct{}{"0000000000000": {}}, completed)
}

func TestOpenUpgradesOldHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	database, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = database.ExecContext(ctx, `create table runs (
    id text primary key,
    input_path text not null,
    started_at integer not null,
    finished_at integer
)`)
	require.NoError(t, err)
	_, err = database.ExecContext(ctx, `insert into runs (id, input_path, started_at) values ('old', 'in.csv', 1)`)
	require.NoError(t, err)
	require.NoError(t, database.Close())

	clock := chrono.NewFakeImpl(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s, err := Open(ctx, path, clock)
	require.NoError(t, err)

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "old", runs[0].ID)
	require.Equal(t, "", runs[0].OutputPath)

	_, err = s.StartRun(ctx, "in.csv", "/data/out.csv", false)
	require.NoError(t, err)

	// opening again leaves the upgraded schema alone
	require.NoError(t, s.Close())
	reopened, err := Open(ctx, path, clock)
	require.NoError(t, err)
	defer reopened.Close()
	runs, err = reopened.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
}
