package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gtinlookup/internal/components/chrono"
	"gtinlookup/internal/components/telemetry"
	"gtinlookup/internal/driver/drivertest"
	"gtinlookup/internal/lookup"
	"gtinlookup/internal/sink"
	"gtinlookup/internal/source"
	"gtinlookup/internal/store"

	"github.com/stretchr/testify/require"
)

const pdfHref = "https://www.ecoinform.de/dl/3283950912914.pdf"

func testSite() drivertest.Site {
	return drivertest.Site{
		Home: drivertest.Page{Present: []string{"#suche"}},
		Results: map[string]drivertest.Page{
			// scenario A
			"3283950912914": {
				Present: []string{".produkt", "div.dval"},
				Links: map[string][]drivertest.Link{
					".produkt": {{Text: "pdf-Datenblatt", Href: pdfHref}},
				},
			},
			// scenario B
			"0000000000000": {
				Present: []string{".keine_treffer"},
				Texts:   map[string]string{".keine_treffer": "Es wurden keine Produkte gefunden"},
			},
			// scenario C
			"2222222222222": {
				Present: []string{".produkt"},
			},
			// found, but without the required document link
			"4444444444444": {
				Present: []string{".produkt", "div.dval"},
				Links: map[string][]drivertest.Link{
					".produkt": {{Text: "Sicherheitsdatenblatt", Href: "https://x/sds.pdf"}},
				},
			},
		},
		// scenario D: nothing ever appears
		Default: drivertest.Page{},
	}
}

func records(ids ...string) []source.Record {
	out := make([]source.Record, len(ids))
	for i, id := range ids {
		out[i] = source.Record{Line: i + 2, Identifier: id}
	}
	return out
}

type recordingProgress struct {
	total    int
	advanced []string
	finished int
}

func (p *recordingProgress) Start(total int) {
	p.total = total
}

func (p *recordingProgress) Advance(identifier string) {
	p.advanced = append(p.advanced, identifier)
}

func (p *recordingProgress) Finish() {
	p.finished++
}

type runFixture struct {
	orchestrator *Orchestrator
	launcher     *drivertest.Launcher
	progress     *recordingProgress
	rec          *telemetry.Recorder
	output       string
}

func newRunFixture(t *testing.T, site drivertest.Site, opts Options) runFixture {
	launcher := drivertest.NewLauncher(site)
	rec := telemetry.NewRecorder()
	clock := chrono.NewFakeImpl(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	workflow := lookup.NewWorkflow(launcher, lookup.DefaultOptions(), rec, clock)

	if opts.Policy.Fields == nil {
		opts.Policy = sink.DefaultPolicy()
	}
	output := filepath.Join(t.TempDir(), "out.csv")
	out := sink.NewCSVSink(output, opts.Policy.Header(), ',')
	opts.OutputPath = output

	progress := &recordingProgress{}
	orchestrator := NewOrchestrator(workflow, out, opts, rec, clock)
	orchestrator.SetProgress(progress)

	return runFixture{
		orchestrator: orchestrator,
		launcher:     launcher,
		progress:     progress,
		rec:          rec,
		output:       output,
	}
}

func (f runFixture) readOutput(t *testing.T) string {
	t.Helper()
	content, err := os.ReadFile(f.output)
	require.NoError(t, err)
	return string(content)
}

func TestRunScenarios(t *testing.T) {
	f := newRunFixture(t, testSite(), Options{})
	ids := []string{
		"3283950912914",
		"0000000000000",
		"2222222222222",
		"9999999999999",
		"4444444444444",
	}

	summary, err := f.orchestrator.Run(context.Background(), records(ids...))
	require.NoError(t, err)

	require.Equal(t, "gtin,pdf_link,safety_sheet_link\n3283950912914,"+pdfHref+",\n", f.readOutput(t))

	require.Equal(t, 5, summary.Total)
	require.Equal(t, 5, summary.Processed())
	require.Equal(t, 1, summary.Written)
	require.Equal(t, 2, summary.Counts[lookup.ClassFound])
	require.Equal(t, 1, summary.Counts[lookup.ClassNoResult])
	require.Equal(t, 1, summary.Counts[lookup.ClassStructureMissing])
	require.Equal(t, 1, summary.Counts[lookup.ClassError])
	require.Equal(t, 1, summary.Errors[lookup.KindTimeout])

	require.Equal(t, 5, f.progress.total)
	require.Equal(t, ids, f.progress.advanced)
	require.Equal(t, 1, f.progress.finished)

	require.True(t, f.rec.Contains("No product found"))
	require.True(t, f.rec.Contains("Page structure missing"))
	require.True(t, f.rec.Contains("lookup failed gtin=9999999999999 kind=timeout"))

	sessions := f.launcher.Sessions()
	require.Len(t, sessions, len(ids))
	for i, session := range sessions {
		require.True(t, session.Closed())
		require.Equal(t, []string{ids[i]}, session.Queries)
	}
}

func TestRunLogOrder(t *testing.T) {
	f := newRunFixture(t, testSite(), Options{})
	ids := []string{"0000000000000", "3283950912914", "9999999999999"}

	_, err := f.orchestrator.Run(context.Background(), records(ids...))
	require.NoError(t, err)

	var processing []string
	for _, line := range f.rec.Lines() {
		if strings.Contains(line, "processing identifier") {
			processing = append(processing, line)
		}
	}
	require.Equal(t, []string{
		"INFO batch: processing identifier i=0 gtin=0000000000000",
		"INFO batch: processing identifier i=1 gtin=3283950912914",
		"INFO batch: processing identifier i=2 gtin=9999999999999",
	}, processing)
}

func TestRunIdempotent(t *testing.T) {
	site := testSite()
	ids := records("3283950912914", "0000000000000", "3283950912914")

	first := newRunFixture(t, site, Options{})
	_, err := first.orchestrator.Run(context.Background(), ids)
	require.NoError(t, err)
	expected := first.readOutput(t)

	// a second run over the same output path replaces the file
	second := newRunFixture(t, site, Options{})
	second.output = first.output
	out := sink.NewCSVSink(first.output, sink.DefaultPolicy().Header(), ',')
	second.orchestrator.out = out
	_, err = second.orchestrator.Run(context.Background(), ids)
	require.NoError(t, err)

	require.Equal(t, expected, second.readOutput(t))
	require.Equal(t, 2, strings.Count(expected, "3283950912914,"))
}

func TestRunNoRows(t *testing.T) {
	f := newRunFixture(t, testSite(), Options{})
	summary, err := f.orchestrator.Run(context.Background(), records("0000000000000", "9999999999999"))
	require.NoError(t, err)
	require.Equal(t, 0, summary.Written)

	_, err = os.Stat(f.output)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunResume(t *testing.T) {
	ctx := context.Background()
	clock := chrono.NewFakeImpl(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	history, err := store.Open(ctx, ":memory:", clock)
	require.NoError(t, err)
	defer history.Close()

	ids := records("3283950912914", "0000000000000", "9999999999999")

	first := newRunFixture(t, testSite(), Options{InputPath: "input.csv"})
	first.orchestrator.SetHistory(history)
	_, err = first.orchestrator.Run(ctx, ids)
	require.NoError(t, err)

	resumed := newRunFixture(t, testSite(), Options{InputPath: "input.csv", Resume: true})
	resumed.output = first.output
	resumed.orchestrator.out = sink.NewCSVSink(first.output, sink.DefaultPolicy().Header(), ',')
	resumed.orchestrator.opts.OutputPath = first.output
	resumed.orchestrator.SetHistory(history)

	summary, err := resumed.orchestrator.Run(ctx, ids)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Skipped)
	require.Equal(t, 1, summary.Counts[lookup.ClassError])
	require.Equal(t, 3, summary.Processed())

	// only the failed identifier is looked up again, progress still covers all
	sessions := resumed.launcher.Sessions()
	require.Len(t, sessions, 1)
	require.Equal(t, []string{"9999999999999"}, sessions[0].Queries)
	require.Equal(t, []string{"3283950912914", "0000000000000", "9999999999999"}, resumed.progress.advanced)

	// the output of the first run is kept
	require.Equal(t, "gtin,pdf_link,safety_sheet_link\n3283950912914,"+pdfHref+",\n", resumed.readOutput(t))

	runs, err := history.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.True(t, runs[0].Resumed)
}

func TestRunResumeIntoOtherOutput(t *testing.T) {
	ctx := context.Background()
	clock := chrono.NewFakeImpl(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	history, err := store.Open(ctx, ":memory:", clock)
	require.NoError(t, err)
	defer history.Close()

	ids := records("3283950912914", "0000000000000")

	first := newRunFixture(t, testSite(), Options{})
	first.orchestrator.SetHistory(history)
	_, err = first.orchestrator.Run(ctx, ids)
	require.NoError(t, err)

	// a different output file knows nothing of the first run
	other := newRunFixture(t, testSite(), Options{Resume: true})
	other.orchestrator.SetHistory(history)
	summary, err := other.orchestrator.Run(ctx, ids)
	require.NoError(t, err)
	require.Equal(t, 0, summary.Skipped)
	require.Equal(t, 1, summary.Written)
	require.Equal(t, "gtin,pdf_link,safety_sheet_link\n3283950912914,"+pdfHref+",\n", other.readOutput(t))
}

func TestRunResumeAfterFreshRun(t *testing.T) {
	ctx := context.Background()
	clock := chrono.NewFakeImpl(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	history, err := store.Open(ctx, ":memory:", clock)
	require.NoError(t, err)
	defer history.Close()

	first := newRunFixture(t, testSite(), Options{})
	first.orchestrator.SetHistory(history)
	_, err = first.orchestrator.Run(ctx, records("3283950912914"))
	require.NoError(t, err)

	withOutput := func(opts Options) runFixture {
		f := newRunFixture(t, testSite(), opts)
		f.output = first.output
		f.orchestrator.out = sink.NewCSVSink(first.output, sink.DefaultPolicy().Header(), ',')
		f.orchestrator.opts.OutputPath = first.output
		f.orchestrator.SetHistory(history)
		return f
	}

	// a fresh run over the same output removes it and stops before finding anything
	fresh := withOutput(Options{})
	_, err = fresh.orchestrator.Run(ctx, records("0000000000000"))
	require.NoError(t, err)
	_, err = os.Stat(first.output)
	require.ErrorIs(t, err, os.ErrNotExist)

	resumed := withOutput(Options{Resume: true})
	summary, err := resumed.orchestrator.Run(ctx, records("3283950912914", "0000000000000"))
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 1, summary.Written)
	require.Equal(t, []string{"3283950912914"}, resumed.launcher.Sessions()[0].Queries)
	require.Equal(t, "gtin,pdf_link,safety_sheet_link\n3283950912914,"+pdfHref+",\n", resumed.readOutput(t))
}

type cancellingLookuper struct {
	inner  Lookuper
	after  int
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingLookuper) Lookup(ctx context.Context, identifier string) lookup.Outcome {
	out := c.inner.Lookup(ctx, identifier)
	c.calls++
	if c.calls == c.after {
		c.cancel()
	}
	return out
}

func TestRunCancelled(t *testing.T) {
	f := newRunFixture(t, testSite(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.orchestrator.lookuper = &cancellingLookuper{
		inner:  f.orchestrator.lookuper,
		after:  2,
		cancel: cancel,
	}

	summary, err := f.orchestrator.Run(ctx, records("3283950912914", "0000000000000", "2222222222222", "9999999999999"))
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, summary.Cancelled)
	require.Equal(t, 2, summary.Processed())
	require.Equal(t, []string{"3283950912914", "0000000000000"}, f.progress.advanced)
	require.Equal(t, 1, f.progress.finished)

	for _, session := range f.launcher.Sessions() {
		require.True(t, session.Closed())
	}
	// rows written before cancellation are kept
	require.Contains(t, f.readOutput(t), "3283950912914,")
}

// interruptingLookuper cancels the run while a lookup is in flight.
type interruptingLookuper struct {
	inner  Lookuper
	at     string
	cancel context.CancelFunc
}

func (l *interruptingLookuper) Lookup(ctx context.Context, identifier string) lookup.Outcome {
	if identifier == l.at {
		l.cancel()
	}
	return l.inner.Lookup(ctx, identifier)
}

func TestRunCancelledMidLookup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := chrono.NewFakeImpl(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	history, err := store.Open(ctx, ":memory:", clock)
	require.NoError(t, err)
	defer history.Close()

	f := newRunFixture(t, testSite(), Options{})
	f.orchestrator.SetHistory(history)
	f.orchestrator.lookuper = &interruptingLookuper{
		inner:  f.orchestrator.lookuper,
		at:     "0000000000000",
		cancel: cancel,
	}

	summary, err := f.orchestrator.Run(ctx, records("3283950912914", "0000000000000", "2222222222222"))
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, summary.Cancelled)
	require.Equal(t, 1, summary.Processed())
	require.Empty(t, summary.Errors)
	require.Equal(t, []string{"3283950912914"}, f.progress.advanced)

	for _, session := range f.launcher.Sessions() {
		require.True(t, session.Closed())
	}

	latest, ok, err := history.LatestRun(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, latest.FinishedAt.IsZero())
	entries, err := history.Outcomes(context.Background(), latest.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "3283950912914", entries[0].Gtin)
}

type failingSink struct {
	initErr  error
	writeErr error
	closed   bool
}

func (s *failingSink) Init(bool) error {
	return s.initErr
}

func (s *failingSink) Write(sink.Row) error {
	return s.writeErr
}

func (s *failingSink) Close() error {
	s.closed = true
	return nil
}

func TestRunFatalIO(t *testing.T) {
	t.Run("sink init", func(t *testing.T) {
		f := newRunFixture(t, testSite(), Options{})
		f.orchestrator.out = &failingSink{initErr: os.ErrPermission}

		_, err := f.orchestrator.Run(context.Background(), records("3283950912914"))
		require.ErrorIs(t, err, ErrFatalIO)
		require.ErrorIs(t, err, os.ErrPermission)
		require.Empty(t, f.launcher.Sessions())
	})

	t.Run("sink write", func(t *testing.T) {
		f := newRunFixture(t, testSite(), Options{})
		out := &failingSink{writeErr: errors.New("disk full")}
		f.orchestrator.out = out

		summary, err := f.orchestrator.Run(context.Background(), records("0000000000000", "3283950912914", "0000000000000"))
		require.ErrorIs(t, err, ErrFatalIO)
		require.Equal(t, 2, summary.Processed())
		require.Equal(t, []string{"0000000000000", "3283950912914"}, f.progress.advanced)
		require.True(t, out.closed)
		require.True(t, f.rec.Contains("batch: batch.sink"))
	})

	t.Run("input", func(t *testing.T) {
		f := newRunFixture(t, testSite(), Options{})
		_, err := f.orchestrator.RunFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), source.Options{})
		require.ErrorIs(t, err, ErrFatalIO)
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestRunFile(t *testing.T) {
	input := filepath.Join(t.TempDir(), "input.csv")
	err := os.WriteFile(input, []byte("name;EAN\nHafermilch;3283950912914\nnichts;0000000000000\n"), 0644)
	require.NoError(t, err)

	f := newRunFixture(t, testSite(), Options{})
	summary, err := f.orchestrator.RunFile(context.Background(), input, source.Options{Delimiter: ';'})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Total)
	require.Equal(t, 1, summary.Written)
	require.Equal(t, input, f.orchestrator.opts.InputPath)
}

func TestSummaryRender(t *testing.T) {
	summary := newSummary()
	summary.Total = 3
	summary.add(lookup.Outcome{Classification: lookup.ClassFound})
	summary.add(lookup.Outcome{
		Classification: lookup.ClassError,
		Err:            &lookup.Error{Kind: lookup.KindTimeout},
	})
	summary.Skipped = 1
	summary.Written = 1

	require.Equal(t, "3/3 processed, 1 found, 0 no result, 0 structure missing, 1 errors, 1 rows written", summary.String())

	var out strings.Builder
	summary.Render(&out)
	rendered := out.String()
	require.Contains(t, rendered, "structure_missing")
	require.Contains(t, rendered, "error: timeout")
	require.NotContains(t, rendered, "error: navigation")
	require.Contains(t, rendered, "3/3")
}
