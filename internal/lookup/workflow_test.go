package lookup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gtinlookup/internal/components/chrono"
	"gtinlookup/internal/components/telemetry"
	"gtinlookup/internal/driver"
	"gtinlookup/internal/driver/drivertest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const (
	pdfHref    = "https://www.ecoinform.de/dl/3283950912914.pdf"
	partyField = "div.dval div.div_tval.mid_1188 b.tv_name + *"
)

func foundPage() drivertest.Page {
	return drivertest.Page{
		Present: []string{".produkt", "div.dval"},
		Attributes: map[string]map[string]string{
			`meta[name="title"]`: {"content": "Bio Hafermilch 1l"},
		},
		Texts: map[string]string{
			partyField: "Oatly AB",
		},
		Links: map[string][]drivertest.Link{
			".produkt": {
				{Text: "Etikett", Href: "https://www.ecoinform.de/dl/etikett.pdf"},
				{Text: "pdf-Datenblatt", Href: pdfHref},
				{Text: "pdf-Datenblatt (EN)", Href: "https://www.ecoinform.de/dl/en.pdf"},
			},
		},
	}
}

func testSite() drivertest.Site {
	return drivertest.Site{
		Home: drivertest.Page{Present: []string{"#suche"}},
		Results: map[string]drivertest.Page{
			"3283950912914": foundPage(),
			"0000000000000": {
				Present: []string{".keine_treffer"},
				Texts:   map[string]string{".keine_treffer": "Es wurden leider keine Produkte  gefunden."},
			},
			"1111111111111": {
				Present: []string{".keine_treffer"},
				Texts:   map[string]string{".keine_treffer": "Bitte melden Sie sich an."},
			},
			"2222222222222": {
				Present: []string{".produkt"},
			},
		},
	}
}

type workflowFixture struct {
	workflow *Workflow
	launcher *drivertest.Launcher
	rec      *telemetry.Recorder
	clock    *chrono.FakeImpl
}

func newWorkflowFixture(site drivertest.Site) workflowFixture {
	launcher := drivertest.NewLauncher(site)
	rec := telemetry.NewRecorder()
	clock := chrono.NewFakeImpl(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	return workflowFixture{
		workflow: NewWorkflow(launcher, DefaultOptions(), rec, clock),
		launcher: launcher,
		rec:      rec,
		clock:    clock,
	}
}

func TestLookupFound(t *testing.T) {
	f := newWorkflowFixture(testSite())

	out := f.workflow.Lookup(context.Background(), "3283950912914")
	require.Equal(t, ClassFound, out.Classification)
	require.Equal(t, StateDone, out.State)
	require.Nil(t, out.Err)

	expected := map[string]string{
		FieldTitle:            "Bio Hafermilch 1l",
		FieldResponsibleParty: "Oatly AB",
		FieldPdfLink:          pdfHref,
		FieldSafetySheetLink:  "",
	}
	if diff := cmp.Diff(expected, out.Fields); diff != "" {
		t.Fatal(diff)
	}

	require.Equal(t, []time.Duration{2 * time.Second}, f.clock.Slept())
	require.Equal(t, 2*time.Second, out.Elapsed)

	sessions := f.launcher.Sessions()
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].Closed())
	require.Equal(t, []string{"3283950912914"}, sessions[0].Queries)
	require.Equal(t, []string{"https://www.ecoinform.de/"}, sessions[0].Opened)

	require.True(t, f.rec.Contains("Product found"))
	require.True(t, f.rec.Contains("field found gtin=3283950912914 field=pdf_link"))
	require.True(t, f.rec.Contains("field not found gtin=3283950912914 field=safety_sheet_link"))
}

func TestLookupClassifications(t *testing.T) {
	testCases := []struct {
		name       string
		identifier string
		expected   Classification
		logLine    string
	}{
		{
			name:       "no result",
			identifier: "0000000000000",
			expected:   ClassNoResult,
			logLine:    "No product found",
		},
		{
			name:       "no-results marker with unexpected text",
			identifier: "1111111111111",
			expected:   ClassStructureMissing,
			logLine:    "Page structure missing",
		},
		{
			name:       "results marker without container",
			identifier: "2222222222222",
			expected:   ClassStructureMissing,
			logLine:    "Page structure missing",
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			f := newWorkflowFixture(testSite())

			out := f.workflow.Lookup(context.Background(), test.identifier)
			require.Equal(t, test.expected, out.Classification)
			require.Equal(t, StateDone, out.State)
			require.Nil(t, out.Err)
			require.Empty(t, out.Fields)
			require.True(t, f.rec.Contains(test.logLine))
			require.Empty(t, f.clock.Slept())
			require.True(t, f.launcher.Sessions()[0].Closed())

			if test.expected == ClassStructureMissing {
				require.NotEmpty(t, out.Reason)
				require.False(t, f.rec.Contains("No product found"))
			}
		})
	}
}

func TestLookupErrors(t *testing.T) {
	boom := errors.New("target closed")

	testCases := []struct {
		name       string
		site       func() drivertest.Site
		sessionErr error
		kind       ErrorKind
		failedIn   State
	}{
		{
			name:     "timeout waiting for markers",
			site:     testSite,
			kind:     KindTimeout,
			failedIn: StateSearching,
		},
		{
			name: "navigation failure",
			site: func() drivertest.Site {
				site := testSite()
				site.OpenErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
				return site
			},
			kind:     KindNavigation,
			failedIn: StateInit,
		},
		{
			name: "search form missing",
			site: func() drivertest.Site {
				site := testSite()
				site.Home = drivertest.Page{}
				return site
			},
			kind:     KindSearchFormMissing,
			failedIn: StateNavigated,
		},
		{
			name: "driver fault while classifying",
			site: func() drivertest.Site {
				site := testSite()
				site.Default = drivertest.Page{
					Present: []string{".produkt"},
					Faults:  map[string]error{"exists": boom},
				}
				return site
			},
			kind:     KindUnexpected,
			failedIn: StateSearching,
		},
		{
			name: "driver panic while extracting",
			site: func() drivertest.Site {
				site := testSite()
				page := foundPage()
				page.PanicOn = "attr"
				site.Default = page
				return site
			},
			kind:     KindUnexpected,
			failedIn: StateExtracting,
		},
		{
			name:       "session cannot start",
			site:       testSite,
			sessionErr: boom,
			kind:       KindUnexpected,
			failedIn:   StateInit,
		},
		{
			name:       "session start times out loading the site",
			site:       testSite,
			sessionErr: fmt.Errorf("%w: about:blank", driver.ErrTimeout),
			kind:       KindNavigation,
			failedIn:   StateInit,
		},
		{
			name:       "session start cannot reach the site",
			site:       testSite,
			sessionErr: fmt.Errorf("%w: connection refused", driver.ErrNavigation),
			kind:       KindNavigation,
			failedIn:   StateInit,
		},
		{
			name: "search response is an error page",
			site: func() drivertest.Site {
				site := testSite()
				site.Home.Faults = map[string]error{"submit": fmt.Errorf("%w: 502 Bad Gateway", driver.ErrNavigation)}
				return site
			},
			kind:     KindNavigation,
			failedIn: StateNavigated,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			f := newWorkflowFixture(test.site())
			f.launcher.NewSessionErr = test.sessionErr

			out := f.workflow.Lookup(context.Background(), "9999999999999")
			require.Equal(t, ClassError, out.Classification)
			require.Equal(t, StateError, out.State)
			require.NotNil(t, out.Err)
			require.Equal(t, test.kind, out.Err.Kind)
			require.Equal(t, test.failedIn, out.Err.State)
			require.Empty(t, out.Fields)

			for _, session := range f.launcher.Sessions() {
				require.True(t, session.Closed())
			}
		})
	}
}

func TestLookupTimeoutUnwraps(t *testing.T) {
	f := newWorkflowFixture(testSite())

	out := f.workflow.Lookup(context.Background(), "5555555555555")
	require.Equal(t, ClassError, out.Classification)
	require.ErrorIs(t, out.Err, driver.ErrTimeout)
}

func TestLookupFieldFailureIsLocal(t *testing.T) {
	site := testSite()
	page := foundPage()
	page.Faults = map[string]error{"link": errors.New("detached node")}
	site.Results["3283950912914"] = page
	f := newWorkflowFixture(site)

	out := f.workflow.Lookup(context.Background(), "3283950912914")
	require.Equal(t, ClassFound, out.Classification)
	require.Equal(t, "Bio Hafermilch 1l", out.Field(FieldTitle))
	require.Equal(t, "Oatly AB", out.Field(FieldResponsibleParty))
	require.Equal(t, "", out.Field(FieldPdfLink))
	require.Equal(t, "", out.Field(FieldSafetySheetLink))
	require.True(t, f.rec.Contains("detached node"))
}

func TestLookupCancelled(t *testing.T) {
	f := newWorkflowFixture(testSite())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.workflow.Lookup(ctx, "3283950912914")
	require.Equal(t, ClassError, out.Classification)
	require.Equal(t, KindUnexpected, out.Err.Kind)
	require.ErrorIs(t, out.Err, context.Canceled)
	require.True(t, f.launcher.Sessions()[0].Closed())
}

func TestLookupSubmitIsBounded(t *testing.T) {
	site := testSite()
	site.Home.HangOn = "submit"
	launcher := drivertest.NewLauncher(site)
	rec := telemetry.NewRecorder()
	opts := DefaultOptions()
	opts.NavigationTimeout = 50 * time.Millisecond
	opts.WaitTimeout = 50 * time.Millisecond
	workflow := NewWorkflow(launcher, opts, rec, chrono.NewFakeImpl(time.Now()))

	done := make(chan Outcome, 1)
	go func() {
		done <- workflow.Lookup(context.Background(), "3283950912914")
	}()

	select {
	case out := <-done:
		require.Equal(t, ClassError, out.Classification)
		require.Equal(t, KindTimeout, out.Err.Kind)
		require.Equal(t, StateNavigated, out.Err.State)
		require.ErrorIs(t, out.Err, driver.ErrTimeout)
		require.True(t, launcher.Sessions()[0].Closed())
	case <-time.After(5 * time.Second):
		t.Fatal("lookup still blocked on submit")
	}
}
