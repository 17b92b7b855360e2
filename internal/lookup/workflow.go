package lookup

import (
	"context"
	"errors"
	"fmt"

	"gtinlookup/internal/components/assert"
	"gtinlookup/internal/components/chrono"
	"gtinlookup/internal/components/telemetry"
	"gtinlookup/internal/driver"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	report_workflow_session = "workflow.session"
	report_workflow_lookup  = "workflow.lookup"
)

var tracer = otel.Tracer("gtinlookup.lookup")
var meter = otel.Meter("gtinlookup.lookup")
var lookupCounter, _ = meter.Int64Counter(
	"gtinlookup.lookups",
	metric.WithDescription("lookups by classification"),
)

type State int

const (
	StateInit State = iota
	StateNavigated
	StateSearching
	StateClassified
	StateExtracting
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateNavigated:
		return "navigated"
	case StateSearching:
		return "searching"
	case StateClassified:
		return "classified"
	case StateExtracting:
		return "extracting"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Workflow runs single lookups, every lookup gets its own session from the
// launcher which is closed again before Lookup returns.
type Workflow struct {
	launcher   driver.Launcher
	opts       Options
	tel        telemetry.API
	clock      chrono.API
	classifier classifier
	extractor  extractor
}

func NewWorkflow(launcher driver.Launcher, opts Options, tel telemetry.API, clock chrono.API) *Workflow {
	assert.NotNil(launcher)
	assert.NotNil(tel)
	assert.NotNil(clock)

	tel = telemetry.NewScopedAPI("lookup", tel)
	return &Workflow{
		launcher:   launcher,
		opts:       opts,
		tel:        tel,
		clock:      clock,
		classifier: classifier{opts: opts},
		extractor:  extractor{fields: opts.Fields, tel: tel},
	}
}

// Options returns the options the workflow was created with.
func (w *Workflow) Options() Options {
	return w.opts
}

// Lookup drives one identifier from Init to Done or Error, it never returns
// an error itself: every failure is folded into the Outcome.
func (w *Workflow) Lookup(ctx context.Context, identifier string) Outcome {
	start := w.clock.Now()
	ctx, span := tracer.Start(ctx, "Lookup")
	defer span.End()
	span.SetAttributes(attribute.String("gtin", identifier))

	r := &run{w: w, identifier: identifier, state: StateInit}
	out := r.execute(ctx)
	out.Elapsed = w.clock.Now().Sub(start)

	span.SetAttributes(attribute.String("classification", out.Classification.String()))
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Kind.String())
	}
	lookupCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("classification", out.Classification.String()),
	))
	return out
}

type run struct {
	w          *Workflow
	identifier string
	state      State
}

func (r *run) transition(next State) {
	r.w.tel.ReportDebug("transition", "gtin", r.identifier, "from", r.state, "to", next)
	r.state = next
}

func (r *run) fail(kind ErrorKind, err error) Outcome {
	failedIn := r.state
	r.transition(StateError)
	return Outcome{
		Identifier:     r.identifier,
		Classification: ClassError,
		Err:            &Error{Kind: kind, State: failedIn, Err: err},
		State:          StateError,
	}
}

func (r *run) done(class Classification, fields map[string]string, reason string) Outcome {
	r.transition(StateDone)
	return Outcome{
		Identifier:     r.identifier,
		Classification: class,
		Fields:         fields,
		Reason:         reason,
		State:          StateDone,
	}
}

func (r *run) execute(ctx context.Context) (out Outcome) {
	w := r.w
	opts := w.opts

	defer func() {
		if recovered := recover(); recovered != nil {
			w.tel.ReportBroken(report_workflow_lookup, "gtin", r.identifier, "panic", recovered)
			out = r.fail(KindUnexpected, fmt.Errorf("driver panic: %v", recovered))
		}
	}()

	session, err := w.launcher.NewSession(ctx)
	if err != nil {
		w.tel.ReportBroken(report_workflow_session, "gtin", r.identifier, "err", err)
		err = fmt.Errorf("start session: %w", err)
		if navigationFault(err) {
			return r.fail(KindNavigation, err)
		}
		return r.fail(KindUnexpected, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			w.tel.ReportWarning(report_workflow_session, "gtin", r.identifier, "err", err)
		}
	}()

	w.tel.ReportInfo("navigating", "gtin", r.identifier, "url", opts.Url)
	err = session.Open(ctx, opts.Url, opts.Ready, opts.NavigationTimeout)
	if err != nil {
		if navigationFault(err) {
			return r.fail(KindNavigation, err)
		}
		return r.fail(KindUnexpected, err)
	}
	r.transition(StateNavigated)

	err = session.AwaitSelector(ctx, opts.SearchBox, opts.WaitTimeout)
	if errors.Is(err, driver.ErrTimeout) {
		return r.fail(KindSearchFormMissing, err)
	}
	if err != nil {
		return r.fail(KindUnexpected, err)
	}
	w.tel.ReportInfo("entering identifier", "gtin", r.identifier)
	submitCtx, cancel := context.WithTimeout(ctx, opts.NavigationTimeout)
	err = session.Submit(submitCtx, opts.SearchBox, r.identifier)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, driver.ErrNotFound):
		return r.fail(KindSearchFormMissing, err)
	case errors.Is(err, driver.ErrTimeout):
		return r.fail(KindTimeout, err)
	case errors.Is(err, driver.ErrNavigation):
		return r.fail(KindNavigation, err)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return r.fail(KindTimeout, fmt.Errorf("%w: submit: %w", driver.ErrTimeout, err))
	default:
		return r.fail(KindUnexpected, err)
	}
	r.transition(StateSearching)

	decided := w.classifier.classify(ctx, session)
	if decided.err != nil {
		return r.fail(decided.kind, decided.err)
	}
	r.transition(StateClassified)

	switch decided.class {
	case ClassNoResult:
		w.tel.ReportInfo("No product found", "gtin", r.identifier)
		return r.done(ClassNoResult, nil, "")
	case ClassStructureMissing:
		w.tel.ReportInfo("Page structure missing", "gtin", r.identifier, "reason", decided.reason)
		return r.done(ClassStructureMissing, nil, decided.reason)
	}

	w.tel.ReportInfo("Product found", "gtin", r.identifier)
	err = w.clock.Sleep(ctx, opts.SettleDelay)
	if err != nil {
		return r.fail(KindUnexpected, fmt.Errorf("settle delay: %w", err))
	}

	r.transition(StateExtracting)
	fields := w.extractor.extract(ctx, session, r.identifier)
	return r.done(ClassFound, fields, "")
}

// navigationFault reports whether err means the site never became usable.
func navigationFault(err error) bool {
	return errors.Is(err, driver.ErrNavigation) || errors.Is(err, driver.ErrTimeout)
}
