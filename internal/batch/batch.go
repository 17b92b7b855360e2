// Package batch runs the lookup workflow over an ordered list of records.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gtinlookup/internal/components/chrono"
	"gtinlookup/internal/components/telemetry"
	"gtinlookup/internal/lookup"
	"gtinlookup/internal/sink"
	"gtinlookup/internal/source"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("gtinlookup.batch")

const (
	report_batch_history = "batch.history"
	report_batch_sink    = "batch.sink"
)

// ErrFatalIO marks the failures that abort a run: the input cannot be read or
// the output cannot be written.
var ErrFatalIO = errors.New("fatal io")

type Lookuper interface {
	Lookup(ctx context.Context, identifier string) lookup.Outcome
}

type Sink interface {
	Init(resume bool) error
	Write(row sink.Row) error
	Close() error
}

// Progress is advanced exactly once per input record.
type Progress interface {
	Start(total int)
	Advance(identifier string)
	Finish()
}

type History interface {
	StartRun(ctx context.Context, inputPath, outputPath string, resume bool) (string, error)
	Record(ctx context.Context, runID string, idx int, outcome lookup.Outcome) error
	FinishRun(ctx context.Context, runID string) error
	Completed(ctx context.Context, outputPath string) (map[string]struct{}, error)
}

type Options struct {
	Policy     sink.Policy
	InputPath  string
	OutputPath string
	// Resume skips identifiers that already reached a terminal outcome in
	// an earlier run writing to the same output and appends to that output.
	Resume bool
}

type Orchestrator struct {
	lookuper Lookuper
	out      Sink
	opts     Options
	tel      telemetry.API
	clock    chrono.API

	progress Progress
	history  History
}

func NewOrchestrator(lookuper Lookuper, out Sink, opts Options, tel telemetry.API, clock chrono.API) *Orchestrator {
	return &Orchestrator{
		lookuper: lookuper,
		out:      out,
		opts:     opts,
		tel:      telemetry.NewScopedAPI("batch", tel),
		clock:    clock,
		progress: nopProgress{},
	}
}

func (o *Orchestrator) SetProgress(progress Progress) {
	if progress == nil {
		progress = nopProgress{}
	}
	o.progress = progress
}

func (o *Orchestrator) SetHistory(history History) {
	o.history = history
}

// RunFile loads the records of path and runs them, a read failure is fatal.
func (o *Orchestrator) RunFile(ctx context.Context, path string, opts source.Options) (Summary, error) {
	records, err := source.LoadFile(path, opts)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: read input: %w", ErrFatalIO, err)
	}
	if o.opts.InputPath == "" {
		o.opts.InputPath = path
	}
	return o.Run(ctx, records)
}

// Run looks up every record in order. Per identifier failures never end the
// run, only ErrFatalIO and cancellation of ctx do. The summary is valid
// even when an error is returned.
func (o *Orchestrator) Run(ctx context.Context, records []source.Record) (summary Summary, err error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.Int("records", len(records)))

	start := o.clock.Now()
	summary = newSummary()
	summary.Total = len(records)

	err = o.out.Init(o.opts.Resume)
	if err != nil {
		return summary, fmt.Errorf("%w: init output: %w", ErrFatalIO, err)
	}
	defer func() {
		closeErr := o.out.Close()
		if closeErr != nil && err == nil {
			err = fmt.Errorf("%w: close output: %w", ErrFatalIO, closeErr)
		}
		summary.Elapsed = o.clock.Now().Sub(start)
	}()

	completed := o.completed(ctx)
	runID := o.startRun(ctx)

	o.progress.Start(len(records))
	defer o.progress.Finish()

	for i, record := range records {
		if ctx.Err() != nil {
			o.tel.ReportWarning("run cancelled", "processed", i, "remaining", len(records)-i)
			summary.Cancelled = true
			err = ctx.Err()
			break
		}
		o.tel.ReportInfo("processing identifier", "i", i, "gtin", record.Identifier)

		if _, done := completed[record.Identifier]; done {
			o.tel.ReportInfo("skipping identifier completed in an earlier run", "gtin", record.Identifier)
			summary.Skipped++
			o.progress.Advance(record.Identifier)
			continue
		}

		outcome := o.lookuper.Lookup(ctx, record.Identifier)
		if ctx.Err() != nil && outcome.Classification == lookup.ClassError {
			// interrupted by the cancellation, it is neither counted nor recorded
			o.tel.ReportWarning("run cancelled", "processed", i, "remaining", len(records)-i, "interrupted", record.Identifier)
			summary.Cancelled = true
			err = ctx.Err()
			break
		}
		summary.add(outcome)
		o.report(outcome)

		if runID != "" {
			recordErr := o.history.Record(ctx, runID, i, outcome)
			if recordErr != nil {
				o.tel.ReportWarning(report_batch_history, "gtin", record.Identifier, "err", recordErr)
			}
		}

		row, ok := o.opts.Policy.RowFor(outcome)
		if ok {
			writeErr := o.out.Write(row)
			if writeErr != nil {
				o.tel.ReportBroken(report_batch_sink, "gtin", record.Identifier, "err", writeErr)
				o.progress.Advance(record.Identifier)
				return summary, fmt.Errorf("%w: %w", ErrFatalIO, writeErr)
			}
			summary.Written++
		}

		o.progress.Advance(record.Identifier)
	}

	if runID != "" && !summary.Cancelled {
		finishErr := o.history.FinishRun(context.WithoutCancel(ctx), runID)
		if finishErr != nil {
			o.tel.ReportWarning(report_batch_history, "run_id", runID, "err", finishErr)
		}
	}
	return summary, err
}

func (o *Orchestrator) report(outcome lookup.Outcome) {
	switch outcome.Classification {
	case lookup.ClassError:
		o.tel.ReportInfo(
			"lookup failed",
			"gtin", outcome.Identifier,
			"kind", outcome.Err.Kind,
			"err", outcome.Err.Err,
		)
	case lookup.ClassStructureMissing:
		o.tel.ReportInfo("lookup skipped", "gtin", outcome.Identifier, "reason", outcome.Reason)
	default:
		o.tel.ReportInfo(
			"lookup finished",
			"gtin", outcome.Identifier,
			"classification", outcome.Classification,
			"elapsed", outcome.Elapsed.Round(time.Millisecond),
		)
	}
}

func (o *Orchestrator) completed(ctx context.Context) map[string]struct{} {
	if !o.opts.Resume || o.history == nil {
		return nil
	}
	completed, err := o.history.Completed(ctx, o.outputKey())
	if err != nil {
		o.tel.ReportWarning(report_batch_history, "err", err)
		return nil
	}
	o.tel.ReportInfo("resuming", "completed", len(completed))
	return completed
}

func (o *Orchestrator) startRun(ctx context.Context) string {
	if o.history == nil {
		return ""
	}
	runID, err := o.history.StartRun(ctx, o.opts.InputPath, o.outputKey(), o.opts.Resume)
	if err != nil {
		o.tel.ReportWarning(report_batch_history, "err", err)
		return ""
	}
	o.tel.ReportDebug("run started", "run_id", runID)
	return runID
}

// outputKey identifies the output in the history, relative and absolute
// spellings of the same file are the same output.
func (o *Orchestrator) outputKey() string {
	if o.opts.OutputPath == "" {
		return ""
	}
	abs, err := filepath.Abs(o.opts.OutputPath)
	if err != nil {
		return filepath.Clean(o.opts.OutputPath)
	}
	return abs
}

type nopProgress struct{}

func (nopProgress) Start(int)      {}
func (nopProgress) Advance(string) {}
func (nopProgress) Finish()        {}
