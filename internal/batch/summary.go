package batch

import (
	"fmt"
	"io"
	"time"

	"gtinlookup/internal/lookup"

	"github.com/jedib0t/go-pretty/v6/table"
)

type Summary struct {
	Total int
	// Counts holds the number of lookups per classification.
	Counts map[lookup.Classification]int
	// Errors holds the number of failed lookups per error kind.
	Errors    map[lookup.ErrorKind]int
	Written   int
	Skipped   int
	Cancelled bool
	Elapsed   time.Duration
}

func newSummary() Summary {
	return Summary{
		Counts: map[lookup.Classification]int{},
		Errors: map[lookup.ErrorKind]int{},
	}
}

func (s *Summary) add(outcome lookup.Outcome) {
	s.Counts[outcome.Classification]++
	if outcome.Err != nil {
		s.Errors[outcome.Err.Kind]++
	}
}

// Processed is the number of records that were looked up or skipped.
func (s Summary) Processed() int {
	processed := s.Skipped
	for _, count := range s.Counts {
		processed += count
	}
	return processed
}

func (s Summary) String() string {
	return fmt.Sprintf(
		"%d/%d processed, %d found, %d no result, %d structure missing, %d errors, %d rows written",
		s.Processed(), s.Total,
		s.Counts[lookup.ClassFound],
		s.Counts[lookup.ClassNoResult],
		s.Counts[lookup.ClassStructureMissing],
		s.Counts[lookup.ClassError],
		s.Written,
	)
}

// Table renders the summary as a go-pretty table.
func (s Summary) Table() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Outcome", "Count"})
	for _, class := range lookup.Classifications() {
		t.AppendRow(table.Row{class.String(), s.Counts[class]})
	}
	for _, kind := range []lookup.ErrorKind{
		lookup.KindNavigation,
		lookup.KindSearchFormMissing,
		lookup.KindTimeout,
		lookup.KindUnexpected,
	} {
		if s.Errors[kind] == 0 {
			continue
		}
		t.AppendRow(table.Row{"  error: " + kind.String(), s.Errors[kind]})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"skipped (resume)", s.Skipped})
	t.AppendRow(table.Row{"rows written", s.Written})
	t.AppendFooter(table.Row{"total", fmt.Sprintf("%d/%d", s.Processed(), s.Total)})
	if s.Cancelled {
		t.SetCaption("run cancelled after %s", s.Elapsed.Round(time.Second))
	} else {
		t.SetCaption("finished in %s", s.Elapsed.Round(time.Second))
	}
	return t
}

func (s Summary) Render(w io.Writer) {
	t := s.Table()
	t.SetOutputMirror(w)
	t.Render()
}
