package batch

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// ConsoleProgress renders a go-pretty progress bar.
type ConsoleProgress struct {
	writer  progress.Writer
	tracker *progress.Tracker
	done    chan struct{}
}

func NewConsoleProgress(out io.Writer) *ConsoleProgress {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetMessageLength(32)
	pw.SetStyle(progress.StyleDefault)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Percentage = true
	pw.Style().Visibility.Value = true
	pw.Style().Options.TimeInProgressPrecision = time.Second
	return &ConsoleProgress{writer: pw}
}

func (p *ConsoleProgress) Start(total int) {
	p.tracker = &progress.Tracker{
		Message: "looking up",
		Total:   int64(total),
		Units:   progress.UnitsDefault,
	}
	p.writer.AppendTracker(p.tracker)
	p.done = make(chan struct{})
	go func() {
		p.writer.Render()
		close(p.done)
	}()
}

func (p *ConsoleProgress) Advance(identifier string) {
	if p.tracker == nil {
		return
	}
	p.tracker.UpdateMessage(identifier)
	p.tracker.Increment(1)
}

func (p *ConsoleProgress) Finish() {
	if p.tracker == nil {
		return
	}
	p.tracker.MarkAsDone()
	// let the renderer draw the final state before stopping it
	time.Sleep(150 * time.Millisecond)
	p.writer.Stop()
	<-p.done
	p.tracker = nil
}
