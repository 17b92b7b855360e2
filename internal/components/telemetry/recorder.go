package telemetry

import (
	"fmt"
	"strings"
	"sync"
)

type Entry struct {
	Level   string
	Message string
	Args    []any
}

// String renders the entry the way a run log line would look without the timestamp.
func (e Entry) String() string {
	var out strings.Builder
	out.WriteString(e.Level)
	out.WriteString(" ")
	out.WriteString(e.Message)
	for i := 0; i+1 < len(e.Args); i += 2 {
		out.WriteString(fmt.Sprintf(" %v=%v", e.Args[i], e.Args[i+1]))
	}
	return out.String()
}

// Recorder is an API that keeps every report in memory, it is meant for tests.
type Recorder struct {
	mutex   sync.Mutex
	entries []Entry
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(level, msg string, args []any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg, Args: args})
}

func (r *Recorder) ReportBroken(id string, args ...any) {
	r.add("ERROR", id, args)
}

func (r *Recorder) ReportWarning(id string, args ...any) {
	r.add("WARN", id, args)
}

func (r *Recorder) ReportInfo(msg string, args ...any) {
	r.add("INFO", msg, args)
}

func (r *Recorder) ReportDebug(msg string, args ...any) {
	r.add("DEBUG", msg, args)
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.add("INFO", id, []any{"n", count})
}

func (r *Recorder) Entries() []Entry {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Lines returns every entry rendered with Entry.String.
func (r *Recorder) Lines() []string {
	entries := r.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return lines
}

// Contains reports whether any rendered line contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, line := range r.Lines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
