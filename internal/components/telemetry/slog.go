package telemetry

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// SlogAPI implements API using the log/slog package.
type SlogAPI struct {
	logger *slog.Logger
}

// NewSlogAPI creates a SlogAPI writing to logger, a nil logger means slog.Default().
func NewSlogAPI(logger *slog.Logger) SlogAPI {
	return SlogAPI{logger: logger}
}

func (s SlogAPI) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

func (s SlogAPI) ReportBroken(id string, args ...any) {
	s.log().Error("broken component", append([]any{"id", id}, args...)...)
}

func (s SlogAPI) ReportWarning(id string, args ...any) {
	s.log().Warn("warning", append([]any{"id", id}, args...)...)
}

func (s SlogAPI) ReportInfo(msg string, args ...any) {
	s.log().Info(msg, args...)
}

func (s SlogAPI) ReportDebug(msg string, args ...any) {
	s.log().Debug(msg, args...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	s.log().Info("count", "id", id, "n", count)
}

// NewConsoleHandler is the colored handler used on stderr.
func NewConsoleHandler(w io.Writer, verbose bool) slog.Handler {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})
}

// RunLog is the plain text log file of a single run, it is truncated when
// opened and records every event down to debug level, one line per event.
type RunLog struct {
	file    *os.File
	handler slog.Handler
}

func OpenRunLog(path string) (*RunLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &RunLog{
		file:    file,
		handler: NewRunLogHandler(file),
	}, nil
}

// NewRunLogHandler formats run log lines as "<RFC3339 time> <LEVEL> <msg> k=v...".
func NewRunLogHandler(w io.Writer) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	})
}

func (r *RunLog) Handler() slog.Handler {
	return r.handler
}

func (r *RunLog) Close() error {
	return r.file.Close()
}

// NewLogger fans records out to every handler, nil handlers are skipped.
func NewLogger(handlers ...slog.Handler) *slog.Logger {
	var active []slog.Handler
	for _, h := range handlers {
		if h != nil {
			active = append(active, h)
		}
	}
	if len(active) == 1 {
		return slog.New(active[0])
	}
	return slog.New(slogmulti.Fanout(active...))
}
