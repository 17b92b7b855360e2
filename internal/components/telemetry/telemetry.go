package telemetry

import (
	"fmt"
)

// API is an abstraction over logging/metrics.
// This allows for assertions and tests for working logging/metrics to exist.
//
// Every method takes slog style key/value pairs after the id or message.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that has broken in a way that should be addressed.
	//
	// The `id` should indicate what **component** broke, not what specific piece of the
	// implementation broke, ex. `workflow.navigate` rather than `workflow.navigate-http-get`.
	//
	// Formatting rules:
	// 1) all lowercase
	// 2) use underscores for large components
	// 3) use dashes for methods part of a larger component
	ReportBroken(id string, args ...any)

	// ReportWarning reports a scenario that does not necessarily indicate brokenness, but may be subject to investigation
	//
	// For what value to provide as `id` refer to ReportBroken.
	ReportWarning(id string, args ...any)

	// ReportInfo reports a significant event, these end up as lines in the run log.
	ReportInfo(msg string, args ...any)

	// ReportDebug reports some debug information that will be ignored on the console
	ReportDebug(msg string, args ...any)

	// ReportCount reports the current count of a specific event at the current time, these counts should
	// not be summed but interpreted as points of data over time.
	//
	// For what value to provide as `id` refer to ReportBroken.
	ReportCount(id string, count int64)
}

// ScopedAPI is a telemetry API that attaches a namespace for a given API, kind of like creating a
// "sub" logger using things like log.New(), in which you can define the prefix for the logs.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI creates a ScopedAPI out of a given namespace and another api.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, args ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), args...)
}

func (s ScopedAPI) ReportWarning(id string, args ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), args...)
}

func (s ScopedAPI) ReportInfo(msg string, args ...any) {
	s.inner.ReportInfo(fmt.Sprintf("%s: %s", s.namespace, msg), args...)
}

func (s ScopedAPI) ReportDebug(msg string, args ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), args...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
