// Package driver defines the page driver a lookup talks to. A Session is one
// exclusive, freshly initialized page (browser context or HTTP client with
// its own cookie jar), it is never shared between lookups.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is returned when a selector does not appear within the given timeout.
	ErrTimeout = errors.New("timed out waiting for page content")
	// ErrNotFound is returned when an element required by an action does not exist.
	ErrNotFound = errors.New("element not found")
	// ErrNavigation is returned when a page cannot be loaded.
	ErrNavigation = errors.New("navigation failed")
)

// ReadyCondition is the load state Open waits for before returning.
type ReadyCondition string

const (
	ReadyLoad             ReadyCondition = "load"
	ReadyDOMContentLoaded ReadyCondition = "domcontentloaded"
	ReadyNetworkIdle      ReadyCondition = "networkidle"
)

func ParseReadyCondition(s string) (ReadyCondition, error) {
	switch ReadyCondition(s) {
	case ReadyLoad, ReadyDOMContentLoaded, ReadyNetworkIdle:
		return ReadyCondition(s), nil
	case "":
		return ReadyNetworkIdle, nil
	}
	return "", fmt.Errorf("unknown ready condition %q", s)
}

// Session is a single page driven by a lookup.
type Session interface {
	// Open navigates to url and waits for ready, errors wrap ErrNavigation.
	Open(ctx context.Context, url string, ready ReadyCondition, timeout time.Duration) error
	// AwaitSelector blocks until an element matching selector exists, it returns ErrTimeout
	// when none appears within timeout.
	AwaitSelector(ctx context.Context, selector string, timeout time.Duration) error
	// Exists reports whether an element matching selector is currently on the page.
	Exists(ctx context.Context, selector string) (bool, error)
	// Submit types query into the input matching inputSelector and submits it,
	// it returns ErrNotFound if there is no such input.
	Submit(ctx context.Context, inputSelector, query string) error
	// ReadAttribute returns the attribute of the first element matching selector,
	// ok is false if the element or the attribute is absent.
	ReadAttribute(ctx context.Context, selector, name string) (value string, ok bool, err error)
	// ReadText returns the trimmed text content of the first element matching selector.
	ReadText(ctx context.Context, selector string) (text string, ok bool, err error)
	// FindLinkByText returns the absolute href of the first anchor inside
	// containerSelector whose visible text contains fragment.
	FindLinkByText(ctx context.Context, containerSelector, fragment string) (href string, ok bool, err error)
	// Close releases the session, it is safe to call more than once.
	Close() error
}

// Launcher creates sessions, one per lookup.
type Launcher interface {
	NewSession(ctx context.Context) (Session, error)
	// Close releases whatever is shared between sessions (a browser process for example).
	Close() error
}
