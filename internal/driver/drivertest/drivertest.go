// Package drivertest provides a scripted in-memory driver.Launcher for tests.
package drivertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gtinlookup/internal/driver"
	"gtinlookup/lib/textutil"
)

type Link struct {
	Text string
	Href string
}

// Page is the static state of a scripted page.
type Page struct {
	// Present lists the selectors that match something on the page.
	Present []string
	// Attributes maps selector -> attribute -> value.
	Attributes map[string]map[string]string
	// Texts maps selector -> text content.
	Texts map[string]string
	// Links maps container selector -> anchors in document order.
	Links map[string][]Link
	// Faults maps an operation name ("await", "exists", "attr", "text", "link",
	// "submit") to the error it should return while this page is shown.
	Faults map[string]error
	// PanicOn names an operation that panics while this page is shown.
	PanicOn string
	// HangOn names an operation that blocks until its context is done.
	HangOn string
}

func (p Page) has(selector string) bool {
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		for _, present := range p.Present {
			if part == present {
				return true
			}
		}
	}
	return false
}

func (p Page) fault(op string) error {
	if p.PanicOn == op {
		panic(fmt.Sprintf("drivertest: scripted panic in %s", op))
	}
	return p.Faults[op]
}

// Site scripts every session a Launcher hands out.
type Site struct {
	Home Page
	// Results maps a submitted query to the page shown afterwards,
	// queries without an entry show Default.
	Results map[string]Page
	Default Page
	// OpenErr is returned by every Open.
	OpenErr error
}

type Launcher struct {
	Site Site
	// NewSessionErr is returned by NewSession.
	NewSessionErr error

	mutex    sync.Mutex
	sessions []*Session
	closed   bool
}

func NewLauncher(site Site) *Launcher {
	return &Launcher{Site: site}
}

func (l *Launcher) NewSession(ctx context.Context) (driver.Session, error) {
	if l.NewSessionErr != nil {
		return nil, l.NewSessionErr
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	s := &Session{site: l.Site}
	l.sessions = append(l.sessions, s)
	return s, nil
}

func (l *Launcher) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.closed = true
	return nil
}

// Sessions returns every session created so far.
func (l *Launcher) Sessions() []*Session {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]*Session(nil), l.sessions...)
}

type Session struct {
	site    Site
	current *Page

	mutex   sync.Mutex
	Queries []string
	Opened  []string
	Closes  int
}

func (s *Session) Closed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.Closes > 0
}

func (s *Session) page() Page {
	if s.current == nil {
		return Page{}
	}
	return *s.current
}

func (s *Session) Open(ctx context.Context, url string, _ driver.ReadyCondition, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Opened = append(s.Opened, url)
	if s.site.OpenErr != nil {
		return fmt.Errorf("%w: %w", driver.ErrNavigation, s.site.OpenErr)
	}
	home := s.site.Home
	s.current = &home
	return nil
}

func (s *Session) AwaitSelector(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	page := s.page()
	if err := page.fault("await"); err != nil {
		return err
	}
	if !page.has(selector) {
		return fmt.Errorf("%w: %s", driver.ErrTimeout, selector)
	}
	return nil
}

func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	page := s.page()
	if err := page.fault("exists"); err != nil {
		return false, err
	}
	return page.has(selector), nil
}

func (s *Session) Submit(ctx context.Context, inputSelector, query string) error {
	page := s.page()
	if page.HangOn == "submit" {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := page.fault("submit"); err != nil {
		return err
	}
	if !page.has(inputSelector) {
		return fmt.Errorf("%w: %s", driver.ErrNotFound, inputSelector)
	}
	s.Queries = append(s.Queries, query)
	next, ok := s.site.Results[query]
	if !ok {
		next = s.site.Default
	}
	s.current = &next
	return nil
}

func (s *Session) ReadAttribute(ctx context.Context, selector, name string) (string, bool, error) {
	page := s.page()
	if err := page.fault("attr"); err != nil {
		return "", false, err
	}
	value, ok := page.Attributes[selector][name]
	return value, ok, nil
}

func (s *Session) ReadText(ctx context.Context, selector string) (string, bool, error) {
	page := s.page()
	if err := page.fault("text"); err != nil {
		return "", false, err
	}
	text, ok := page.Texts[selector]
	return text, ok, nil
}

func (s *Session) FindLinkByText(ctx context.Context, containerSelector, fragment string) (string, bool, error) {
	page := s.page()
	if err := page.fault("link"); err != nil {
		return "", false, err
	}
	for _, link := range page.Links[containerSelector] {
		if textutil.ContainsPhrase(link.Text, fragment) {
			return link.Href, true, nil
		}
	}
	return "", false, nil
}

func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Closes++
	return nil
}
