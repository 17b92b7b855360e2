// Package browser is a page driver backed by a headless Chromium through
// playwright. One browser process is shared by the launcher, every session
// gets its own browser context so cookies, storage and history never leak
// from one lookup into the next.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"gtinlookup/internal/components/telemetry"
	"gtinlookup/internal/driver"
	"gtinlookup/lib/textutil"

	pw "github.com/playwright-community/playwright-go"
)

const (
	report_launcher_start = "launcher.start"
	report_session_close  = "session.close"
)

type Options struct {
	Headless bool
	// SlowMo slows every playwright operation down, useful when watching a
	// non-headless run.
	SlowMo time.Duration
}

// Install downloads the chromium build playwright needs.
func Install() error {
	return pw.Install(&pw.RunOptions{Browsers: []string{"chromium"}})
}

type Launcher struct {
	opts Options
	tel  telemetry.API

	mutex   sync.Mutex
	runtime *pw.Playwright
	browser pw.Browser
}

func NewLauncher(opts Options, tel telemetry.API) *Launcher {
	return &Launcher{
		opts: opts,
		tel:  telemetry.NewScopedAPI("browser_driver", tel),
	}
}

// start launches the browser on first use.
func (l *Launcher) start() (pw.Browser, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.browser != nil && l.browser.IsConnected() {
		return l.browser, nil
	}
	if l.runtime == nil {
		runtime, err := pw.Run()
		if err != nil {
			l.tel.ReportBroken(report_launcher_start, "err", err)
			return nil, fmt.Errorf("start playwright: %w", err)
		}
		l.runtime = runtime
	}

	opts := pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(l.opts.Headless),
	}
	if l.opts.SlowMo > 0 {
		opts.SlowMo = pw.Float(float64(l.opts.SlowMo.Milliseconds()))
	}
	browser, err := l.runtime.Chromium.Launch(opts)
	if err != nil {
		l.tel.ReportBroken(report_launcher_start, "err", err)
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	l.browser = browser
	return browser, nil
}

func (l *Launcher) NewSession(ctx context.Context) (driver.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	browser, err := l.start()
	if err != nil {
		return nil, err
	}
	bctx, err := browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &session{bctx: bctx, page: page, tel: l.tel}, nil
}

func (l *Launcher) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	var errs []error
	if l.browser != nil {
		errs = append(errs, l.browser.Close())
		l.browser = nil
	}
	if l.runtime != nil {
		errs = append(errs, l.runtime.Stop())
		l.runtime = nil
	}
	return errors.Join(errs...)
}

type session struct {
	bctx pw.BrowserContext
	page pw.Page
	tel  telemetry.API

	closeOnce sync.Once
	closeErr  error
}

func ms(d time.Duration) *float64 {
	return pw.Float(float64(d.Milliseconds()))
}

// translate maps playwright timeouts onto driver.ErrTimeout so callers can
// classify them without knowing about playwright.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pw.ErrTimeout) {
		return fmt.Errorf("%w: %w", driver.ErrTimeout, err)
	}
	return err
}

func waitUntil(ready driver.ReadyCondition) *pw.WaitUntilState {
	switch ready {
	case driver.ReadyLoad:
		return pw.WaitUntilStateLoad
	case driver.ReadyDOMContentLoaded:
		return pw.WaitUntilStateDomcontentloaded
	default:
		return pw.WaitUntilStateNetworkidle
	}
}

func (s *session) Open(ctx context.Context, target string, ready driver.ReadyCondition, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Goto(target, pw.PageGotoOptions{
		WaitUntil: waitUntil(ready),
		Timeout:   ms(timeout),
	})
	if err != nil {
		return fmt.Errorf("%w: goto %s: %w", driver.ErrNavigation, target, translate(err))
	}
	return nil
}

func (s *session) AwaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.page.Locator(selector).First().WaitFor(pw.LocatorWaitForOptions{
		State:   pw.WaitForSelectorStateAttached,
		Timeout: ms(timeout),
	})
	return translate(err)
}

func (s *session) Exists(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	count, err := s.page.Locator(selector).Count()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *session) Submit(ctx context.Context, inputSelector, query string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	input := s.page.Locator(inputSelector).First()
	count, err := s.page.Locator(inputSelector).Count()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", driver.ErrNotFound, inputSelector)
	}
	if err := input.Fill(query); err != nil {
		return translate(err)
	}
	return translate(input.Press("Enter"))
}

func (s *session) ReadAttribute(ctx context.Context, selector, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	locator := s.page.Locator(selector)
	count, err := locator.Count()
	if err != nil || count == 0 {
		return "", false, err
	}
	value, err := locator.First().GetAttribute(name)
	if err != nil {
		return "", false, translate(err)
	}
	value = strings.TrimSpace(value)
	return value, value != "", nil
}

func (s *session) ReadText(ctx context.Context, selector string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	locator := s.page.Locator(selector)
	count, err := locator.Count()
	if err != nil || count == 0 {
		return "", false, err
	}
	text, err := locator.First().TextContent()
	if err != nil {
		return "", false, translate(err)
	}
	return strings.Join(strings.Fields(text), " "), true, nil
}

func (s *session) FindLinkByText(ctx context.Context, containerSelector, fragment string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	anchors, err := s.page.Locator(containerSelector).Locator("a[href]").All()
	if err != nil {
		return "", false, err
	}
	base, err := url.Parse(s.page.URL())
	if err != nil {
		return "", false, err
	}
	for _, anchor := range anchors {
		text, err := anchor.InnerText()
		if err != nil {
			return "", false, translate(err)
		}
		if !textutil.ContainsPhrase(text, fragment) {
			continue
		}
		href, err := anchor.GetAttribute("href")
		if err != nil {
			return "", false, translate(err)
		}
		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return "", false, fmt.Errorf("parse href %q: %w", href, err)
		}
		return base.ResolveReference(link).String(), true, nil
	}
	return "", false, nil
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.bctx.Close()
		if s.closeErr != nil {
			s.tel.ReportWarning(report_session_close, "err", s.closeErr)
		}
	})
	return s.closeErr
}
