// Package static is a page driver that fetches pages over HTTP and queries
// them with goquery. It does not run scripts, so a page never changes after
// it is loaded: a selector that is absent is reported as a timeout right away.
package static

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"gtinlookup/internal/components/telemetry"
	"gtinlookup/internal/driver"
	"gtinlookup/lib/htmlutil"
	"gtinlookup/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

const (
	report_session_open   = "session.open"
	report_session_submit = "session.submit"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

var tracer = otel.Tracer("gtinlookup.driver.static")

type Options struct {
	UserAgent string
	// RequestsPerSecond limits requests across every session of the launcher,
	// 0 means unlimited.
	RequestsPerSecond float64
	// CloudflareBypass wraps the transport with cloudflare-bp.
	CloudflareBypass bool
	// Output receives request/response dumps, it can be nil.
	Output restyutil.InstrumentOutput
}

type Launcher struct {
	opts    Options
	limiter *rate.Limiter
	tel     telemetry.API
}

func NewLauncher(opts Options, tel telemetry.API) *Launcher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Launcher{
		opts:    opts,
		limiter: limiter,
		tel:     telemetry.NewScopedAPI("static_driver", tel),
	}
}

func (l *Launcher) NewSession(ctx context.Context) (driver.Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetCookieJar(jar)
	if l.opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	httpClient.SetHeader("user-agent", l.opts.UserAgent)
	httpClient.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	if l.limiter != nil {
		limiter := l.limiter
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}
	restyutil.InstrumentClient(httpClient, tracer, l.opts.Output)

	return &session{http: httpClient, tel: l.tel}, nil
}

func (l *Launcher) Close() error {
	return nil
}

type session struct {
	http *resty.Client
	tel  telemetry.API

	doc *goquery.Document
	url *url.URL
}

func (s *session) load(res *resty.Response) error {
	if res.IsError() {
		return fmt.Errorf("%w: %s responded %s", driver.ErrNavigation, res.Request.URL, res.Status())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return fmt.Errorf("parse %s: %w", res.Request.URL, err)
	}
	s.doc = doc
	s.url = res.RawResponse.Request.URL
	return nil
}

func (s *session) Open(ctx context.Context, target string, _ driver.ReadyCondition, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := s.http.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		s.tel.ReportDebug(report_session_open, "url", target, "err", err)
		return fmt.Errorf("%w: get %s: %w", driver.ErrNavigation, target, err)
	}
	return s.load(res)
}

func (s *session) AwaitSelector(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.doc == nil || s.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", driver.ErrTimeout, selector)
	}
	return nil
}

func (s *session) Exists(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.doc == nil {
		return false, nil
	}
	return s.doc.Find(selector).Length() > 0, nil
}

// Submit fills the form around the input the way a browser would on Enter:
// every other named input keeps its value, the input gets the query. The
// request is bounded by ctx only, a deadline on ctx surfaces as
// driver.ErrTimeout.
func (s *session) Submit(ctx context.Context, inputSelector, query string) error {
	if s.doc == nil {
		return fmt.Errorf("%w: no page loaded", driver.ErrNotFound)
	}
	input := s.doc.Find(inputSelector).First()
	if input.Length() == 0 {
		return fmt.Errorf("%w: %s", driver.ErrNotFound, inputSelector)
	}
	name := input.AttrOr("name", "")
	if name == "" {
		return fmt.Errorf("%w: %s has no name attribute", driver.ErrNotFound, inputSelector)
	}
	form := input.Closest("form")
	if form.Length() == 0 {
		return fmt.Errorf("%w: %s is not inside a form", driver.ErrNotFound, inputSelector)
	}

	action, err := url.Parse(strings.TrimSpace(form.AttrOr("action", "")))
	if err != nil {
		return fmt.Errorf("parse form action: %w", err)
	}
	action = s.url.ResolveReference(action)

	values := formValues(form)
	values.Set(name, query)

	s.tel.ReportDebug(report_session_submit, "action", action.String(), "field", name)

	req := s.http.R().SetContext(ctx)
	var res *resty.Response
	if strings.EqualFold(form.AttrOr("method", "get"), "post") {
		res, err = req.SetFormDataFromValues(values).Post(action.String())
	} else {
		action.RawQuery = values.Encode()
		res, err = req.Get(action.String())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: submit %s: %w", driver.ErrTimeout, action, err)
	}
	if err != nil {
		return fmt.Errorf("submit %s: %w", action, err)
	}
	return s.load(res)
}

func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
		switch strings.ToLower(input.AttrOr("type", "text")) {
		case "submit", "button", "image", "reset", "file":
			return
		case "checkbox", "radio":
			if _, checked := input.Attr("checked"); !checked {
				return
			}
		}
		values.Add(input.AttrOr("name", ""), input.AttrOr("value", ""))
	})
	return values
}

func (s *session) ReadAttribute(ctx context.Context, selector, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if s.doc == nil {
		return "", false, nil
	}
	value, ok := s.doc.Find(selector).First().Attr(name)
	return strings.TrimSpace(value), ok, nil
}

func (s *session) ReadText(ctx context.Context, selector string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if s.doc == nil {
		return "", false, nil
	}
	sel := s.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false, nil
	}
	return htmlutil.CleanText(sel.Nodes[0]), true, nil
}

func (s *session) FindLinkByText(ctx context.Context, containerSelector, fragment string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if s.doc == nil {
		return "", false, nil
	}
	anchors := htmlutil.GetAnchors(ctx, s.url, s.doc.Find(containerSelector).Find("a"))
	anchor, ok := htmlutil.FirstContaining(anchors, fragment)
	return anchor.Href, ok, nil
}

func (s *session) Close() error {
	s.doc = nil
	s.url = nil
	return nil
}
