// Package config holds the gtinlookup configuration file format.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"gtinlookup/internal/components/telemetry"
	"gtinlookup/internal/driver"
	"gtinlookup/internal/lookup"
	"gtinlookup/internal/notify"
	"gtinlookup/internal/sink"
	"gtinlookup/internal/source"
	"gtinlookup/lib/configutil"
)

const DefaultFile = "gtinlookup.json5"

const (
	DriverStatic  = "static"
	DriverBrowser = "browser"
)

const defaultRequestsPerSecond = 1

type Driver struct {
	// Kind is either "static" or "browser".
	Kind      string   `json:"kind"`
	Headless  *bool    `json:"headless"`
	SlowMo    Duration `json:"slow_mo"`
	UserAgent string   `json:"user_agent"`
	// RequestsPerSecond is 1 when unset, 0 lifts the limit.
	RequestsPerSecond *float64 `json:"requests_per_second"`
	CloudflareBypass  bool     `json:"cloudflare_bypass"`
	// DumpDir receives every request and response of the static driver.
	DumpDir string `json:"dump_dir"`
}

func (d Driver) IsHeadless() bool {
	return d.Headless == nil || *d.Headless
}

func (d Driver) Rate() float64 {
	if d.RequestsPerSecond == nil {
		return defaultRequestsPerSecond
	}
	return *d.RequestsPerSecond
}

type Input struct {
	Path              string   `json:"path"`
	Delimiter         string   `json:"delimiter"`
	IdentifierColumns []string `json:"identifier_columns"`
	SourceTagColumn   string   `json:"source_tag_column"`
	SourceTag         string   `json:"source_tag"`
}

type Output struct {
	Path      string   `json:"path"`
	Delimiter string   `json:"delimiter"`
	Fields    []string `json:"fields"`
	Required  []string `json:"required"`
}

type Site struct {
	Url             string         `json:"url"`
	Ready           string         `json:"ready"`
	SearchBox       string         `json:"search_box"`
	ResultsMarker   string         `json:"results_marker"`
	ResultContainer string         `json:"result_container"`
	NoResultsMarker string         `json:"no_results_marker"`
	NoResultsPhrase string         `json:"no_results_phrase"`
	Fields          []lookup.Field `json:"fields"`
}

type Config struct {
	Driver Driver `json:"driver"`
	Input  Input  `json:"input"`
	Output Output `json:"output"`
	Site   Site   `json:"site"`

	RunLog    string `json:"run_log"`
	HistoryDb string `json:"history_db"`

	WaitTimeout       Duration `json:"wait_timeout"`
	NavigationTimeout Duration `json:"navigation_timeout"`
	// SettleDelay falls back to the site default when unset, 0 disables it.
	SettleDelay *Duration `json:"settle_delay"`

	Telemetry telemetry.Config `json:"telemetry"`
	Notify    notify.Config    `json:"notify"`
}

func Default() Config {
	opts := lookup.DefaultOptions()
	policy := sink.DefaultPolicy()
	return Config{
		Driver: Driver{
			Kind: DriverStatic,
		},
		Input: Input{
			Path:              "input.csv",
			Delimiter:         ",",
			IdentifierColumns: source.DefaultIdentifierColumns,
		},
		Output: Output{
			Path:      "output.csv",
			Delimiter: ",",
			Fields:    policy.Fields,
			Required:  policy.Required,
		},
		Site: Site{
			Url:             opts.Url,
			Ready:           string(opts.Ready),
			SearchBox:       opts.SearchBox,
			ResultsMarker:   opts.ResultsMarker,
			ResultContainer: opts.ResultContainer,
			NoResultsMarker: opts.NoResultsMarker,
			NoResultsPhrase: opts.NoResultsPhrase,
			Fields:          opts.Fields,
		},
		RunLog:            "gtinlookup.log",
		HistoryDb:         "gtinlookup.db",
		WaitTimeout:       Duration(opts.WaitTimeout),
		NavigationTimeout: Duration(opts.NavigationTimeout),
	}
}

// Load reads path and its local override, unset values fall back to Default.
// A missing file yields the defaults. Defaults are filled in for zero values,
// the options where zero means something of its own are pointers and resolve
// their default when they are used.
func Load(path string) (Config, error) {
	cfg, err := configutil.ReadConfigWithDefaults(path, Default())
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}

func delimiter(name, value string) (rune, error) {
	if value == "" {
		return ',', nil
	}
	if value == `\t` || strings.EqualFold(value, "tab") {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(value)
	if size != len(value) || r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("%s: invalid delimiter %q", name, value)
	}
	return r, nil
}

func (c Config) SourceOptions() (source.Options, error) {
	delim, err := delimiter("input.delimiter", c.Input.Delimiter)
	if err != nil {
		return source.Options{}, err
	}
	return source.Options{
		Delimiter:         delim,
		IdentifierColumns: c.Input.IdentifierColumns,
		SourceTagColumn:   c.Input.SourceTagColumn,
		SourceTag:         c.Input.SourceTag,
	}, nil
}

func (c Config) OutputDelimiter() (rune, error) {
	return delimiter("output.delimiter", c.Output.Delimiter)
}

func (c Config) Policy() sink.Policy {
	return sink.Policy{
		Fields:   c.Output.Fields,
		Required: c.Output.Required,
	}
}

func (c Config) LookupOptions() (lookup.Options, error) {
	ready, err := driver.ParseReadyCondition(c.Site.Ready)
	if err != nil {
		return lookup.Options{}, fmt.Errorf("site.ready: %w", err)
	}
	return lookup.Options{
		Url:               c.Site.Url,
		Ready:             ready,
		SearchBox:         c.Site.SearchBox,
		ResultsMarker:     c.Site.ResultsMarker,
		ResultContainer:   c.Site.ResultContainer,
		NoResultsMarker:   c.Site.NoResultsMarker,
		NoResultsPhrase:   c.Site.NoResultsPhrase,
		Fields:            c.Site.Fields,
		NavigationTimeout: c.NavigationTimeout.Std(),
		WaitTimeout:       c.WaitTimeout.Std(),
		SettleDelay:       c.settleDelay(),
	}, nil
}

func (c Config) settleDelay() time.Duration {
	if c.SettleDelay == nil {
		return lookup.DefaultOptions().SettleDelay
	}
	return c.SettleDelay.Std()
}

// Validate checks everything a run needs before any lookup starts.
func (c Config) Validate() error {
	switch c.Driver.Kind {
	case DriverStatic, DriverBrowser:
	default:
		return fmt.Errorf("driver.kind: unknown driver %q", c.Driver.Kind)
	}
	if c.Driver.Rate() < 0 {
		return errors.New("driver.requests_per_second must not be negative")
	}

	opts, err := c.LookupOptions()
	if err != nil {
		return err
	}
	err = opts.Validate()
	if err != nil {
		return fmt.Errorf("site: %w", err)
	}

	_, err = c.SourceOptions()
	if err != nil {
		return err
	}
	_, err = c.OutputDelimiter()
	if err != nil {
		return err
	}

	policy := c.Policy()
	err = policy.Validate()
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	fields := opts.FieldNames()
	for _, name := range policy.Fields {
		if !slices.Contains(fields, name) {
			return fmt.Errorf("output: field %q is not extracted by the site", name)
		}
	}
	return nil
}
