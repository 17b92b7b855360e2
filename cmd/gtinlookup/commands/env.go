package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gtinlookup/internal/components/chrono"
	"gtinlookup/internal/components/telemetry"
	"gtinlookup/internal/config"
	"gtinlookup/internal/driver"
	"gtinlookup/internal/driver/browser"
	"gtinlookup/internal/driver/static"
	"gtinlookup/internal/lookup"
	"gtinlookup/lib/restyutil"
)

const serviceName = "gtinlookup"

// environment is everything a lookup needs, built once per command.
type environment struct {
	cfg      config.Config
	tel      telemetry.API
	clock    chrono.API
	launcher driver.Launcher
	workflow *lookup.Workflow

	console slog.Handler
	runLog  *telemetry.RunLog
	otel    telemetry.Telemetry
}

// newEnvironment wires logging, tracing and the page driver. When runLogPath
// is set every report is also written to that file, truncated first.
func newEnvironment(ctx context.Context, cfg config.Config, runLogPath string) (*environment, error) {
	env := &environment{
		cfg:   cfg,
		clock: chrono.NewStandardImpl(),
	}

	env.console = telemetry.NewConsoleHandler(os.Stderr, verbose)
	if runLogPath != "" {
		runLog, err := telemetry.OpenRunLog(runLogPath)
		if err != nil {
			return nil, fmt.Errorf("open run log: %w", err)
		}
		env.runLog = runLog
		slog.SetDefault(telemetry.NewLogger(env.console, runLog.Handler()))
	}
	env.tel = telemetry.NewSlogAPI(slog.Default())

	otel, err := telemetry.Setup(ctx, serviceName, cfg.Telemetry)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	env.otel = otel
	if cfg.Telemetry.Enabled() {
		telemetry.InstrumentPerfStats(ctx)
	}

	launcher, err := newLauncher(cfg.Driver, env.tel)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.launcher = launcher

	opts, err := cfg.LookupOptions()
	if err != nil {
		env.Close()
		return nil, err
	}
	env.workflow = lookup.NewWorkflow(launcher, opts, env.tel, env.clock)
	return env, nil
}

func newLauncher(cfg config.Driver, tel telemetry.API) (driver.Launcher, error) {
	switch cfg.Kind {
	case config.DriverBrowser:
		return browser.NewLauncher(browser.Options{
			Headless: cfg.IsHeadless(),
			SlowMo:   cfg.SlowMo.Std(),
		}, tel), nil
	case config.DriverStatic:
		opts := static.Options{
			UserAgent:         cfg.UserAgent,
			RequestsPerSecond: cfg.Rate(),
			CloudflareBypass:  cfg.CloudflareBypass,
		}
		if cfg.DumpDir != "" {
			output, err := restyutil.NewFilesystemOutput(cfg.DumpDir)
			if err != nil {
				return nil, fmt.Errorf("create dump dir: %w", err)
			}
			opts.Output = output
		}
		return static.NewLauncher(opts, tel), nil
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.Kind)
}

func (e *environment) Close() {
	if e.launcher != nil {
		err := e.launcher.Close()
		if err != nil {
			slog.Warn("failed to close driver", "err", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := e.otel.Shutdown(ctx)
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}

	if e.runLog != nil {
		slog.SetDefault(telemetry.NewLogger(e.console))
		err := e.runLog.Close()
		if err != nil {
			slog.Warn("failed to close run log", "err", err)
		}
	}
}
