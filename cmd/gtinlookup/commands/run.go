package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gtinlookup/internal/batch"
	"gtinlookup/internal/components/chrono"
	"gtinlookup/internal/config"
	"gtinlookup/internal/notify"
	"gtinlookup/internal/sink"
	"gtinlookup/internal/store"
	"gtinlookup/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

type runOptions struct {
	input     string
	output    string
	sourceTag string
	runLog    string
	resume    bool
	noHistory bool
	noNotify  bool
	driver    string
}

var runFlags runOptions

func init() {
	flags := runCmd.Flags()
	flags.StringVarP(&runFlags.input, "input", "i", "", "Input table, overrides input.path.")
	flags.StringVarP(&runFlags.output, "output", "o", "", "Output table, overrides output.path.")
	flags.StringVar(&runFlags.sourceTag, "source-tag", "", "Only look up rows whose source tag column equals this value.")
	flags.StringVar(&runFlags.runLog, "run-log", "", "Run log file, overrides run_log.")
	flags.StringVar(&runFlags.driver, "driver", "", "Page driver to use (static or browser), overrides driver.kind.")
	flags.BoolVar(&runFlags.resume, "resume", false, "Skip identifiers that were found or had no result in an earlier run writing to the same output and append to it.")
	flags.BoolVar(&runFlags.noHistory, "no-history", false, "Do not record outcomes in the history database.")
	flags.BoolVar(&runFlags.noNotify, "no-notify", false, "Do not mail the run summary even if notify is configured.")
	rootCmd.AddCommand(runCmd)
}

func applyRunFlags(cfg *config.Config) {
	if runFlags.input != "" {
		cfg.Input.Path = runFlags.input
	}
	if runFlags.output != "" {
		cfg.Output.Path = runFlags.output
	}
	if runFlags.sourceTag != "" {
		cfg.Input.SourceTag = runFlags.sourceTag
	}
	if runFlags.runLog != "" {
		cfg.RunLog = runFlags.runLog
	}
	if runFlags.driver != "" {
		cfg.Driver.Kind = runFlags.driver
	}
}

var runCmd = &cobra.Command{
	Use:   "run [--input <input.csv>] [--output <output.csv>] [--resume]",
	Short: "Looks up every identifier of the input table and writes the found document links to the output table.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		applyRunFlags(&cfg)
		err = cfg.Validate()
		if err != nil {
			serviceutil.Fatal("invalid config", err)
		}

		err = run(cmd.Context(), cfg)
		if err != nil && !errors.Is(err, context.Canceled) {
			serviceutil.Fatal("run failed", err)
		}
		if err != nil {
			os.Exit(1)
		}
	},
}

func run(ctx context.Context, cfg config.Config) error {
	env, err := newEnvironment(ctx, cfg, cfg.RunLog)
	if err != nil {
		return err
	}
	defer env.Close()

	srcOpts, err := cfg.SourceOptions()
	if err != nil {
		return err
	}
	delimiter, err := cfg.OutputDelimiter()
	if err != nil {
		return err
	}
	policy := cfg.Policy()

	out := sink.NewCSVSink(cfg.Output.Path, policy.Header(), delimiter)
	orchestrator := batch.NewOrchestrator(env.workflow, out, batch.Options{
		Policy:     policy,
		InputPath:  cfg.Input.Path,
		OutputPath: cfg.Output.Path,
		Resume:     runFlags.resume,
	}, env.tel, env.clock)
	orchestrator.SetProgress(batch.NewConsoleProgress(os.Stdout))

	var history *store.Store
	if !runFlags.noHistory && cfg.HistoryDb != "" {
		history, err = store.Open(ctx, cfg.HistoryDb, chrono.NewStandardImpl())
		if err != nil {
			slog.Warn("history is unavailable, outcomes will only be in the run log", "path", cfg.HistoryDb, "err", err)
			history = nil
		} else {
			defer history.Close()
			orchestrator.SetHistory(history)
		}
	}
	if runFlags.resume && history == nil {
		slog.Warn("resuming without history, every identifier is looked up again")
	}

	slog.Info("starting run", "input", cfg.Input.Path, "output", cfg.Output.Path, "driver", cfg.Driver.Kind)
	summary, runErr := orchestrator.RunFile(ctx, cfg.Input.Path, srcOpts)

	summary.Render(os.Stdout)
	slog.Info("run finished", "summary", summary.String())

	if cfg.Notify.Enabled() && !runFlags.noNotify {
		info := notify.Run{Input: cfg.Input.Path, Output: cfg.Output.Path, Err: runErr}
		if history != nil {
			latest, ok, err := history.LatestRun(context.WithoutCancel(ctx))
			if err == nil && ok {
				info.ID = latest.ID
			}
		}
		err := notify.NewNotifier(cfg.Notify).Send(context.WithoutCancel(ctx), info, summary)
		if err != nil {
			slog.Warn("failed to mail run summary", "err", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("%s: %w", cfg.Input.Path, runErr)
	}
	return nil
}
