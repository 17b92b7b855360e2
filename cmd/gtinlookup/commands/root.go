package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gtinlookup/internal/components/telemetry"
	"gtinlookup/internal/config"
	"gtinlookup/lib/configutil"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "gtinlookup",
	Short:         "gtinlookup looks up product identifiers on a product data site and collects their document links.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(telemetry.NewLogger(telemetry.NewConsoleHandler(os.Stderr, verbose)))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the config file, searched upwards from the cwd by default.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print debug logs to the console.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config, or the nearest gtinlookup.json5 when no path was
// given. Without any config file the defaults are used.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		found, err := configutil.FindRecursively(config.DefaultFile)
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("no config file found, using defaults")
			return config.Default(), nil
		}
		if err != nil {
			return config.Config{}, err
		}
		path = found
	}
	slog.Debug("reading config", "path", path)
	return config.Load(path)
}
