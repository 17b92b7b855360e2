package commands

import (
	"log/slog"

	"gtinlookup/internal/driver/browser"
	"gtinlookup/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(installBrowserCmd)
}

var installBrowserCmd = &cobra.Command{
	Use:   "install-browser",
	Short: "Downloads the chromium build the browser driver needs.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		slog.Info("installing chromium, this can take a while")
		err := browser.Install()
		if err != nil {
			serviceutil.Fatal("failed to install browser", err)
		}
		slog.Info("browser installed")
	},
}
