package commands

import (
	"fmt"

	"gtinlookup/internal/lookup"
	"gtinlookup/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var lookupDriver string

func init() {
	lookupCmd.Flags().StringVar(&lookupDriver, "driver", "", "Page driver to use (static or browser), overrides driver.kind.")
	rootCmd.AddCommand(lookupCmd)
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <gtin>...",
	Short: "Looks up the given identifiers and prints every extracted field, nothing is written.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if lookupDriver != "" {
			cfg.Driver.Kind = lookupDriver
		}
		err = cfg.Validate()
		if err != nil {
			serviceutil.Fatal("invalid config", err)
		}

		env, err := newEnvironment(cmd.Context(), cfg, "")
		if err != nil {
			serviceutil.Fatal("failed to set up lookup", err)
		}
		defer env.Close()

		fields := env.workflow.Options().FieldNames()
		header := table.Row{"GTIN", "Outcome"}
		for _, name := range fields {
			header = append(header, name)
		}

		t := newTable()
		t.AppendHeader(header)
		for _, identifier := range args {
			if cmd.Context().Err() != nil {
				break
			}
			outcome := env.workflow.Lookup(cmd.Context(), identifier)
			t.AppendRow(outcomeRow(outcome, fields))
		}
		t.Render()
	},
}

func outcomeRow(outcome lookup.Outcome, fields []string) table.Row {
	status := outcome.Classification.String()
	switch {
	case outcome.Err != nil:
		status = fmt.Sprintf("%s: %s", outcome.Err.Kind, outcome.Err.Err)
	case outcome.Reason != "":
		status = fmt.Sprintf("%s: %s", status, outcome.Reason)
	}
	row := table.Row{outcome.Identifier, status}
	for _, name := range fields {
		row = append(row, outcome.Field(name))
	}
	return row
}
