package commands

import (
	"context"
	"time"

	"gtinlookup/internal/components/chrono"
	"gtinlookup/internal/lookup"
	"gtinlookup/internal/store"
	"gtinlookup/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyFilter string
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list.")
	historyCmd.Flags().StringVar(&historyFilter, "only", "", "Only list outcomes of this classification (found, no_result, structure_missing, error).")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [run id | latest]",
	Short: "Lists earlier runs, or the outcome of every identifier of one run.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		ctx := cmd.Context()
		history, err := store.Open(ctx, cfg.HistoryDb, chrono.NewStandardImpl())
		if err != nil {
			serviceutil.Fatal("failed to open history", err)
		}
		defer history.Close()

		if len(args) == 0 {
			listRuns(ctx, history)
			return
		}

		runID := args[0]
		if runID == "latest" {
			latest, ok, err := history.LatestRun(ctx)
			if err != nil {
				serviceutil.Fatal("failed to read history", err)
			}
			if !ok {
				return
			}
			runID = latest.ID
		}
		listOutcomes(ctx, history, runID)
	},
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func listRuns(ctx context.Context, history *store.Store) {
	runs, err := history.Runs(ctx, historyLimit)
	if err != nil {
		serviceutil.Fatal("failed to read history", err)
	}

	t := newTable()
	t.AppendHeader(table.Row{"Run", "Input", "Output", "Resumed", "Started", "Finished"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID,
			run.InputPath,
			run.OutputPath,
			run.Resumed,
			formatTime(run.StartedAt),
			formatTime(run.FinishedAt),
		})
	}
	t.Render()
}

func listOutcomes(ctx context.Context, history *store.Store, runID string) {
	var filter *lookup.Classification
	if historyFilter != "" {
		class, err := lookup.ParseClassification(historyFilter)
		if err != nil {
			serviceutil.Fatal("invalid --only", err)
		}
		filter = &class
	}

	entries, err := history.Outcomes(ctx, runID)
	if err != nil {
		serviceutil.Fatal("failed to read history", err)
	}

	t := newTable()
	t.AppendHeader(table.Row{"#", "GTIN", "Outcome", "Detail", lookup.FieldPdfLink, "Elapsed"})
	for _, entry := range entries {
		if filter != nil && entry.Classification != *filter {
			continue
		}
		outcome := entry.Classification.String()
		if entry.ErrorKind != "" {
			outcome += ": " + entry.ErrorKind
		}
		t.AppendRow(table.Row{
			entry.Idx,
			entry.Gtin,
			outcome,
			entry.Detail,
			entry.Fields[lookup.FieldPdfLink],
			entry.Elapsed.Round(time.Millisecond),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Detail", WidthMax: 60},
	})
	t.Render()
}
