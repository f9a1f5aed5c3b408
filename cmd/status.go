package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tollwatch/internal/model"
	"github.com/sells-group/tollwatch/internal/runlog"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run history",
	Long:  "Displays recorded snapshot runs, most recent first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		return showStatus(cmd.Context(), os.Stdout, limit)
	},
}

func showStatus(ctx context.Context, out io.Writer, limit int) error {
	rl, err := runlog.Open(ctx, cfg.RunLog.Path)
	if err != nil {
		return err
	}
	defer rl.Close() //nolint:errcheck

	entries, err := rl.List(ctx, limit)
	if err != nil {
		return eris.Wrap(err, "status")
	}
	if len(entries) == 0 {
		zap.L().Info("no runs recorded, run 'tollwatch run' to capture a snapshot")
		return nil
	}

	last, err := rl.LastSuccess(ctx)
	if err != nil {
		return eris.Wrap(err, "status")
	}
	formatLastSuccess(out, last)
	formatStatusEntries(out, entries)
	return nil
}

func init() {
	statusCmd.Flags().Int("limit", 20, "max number of runs to display (0 for all)")
	rootCmd.AddCommand(statusCmd)
}

// formatLastSuccess writes the most recent completed run above the table.
func formatLastSuccess(out io.Writer, e *runlog.Entry) {
	if e == nil {
		_, _ = fmt.Fprintln(out, "Last successful run: none")
		return
	}
	finished := "-"
	if e.FinishedAt != nil {
		finished = e.FinishedAt.Format("2006-01-02 15:04")
	}
	dry := ""
	if e.DryRun {
		dry = " (dry)"
	}
	_, _ = fmt.Fprintf(out, "Last successful run: %s%s (%s), finished %s\n\n",
		model.FormatDate(e.RunDate), dry, truncateID(e.ID), finished)
}

// formatStatusEntries writes a tabular representation of runs to w.
func formatStatusEntries(out io.Writer, entries []runlog.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATE\tSTATUS\tSTATE\tSTARTED\tDURATION\tPLAZAS\tRATES\tREJECTED\tCHANGES\tERROR")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-----\t-------\t--------\t------\t-----\t--------\t-------\t-----")

	for _, e := range entries {
		dur := "-"
		if e.FinishedAt != nil {
			dur = e.FinishedAt.Sub(e.StartedAt).Round(time.Second).String()
		}

		status := string(e.Status)
		if e.DryRun {
			status += " (dry)"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(e.ID),
			model.FormatDate(e.RunDate),
			status,
			e.State,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.Plazas,
			e.Rates,
			e.Rejected,
			e.Changes,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
