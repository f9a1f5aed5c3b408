package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tollwatch/internal/model"
	"github.com/sells-group/tollwatch/internal/pipeline"
	"github.com/sells-group/tollwatch/internal/report"
)

type runOptions struct {
	date      string
	overwrite bool
	dryRun    bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture a snapshot and report changes",
	Long:  "Fetches plazas, categories and rates, writes the dated snapshot, diffs it against the most recent earlier snapshot and emits the change report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSnapshot(cmd, runOpts)
	},
}

func init() {
	// The root command runs a snapshot too, so it takes the same flags.
	for _, c := range []*cobra.Command{rootCmd, runCmd} {
		c.Flags().StringVar(&runOpts.date, "date", "", "snapshot date YYYY-MM-DD (default today)")
		c.Flags().BoolVar(&runOpts.overwrite, "overwrite", false, "replace an existing snapshot for the date")
		c.Flags().BoolVar(&runOpts.dryRun, "dry-run", false, "fetch and diff without persisting or publishing")
	}
	rootCmd.AddCommand(runCmd)
}

func runSnapshot(cmd *cobra.Command, opts runOptions) error {
	ctx := cmd.Context()

	if err := cfg.Validate("run"); err != nil {
		return err
	}
	date, err := parseDateFlag("date", opts.date)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return err
	}

	st, closeStore, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	p := pipeline.New(initSource(cfg), st, report.NewEmitter(cfg.ReportDir(), format))

	rl, err := initRunLog(ctx, cfg)
	if err != nil {
		return err
	}
	if rl != nil {
		defer rl.Close() //nolint:errcheck
		p.WithRecorder(rl)
	}

	pub, err := initPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	if pub != nil {
		p.WithPublisher(pub)
	}

	result, err := p.Run(ctx, pipeline.Options{
		Date:      date,
		Overwrite: opts.overwrite,
		DryRun:    opts.dryRun,
	})
	if err != nil {
		return eris.Wrap(err, "pipeline run")
	}

	sum := result.Report.Summary()
	zap.L().Info("snapshot run complete",
		zap.String("date", model.FormatDate(result.Snapshot.Date)),
		zap.Int("plazas", len(result.Snapshot.Plazas)),
		zap.Int("rates", len(result.Snapshot.Rates)),
		zap.Int("rejected", result.Rejected),
		zap.Int("added", sum.Added),
		zap.Int("removed", sum.Removed),
		zap.Int("modified", sum.Modified),
		zap.String("change_file", result.ReportPath),
	)

	if result.Report.Empty() {
		fmt.Fprintln(os.Stderr, "No changes.")
		return nil
	}
	return report.WriteText(os.Stdout, result.Report)
}
