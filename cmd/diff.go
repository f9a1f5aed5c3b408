package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tollwatch/internal/diff"
	"github.com/sells-group/tollwatch/internal/model"
	"github.com/sells-group/tollwatch/internal/report"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Diff two stored snapshots",
	Long:  "Loads the snapshots stored for --from and --to and prints the changes between them. Without --from the most recent snapshot before --to is used.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("diff"); err != nil {
			return err
		}
		fromFlag, _ := cmd.Flags().GetString("from")
		toFlag, _ := cmd.Flags().GetString("to")
		output, _ := cmd.Flags().GetString("output")

		to, err := parseDateFlag("to", toFlag)
		if err != nil {
			return err
		}
		if to.IsZero() {
			return eris.New("--to is required")
		}
		from, err := parseDateFlag("from", fromFlag)
		if err != nil {
			return err
		}

		st, closeStore, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		current, err := st.Load(ctx, to)
		if err != nil {
			return err
		}

		var previous *model.Snapshot
		if from.IsZero() {
			previous, err = st.MostRecentBefore(ctx, to)
		} else {
			previous, err = st.Load(ctx, from)
		}
		if err != nil {
			return err
		}

		return writeReport(os.Stdout, output, diff.Diff(previous, current))
	},
}

func init() {
	diffCmd.Flags().String("from", "", "earlier snapshot date YYYY-MM-DD")
	diffCmd.Flags().String("to", "", "later snapshot date YYYY-MM-DD (required)")
	diffCmd.Flags().StringP("output", "o", "text", "output format: text, csv or yaml")
	rootCmd.AddCommand(diffCmd)
}

func writeReport(w io.Writer, output string, r model.ChangeReport) error {
	switch output {
	case "text", "":
		return report.WriteText(w, r)
	case "csv":
		return report.WriteCSV(w, r)
	case "yaml":
		return report.WriteYAML(w, r)
	default:
		return eris.Errorf("unknown output format %q (want text, csv or yaml)", output)
	}
}
