package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tollwatch/internal/model"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored snapshot dates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("snapshots"); err != nil {
			return err
		}
		st, closeStore, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		dates, err := st.Dates(ctx)
		if err != nil {
			return eris.Wrap(err, "list snapshots")
		}
		if len(dates) == 0 {
			fmt.Fprintln(os.Stderr, "No snapshots found.")
			return nil
		}
		formatDates(os.Stdout, dates)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
}

func formatDates(out io.Writer, dates []time.Time) {
	for _, d := range dates {
		_, _ = fmt.Fprintln(out, model.FormatDate(d))
	}
}
