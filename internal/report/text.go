package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sells-group/tollwatch/internal/model"
)

// WriteText renders the report as an aligned table for terminals.
func WriteText(w io.Writer, report model.ChangeReport) error {
	fmt.Fprintf(w, "Changes %s -> %s: %s\n",
		describeDate(report.PreviousDate), model.FormatDate(report.CurrentDate), changeCount(report))
	if report.Empty() {
		return nil
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tENTITY\tKEY\tFIELDS\tLABEL")
	fmt.Fprintln(tw, "----\t------\t---\t------\t-----")
	for _, c := range report.Changes {
		fields := strings.Join(c.Fields, ",")
		if fields == "" {
			fields = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Kind, c.Entity, c.Key, fields, c.Label)
	}
	return tw.Flush()
}
