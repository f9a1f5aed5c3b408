package report

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tollwatch/internal/model"
)

// changeRow is one line of a CSV change file. Record values are JSON.
type changeRow struct {
	EntityType string `csv:"entity_type"`
	Key        string `csv:"key"`
	ChangeKind string `csv:"change_kind"`
	Fields     string `csv:"fields"`
	Label      string `csv:"label"`
	OldValue   string `csv:"old_value"`
	NewValue   string `csv:"new_value"`
}

func toRow(c model.Change) (changeRow, error) {
	oldText, err := recordText(c.OldValue)
	if err != nil {
		return changeRow{}, err
	}
	newText, err := recordText(c.NewValue)
	if err != nil {
		return changeRow{}, err
	}
	return changeRow{
		EntityType: string(c.Entity),
		Key:        c.Key,
		ChangeKind: string(c.Kind),
		Fields:     strings.Join(c.Fields, ";"),
		Label:      c.Label,
		OldValue:   oldText,
		NewValue:   newText,
	}, nil
}

// WriteCSV writes the report's changes as CSV with a header row.
func WriteCSV(w io.Writer, report model.ChangeReport) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(changeRow{}); err != nil {
		return eris.Wrap(err, "report: csv header")
	}
	for _, c := range report.Changes {
		row, err := toRow(c)
		if err != nil {
			return err
		}
		if err := enc.Encode(row); err != nil {
			return eris.Wrapf(err, "report: csv row %s", c.Key)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: csv flush")
}
