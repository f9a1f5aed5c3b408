package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tollwatch/internal/model"
)

var changeHeader = []string{"entity_type", "key", "change_kind", "fields", "label", "old_value", "new_value"}

// WriteXLSX saves the report as a workbook with a "changes" sheet and a
// "summary" sheet.
func WriteXLSX(path string, report model.ChangeReport) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("changes")
	if err != nil {
		return eris.Wrap(err, "report: add changes sheet")
	}
	addRow(sheet, changeHeader)
	for _, c := range report.Changes {
		r, err := toRow(c)
		if err != nil {
			return err
		}
		addRow(sheet, []string{r.EntityType, r.Key, r.ChangeKind, r.Fields, r.Label, r.OldValue, r.NewValue})
	}

	summary, err := f.AddSheet("summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	s := report.Summary()
	addRow(summary, []string{"previous_date", describeDate(report.PreviousDate)})
	addRow(summary, []string{"current_date", model.FormatDate(report.CurrentDate)})
	for _, kv := range []struct {
		name string
		n    int
	}{{"added", s.Added}, {"removed", s.Removed}, {"modified", s.Modified}} {
		row := summary.AddRow()
		row.AddCell().SetString(kv.name)
		row.AddCell().SetInt(kv.n)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
