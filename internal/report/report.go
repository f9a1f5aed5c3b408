// Package report emits change reports to the log and to dated change files.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tollwatch/internal/model"
)

// Format selects the change file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
	FormatNone Format = "none"
)

// ParseFormat validates a configured format name. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatYAML, FormatXLSX, FormatNone:
		return f, nil
	default:
		return "", eris.Errorf("report: unknown format %q (want csv, yaml, xlsx or none)", s)
	}
}

// FilePrefix starts every change file name.
const FilePrefix = "changes_"

// Emitter logs a change report and writes it to a dated change file.
type Emitter struct {
	dir    string
	format Format
	log    *zap.Logger
}

// NewEmitter creates an emitter writing format files into dir.
func NewEmitter(dir string, format Format) *Emitter {
	if format == "" {
		format = FormatCSV
	}
	return &Emitter{
		dir:    dir,
		format: format,
		log:    zap.L().With(zap.String("component", "report")),
	}
}

// Path returns the change file path for date, or "" when files are disabled.
func (e *Emitter) Path(date time.Time) string {
	if e.format == FormatNone {
		return ""
	}
	return filepath.Join(e.dir, FilePrefix+model.FormatDate(date)+"."+string(e.format))
}

// Emit logs the report and writes its change file. It returns the written
// path, or "" when the report is empty or files are disabled.
func (e *Emitter) Emit(ctx context.Context, report model.ChangeReport) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "report: emit")
	}

	log := e.log.With(
		zap.String("previous_date", describeDate(report.PreviousDate)),
		zap.String("current_date", model.FormatDate(report.CurrentDate)),
	)

	if report.Empty() {
		log.Info("no change since previous snapshot")
		return "", nil
	}

	sum := report.Summary()
	log.Info("changes detected",
		zap.Int("added", sum.Added),
		zap.Int("removed", sum.Removed),
		zap.Int("modified", sum.Modified),
	)
	for _, c := range report.Changes {
		log.Info("change",
			zap.String("entity_type", string(c.Entity)),
			zap.String("change_kind", string(c.Kind)),
			zap.String("key", c.Key),
			zap.String("label", c.Label),
			zap.Strings("fields", c.Fields),
			zap.Any("old_value", c.OldValue),
			zap.Any("new_value", c.NewValue),
		)
	}

	path := e.Path(report.CurrentDate)
	if path == "" {
		return "", nil
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "report: create dir %s", e.dir)
	}

	var err error
	switch e.format {
	case FormatCSV:
		err = writeFile(path, func(f *os.File) error { return WriteCSV(f, report) })
	case FormatYAML:
		err = writeFile(path, func(f *os.File) error { return WriteYAML(f, report) })
	case FormatXLSX:
		err = WriteXLSX(path, report)
	default:
		err = eris.Errorf("report: unsupported format %q", e.format)
	}
	if err != nil {
		return "", err
	}

	log.Info("change file written", zap.String("path", path), zap.String("format", string(e.format)))
	return path, nil
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	if err := fn(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "report: close %s", path)
	}
	return nil
}

// recordText renders a record as compact JSON for flat outputs.
func recordText(r model.Record) (string, error) {
	if r == nil {
		return "", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", eris.Wrapf(err, "report: encode %s %s", r.Entity(), r.RecordKey())
	}
	return string(b), nil
}

func describeDate(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return model.FormatDate(*t)
}

func changeCount(report model.ChangeReport) string {
	s := report.Summary()
	return fmt.Sprintf("%d added, %d removed, %d modified", s.Added, s.Removed, s.Modified)
}
