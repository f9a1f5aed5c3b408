package report

import (
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tollwatch/internal/model"
)

type yamlReport struct {
	PreviousDate string         `yaml:"previous_date"`
	CurrentDate  string         `yaml:"current_date"`
	Summary      model.Summary  `yaml:"summary"`
	Changes      []model.Change `yaml:"changes"`
}

// WriteYAML writes the report as a YAML document.
func WriteYAML(w io.Writer, report model.ChangeReport) error {
	doc := yamlReport{
		PreviousDate: describeDate(report.PreviousDate),
		CurrentDate:  model.FormatDate(report.CurrentDate),
		Summary:      report.Summary(),
		Changes:      report.Changes,
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "report: encode yaml")
	}
	return eris.Wrap(enc.Close(), "report: close yaml")
}
