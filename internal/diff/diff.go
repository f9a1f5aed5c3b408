// Package diff compares two snapshots and classifies every plaza and rate
// key as added, removed or modified.
package diff

import (
	"slices"
	"strings"

	"github.com/sells-group/tollwatch/internal/model"
)

// Engine diffs snapshots. The category map is only used to label changes.
type Engine struct {
	categories model.CategoryMap
}

// New creates an Engine labelling rate changes with categories.
func New(categories model.CategoryMap) *Engine {
	return &Engine{categories: categories}
}

// Diff compares previous and current without labels.
func Diff(previous, current *model.Snapshot) model.ChangeReport {
	return (&Engine{}).Diff(previous, current)
}

// Diff compares previous and current. A nil or empty previous reports every
// current record as added. Changes are ordered added, removed, modified; plaza
// changes precede rate changes within a kind, and keys ascend within each
// group. Neither snapshot is modified.
func (e *Engine) Diff(previous, current *model.Snapshot) model.ChangeReport {
	var report model.ChangeReport
	if current != nil {
		report.CurrentDate = current.Date
	}
	if previous != nil {
		d := previous.Date
		report.PreviousDate = &d
	}

	prevPlazas, curPlazas := previous.PlazaIndex(), current.PlazaIndex()
	names := make(map[string]string, len(prevPlazas)+len(curPlazas))
	for id, p := range prevPlazas {
		names[id] = p.Name
	}
	for id, p := range curPlazas {
		names[id] = p.Name
	}

	plazas := diffPlazas(prevPlazas, curPlazas)
	rates := diffRates(previous.RateIndex(), current.RateIndex())

	for _, kind := range []model.ChangeKind{model.ChangeAdded, model.ChangeRemoved, model.ChangeModified} {
		for _, c := range plazas[kind] {
			c.Label = names[c.Key]
			report.Changes = append(report.Changes, c)
		}
		for _, rc := range rates[kind] {
			rc.change.Label = e.rateLabel(rc.key, names)
			report.Changes = append(report.Changes, rc.change)
		}
	}
	return report
}

func diffPlazas(prev, cur map[string]model.PlazaRecord) map[model.ChangeKind][]model.Change {
	out := make(map[model.ChangeKind][]model.Change, 3)
	for id, c := range cur {
		p, ok := prev[id]
		if !ok {
			out[model.ChangeAdded] = append(out[model.ChangeAdded], model.Change{
				Entity: model.EntityPlaza, Key: id, Kind: model.ChangeAdded, NewValue: c,
			})
			continue
		}
		if fields := PlazaFields(p, c); len(fields) > 0 {
			out[model.ChangeModified] = append(out[model.ChangeModified], model.Change{
				Entity: model.EntityPlaza, Key: id, Kind: model.ChangeModified,
				Fields: fields, OldValue: p, NewValue: c,
			})
		}
	}
	for id, p := range prev {
		if _, ok := cur[id]; !ok {
			out[model.ChangeRemoved] = append(out[model.ChangeRemoved], model.Change{
				Entity: model.EntityPlaza, Key: id, Kind: model.ChangeRemoved, OldValue: p,
			})
		}
	}
	for _, changes := range out {
		slices.SortFunc(changes, func(a, b model.Change) int {
			return model.ComparePlazaIDs(a.Key, b.Key)
		})
	}
	return out
}

type rateChange struct {
	key    model.RateKey
	change model.Change
}

func diffRates(prev, cur map[model.RateKey]model.RateRecord) map[model.ChangeKind][]rateChange {
	out := make(map[model.ChangeKind][]rateChange, 3)
	add := func(k model.RateKey, c model.Change) {
		out[c.Kind] = append(out[c.Kind], rateChange{key: k, change: c})
	}
	for k, c := range cur {
		p, ok := prev[k]
		if !ok {
			add(k, model.Change{Entity: model.EntityRate, Key: k.String(), Kind: model.ChangeAdded, NewValue: c})
			continue
		}
		if fields := RateFields(p, c); len(fields) > 0 {
			add(k, model.Change{
				Entity: model.EntityRate, Key: k.String(), Kind: model.ChangeModified,
				Fields: fields, OldValue: p, NewValue: c,
			})
		}
	}
	for k, p := range prev {
		if _, ok := cur[k]; !ok {
			add(k, model.Change{Entity: model.EntityRate, Key: k.String(), Kind: model.ChangeRemoved, OldValue: p})
		}
	}
	for _, changes := range out {
		slices.SortFunc(changes, func(a, b rateChange) int {
			return model.CompareRateKeys(a.key, b.key)
		})
	}
	return out
}

// PlazaFields lists the fields that differ between two records of the same
// plaza. Coordinates compare at model.CoordPrecision.
func PlazaFields(a, b model.PlazaRecord) []string {
	var fields []string
	if a.Name != b.Name {
		fields = append(fields, "name")
	}
	if model.Scaled(a.Latitude, model.CoordPrecision) != model.Scaled(b.Latitude, model.CoordPrecision) {
		fields = append(fields, "latitude")
	}
	if model.Scaled(a.Longitude, model.CoordPrecision) != model.Scaled(b.Longitude, model.CoordPrecision) {
		fields = append(fields, "longitude")
	}
	return fields
}

// RateFields lists the fields that differ between two records with the same
// key. Rates compare at model.RatePrecision.
func RateFields(a, b model.RateRecord) []string {
	if model.Scaled(a.Rate, model.RatePrecision) != model.Scaled(b.Rate, model.RatePrecision) {
		return []string{"rate"}
	}
	return nil
}

func (e *Engine) rateLabel(k model.RateKey, names map[string]string) string {
	plaza := names[k.PlazaID]
	if plaza == "" {
		plaza = "plaza " + k.PlazaID
	}
	return strings.Join([]string{plaza, e.categories.Label(k.CategoryID), k.TimeBand}, " | ")
}
