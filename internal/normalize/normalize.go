// Package normalize converts raw scraped records into validated plaza and
// rate records.
package normalize

import (
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/tollwatch/internal/model"
)

// Normalizer converts raw records using the run's category map. It performs
// no I/O beyond logging duplicate keys.
type Normalizer struct {
	categories model.CategoryMap
	log        *zap.Logger
}

// New creates a Normalizer for the given categories.
func New(categories model.CategoryMap) *Normalizer {
	return &Normalizer{
		categories: categories,
		log:        zap.L().With(zap.String("component", "normalize")),
	}
}

// NormalizePlaza converts one raw plaza. Errors are *model.ValidationError.
func (n *Normalizer) NormalizePlaza(raw model.RawPlazaRecord) (model.PlazaRecord, error) {
	p := model.PlazaRecord{
		PlazaID: Text(raw.PlazaID),
		Name:    Text(raw.Name),
	}
	invalid := func(field, value, reason string) error {
		return &model.ValidationError{
			Entity: model.EntityPlaza, Key: p.PlazaID, Field: field,
			Value: value, Reason: reason, Source: raw.Source,
		}
	}

	if p.PlazaID == "" {
		return model.PlazaRecord{}, invalid("plaza_id", "", "required")
	}
	if p.Name == "" {
		return model.PlazaRecord{}, invalid("name", "", "required")
	}

	lat, err := coordinate(raw.Latitude, model.MinLatitude, model.MaxLatitude)
	if err != nil {
		return model.PlazaRecord{}, invalid("latitude", strings.TrimSpace(raw.Latitude), err.Error())
	}
	lon, err := coordinate(raw.Longitude, model.MinLongitude, model.MaxLongitude)
	if err != nil {
		return model.PlazaRecord{}, invalid("longitude", strings.TrimSpace(raw.Longitude), err.Error())
	}
	p.Latitude = model.Round(lat, model.CoordPrecision)
	p.Longitude = model.Round(lon, model.CoordPrecision)
	return p, nil
}

type reason string

func (r reason) Error() string { return string(r) }

func coordinate(s string, lo, hi float64) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, reason("required")
	}
	v, err := Number(s)
	if err != nil {
		return 0, reason("not a number")
	}
	if !model.InRange(v, lo, hi) {
		return 0, reason("out of range [" + model.FormatFloat(lo, 0) + "," + model.FormatFloat(hi, 0) + "]")
	}
	return v, nil
}

// NormalizeRate converts one raw rate row. Errors are *model.ValidationError.
func (n *Normalizer) NormalizeRate(raw model.RawRateRecord) (model.RateRecord, error) {
	plaza := Text(raw.PlazaID)
	category := Text(raw.CategoryID)
	band := Text(raw.TimeBand)
	key := plaza + "/" + category + "/" + band

	invalid := func(field, value, reason string) error {
		return &model.ValidationError{
			Entity: model.EntityRate, Key: key, Field: field,
			Value: value, Reason: reason, Source: raw.Source,
		}
	}

	if plaza == "" {
		return model.RateRecord{}, invalid("plaza_id", "", "required")
	}
	if category == "" {
		return model.RateRecord{}, invalid("category_id", "", "required")
	}
	id, err := strconv.Atoi(category)
	if err != nil {
		return model.RateRecord{}, invalid("category_id", category, "not an integer")
	}
	if !n.categories.Has(id) {
		return model.RateRecord{}, invalid("category_id", category, "unknown category")
	}
	if band == "" {
		return model.RateRecord{}, invalid("time_band", "", "required")
	}

	rateText := strings.TrimSpace(raw.Rate)
	if rateText == "" {
		return model.RateRecord{}, invalid("rate", "", "required")
	}
	v, err := Number(rateText)
	if err != nil {
		return model.RateRecord{}, invalid("rate", rateText, "not a number")
	}
	r := model.RateRecord{
		PlazaID:    plaza,
		CategoryID: id,
		TimeBand:   band,
		Rate:       model.Round(v, model.RatePrecision),
	}
	if err := r.Validate(); err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			ve.Value = rateText
			ve.Source = raw.Source
		}
		return model.RateRecord{}, err
	}
	return r, nil
}

// Plazas normalizes a batch of raw plazas in input order. Records that fail
// validation are returned as errors and left out. When two records share a
// plaza id the later one wins; a warning is logged if they differ.
func (n *Normalizer) Plazas(raws []model.RawPlazaRecord) ([]model.PlazaRecord, []*model.ValidationError) {
	var (
		out  []model.PlazaRecord
		errs []*model.ValidationError
		seen = make(map[string]int, len(raws))
	)
	for _, raw := range raws {
		p, err := n.NormalizePlaza(raw)
		if err != nil {
			errs = append(errs, asValidation(err))
			continue
		}
		if i, ok := seen[p.PlazaID]; ok {
			if out[i] != p {
				n.log.Warn("duplicate plaza id, keeping later record",
					zap.String("plaza_id", p.PlazaID),
					zap.Any("dropped", out[i]),
					zap.Any("kept", p),
					zap.String("source", raw.Source),
				)
				out[i] = p
			}
			continue
		}
		seen[p.PlazaID] = len(out)
		out = append(out, p)
	}
	return out, errs
}

// Rates normalizes a batch of raw rates in input order. Rates referring to a
// plaza not in plazas are rejected. Duplicate keys resolve like Plazas.
func (n *Normalizer) Rates(raws []model.RawRateRecord, plazas []model.PlazaRecord) ([]model.RateRecord, []*model.ValidationError) {
	known := make(map[string]struct{}, len(plazas))
	for _, p := range plazas {
		known[p.PlazaID] = struct{}{}
	}

	var (
		out  []model.RateRecord
		errs []*model.ValidationError
		seen = make(map[model.RateKey]int, len(raws))
	)
	for _, raw := range raws {
		r, err := n.NormalizeRate(raw)
		if err != nil {
			errs = append(errs, asValidation(err))
			continue
		}
		if _, ok := known[r.PlazaID]; !ok {
			errs = append(errs, &model.ValidationError{
				Entity: model.EntityRate, Key: r.RecordKey(), Field: "plaza_id",
				Value: r.PlazaID, Reason: "unknown plaza", Source: raw.Source,
			})
			continue
		}
		k := r.Key()
		if i, ok := seen[k]; ok {
			if out[i] != r {
				n.log.Warn("duplicate rate key, keeping later record",
					zap.String("key", k.String()),
					zap.Float64("dropped_rate", out[i].Rate),
					zap.Float64("kept_rate", r.Rate),
					zap.String("source", raw.Source),
				)
				out[i] = r
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, r)
	}
	return out, errs
}

func asValidation(err error) *model.ValidationError {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return &model.ValidationError{Reason: err.Error()}
}
