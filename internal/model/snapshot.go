package model

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the civil-date format used for snapshot keys and file names.
const DateLayout = "2006-01-02"

// Day returns the civil date of t (in t's own location) as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "model: parse date %q", s)
	}
	return t, nil
}

// FormatDate renders a snapshot date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Snapshot is the dated bundle of plazas and rates captured by one run.
// Treat it as immutable once written.
type Snapshot struct {
	Date   time.Time     `json:"date" yaml:"date"`
	Plazas []PlazaRecord `json:"plazas" yaml:"plazas"`
	Rates  []RateRecord  `json:"rates" yaml:"rates"`
}

// NewSnapshot returns a snapshot for date holding sorted copies of plazas and rates.
func NewSnapshot(date time.Time, plazas []PlazaRecord, rates []RateRecord) *Snapshot {
	s := &Snapshot{
		Date:   Day(date),
		Plazas: slices.Clone(plazas),
		Rates:  slices.Clone(rates),
	}
	SortPlazas(s.Plazas)
	SortRates(s.Rates)
	return s
}

// Empty reports whether the snapshot holds no records. A nil snapshot is empty.
func (s *Snapshot) Empty() bool {
	return s == nil || (len(s.Plazas) == 0 && len(s.Rates) == 0)
}

// Validate checks record invariants and key uniqueness.
func (s *Snapshot) Validate() error {
	if s == nil {
		return eris.New("model: nil snapshot")
	}
	seenPlaza := make(map[string]struct{}, len(s.Plazas))
	for _, p := range s.Plazas {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := seenPlaza[p.PlazaID]; dup {
			return &ValidationError{Entity: EntityPlaza, Key: p.PlazaID, Field: "plaza_id", Reason: "duplicate key in snapshot"}
		}
		seenPlaza[p.PlazaID] = struct{}{}
	}

	seenRate := make(map[RateKey]struct{}, len(s.Rates))
	for _, r := range s.Rates {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, dup := seenRate[r.Key()]; dup {
			return &ValidationError{Entity: EntityRate, Key: r.Key().String(), Reason: "duplicate key in snapshot"}
		}
		seenRate[r.Key()] = struct{}{}
	}
	return nil
}

// PlazaIndex maps plaza id to record.
func (s *Snapshot) PlazaIndex() map[string]PlazaRecord {
	if s == nil {
		return map[string]PlazaRecord{}
	}
	idx := make(map[string]PlazaRecord, len(s.Plazas))
	for _, p := range s.Plazas {
		idx[p.PlazaID] = p
	}
	return idx
}

// RateIndex maps rate key to record.
func (s *Snapshot) RateIndex() map[RateKey]RateRecord {
	if s == nil {
		return map[RateKey]RateRecord{}
	}
	idx := make(map[RateKey]RateRecord, len(s.Rates))
	for _, r := range s.Rates {
		idx[r.Key()] = r
	}
	return idx
}

// SortPlazas sorts plazas by key.
func SortPlazas(plazas []PlazaRecord) {
	slices.SortFunc(plazas, func(a, b PlazaRecord) int {
		return ComparePlazaIDs(a.PlazaID, b.PlazaID)
	})
}

// SortRates sorts rates by composite key.
func SortRates(rates []RateRecord) {
	slices.SortFunc(rates, func(a, b RateRecord) int {
		return CompareRateKeys(a.Key(), b.Key())
	})
}
