package model

import (
	"cmp"
	"fmt"
	"strings"
)

// RateRecord is a normalized toll rate for one plaza, vehicle category and time band.
type RateRecord struct {
	PlazaID    string  `csv:"plaza_id" json:"plaza_id" yaml:"plaza_id"`
	CategoryID int     `csv:"category_id" json:"category_id" yaml:"category_id"`
	TimeBand   string  `csv:"time_band" json:"time_band" yaml:"time_band"`
	Rate       float64 `csv:"rate" json:"rate" yaml:"rate"`
}

// RateKey is the composite key of a RateRecord.
type RateKey struct {
	PlazaID    string
	CategoryID int
	TimeBand   string
}

// String renders the key as plaza/category/band.
func (k RateKey) String() string {
	return fmt.Sprintf("%s/%d/%s", k.PlazaID, k.CategoryID, k.TimeBand)
}

// CompareRateKeys orders rate keys by plaza, category, then time band.
func CompareRateKeys(a, b RateKey) int {
	if c := ComparePlazaIDs(a.PlazaID, b.PlazaID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.CategoryID, b.CategoryID); c != 0 {
		return c
	}
	return strings.Compare(a.TimeBand, b.TimeBand)
}

// Key returns the composite key.
func (r RateRecord) Key() RateKey {
	return RateKey{PlazaID: r.PlazaID, CategoryID: r.CategoryID, TimeBand: r.TimeBand}
}

// Entity implements Record.
func (r RateRecord) Entity() EntityType { return EntityRate }

// RecordKey implements Record.
func (r RateRecord) RecordKey() string { return r.Key().String() }

// Validate checks the rate invariants. Category membership is checked by the
// normalizer, which holds the CategoryMap.
func (r RateRecord) Validate() error {
	key := r.Key().String()
	if strings.TrimSpace(r.PlazaID) == "" {
		return &ValidationError{Entity: EntityRate, Key: key, Field: "plaza_id", Reason: "required"}
	}
	if r.CategoryID < 0 {
		return &ValidationError{Entity: EntityRate, Key: key, Field: "category_id", Value: fmt.Sprint(r.CategoryID), Reason: "negative"}
	}
	if strings.TrimSpace(r.TimeBand) == "" {
		return &ValidationError{Entity: EntityRate, Key: key, Field: "time_band", Reason: "required"}
	}
	if !InRange(r.Rate, 0, maxRate) {
		return &ValidationError{Entity: EntityRate, Key: key, Field: "rate", Value: FormatFloat(r.Rate, RatePrecision), Reason: "must be a finite non-negative amount"}
	}
	return nil
}

// maxRate only guards against overflow when scaling; real tolls are a few dollars.
const maxRate = 1e9
