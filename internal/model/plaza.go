// Package model defines the typed records, snapshots, change reports and
// error taxonomy shared by the toll snapshot pipeline.
package model

import (
	"math"
	"strconv"
	"strings"
)

// Fixed decimal precision applied to numeric fields before storage and comparison.
const (
	CoordPrecision = 7
	RatePrecision  = 2
)

// Coordinate bounds.
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// PlazaRecord is a normalized toll plaza (gantry).
type PlazaRecord struct {
	PlazaID   string  `csv:"plaza_id" json:"plaza_id" yaml:"plaza_id"`
	Name      string  `csv:"name" json:"name" yaml:"name"`
	Latitude  float64 `csv:"latitude" json:"latitude" yaml:"latitude"`
	Longitude float64 `csv:"longitude" json:"longitude" yaml:"longitude"`
}

// Entity implements Record.
func (p PlazaRecord) Entity() EntityType { return EntityPlaza }

// RecordKey implements Record.
func (p PlazaRecord) RecordKey() string { return p.PlazaID }

// Validate checks the plaza invariants.
func (p PlazaRecord) Validate() error {
	if strings.TrimSpace(p.PlazaID) == "" {
		return &ValidationError{Entity: EntityPlaza, Field: "plaza_id", Reason: "required"}
	}
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Entity: EntityPlaza, Key: p.PlazaID, Field: "name", Reason: "required"}
	}
	if !InRange(p.Latitude, MinLatitude, MaxLatitude) {
		return &ValidationError{
			Entity: EntityPlaza, Key: p.PlazaID, Field: "latitude",
			Value: FormatFloat(p.Latitude, CoordPrecision), Reason: "out of range [-90,90]",
		}
	}
	if !InRange(p.Longitude, MinLongitude, MaxLongitude) {
		return &ValidationError{
			Entity: EntityPlaza, Key: p.PlazaID, Field: "longitude",
			Value: FormatFloat(p.Longitude, CoordPrecision), Reason: "out of range [-180,180]",
		}
	}
	return nil
}

// InRange reports whether v is finite and within [lo, hi].
func InRange(v, lo, hi float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= lo && v <= hi
}

// Round rounds v to the given number of decimal places, half away from zero.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// Scaled returns v as an integer count of 10^-places units. Two values are
// equal at a given precision exactly when their scaled forms are equal.
func Scaled(v float64, places int) int64 {
	return int64(math.Round(v * math.Pow10(places)))
}

// FormatFloat renders v with at most the given number of decimals and no
// trailing zeros.
func FormatFloat(v float64, places int) string {
	return strconv.FormatFloat(Round(v, places), 'f', -1, 64)
}

// ComparePlazaIDs orders plaza ids: numeric ids first in numeric order, then
// everything else lexicographically.
func ComparePlazaIDs(a, b string) int {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	aNum, bNum := aErr == nil, bErr == nil

	switch {
	case aNum && bNum:
		if an != bn {
			if an < bn {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	case aNum:
		return -1
	case bNum:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
