package model

import "time"

// EntityType names the kind of record a change or error refers to.
type EntityType string

const (
	EntityPlaza    EntityType = "plaza"
	EntityRate     EntityType = "rate"
	EntityCategory EntityType = "category"
)

// ChangeKind classifies a change between two snapshots.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// Record is implemented by PlazaRecord and RateRecord.
type Record interface {
	Entity() EntityType
	RecordKey() string
}

// Change is one entry of a ChangeReport. OldValue is nil for additions and
// NewValue is nil for removals; both hold full records.
type Change struct {
	Entity   EntityType `json:"entity_type" yaml:"entity_type"`
	Key      string     `json:"key" yaml:"key"`
	Kind     ChangeKind `json:"change_kind" yaml:"change_kind"`
	Fields   []string   `json:"fields,omitempty" yaml:"fields,omitempty"`
	Label    string     `json:"label,omitempty" yaml:"label,omitempty"`
	OldValue Record     `json:"old_value,omitempty" yaml:"old_value,omitempty"`
	NewValue Record     `json:"new_value,omitempty" yaml:"new_value,omitempty"`
}

// ChangeReport is the ordered result of diffing two snapshots.
type ChangeReport struct {
	PreviousDate *time.Time `json:"previous_date,omitempty" yaml:"previous_date,omitempty"`
	CurrentDate  time.Time  `json:"current_date" yaml:"current_date"`
	Changes      []Change   `json:"changes" yaml:"changes"`
}

// Summary counts changes by kind.
type Summary struct {
	Added    int `json:"added" yaml:"added"`
	Removed  int `json:"removed" yaml:"removed"`
	Modified int `json:"modified" yaml:"modified"`
}

// Total returns the number of changes.
func (s Summary) Total() int { return s.Added + s.Removed + s.Modified }

// Empty reports whether the report has no changes.
func (r ChangeReport) Empty() bool { return len(r.Changes) == 0 }

// Summary counts changes by kind.
func (r ChangeReport) Summary() Summary {
	var s Summary
	for _, c := range r.Changes {
		switch c.Kind {
		case ChangeAdded:
			s.Added++
		case ChangeRemoved:
			s.Removed++
		case ChangeModified:
			s.Modified++
		}
	}
	return s
}

// Filter returns the changes matching entity and kind. An empty argument
// matches everything.
func (r ChangeReport) Filter(entity EntityType, kind ChangeKind) []Change {
	var out []Change
	for _, c := range r.Changes {
		if entity != "" && c.Entity != entity {
			continue
		}
		if kind != "" && c.Kind != kind {
			continue
		}
		out = append(out, c)
	}
	return out
}
