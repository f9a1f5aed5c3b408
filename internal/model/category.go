package model

import (
	"fmt"
	"slices"
	"strings"
)

// Category is a vehicle category as listed by the source.
type Category struct {
	ID      int    `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	DayType string `json:"day_type,omitempty" yaml:"day_type,omitempty"`
}

// Label renders the category the way the source lists it.
func (c Category) Label() string {
	if c.DayType == "" {
		return c.Name
	}
	return c.Name + " (" + c.DayType + ")"
}

// CategoryMap maps category labels to ids. It is built once per run and is
// read-only afterwards; the zero value is an empty map.
type CategoryMap struct {
	byLabel map[string]int
	byID    map[int]Category
}

// NewCategoryMap builds a CategoryMap from label → id pairs. Labels are
// trimmed and must be non-empty; ids must be non-negative and unique.
func NewCategoryMap(labels map[string]int) (CategoryMap, error) {
	m := CategoryMap{
		byLabel: make(map[string]int, len(labels)),
		byID:    make(map[int]Category, len(labels)),
	}

	// Iterate in a stable order so duplicate-id errors are deterministic.
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, raw := range keys {
		id := labels[raw]
		label := strings.Join(strings.Fields(raw), " ")
		if label == "" {
			return CategoryMap{}, &ValidationError{Entity: EntityCategory, Key: fmt.Sprint(id), Field: "name", Reason: "required"}
		}
		if id < 0 {
			return CategoryMap{}, &ValidationError{Entity: EntityCategory, Key: label, Field: "category_id", Value: fmt.Sprint(id), Reason: "negative"}
		}
		if prev, ok := m.byID[id]; ok {
			return CategoryMap{}, &ValidationError{
				Entity: EntityCategory, Key: fmt.Sprint(id), Field: "category_id",
				Reason: fmt.Sprintf("shared by %q and %q", prev.Label(), label),
			}
		}
		name, dayType := SplitCategoryLabel(label)
		m.byID[id] = Category{ID: id, Name: name, DayType: dayType}
		m.byLabel[label] = id
	}
	return m, nil
}

// ID returns the id for a category label.
func (m CategoryMap) ID(label string) (int, bool) {
	id, ok := m.byLabel[strings.Join(strings.Fields(label), " ")]
	return id, ok
}

// Category returns the category with the given id.
func (m CategoryMap) Category(id int) (Category, bool) {
	c, ok := m.byID[id]
	return c, ok
}

// Has reports whether id is a known category.
func (m CategoryMap) Has(id int) bool {
	_, ok := m.byID[id]
	return ok
}

// IDs returns all category ids in ascending order.
func (m CategoryMap) IDs() []int {
	ids := make([]int, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of categories.
func (m CategoryMap) Len() int { return len(m.byID) }

// Label returns the label for id, or a placeholder for unknown ids.
func (m CategoryMap) Label(id int) string {
	if c, ok := m.byID[id]; ok {
		return c.Label()
	}
	return fmt.Sprintf("category %d", id)
}

// SplitCategoryLabel splits "Cars (Weekdays)" into ("Cars", "Weekdays").
// Labels without a trailing parenthesised part have an empty day type.
func SplitCategoryLabel(label string) (name, dayType string) {
	label = strings.TrimSpace(label)
	if !strings.HasSuffix(label, ")") {
		return label, ""
	}
	open := strings.LastIndex(label, "(")
	if open <= 0 {
		return label, ""
	}
	name = strings.TrimSpace(label[:open])
	dayType = strings.TrimSpace(label[open+1 : len(label)-1])
	if name == "" {
		return label, ""
	}
	return name, dayType
}
