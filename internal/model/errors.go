package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSnapshotExists is wrapped by a StorageError when a write would replace
// an existing snapshot without overwrite being requested.
var ErrSnapshotExists = errors.New("snapshot already exists")

// FetchError reports an unreachable source or malformed response. It aborts the run.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError reports a record that failed normalization. The record is
// skipped and the run continues.
type ValidationError struct {
	Entity EntityType
	Key    string
	Field  string
	Value  string
	Reason string
	Source string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid ")
	b.WriteString(string(e.Entity))
	if e.Key != "" {
		fmt.Fprintf(&b, " %q", e.Key)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " %q", e.Value)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " %s", e.Reason)
	}
	return b.String()
}

// StorageError reports a snapshot read or write failure, including the
// overwrite guard. It aborts the run.
type StorageError struct {
	Op   string
	Date time.Time
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, FormatDate(e.Date), e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NotFoundError reports that no snapshot exists for a date.
type NotFoundError struct {
	Date time.Time
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no snapshot for %s", FormatDate(e.Date))
}

// IsFetch reports whether err is or wraps a FetchError.
func IsFetch(err error) bool {
	var target *FetchError
	return errors.As(err, &target)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsStorage reports whether err is or wraps a StorageError.
func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
