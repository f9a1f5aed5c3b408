// Package snapshot persists dated plaza/rate snapshots and loads them back.
package snapshot

import (
	"context"
	"time"

	"github.com/sells-group/tollwatch/internal/model"
)

// Store persists snapshots keyed by their civil date. Implementations return
// *model.StorageError for read and write failures (wrapping
// model.ErrSnapshotExists for the overwrite guard) and *model.NotFoundError
// when a requested date has no snapshot.
type Store interface {
	// Write persists snap under snap.Date. An existing snapshot for that date
	// is replaced only when overwrite is true.
	Write(ctx context.Context, snap *model.Snapshot, overwrite bool) error
	// Load returns the snapshot stored for date.
	Load(ctx context.Context, date time.Time) (*model.Snapshot, error)
	// MostRecentBefore returns the latest snapshot strictly before date, or
	// nil with no error when there is none.
	MostRecentBefore(ctx context.Context, date time.Time) (*model.Snapshot, error)
	// Dates lists stored snapshot dates in ascending order.
	Dates(ctx context.Context) ([]time.Time, error)
}

func storageErr(op string, date time.Time, err error) error {
	return &model.StorageError{Op: op, Date: model.Day(date), Err: err}
}

// latestBefore returns the greatest date in ascending dates that is strictly
// before day.
func latestBefore(dates []time.Time, day time.Time) (time.Time, bool) {
	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i].Before(day) {
			return dates[i], true
		}
	}
	return time.Time{}, false
}
