// Package source adapts published toll data into raw plaza and rate records.
package source

import (
	"context"

	"github.com/sells-group/tollwatch/internal/model"
)

// Source fetches the raw records a pipeline run normalizes. Implementations
// return *model.FetchError when the source is unreachable or malformed.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// FetchPlazas returns one raw record per published plaza.
	FetchPlazas(ctx context.Context) ([]model.RawPlazaRecord, error)
	// FetchCategories returns vehicle category labels keyed to their ids.
	FetchCategories(ctx context.Context) (map[string]int, error)
	// FetchRates returns the rate rows of one plaza for one category. A plaza
	// that does not charge the category yields no records and no error.
	FetchRates(ctx context.Context, plazaID string, categoryID int) ([]model.RawRateRecord, error)
}
