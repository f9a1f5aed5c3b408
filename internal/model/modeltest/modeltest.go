// Package modeltest generates valid snapshots for property tests.
package modeltest

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"

	"github.com/sells-group/tollwatch/internal/model"
)

var (
	names = []string{
		"Bugis", "Orchard Road", "CTE (Braddell)", `Marina "East"`,
		"Nicoll Highway, Stadium", "AYE/Alexandra", "Tanjong Pagar",
	}
	bands = []string{
		"07:00 - 07:30", "07:30 - 08:00", "08:00 - 08:30",
		"17:30-18:00", "Sat 12:00 - 12:30",
	}
)

// RandomSnapshot builds a valid snapshot for date from r. Plaza ids are
// mostly numeric with an occasional alphanumeric id.
func RandomSnapshot(r *rand.Rand, date time.Time) *model.Snapshot {
	var plazas []model.PlazaRecord
	var rates []model.RateRecord

	used := make(map[string]bool)
	for range r.IntN(9) {
		id := strconv.Itoa(r.IntN(40) + 1)
		if r.IntN(10) == 0 {
			id = "G" + id
		}
		if used[id] {
			continue
		}
		used[id] = true

		plazas = append(plazas, model.PlazaRecord{
			PlazaID:   id,
			Name:      names[r.IntN(len(names))],
			Latitude:  model.Round(r.Float64()*180-90, model.CoordPrecision),
			Longitude: model.Round(r.Float64()*360-180, model.CoordPrecision),
		})
		for cat := range 4 {
			if r.IntN(2) == 0 {
				continue
			}
			for _, band := range bands {
				if r.IntN(3) == 0 {
					continue
				}
				rates = append(rates, model.RateRecord{
					PlazaID:    id,
					CategoryID: cat,
					TimeBand:   band,
					Rate:       model.Round(r.Float64()*6, model.RatePrecision),
				})
			}
		}
	}
	return model.NewSnapshot(date, plazas, rates)
}

// GenSnapshot generates valid snapshots for date.
func GenSnapshot(date time.Time) gopter.Gen {
	return gen.UInt64().Map(func(seed uint64) *model.Snapshot {
		return RandomSnapshot(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), date)
	})
}
