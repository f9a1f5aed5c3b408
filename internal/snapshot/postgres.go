package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/tollwatch/internal/db"
	"github.com/sells-group/tollwatch/internal/model"
)

const schema = "toll_data"

var (
	plazaColumns = []string{"snapshot_date", "plaza_id", "name", "latitude", "longitude", "geom"}
	rateColumns  = []string{"snapshot_date", "plaza_id", "category_id", "time_band", "rate"}
)

// PostgresStore keeps snapshots in the toll_data schema. Each write is one
// transaction, so a snapshot row only exists once its records are loaded.
type PostgresStore struct {
	pool db.Pool
	log  *zap.Logger
}

// NewPostgresStore creates a store on pool. Run Migrate first.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		log:  zap.L().With(zap.String("component", "snapshot"), zap.String("store", "postgres")),
	}
}

// Write implements Store.
func (s *PostgresStore) Write(ctx context.Context, snap *model.Snapshot, overwrite bool) (err error) {
	if snap == nil {
		return eris.New("snapshot: nil snapshot")
	}
	date := model.Day(snap.Date)
	if verr := snap.Validate(); verr != nil {
		return storageErr("write", date, verr)
	}

	pRows, err := plazaRows(date, snap.Plazas)
	if err != nil {
		return storageErr("write", date, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr("write", date, eris.Wrap(err, "snapshot: begin"))
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.log.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	var exists bool
	if err = tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM toll_data.snapshots WHERE snapshot_date = $1)", date,
	).Scan(&exists); err != nil {
		return storageErr("write", date, eris.Wrap(err, "snapshot: check existing"))
	}
	if exists {
		if !overwrite {
			err = storageErr("write", date, model.ErrSnapshotExists)
			return err
		}
		if _, err = tx.Exec(ctx, "DELETE FROM toll_data.snapshots WHERE snapshot_date = $1", date); err != nil {
			return storageErr("write", date, eris.Wrap(err, "snapshot: delete existing"))
		}
	}

	if _, err = tx.Exec(ctx,
		"INSERT INTO toll_data.snapshots (snapshot_date, plaza_count, rate_count) VALUES ($1, $2, $3)",
		date, len(snap.Plazas), len(snap.Rates),
	); err != nil {
		return storageErr("write", date, eris.Wrap(err, "snapshot: insert snapshot"))
	}

	if _, err = db.CopyFromSchema(ctx, tx, schema, "plazas", plazaColumns, pRows); err != nil {
		return storageErr("write", date, err)
	}
	if _, err = db.CopyFromSchema(ctx, tx, schema, "rates", rateColumns, rateRows(date, snap.Rates)); err != nil {
		return storageErr("write", date, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return storageErr("write", date, eris.Wrap(err, "snapshot: commit"))
	}

	s.log.Info("snapshot written",
		zap.String("date", model.FormatDate(date)),
		zap.Int("plazas", len(snap.Plazas)),
		zap.Int("rates", len(snap.Rates)),
		zap.Bool("overwrite", exists),
	)
	return nil
}

func plazaRows(date time.Time, plazas []model.PlazaRecord) ([][]any, error) {
	rows := make([][]any, 0, len(plazas))
	for _, p := range plazas {
		point, err := EncodePoint(p.Longitude, p.Latitude)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []any{date, p.PlazaID, p.Name, p.Latitude, p.Longitude, point})
	}
	return rows, nil
}

func rateRows(date time.Time, rates []model.RateRecord) [][]any {
	rows := make([][]any, 0, len(rates))
	for _, r := range rates {
		rows = append(rows, []any{date, r.PlazaID, r.CategoryID, r.TimeBand, r.Rate})
	}
	return rows
}

// EncodePoint returns the EWKB encoding of a WGS84 point.
func EncodePoint(lon, lat float64) ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: encode point")
	}
	return data, nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, date time.Time) (*model.Snapshot, error) {
	date = model.Day(date)

	var plazaCount, rateCount int
	err := s.pool.QueryRow(ctx,
		"SELECT plaza_count, rate_count FROM toll_data.snapshots WHERE snapshot_date = $1", date,
	).Scan(&plazaCount, &rateCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Date: date}
	}
	if err != nil {
		return nil, storageErr("load", date, eris.Wrap(err, "snapshot: query snapshot"))
	}

	plazas := make([]model.PlazaRecord, 0, plazaCount)
	rows, err := s.pool.Query(ctx,
		"SELECT plaza_id, name, latitude, longitude FROM toll_data.plazas WHERE snapshot_date = $1", date)
	if err != nil {
		return nil, storageErr("load", date, eris.Wrap(err, "snapshot: query plazas"))
	}
	for rows.Next() {
		var p model.PlazaRecord
		if err := rows.Scan(&p.PlazaID, &p.Name, &p.Latitude, &p.Longitude); err != nil {
			rows.Close()
			return nil, storageErr("load", date, eris.Wrap(err, "snapshot: scan plaza"))
		}
		plazas = append(plazas, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storageErr("load", date, eris.Wrap(err, "snapshot: read plazas"))
	}

	rates := make([]model.RateRecord, 0, rateCount)
	rows, err = s.pool.Query(ctx,
		"SELECT plaza_id, category_id, time_band, rate FROM toll_data.rates WHERE snapshot_date = $1", date)
	if err != nil {
		return nil, storageErr("load", date, eris.Wrap(err, "snapshot: query rates"))
	}
	for rows.Next() {
		var r model.RateRecord
		if err := rows.Scan(&r.PlazaID, &r.CategoryID, &r.TimeBand, &r.Rate); err != nil {
			rows.Close()
			return nil, storageErr("load", date, eris.Wrap(err, "snapshot: scan rate"))
		}
		rates = append(rates, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storageErr("load", date, eris.Wrap(err, "snapshot: read rates"))
	}

	return model.NewSnapshot(date, plazas, rates), nil
}

// MostRecentBefore implements Store.
func (s *PostgresStore) MostRecentBefore(ctx context.Context, date time.Time) (*model.Snapshot, error) {
	date = model.Day(date)

	var prev time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT snapshot_date FROM toll_data.snapshots WHERE snapshot_date < $1 ORDER BY snapshot_date DESC LIMIT 1",
		date,
	).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("load", date, eris.Wrap(err, "snapshot: query previous"))
	}
	return s.Load(ctx, prev)
}

// Dates implements Store.
func (s *PostgresStore) Dates(ctx context.Context) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx, "SELECT snapshot_date FROM toll_data.snapshots ORDER BY snapshot_date")
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: query dates")
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "snapshot: scan date")
		}
		dates = append(dates, model.Day(d))
	}
	return dates, rows.Err()
}
