package snapshot

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tollwatch/internal/model"
)

// File name prefixes. A snapshot for 2024-03-01 is the pair
// plazas_2024-03-01.csv and rates_2024-03-01.csv.
const (
	PlazaFilePrefix = "plazas_"
	RateFilePrefix  = "rates_"
	fileExt         = ".csv"
)

// FileStore keeps snapshots as dated CSV file pairs in a directory. The
// plaza file is written last, so its presence marks a complete snapshot.
type FileStore struct {
	root   string
	log    *zap.Logger
	rename func(oldpath, newpath string) error
}

// NewFileStore opens (creating if needed) a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, eris.New("snapshot: empty store root")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "snapshot: create root %s", dir)
	}
	return &FileStore{
		root:   dir,
		log:    zap.L().With(zap.String("component", "snapshot"), zap.String("root", dir)),
		rename: os.Rename,
	}, nil
}

// Root returns the store directory.
func (s *FileStore) Root() string { return s.root }

// PlazaPath returns the plaza file path for date.
func (s *FileStore) PlazaPath(date time.Time) string {
	return filepath.Join(s.root, PlazaFilePrefix+model.FormatDate(date)+fileExt)
}

// RatePath returns the rate file path for date.
func (s *FileStore) RatePath(date time.Time) string {
	return filepath.Join(s.root, RateFilePrefix+model.FormatDate(date)+fileExt)
}

// Write implements Store.
func (s *FileStore) Write(ctx context.Context, snap *model.Snapshot, overwrite bool) error {
	if snap == nil {
		return eris.New("snapshot: nil snapshot")
	}
	date := model.Day(snap.Date)
	if err := ctx.Err(); err != nil {
		return storageErr("write", date, err)
	}
	if err := snap.Validate(); err != nil {
		return storageErr("write", date, err)
	}

	plazaPath := s.PlazaPath(date)
	exists, err := fileExists(plazaPath)
	if err != nil {
		return storageErr("write", date, err)
	}
	if exists && !overwrite {
		return storageErr("write", date, model.ErrSnapshotExists)
	}

	plazas := slices.Clone(snap.Plazas)
	model.SortPlazas(plazas)
	rates := slices.Clone(snap.Rates)
	model.SortRates(rates)

	rateData, err := encodeCSV(model.RateRecord{}, rates)
	if err != nil {
		return storageErr("write", date, eris.Wrap(err, "snapshot: encode rates"))
	}
	plazaData, err := encodeCSV(model.PlazaRecord{}, plazas)
	if err != nil {
		return storageErr("write", date, eris.Wrap(err, "snapshot: encode plazas"))
	}

	rateTmp, err := stageFile(s.RatePath(date), rateData)
	if err != nil {
		return storageErr("write", date, err)
	}
	defer os.Remove(rateTmp) //nolint:errcheck
	plazaTmp, err := stageFile(plazaPath, plazaData)
	if err != nil {
		return storageErr("write", date, err)
	}
	defer os.Remove(plazaTmp) //nolint:errcheck

	if err := s.swap(date, rateTmp, plazaTmp, exists); err != nil {
		return storageErr("write", date, err)
	}

	s.log.Info("snapshot written",
		zap.String("date", model.FormatDate(date)),
		zap.Int("plazas", len(plazas)),
		zap.Int("rates", len(rates)),
		zap.Bool("overwrite", exists),
	)
	return nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, date time.Time) (*model.Snapshot, error) {
	date = model.Day(date)
	if err := ctx.Err(); err != nil {
		return nil, storageErr("load", date, err)
	}

	plazaData, err := os.ReadFile(s.PlazaPath(date))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &model.NotFoundError{Date: date}
	}
	if err != nil {
		return nil, storageErr("load", date, eris.Wrap(err, "snapshot: read plazas"))
	}
	rateData, err := os.ReadFile(s.RatePath(date))
	if err != nil {
		return nil, storageErr("load", date, eris.Wrap(err, "snapshot: read rates"))
	}

	var plazas []model.PlazaRecord
	if err := decodeCSV(plazaData, &plazas); err != nil {
		return nil, storageErr("load", date, eris.Wrap(err, "snapshot: decode plazas"))
	}
	var rates []model.RateRecord
	if err := decodeCSV(rateData, &rates); err != nil {
		return nil, storageErr("load", date, eris.Wrap(err, "snapshot: decode rates"))
	}
	return model.NewSnapshot(date, plazas, rates), nil
}

// MostRecentBefore implements Store.
func (s *FileStore) MostRecentBefore(ctx context.Context, date time.Time) (*model.Snapshot, error) {
	dates, err := s.Dates(ctx)
	if err != nil {
		return nil, err
	}
	prev, ok := latestBefore(dates, model.Day(date))
	if !ok {
		return nil, nil
	}
	return s.Load(ctx, prev)
}

// Dates implements Store. Files whose date part does not parse are ignored.
func (s *FileStore) Dates(ctx context.Context) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "snapshot: list dates")
	}
	matches, err := filepath.Glob(filepath.Join(s.root, PlazaFilePrefix+"*"+fileExt))
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: list dates")
	}

	dates := make([]time.Time, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), PlazaFilePrefix), fileExt)
		d, err := time.Parse(model.DateLayout, name)
		if err != nil {
			s.log.Debug("ignoring unrecognised file", zap.String("file", m))
			continue
		}
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })
	return dates, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, eris.Wrapf(err, "snapshot: stat %s", path)
}

// stageFile writes data to a synced temp file next to path and returns its name.
func stageFile(path string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", eris.Wrap(err, "snapshot: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return "", eris.Wrapf(err, "snapshot: write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return "", eris.Wrapf(err, "snapshot: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return "", eris.Wrapf(err, "snapshot: close %s", tmpName)
	}
	return tmpName, nil
}

// swap renames the staged files into place, rates first and plazas last.
// A snapshot being replaced is moved aside first and put back if any rename
// fails, so the date keeps its previous complete pair.
func (s *FileStore) swap(date time.Time, rateTmp, plazaTmp string, replace bool) (err error) {
	plazaPath, ratePath := s.PlazaPath(date), s.RatePath(date)
	if !replace {
		if err := s.rename(rateTmp, ratePath); err != nil {
			return eris.Wrapf(err, "snapshot: rename to %s", ratePath)
		}
		if err := s.rename(plazaTmp, plazaPath); err != nil {
			os.Remove(ratePath) //nolint:errcheck
			return eris.Wrapf(err, "snapshot: rename to %s", plazaPath)
		}
		return nil
	}

	plazaBak := backupPath(plazaPath)
	rateBak := backupPath(ratePath)
	if err := s.rename(plazaPath, plazaBak); err != nil {
		return eris.Wrap(err, "snapshot: set aside previous plazas")
	}

	ratesMoved, ratesPlaced := false, false
	defer func() {
		if err == nil {
			os.Remove(plazaBak) //nolint:errcheck
			if ratesMoved {
				os.Remove(rateBak) //nolint:errcheck
			}
			return
		}
		switch {
		case ratesMoved:
			if rerr := s.rename(rateBak, ratePath); rerr != nil {
				s.log.Error("restore previous rates failed", zap.String("file", ratePath), zap.Error(rerr))
			}
		case ratesPlaced:
			os.Remove(ratePath) //nolint:errcheck
		}
		if rerr := s.rename(plazaBak, plazaPath); rerr != nil {
			s.log.Error("restore previous plazas failed", zap.String("file", plazaPath), zap.Error(rerr))
		}
	}()

	switch rerr := s.rename(ratePath, rateBak); {
	case rerr == nil:
		ratesMoved = true
	case !errors.Is(rerr, fs.ErrNotExist):
		return eris.Wrap(rerr, "snapshot: set aside previous rates")
	}

	if err := s.rename(rateTmp, ratePath); err != nil {
		return eris.Wrapf(err, "snapshot: rename to %s", ratePath)
	}
	ratesPlaced = true
	if err := s.rename(plazaTmp, plazaPath); err != nil {
		return eris.Wrapf(err, "snapshot: rename to %s", plazaPath)
	}
	return nil
}

func backupPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".bak")
}

// encodeCSV writes a header for T followed by records. Floats are written in
// plain decimal notation.
func encodeCSV[T any](header T, records []T) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	enc := csvutil.NewEncoder(w)
	enc.Register(func(f float64) ([]byte, error) {
		return strconv.AppendFloat(nil, f, 'f', -1, 64), nil
	})
	if err := enc.EncodeHeader(header); err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeCSV[T any](data []byte, out *[]T) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return eris.New("empty file")
	}
	dec, err := csvutil.NewDecoder(csv.NewReader(bytes.NewReader(data)))
	if err != nil {
		return err
	}
	for {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		*out = append(*out, rec)
	}
}
