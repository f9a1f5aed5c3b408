package source

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tollwatch/internal/fetcher"
	"github.com/sells-group/tollwatch/internal/model"
)

// Default LTA endpoints.
const (
	DefaultMarkersURL    = "https://onemotoring.lta.gov.sg/mapapp/kml/erp-kml/erp-kml-0.kml"
	DefaultCategoriesURL = "https://datamall.lta.gov.sg/mapapp/pages/ddls/1_ddl.html"
	DefaultRateURL       = "https://datamall.lta.gov.sg/mapapp/pages/tables/%s_table_%d.html"
)

const (
	categorySelectClass = "selectstyle"
	rateTableClass      = "styler"
)

// plazaLabel matches "NAME (ID)" placemark cells.
var plazaLabel = regexp.MustCompile(`^(.*?)\s*\((\d+)\)$`)

// LTAConfig locates the published LTA files. Empty fields use the defaults.
type LTAConfig struct {
	MarkersURL    string
	CategoriesURL string
	// RateURL is a format string taking the plaza id (%s) and category id (%d).
	RateURL string
}

// LTA reads ERP gantry markers, vehicle categories and rate tables published
// by the Land Transport Authority.
type LTA struct {
	cfg LTAConfig
	f   fetcher.Fetcher
}

// NewLTA creates an LTA source downloading through f.
func NewLTA(cfg LTAConfig, f fetcher.Fetcher) *LTA {
	if cfg.MarkersURL == "" {
		cfg.MarkersURL = DefaultMarkersURL
	}
	if cfg.CategoriesURL == "" {
		cfg.CategoriesURL = DefaultCategoriesURL
	}
	if cfg.RateURL == "" {
		cfg.RateURL = DefaultRateURL
	}
	return &LTA{cfg: cfg, f: f}
}

// Name implements Source.
func (s *LTA) Name() string { return "lta" }

type placemark struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	Coordinates string `xml:"Point>coordinates"`
}

// FetchPlazas decodes the KML marker file. Each placemark's description holds
// a "NAME (ID)" cell and its point holds "lon,lat[,alt]". A placemark missing
// either part is returned with the corresponding fields empty.
func (s *LTA) FetchPlazas(ctx context.Context) ([]model.RawPlazaRecord, error) {
	log := zap.L().With(zap.String("component", "source"), zap.String("source", s.Name()))

	body, err := s.f.Download(ctx, s.cfg.MarkersURL)
	if err != nil {
		return nil, &model.FetchError{Source: s.cfg.MarkersURL, Err: err}
	}
	defer body.Close() //nolint:errcheck

	var out []model.RawPlazaRecord
	idx := 0
	err = fetcher.DecodeXML(ctx, body, "Placemark", func(p placemark) error {
		idx++
		raw, perr := parsePlacemark(p)
		if perr != nil {
			return perr
		}
		raw.Source = fmt.Sprintf("%s#%d", s.cfg.MarkersURL, idx)
		out = append(out, raw)
		return nil
	})
	if err != nil {
		return nil, &model.FetchError{Source: s.cfg.MarkersURL, Err: err}
	}

	log.Info("fetched plaza markers", zap.Int("placemarks", len(out)))
	return out, nil
}

func parsePlacemark(p placemark) (model.RawPlazaRecord, error) {
	var raw model.RawPlazaRecord

	label := ""
	if strings.TrimSpace(p.Description) != "" {
		cells, err := fetcher.TextCells(p.Description)
		if err != nil {
			return raw, eris.Wrap(err, "source: placemark description")
		}
		for _, c := range cells {
			if plazaLabel.MatchString(c) {
				label = c
				break
			}
		}
		if label == "" && len(cells) > 0 {
			label = cells[len(cells)-1]
		}
	}
	if label == "" {
		label = strings.TrimSpace(p.Name)
	}

	if m := plazaLabel.FindStringSubmatch(label); m != nil {
		raw.Name = m[1]
		raw.PlazaID = m[2]
	} else {
		raw.Name = label
	}

	if coords := strings.TrimSpace(p.Coordinates); coords != "" {
		parts := strings.Split(coords, ",")
		raw.Longitude = strings.TrimSpace(parts[0])
		if len(parts) > 1 {
			raw.Latitude = strings.TrimSpace(parts[1])
		}
	}
	return raw, nil
}

// FetchCategories reads the vehicle category drop-down. The first option is
// a prompt; the remaining options are numbered from zero in page order.
func (s *LTA) FetchCategories(ctx context.Context) (map[string]int, error) {
	body, err := s.f.Download(ctx, s.cfg.CategoriesURL)
	if err != nil {
		return nil, &model.FetchError{Source: s.cfg.CategoriesURL, Err: err}
	}
	defer body.Close() //nolint:errcheck

	options, found, err := fetcher.ExtractSelectOptions(body, categorySelectClass)
	if err != nil {
		return nil, &model.FetchError{Source: s.cfg.CategoriesURL, Err: err}
	}
	if !found {
		return nil, &model.FetchError{Source: s.cfg.CategoriesURL, Err: eris.New("category list not found")}
	}

	log := zap.L().With(zap.String("component", "source"), zap.String("source", s.Name()))
	categories := make(map[string]int, len(options))
	if len(options) > 1 {
		for i, label := range options[1:] {
			if label == "" {
				continue
			}
			if prev, dup := categories[label]; dup {
				log.Warn("duplicate category label, later option wins",
					zap.String("label", label),
					zap.Int("dropped_id", prev),
					zap.Int("category_id", i),
				)
			}
			categories[label] = i
		}
	}
	log.Info("fetched vehicle categories",
		zap.Int("categories", len(categories)),
	)
	return categories, nil
}

// FetchRates reads one plaza's rate table for a category. A missing page or
// a table without data rows means the category is not charged there.
func (s *LTA) FetchRates(ctx context.Context, plazaID string, categoryID int) ([]model.RawRateRecord, error) {
	url := fmt.Sprintf(s.cfg.RateURL, plazaID, categoryID)

	body, err := s.f.Download(ctx, url)
	if err != nil {
		if fetcher.StatusCode(err) == http.StatusNotFound {
			zap.L().Debug("rate page not published", zap.String("url", url))
			return nil, nil
		}
		return nil, &model.FetchError{Source: url, Err: err}
	}
	defer body.Close() //nolint:errcheck

	rows, found, err := fetcher.ExtractTable(body, rateTableClass)
	if err != nil {
		return nil, &model.FetchError{Source: url, Err: err}
	}
	if !found {
		return nil, nil
	}

	category := strconv.Itoa(categoryID)
	out := make([]model.RawRateRecord, 0, len(rows))
	for i, row := range rows {
		raw := model.RawRateRecord{
			PlazaID:    plazaID,
			CategoryID: category,
			Source:     fmt.Sprintf("%s#row%d", url, i+1),
		}
		if len(row) > 0 {
			raw.TimeBand = row[0]
		}
		if len(row) > 1 {
			raw.Rate = row[1]
		}
		out = append(out, raw)
	}
	return out, nil
}
