package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/tollwatch/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testCategories(t *testing.T) model.CategoryMap {
	t.Helper()
	m, err := model.NewCategoryMap(map[string]int{
		"Passenger Cars (Weekdays)": 0,
		"Motorcycles (Weekdays)":    1,
	})
	require.NoError(t, err)
	return m
}

func TestText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Bugis  ", "Bugis"},
		{"Nicoll Highway\t(5)", "Nicoll Highway (5)"},
		{"07:30 – 08:00", "07:30 - 08:00"},
		{"07:30—08:00", "07:30-08:00"},
		{"１２", "12"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Text(tt.in), "input %q", tt.in)
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"$1.00", 1, false},
		{" $ 2.50 ", 2.5, false},
		{"1,234.5", 1234.5, false},
		{"-3", -3, false},
		{"103.8552123", 103.8552123, false},
		{"abc", 0, true},
		{"", 0, true},
		{"NaN", 0, true},
		{"+Inf", 0, true},
	}
	for _, tt := range tests {
		got, err := Number(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.InDelta(t, tt.want, got, 1e-9)
	}
}

func TestNormalizePlaza(t *testing.T) {
	n := New(testCategories(t))

	p, err := n.NormalizePlaza(model.RawPlazaRecord{
		PlazaID: " 2 ", Name: "Bugis", Latitude: "1.300123456", Longitude: "103.85521239",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PlazaRecord{PlazaID: "2", Name: "Bugis", Latitude: 1.3001235, Longitude: 103.8552124}, p)
}

func TestNormalizePlaza_Invalid(t *testing.T) {
	n := New(testCategories(t))
	valid := model.RawPlazaRecord{PlazaID: "2", Name: "Bugis", Latitude: "1.3", Longitude: "103.8", Source: "kml#1"}

	tests := []struct {
		name   string
		mutate func(*model.RawPlazaRecord)
		field  string
		reason string
	}{
		{"missing id", func(r *model.RawPlazaRecord) { r.PlazaID = " " }, "plaza_id", "required"},
		{"missing name", func(r *model.RawPlazaRecord) { r.Name = "" }, "name", "required"},
		{"missing latitude", func(r *model.RawPlazaRecord) { r.Latitude = "" }, "latitude", "required"},
		{"bad latitude", func(r *model.RawPlazaRecord) { r.Latitude = "north" }, "latitude", "not a number"},
		{"latitude out of range", func(r *model.RawPlazaRecord) { r.Latitude = "91" }, "latitude", "out of range [-90,90]"},
		{"longitude out of range", func(r *model.RawPlazaRecord) { r.Longitude = "-180.5" }, "longitude", "out of range [-180,180]"},
		{"infinite longitude", func(r *model.RawPlazaRecord) { r.Longitude = "Inf" }, "longitude", "not a number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := valid
			tt.mutate(&raw)
			_, err := n.NormalizePlaza(raw)
			require.Error(t, err)

			var ve *model.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, model.EntityPlaza, ve.Entity)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, tt.reason, ve.Reason)
			assert.Equal(t, "kml#1", ve.Source)
		})
	}
}

func TestNormalizeRate(t *testing.T) {
	n := New(testCategories(t))

	r, err := n.NormalizeRate(model.RawRateRecord{
		PlazaID: "1", CategoryID: "0", TimeBand: "06:00 – 09:00", Rate: "$2.507",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RateRecord{PlazaID: "1", CategoryID: 0, TimeBand: "06:00 - 09:00", Rate: 2.51}, r)
}

func TestNormalizeRate_Invalid(t *testing.T) {
	n := New(testCategories(t))
	valid := model.RawRateRecord{PlazaID: "1", CategoryID: "0", TimeBand: "06:00-09:00", Rate: "$2.50"}

	tests := []struct {
		name   string
		mutate func(*model.RawRateRecord)
		field  string
		reason string
	}{
		{"missing plaza", func(r *model.RawRateRecord) { r.PlazaID = "" }, "plaza_id", "required"},
		{"missing category", func(r *model.RawRateRecord) { r.CategoryID = "" }, "category_id", "required"},
		{"non-integer category", func(r *model.RawRateRecord) { r.CategoryID = "car" }, "category_id", "not an integer"},
		{"unknown category", func(r *model.RawRateRecord) { r.CategoryID = "9" }, "category_id", "unknown category"},
		{"missing band", func(r *model.RawRateRecord) { r.TimeBand = "  " }, "time_band", "required"},
		{"missing rate", func(r *model.RawRateRecord) { r.Rate = "" }, "rate", "required"},
		{"non-numeric rate", func(r *model.RawRateRecord) { r.Rate = "N/A" }, "rate", "not a number"},
		{"negative rate", func(r *model.RawRateRecord) { r.Rate = "-1.00" }, "rate", "must be a finite non-negative amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := valid
			tt.mutate(&raw)
			_, err := n.NormalizeRate(raw)
			require.Error(t, err)
			assert.True(t, model.IsValidation(err))

			var ve *model.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, model.EntityRate, ve.Entity)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, tt.reason, ve.Reason)
		})
	}
}

func TestPlazas_DuplicatesLaterWins(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	n := New(testCategories(t))
	plazas, errs := n.Plazas([]model.RawPlazaRecord{
		{PlazaID: "2", Name: "Bugis", Latitude: "1.3", Longitude: "103.8"},
		{PlazaID: "3", Name: "Orchard", Latitude: "1.31", Longitude: "103.83"},
		{PlazaID: "2", Name: "Bugis", Latitude: "1.3", Longitude: "103.8"},
		{PlazaID: "2", Name: "Bugis Junction", Latitude: "1.3", Longitude: "103.8"},
		{PlazaID: "", Name: "nameless", Latitude: "1", Longitude: "1"},
	})

	require.Len(t, errs, 1)
	assert.Equal(t, "plaza_id", errs[0].Field)

	require.Len(t, plazas, 2)
	assert.Equal(t, "Bugis Junction", plazas[0].Name)
	assert.Equal(t, "Orchard", plazas[1].Name)

	// Exact duplicates are silent; the differing one warns once.
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "duplicate plaza id, keeping later record", entry.Message)
	assert.Equal(t, "2", entry.ContextMap()["plaza_id"])
}

func TestRates_SkipsInvalidAndUnknownPlaza(t *testing.T) {
	n := New(testCategories(t))
	plazas := []model.PlazaRecord{{PlazaID: "1", Name: "A", Latitude: 1, Longitude: 103}}

	rates, errs := n.Rates([]model.RawRateRecord{
		{PlazaID: "1", CategoryID: "0", TimeBand: "06:00-09:00", Rate: "$2.50"},
		{PlazaID: "1", CategoryID: "0", TimeBand: "09:00-10:00", Rate: "abc"},
		{PlazaID: "7", CategoryID: "0", TimeBand: "06:00-09:00", Rate: "$1.00"},
		{PlazaID: "1", CategoryID: "1", TimeBand: "06:00-09:00", Rate: "$1.00"},
		{PlazaID: "1", CategoryID: "0", TimeBand: "06:00-09:00", Rate: "$3.00"},
	}, plazas)

	require.Len(t, errs, 2)
	assert.Equal(t, "rate", errs[0].Field)
	assert.Equal(t, "abc", errs[0].Value)
	assert.Equal(t, "unknown plaza", errs[1].Reason)
	assert.Equal(t, "7/0/06:00-09:00", errs[1].Key)

	require.Len(t, rates, 2)
	assert.InDelta(t, 3.00, rates[0].Rate, 1e-9)
	assert.Equal(t, 1, rates[1].CategoryID)
}
