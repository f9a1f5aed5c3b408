package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/tollwatch/internal/archive"
	"github.com/sells-group/tollwatch/internal/model"
	"github.com/sells-group/tollwatch/internal/report"
	"github.com/sells-group/tollwatch/internal/runlog"
	"github.com/sells-group/tollwatch/internal/snapshot"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	day1 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
)

type fakeSource struct {
	plazas     []model.RawPlazaRecord
	categories map[string]int
	rates      map[string][]model.RawRateRecord
	plazaErr   error
	rateErr    error
	rateCalls  []string
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchPlazas(context.Context) ([]model.RawPlazaRecord, error) {
	return f.plazas, f.plazaErr
}

func (f *fakeSource) FetchCategories(context.Context) (map[string]int, error) {
	return f.categories, nil
}

func (f *fakeSource) FetchRates(_ context.Context, plazaID string, categoryID int) ([]model.RawRateRecord, error) {
	key := fmt.Sprintf("%s|%d", plazaID, categoryID)
	f.rateCalls = append(f.rateCalls, key)
	if f.rateErr != nil {
		return nil, f.rateErr
	}
	return f.rates[key], nil
}

func rawRate(plaza string, cat int, band, rate string) model.RawRateRecord {
	return model.RawRateRecord{PlazaID: plaza, CategoryID: fmt.Sprint(cat), TimeBand: band, Rate: rate, Source: "test"}
}

// newSource returns two plazas with one car rate each.
func newSource(carRate string) *fakeSource {
	return &fakeSource{
		plazas: []model.RawPlazaRecord{
			{PlazaID: "1", Name: "Bugis", Latitude: "1.3000", Longitude: "103.8551"},
			{PlazaID: "2", Name: "Orchard", Latitude: "1.3040", Longitude: "103.8320"},
		},
		categories: map[string]int{
			"Cars (Weekdays)":        0,
			"Motorcycles (Weekdays)": 1,
		},
		rates: map[string][]model.RawRateRecord{
			"1|0": {rawRate("1", 0, "06:00-09:00", carRate)},
			"2|0": {rawRate("2", 0, "07:30-08:00", "$1.00")},
		},
	}
}

func newTestPipeline(t *testing.T, src *fakeSource) (*Pipeline, *snapshot.FileStore) {
	t.Helper()
	st, err := snapshot.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return New(src, st, report.NewEmitter(t.TempDir(), report.FormatCSV)), st
}

func TestRun_FirstRun(t *testing.T) {
	src := newSource("$2.50")
	p, st := newTestPipeline(t, src)

	res, err := p.Run(context.Background(), Options{Date: day1})
	require.NoError(t, err)

	assert.Equal(t, model.StateDone, res.State)
	assert.Nil(t, res.PreviousDate)
	assert.Len(t, res.Snapshot.Plazas, 2)
	assert.Len(t, res.Snapshot.Rates, 2)

	sum := res.Report.Summary()
	assert.Equal(t, 4, sum.Added)
	assert.Zero(t, sum.Removed)
	assert.Zero(t, sum.Modified)
	assert.FileExists(t, res.ReportPath)

	stored, err := st.Load(context.Background(), day1)
	require.NoError(t, err)
	assert.Equal(t, res.Snapshot.Plazas, stored.Plazas)
	assert.Equal(t, res.Snapshot.Rates, stored.Rates)
}

func TestRun_FetchesEveryPlazaAndCategoryOnce(t *testing.T) {
	src := newSource("$2.50")
	src.plazas = append(src.plazas, model.RawPlazaRecord{PlazaID: " 1 ", Name: "Bugis", Latitude: "1.3", Longitude: "103.8551"})
	p, _ := newTestPipeline(t, src)

	_, err := p.Run(context.Background(), Options{Date: day1})
	require.NoError(t, err)
	assert.Equal(t, []string{"1|0", "1|1", "2|0", "2|1"}, src.rateCalls)
}

func TestRun_ModifiedRate(t *testing.T) {
	src := newSource("$2.50")
	p, _ := newTestPipeline(t, src)
	ctx := context.Background()

	_, err := p.Run(ctx, Options{Date: day1})
	require.NoError(t, err)

	src.rates["1|0"] = []model.RawRateRecord{rawRate("1", 0, "06:00-09:00", "3.00")}
	res, err := p.Run(ctx, Options{Date: day2})
	require.NoError(t, err)

	require.NotNil(t, res.PreviousDate)
	assert.True(t, res.PreviousDate.Equal(day1))
	require.Len(t, res.Report.Changes, 1)

	c := res.Report.Changes[0]
	assert.Equal(t, model.ChangeModified, c.Kind)
	assert.Equal(t, model.EntityRate, c.Entity)
	assert.Equal(t, []string{"rate"}, c.Fields)
	assert.InDelta(t, 2.50, c.OldValue.(model.RateRecord).Rate, 1e-9)
	assert.InDelta(t, 3.00, c.NewValue.(model.RateRecord).Rate, 1e-9)
}

func TestRun_RemovedPlazaRemovesItsRates(t *testing.T) {
	src := newSource("$2.50")
	p, _ := newTestPipeline(t, src)
	ctx := context.Background()

	_, err := p.Run(ctx, Options{Date: day1})
	require.NoError(t, err)

	src.plazas = src.plazas[:1]
	res, err := p.Run(ctx, Options{Date: day2})
	require.NoError(t, err)

	removed := res.Report.Filter("", model.ChangeRemoved)
	require.Len(t, removed, 2)
	assert.Equal(t, model.EntityPlaza, removed[0].Entity)
	assert.Equal(t, "2", removed[0].Key)
	assert.Equal(t, model.EntityRate, removed[1].Entity)
	assert.Len(t, res.Report.Changes, 2)
}

func TestRun_IdenticalRunsReportNothing(t *testing.T) {
	src := newSource("$2.50")
	p, _ := newTestPipeline(t, src)
	ctx := context.Background()

	_, err := p.Run(ctx, Options{Date: day1})
	require.NoError(t, err)
	res, err := p.Run(ctx, Options{Date: day2})
	require.NoError(t, err)

	assert.True(t, res.Report.Empty())
	assert.Empty(t, res.ReportPath)
}

func TestRun_NonNumericRateSkipped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	zap.ReplaceGlobals(zap.New(core))
	defer zap.ReplaceGlobals(zap.NewNop())

	src := newSource("N/A")
	p, _ := newTestPipeline(t, src)

	res, err := p.Run(context.Background(), Options{Date: day1})
	require.NoError(t, err)

	assert.Equal(t, model.StateDone, res.State)
	assert.Equal(t, 1, res.Rejected)
	require.Len(t, res.Snapshot.Rates, 1)
	assert.Equal(t, "2", res.Snapshot.Rates[0].PlazaID)
	for _, c := range res.Report.Changes {
		assert.NotEqual(t, "1/0/06:00-09:00", c.Key)
	}

	skipped := logs.FilterMessage("pipeline: record skipped").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, "rate", skipped[0].ContextMap()["field"])
	assert.Equal(t, "not a number", skipped[0].ContextMap()["reason"])
}

func TestRun_FetchErrorAborts(t *testing.T) {
	src := newSource("$2.50")
	src.rateErr = &model.FetchError{Source: "rates", Err: errors.New("connection reset")}
	p, st := newTestPipeline(t, src)

	res, err := p.Run(context.Background(), Options{Date: day1})
	require.Error(t, err)
	assert.True(t, model.IsFetch(err))
	assert.Equal(t, model.StateFetching, FailedState(err))
	assert.Equal(t, model.StateFailed, res.State)

	dates, err := st.Dates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dates, "an aborted run leaves no snapshot")
}

func TestRun_InvalidCategoriesAbort(t *testing.T) {
	src := newSource("$2.50")
	src.categories = map[string]int{"Cars": 0, "Taxis": 0}
	p, _ := newTestPipeline(t, src)

	_, err := p.Run(context.Background(), Options{Date: day1})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
	assert.Equal(t, model.StateFetching, FailedState(err))
}

func TestRun_OverwriteGuard(t *testing.T) {
	src := newSource("$2.50")
	p, st := newTestPipeline(t, src)
	ctx := context.Background()

	_, err := p.Run(ctx, Options{Date: day1})
	require.NoError(t, err)

	src.rates["1|0"] = []model.RawRateRecord{rawRate("1", 0, "06:00-09:00", "$9.00")}
	_, err = p.Run(ctx, Options{Date: day1})
	require.Error(t, err)
	assert.True(t, model.IsStorage(err))
	assert.ErrorIs(t, err, model.ErrSnapshotExists)
	assert.Equal(t, model.StatePersisting, FailedState(err))

	stored, err := st.Load(ctx, day1)
	require.NoError(t, err)
	assert.InDelta(t, 2.50, stored.Rates[0].Rate, 1e-9)

	_, err = p.Run(ctx, Options{Date: day1, Overwrite: true})
	require.NoError(t, err)
	stored, err = st.Load(ctx, day1)
	require.NoError(t, err)
	assert.InDelta(t, 9.00, stored.Rates[0].Rate, 1e-9)
}

func TestRun_DryRun(t *testing.T) {
	src := newSource("$2.50")
	p, st := newTestPipeline(t, src)
	ctx := context.Background()

	_, err := p.Run(ctx, Options{Date: day1})
	require.NoError(t, err)

	src.rates["1|0"] = []model.RawRateRecord{rawRate("1", 0, "06:00-09:00", "$3.00")}
	res, err := p.Run(ctx, Options{Date: day2, DryRun: true})
	require.NoError(t, err)
	assert.Len(t, res.Report.Changes, 1)

	dates, err := st.Dates(ctx)
	require.NoError(t, err)
	assert.Len(t, dates, 1)
}

func TestRun_DefaultsDateToToday(t *testing.T) {
	src := newSource("$2.50")
	p, _ := newTestPipeline(t, src)
	p.now = func() time.Time { return time.Date(2024, 5, 6, 23, 59, 0, 0, time.UTC) }

	res, err := p.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-06", model.FormatDate(res.Snapshot.Date))
}

func TestRun_RecordsRunLog(t *testing.T) {
	ctx := context.Background()
	rl, err := runlog.Open(ctx, filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer rl.Close() //nolint:errcheck

	src := newSource("$2.50")
	p, _ := newTestPipeline(t, src)
	p.WithRecorder(rl)

	res, err := p.Run(ctx, Options{Date: day1})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	e, err := rl.Get(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, e.Status)
	assert.Equal(t, runlog.Counts{Plazas: 2, Rates: 2, Changes: 4}, e.Counts)

	res, err = p.Run(ctx, Options{Date: day1})
	require.Error(t, err)
	e, err = rl.Get(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, e.Status)
	assert.Equal(t, model.StatePersisting, e.State)
	assert.Contains(t, e.Error, "snapshot already exists")
}

func TestRun_Publishes(t *testing.T) {
	base := t.TempDir()
	storage, err := archive.NewLocalStorage(base)
	require.NoError(t, err)

	src := newSource("$2.50")
	p, _ := newTestPipeline(t, src)
	p.WithPublisher(archive.NewPublisher(storage, "erp"))

	res, err := p.Run(context.Background(), Options{Date: day1})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"erp/2024-03-01/rates_2024-03-01.csv",
		"erp/2024-03-01/plazas_2024-03-01.csv",
		"erp/2024-03-01/changes_2024-03-01.csv",
	}, res.Published)

	for _, obj := range res.Published {
		_, err := os.Stat(filepath.Join(base, filepath.FromSlash(obj)))
		assert.NoError(t, err, obj)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, time.Time, ...string) ([]string, error) {
	return nil, errors.New("bucket unavailable")
}

func TestRun_PublishFailureFailsRun(t *testing.T) {
	src := newSource("$2.50")
	p, st := newTestPipeline(t, src)
	p.WithPublisher(failingPublisher{})

	_, err := p.Run(context.Background(), Options{Date: day1})
	require.Error(t, err)
	assert.Equal(t, model.StatePublishing, FailedState(err))

	// Data is already persisted.
	_, err = st.Load(context.Background(), day1)
	assert.NoError(t, err)
}

func TestRun_DryRunSkipsPublish(t *testing.T) {
	src := newSource("$2.50")
	p, _ := newTestPipeline(t, src)
	p.WithPublisher(failingPublisher{})

	res, err := p.Run(context.Background(), Options{Date: day1, DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, res.Published)
}

func TestStepError(t *testing.T) {
	inner := &model.FetchError{Source: "plazas", Err: errors.New("timeout")}
	err := error(&StepError{State: model.StateFetching, Err: inner})
	assert.Equal(t, "pipeline: fetching: fetch plazas: timeout", err.Error())
	assert.True(t, model.IsFetch(err))
	assert.Equal(t, model.RunState(""), FailedState(errors.New("other")))
}
