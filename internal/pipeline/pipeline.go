// Package pipeline sequences one snapshot run: fetch, normalize, persist,
// load the previous snapshot, diff, report and publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tollwatch/internal/diff"
	"github.com/sells-group/tollwatch/internal/model"
	"github.com/sells-group/tollwatch/internal/normalize"
	"github.com/sells-group/tollwatch/internal/runlog"
	"github.com/sells-group/tollwatch/internal/snapshot"
	"github.com/sells-group/tollwatch/internal/source"
)

// Emitter consumes the change report of a run.
type Emitter interface {
	Emit(ctx context.Context, report model.ChangeReport) (string, error)
}

// Publisher mirrors the files of a run.
type Publisher interface {
	Publish(ctx context.Context, date time.Time, files ...string) ([]string, error)
}

// Recorder tracks run state. *runlog.RunLog implements it.
type Recorder interface {
	Start(ctx context.Context, runDate time.Time, dryRun bool) (string, error)
	Transition(ctx context.Context, id string, state model.RunState) error
	Complete(ctx context.Context, id string, counts runlog.Counts) error
	Fail(ctx context.Context, id string, state model.RunState, msg string) error
}

// fileLocator is implemented by stores that keep snapshots as local files.
type fileLocator interface {
	PlazaPath(date time.Time) string
	RatePath(date time.Time) string
}

// Options controls a single run.
type Options struct {
	// Date is the snapshot date. Zero means today.
	Date time.Time
	// Overwrite replaces an existing snapshot for Date.
	Overwrite bool
	// DryRun skips persisting and publishing.
	DryRun bool
}

// Result is the outcome of a run.
type Result struct {
	RunID        string
	State        model.RunState
	Snapshot     *model.Snapshot
	PreviousDate *time.Time
	Report       model.ChangeReport
	ReportPath   string
	Published    []string
	Rejected     int
}

// StepError is returned when a run fails. State is the step that failed.
type StepError struct {
	State model.RunState
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Pipeline runs snapshot captures against one source and store.
type Pipeline struct {
	source    source.Source
	store     snapshot.Store
	emitter   Emitter
	publisher Publisher
	recorder  Recorder
	now       func() time.Time
}

// New creates a Pipeline. Publisher and recorder are optional.
func New(src source.Source, st snapshot.Store, em Emitter) *Pipeline {
	return &Pipeline{
		source:  src,
		store:   st,
		emitter: em,
		now:     time.Now,
	}
}

// WithPublisher sets the publisher run after reporting.
func (p *Pipeline) WithPublisher(pub Publisher) *Pipeline {
	p.publisher = pub
	return p
}

// WithRecorder sets the run log.
func (p *Pipeline) WithRecorder(r Recorder) *Pipeline {
	p.recorder = r
	return p
}

type fetched struct {
	plazas     []model.RawPlazaRecord
	rates      []model.RawRateRecord
	categories model.CategoryMap
}

// Run executes one pipeline run. It stops at the first unrecoverable error
// and returns a *StepError naming the failed step. Records failing
// normalization are logged and skipped.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	date := opts.Date
	if date.IsZero() {
		date = p.now()
	}
	date = model.Day(date)

	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("source", p.source.Name()),
		zap.String("date", model.FormatDate(date)),
		zap.Bool("dry_run", opts.DryRun),
	)
	log.Info("pipeline: starting run")
	start := time.Now()

	res := &Result{State: model.StateFetching}

	if p.recorder != nil {
		id, err := p.recorder.Start(ctx, date, opts.DryRun)
		if err != nil {
			log.Warn("pipeline: failed to record run start", zap.Error(err))
		}
		res.RunID = id
	}

	setState := func(state model.RunState) {
		res.State = state
		log.Debug("pipeline: state", zap.String("state", string(state)))
		if p.recorder == nil || res.RunID == "" {
			return
		}
		if err := p.recorder.Transition(ctx, res.RunID, state); err != nil {
			log.Warn("pipeline: failed to record state", zap.String("state", string(state)), zap.Error(err))
		}
	}

	fail := func(err error) (*Result, error) {
		failed := res.State
		res.State = model.StateFailed
		log.Error("pipeline: run failed",
			zap.String("state", string(failed)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		if p.recorder != nil && res.RunID != "" {
			// The run context may be what failed.
			if recErr := p.recorder.Fail(context.WithoutCancel(ctx), res.RunID, failed, err.Error()); recErr != nil {
				log.Warn("pipeline: failed to record failure", zap.Error(recErr))
			}
		}
		return res, &StepError{State: failed, Err: err}
	}

	// Fetching
	f, err := p.fetch(ctx, log)
	if err != nil {
		return fail(err)
	}

	// Normalizing
	setState(model.StateNormalizing)
	n := normalize.New(f.categories)
	plazas, plazaErrs := n.Plazas(f.plazas)
	rates, rateErrs := n.Rates(f.rates, plazas)
	for _, ve := range append(plazaErrs, rateErrs...) {
		log.Warn("pipeline: record skipped",
			zap.String("entity_type", string(ve.Entity)),
			zap.String("key", ve.Key),
			zap.String("field", ve.Field),
			zap.String("value", ve.Value),
			zap.String("reason", ve.Reason),
			zap.String("record_source", ve.Source),
		)
	}
	res.Rejected = len(plazaErrs) + len(rateErrs)
	snap := model.NewSnapshot(date, plazas, rates)
	if err := snap.Validate(); err != nil {
		return fail(err)
	}
	res.Snapshot = snap
	log.Info("pipeline: normalized",
		zap.Int("plazas", len(snap.Plazas)),
		zap.Int("rates", len(snap.Rates)),
		zap.Int("rejected", res.Rejected),
	)

	// Persisting
	if !opts.DryRun {
		setState(model.StatePersisting)
		if err := p.store.Write(ctx, snap, opts.Overwrite); err != nil {
			return fail(err)
		}
	}

	// Loading previous
	setState(model.StateLoadingPrevious)
	prev, err := p.store.MostRecentBefore(ctx, date)
	if err != nil {
		return fail(err)
	}
	if prev == nil {
		log.Info("pipeline: no previous snapshot, first run")
	} else {
		d := prev.Date
		res.PreviousDate = &d
	}

	// Diffing
	setState(model.StateDiffing)
	res.Report = diff.New(f.categories).Diff(prev, snap)

	// Reporting
	setState(model.StateReporting)
	res.ReportPath, err = p.emitter.Emit(ctx, res.Report)
	if err != nil {
		return fail(err)
	}

	// Publishing
	if p.publisher != nil && !opts.DryRun {
		setState(model.StatePublishing)
		res.Published, err = p.publisher.Publish(ctx, date, p.runFiles(date, res.ReportPath)...)
		if err != nil {
			return fail(err)
		}
	}

	res.State = model.StateDone
	if p.recorder != nil && res.RunID != "" {
		counts := runlog.Counts{
			Plazas:   len(snap.Plazas),
			Rates:    len(snap.Rates),
			Rejected: res.Rejected,
			Changes:  len(res.Report.Changes),
		}
		if err := p.recorder.Complete(ctx, res.RunID, counts); err != nil {
			log.Warn("pipeline: failed to record completion", zap.Error(err))
		}
	}

	log.Info("pipeline: run complete",
		zap.Int("changes", len(res.Report.Changes)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// fetch reads plazas and categories, then the rates of every distinct plaza
// id for every category.
func (p *Pipeline) fetch(ctx context.Context, log *zap.Logger) (*fetched, error) {
	plazas, err := p.source.FetchPlazas(ctx)
	if err != nil {
		return nil, err
	}
	labels, err := p.source.FetchCategories(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := model.NewCategoryMap(labels)
	if err != nil {
		return nil, err
	}

	ids := distinctPlazaIDs(plazas)
	log.Info("pipeline: fetched plazas and categories",
		zap.Int("plazas", len(plazas)),
		zap.Int("distinct_plaza_ids", len(ids)),
		zap.Int("categories", categories.Len()),
	)

	var rates []model.RawRateRecord
	for _, id := range ids {
		for _, cat := range categories.IDs() {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "pipeline: fetch rates")
			}
			rows, err := p.source.FetchRates(ctx, id, cat)
			if err != nil {
				return nil, err
			}
			rates = append(rates, rows...)
		}
	}
	log.Info("pipeline: fetched rates", zap.Int("rows", len(rates)))

	return &fetched{plazas: plazas, rates: rates, categories: categories}, nil
}

// distinctPlazaIDs returns the non-blank plaza ids in first-seen order.
func distinctPlazaIDs(raws []model.RawPlazaRecord) []string {
	seen := make(map[string]struct{}, len(raws))
	var ids []string
	for _, r := range raws {
		id := strings.TrimSpace(r.PlazaID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// runFiles lists the local files a run produced: rates, plazas, change file.
func (p *Pipeline) runFiles(date time.Time, reportPath string) []string {
	var files []string
	if fl, ok := p.store.(fileLocator); ok {
		files = append(files, fl.RatePath(date), fl.PlazaPath(date))
	}
	return append(files, reportPath)
}

// FailedState returns the step a run failed in, or "" if err is not a StepError.
func FailedState(err error) model.RunState {
	var se *StepError
	if errors.As(err, &se) {
		return se.State
	}
	return ""
}
