package batch

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crossborder-kde/internal/layer"
	"github.com/sells-group/crossborder-kde/internal/model"
	"github.com/sells-group/crossborder-kde/internal/store"
)

// DefaultConcurrency is the number of pairs processed at once when the
// runner is not told otherwise.
const DefaultConcurrency = 4

// PairFunc produces the merged layer of one pair.
type PairFunc func(ctx context.Context, pair string) (*layer.Layer, error)

// Result is the outcome of one pair: a layer on success, an error
// otherwise.
type Result struct {
	Pair  string
	Layer *layer.Layer
	Err   error
}

// OK reports whether the pair succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Failure is one failed pair in a report.
type Failure struct {
	Pair   string
	Reason string
	Kind   model.Kind
}

// Report is what a run produced.
type Report struct {
	RunID     string
	StartedAt time.Time
	Succeeded map[string]*layer.Layer
	Failed    []Failure
	Skipped   []string // known-failed ids that were not attempted
}

// SucceededPairs returns the ids of the successful pairs, sorted.
func (r *Report) SucceededPairs() []string {
	out := make([]string, 0, len(r.Succeeded))
	for id := range r.Succeeded {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FailedPairs returns the ids of the failed pairs, sorted.
func (r *Report) FailedPairs() []string {
	out := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.Pair)
	}
	return out
}

// Outcomes flattens the report into one outcome per attempted or skipped
// pair, sorted by pair.
func (r *Report) Outcomes() []model.PairOutcome {
	var out []model.PairOutcome
	for _, id := range r.SucceededPairs() {
		l := r.Succeeded[id]
		out = append(out, model.PairOutcome{
			RunID:   r.RunID,
			Pair:    id,
			Status:  model.PairStatusOK,
			Records: l.Len(),
			Area:    l.TotalArea(),
		})
	}
	for _, f := range r.Failed {
		out = append(out, model.PairOutcome{
			RunID:  r.RunID,
			Pair:   f.Pair,
			Status: model.PairStatusFailed,
			Kind:   f.Kind,
			Reason: f.Reason,
		})
	}
	for _, id := range r.Skipped {
		out = append(out, model.PairOutcome{RunID: r.RunID, Pair: id, Status: model.PairStatusSkipped})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// FailedReport converts the failures to the persisted report. Skipped pairs
// stay listed so a later aggregate run keeps excluding them.
func (r *Report) FailedReport() store.FailedReport {
	fr := store.FailedReport{RunID: r.RunID, GeneratedAt: time.Now().UTC()}
	for _, f := range r.Failed {
		fr.Failures = append(fr.Failures, store.FailedPair{Pair: f.Pair, Kind: f.Kind, Reason: f.Reason})
	}
	for _, id := range r.Skipped {
		fr.Failures = append(fr.Failures, store.FailedPair{Pair: id, Kind: model.KindDataAbsent, Reason: "skipped: failed in an earlier run"})
	}
	return fr
}

// Runner fans a roster of pairs out over a bounded number of goroutines.
// A pair's failure is recorded and never stops the others; only a
// configuration error aborts the run.
type Runner struct {
	Pipeline    PairFunc
	Concurrency int
	RunID       string // generated when empty
}

// Run processes every pair of roster not listed in knownFailed. The
// returned error is non-nil only when the run was aborted by a
// configuration error or ctx; the report then holds what completed.
func (r Runner) Run(ctx context.Context, roster, knownFailed []string) (*Report, error) {
	rep := &Report{
		RunID:     r.RunID,
		StartedAt: time.Now().UTC(),
		Succeeded: make(map[string]*layer.Layer),
	}
	if rep.RunID == "" {
		rep.RunID = uuid.New().String()
	}
	if r.Pipeline == nil {
		return rep, eris.Wrap(model.ErrConfiguration, "batch: runner has no pipeline")
	}
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	skip := make(map[string]bool, len(knownFailed))
	for _, id := range knownFailed {
		skip[id] = true
	}

	log := zap.L().With(zap.String("run_id", rep.RunID))
	log.Info("batch: starting run",
		zap.Int("pairs", len(roster)),
		zap.Int("known_failed", len(knownFailed)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	collect := func(res Result) {
		mu.Lock()
		defer mu.Unlock()
		if res.OK() {
			rep.Succeeded[res.Pair] = res.Layer
			return
		}
		rep.Failed = append(rep.Failed, Failure{
			Pair:   res.Pair,
			Reason: res.Err.Error(),
			Kind:   model.KindOf(res.Err),
		})
	}

	seen := make(map[string]bool, len(roster))
	for _, pair := range roster {
		if seen[pair] {
			continue
		}
		seen[pair] = true
		if skip[pair] {
			rep.Skipped = append(rep.Skipped, pair)
			log.Info("batch: skipping known-failed pair", zap.String("pair", pair))
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			plog := log.With(zap.String("pair", pair))
			l, err := r.runPair(gctx, pair)
			if err != nil {
				if model.IsFatal(err) {
					plog.Error("batch: configuration error, aborting run", zap.Error(err))
					return eris.Wrapf(err, "batch: pair %s", pair)
				}
				plog.Warn("batch: pair failed", zap.String("kind", string(model.KindOf(err))), zap.Error(err))
				collect(Result{Pair: pair, Err: err})
				return nil // don't abort the roster on one pair
			}
			plog.Info("batch: pair complete", zap.Int("records", l.Len()))
			collect(Result{Pair: pair, Layer: l})
			return nil
		})
	}

	err := g.Wait()
	sort.Slice(rep.Failed, func(i, j int) bool { return rep.Failed[i].Pair < rep.Failed[j].Pair })
	sort.Strings(rep.Skipped)
	if err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, eris.Wrap(err, "batch: run cancelled")
	}

	log.Info("batch: run complete",
		zap.Int("succeeded", len(rep.Succeeded)),
		zap.Int("failed", len(rep.Failed)),
		zap.Int("skipped", len(rep.Skipped)),
	)
	return rep, nil
}

// runPair calls the pipeline for one pair. A panic inside the geometry
// stack fails only that pair.
func (r Runner) runPair(ctx context.Context, pair string) (l *layer.Layer, err error) {
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("batch: pair panicked",
				zap.String("pair", pair),
				zap.Any("panic", p),
				zap.String("stack", string(debug.Stack())),
			)
			l, err = nil, eris.Wrapf(model.ErrGeometryInconsistency, "batch: pair %s panicked: %v", pair, p)
		}
	}()
	return r.Pipeline(ctx, pair)
}
