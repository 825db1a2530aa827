package batch

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crossborder-kde/internal/aggregate"
	"github.com/sells-group/crossborder-kde/internal/boundary"
	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/layer"
	"github.com/sells-group/crossborder-kde/internal/levels"
	"github.com/sells-group/crossborder-kde/internal/mobility"
	"github.com/sells-group/crossborder-kde/internal/model"
	"github.com/sells-group/crossborder-kde/internal/store"
)

// LAEA false origin of EPSG:3035, which sits at 10E 52N.
const (
	originX = 4321000.0
	originY = 3210000.0
	spread  = 10000.0
	half    = 100000.0
)

var (
	centreAA = [2]float64{originX, originY}
	centreBB = [2]float64{originX + 250000, originY}
)

func params() model.Params {
	return model.Params{
		Bandwidth: 10000,
		Kernel:    model.KernelGaussian,
		Metric:    model.MetricEuclidean,
		EPSG:      3035,
	}
}

func square(c [2]float64) geom.Polygon {
	return geometry.Rect(c[0]-half, c[1]-half, c[0]+half, c[1]+half)
}

// movements builds n movements of pair whose start points scatter around
// the first centre and end points around the second one.
func movements(t *testing.T, pair string, from, to [2]float64, n int, seed uint64) []model.MovementRecord {
	t.Helper()
	a, b, err := model.SplitPair(pair)
	require.NoError(t, err)
	inv, err := geometry.NewTransform(3035, geometry.WGS84)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]model.MovementRecord, 0, n)
	for range n {
		slon, slat, err := inv(from[0]+rng.NormFloat64()*spread, from[1]+rng.NormFloat64()*spread)
		require.NoError(t, err)
		elon, elat, err := inv(to[0]+rng.NormFloat64()*spread, to[1]+rng.NormFloat64()*spread)
		require.NoError(t, err)
		out = append(out, model.MovementRecord{
			StartLon: slon, StartLat: slat,
			EndLon: elon, EndLat: elat,
			StartCountry: a, EndCountry: b,
			Pair: pair,
		})
	}
	return out
}

func borders(pairs ...string) *boundary.Dataset {
	var regions []boundary.Region
	for i, pair := range pairs {
		a, b, _ := model.SplitPair(pair)
		shift := [2]float64{0, float64(i) * 600000}
		ca := [2]float64{centreAA[0] + shift[0], centreAA[1] + shift[1]}
		cb := [2]float64{centreBB[0] + shift[0], centreBB[1] + shift[1]}
		regions = append(regions,
			boundary.Region{Key: model.BoundaryKey(pair, a), Country: a, Name: "Country " + a, Geometry: square(ca)},
			boundary.Region{Key: model.BoundaryKey(pair, b), Country: b, Name: "Country " + b, Geometry: square(cb)},
		)
	}
	return boundary.NewDataset(3035, regions)
}

func contains(p geom.Polygon, x, y float64) bool {
	probe := geometry.Rect(x-50, y-50, x+50, y+50)
	return geometry.Area(geometry.Intersect(p, probe)) > 0
}

func TestPipelineEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := mobility.NewMemory(movements(t, "AA_BB", centreAA, centreBB, 60, 7))
	files, err := store.NewFiles(t.TempDir(), "gpkg")
	require.NoError(t, err)
	catalog := levels.MustNew(levels.Fine)

	p, err := NewPipeline(params(), catalog, src, borders("AA_BB"), WithFiles(files), WithKeepBands(true))
	require.NoError(t, err)

	bands, err := p.CountryBands(ctx, "AA_BB", "AA")
	require.NoError(t, err)
	require.Len(t, bands, 19)
	for i, b := range bands {
		assert.False(t, b.Empty(), "band %d", i)
	}

	merged, err := p.RunPair(ctx, "AA_BB")
	require.NoError(t, err)
	assert.Equal(t, 3035, merged.EPSG)
	assert.Equal(t, []string{"AA", "BB"}, merged.Countries())
	assert.Equal(t, catalog.Levels, merged.Levels())

	var top []layer.Record
	for _, r := range merged.Records {
		sq := square(centreAA)
		if r.Country == "BB" {
			sq = square(centreBB)
		}
		assert.InDelta(t, 0, geometry.Area(geometry.Difference(r.Geometry, sq)), 1, "record outside its border")
		assert.Equal(t, "Country "+r.Country, r.Name)
		if r.Level == 1 {
			top = append(top, r)
		}
	}
	require.Len(t, top, 2)
	for _, r := range top {
		c := centreAA
		if r.Country == "BB" {
			c = centreBB
		}
		assert.True(t, contains(r.Geometry, c[0], c[1]), "top band of %s misses its centre", r.Country)
		assert.Greater(t, r.Area, 0.0)
	}

	// The merged file and both band files were written.
	reloaded, err := files.LoadPair(ctx, "AA_BB", params())
	require.NoError(t, err)
	assert.Equal(t, merged.Len(), reloaded.Len())
	assert.FileExists(t, files.Path(store.BandsFileName("AA_BB", "AA", params(), "gpkg")))
	assert.FileExists(t, files.Path(store.BandsFileName("AA_BB", "BB", params(), "gpkg")))
}

func TestPipelineErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	catalog := levels.MustNew(levels.Coarse)
	records := movements(t, "AA_BB", centreAA, centreBB, 20, 3)
	// One-point country on CC_DD.
	records = append(records, movements(t, "CC_DD", centreAA, centreBB, 1, 5)...)

	p, err := NewPipeline(params(), catalog, mobility.NewMemory(records), borders("AA_BB", "CC_DD", "EE_FF"))
	require.NoError(t, err)

	tests := []struct {
		pair string
		want model.Kind
	}{
		{pair: "AA_CC", want: model.KindDataAbsent},       // no border
		{pair: "EE_FF", want: model.KindDataAbsent},       // no movements
		{pair: "CC_DD", want: model.KindDegenerateInput}, // one point per side
		{pair: "aa_bb", want: model.KindConfiguration},   // not canonical
	}
	for _, tt := range tests {
		t.Run(tt.pair, func(t *testing.T) {
			t.Parallel()
			_, err := p.RunPair(ctx, tt.pair)
			require.Error(t, err)
			assert.Equal(t, tt.want, model.KindOf(err))
		})
	}
}

func TestNewPipelineRejects(t *testing.T) {
	t.Parallel()

	src := mobility.NewMemory(nil)
	catalog := levels.MustNew(levels.Fine)

	bad := params()
	bad.Kernel = "tophat"
	_, err := NewPipeline(bad, catalog, src, borders("AA_BB"))
	assert.True(t, model.IsFatal(err))

	_, err = NewPipeline(params(), catalog, src, boundary.NewDataset(4326, nil))
	assert.True(t, model.IsFatal(err))

	_, err = NewPipeline(params(), catalog, nil, borders("AA_BB"))
	assert.True(t, model.IsFatal(err))
}

func fakeLayer(pair string, x float64) *layer.Layer {
	a, b, _ := model.SplitPair(pair)
	ga := geometry.Rect(x, 0, x+10, 10)
	gb := geometry.Rect(x+10, 0, x+20, 10)
	return &layer.Layer{EPSG: 3035, Records: []layer.Record{
		{Level: 1, Country: a, Geometry: ga, Area: geometry.Area(ga)},
		{Level: 0.5, Country: b, Geometry: gb, Area: geometry.Area(gb)},
	}}
}

func TestRunnerFailureIsolation(t *testing.T) {
	t.Parallel()

	roster := []string{"AA_BB", "CC_DD", "EE_FF", "GG_HH", "II_JJ"}
	fn := func(_ context.Context, pair string) (*layer.Layer, error) {
		if pair == "EE_FF" {
			return nil, eris.Wrap(model.ErrDataAbsent, "no points")
		}
		for i, id := range roster {
			if id == pair {
				return fakeLayer(pair, float64(i)*100), nil
			}
		}
		return nil, eris.New("unexpected pair")
	}

	rep, err := Runner{Pipeline: fn, Concurrency: 2}.Run(context.Background(), roster, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	assert.Len(t, rep.Succeeded, 4)
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "EE_FF", rep.Failed[0].Pair)
	assert.Equal(t, model.KindDataAbsent, rep.Failed[0].Kind)
	assert.Contains(t, rep.Failed[0].Reason, "no points")

	out, err := aggregate.Aggregate(rep.Succeeded, aggregate.ModeFine)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.InDelta(t, 800, out.TotalArea(), 1e-6)
}

func TestRunnerRecoversPairPanic(t *testing.T) {
	t.Parallel()

	fn := func(_ context.Context, pair string) (*layer.Layer, error) {
		if pair == "CC_DD" {
			panic("index out of range")
		}
		return fakeLayer(pair, 0), nil
	}

	rep, err := Runner{Pipeline: fn, Concurrency: 1}.Run(context.Background(), []string{"AA_BB", "CC_DD", "EE_FF"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"AA_BB", "EE_FF"}, rep.SucceededPairs())
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "CC_DD", rep.Failed[0].Pair)
	assert.Equal(t, model.KindGeometry, rep.Failed[0].Kind)
	assert.Contains(t, rep.Failed[0].Reason, "panicked")
}

func TestRunnerSkipsKnownFailed(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var called []string
	fn := func(_ context.Context, pair string) (*layer.Layer, error) {
		mu.Lock()
		called = append(called, pair)
		mu.Unlock()
		return fakeLayer(pair, 0), nil
	}

	rep, err := Runner{Pipeline: fn, RunID: "run-1"}.Run(context.Background(), []string{"AA_BB", "CC_DD", "AA_BB"}, []string{"CC_DD"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, []string{"AA_BB"}, called)
	assert.Equal(t, []string{"CC_DD"}, rep.Skipped)

	outcomes := rep.Outcomes()
	require.Len(t, outcomes, 2)
	assert.Equal(t, model.PairStatusOK, outcomes[0].Status)
	assert.Equal(t, model.PairStatusSkipped, outcomes[1].Status)
	failed := rep.FailedReport()
	assert.Equal(t, []string{"CC_DD"}, failed.Pairs())
}

func TestRunnerConfigurationAborts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(_ context.Context, pair string) (*layer.Layer, error) {
		calls.Add(1)
		if pair == "AA_BB" {
			return nil, eris.Wrap(model.ErrConfiguration, "bad kernel")
		}
		return fakeLayer(pair, 0), nil
	}

	roster := []string{"AA_BB", "CC_DD", "EE_FF"}
	_, err := Runner{Pipeline: fn, Concurrency: 1}.Run(context.Background(), roster, nil)
	require.Error(t, err)
	assert.True(t, model.IsFatal(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunnerCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := Runner{Pipeline: func(context.Context, string) (*layer.Layer, error) {
		return nil, eris.New("must not run")
	}}.Run(ctx, []string{"AA_BB"}, nil)
	require.Error(t, err)
	assert.Empty(t, rep.Succeeded)
	assert.Empty(t, rep.Failed)
}

func TestAggregateFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	files, err := store.NewFiles(t.TempDir(), "gpkg")
	require.NoError(t, err)
	p := params()

	for i, pair := range []string{"AA_BB", "CC_DD", "EE_FF"} {
		_, err := files.SavePair(ctx, pair, p, fakeLayer(pair, float64(i)*100))
		require.NoError(t, err)
	}
	_, err = files.SaveFailed(p, store.FailedReport{Failures: []store.FailedPair{{Pair: "EE_FF", Kind: model.KindDataAbsent}}})
	require.NoError(t, err)

	// GG_HH has no merged file and is skipped.
	out, path, err := AggregateFiles(ctx, files, p, []string{"AA_BB", "CC_DD", "EE_FF", "GG_HH"}, aggregate.ModeCoarse, aggregate.Aggregator{})
	require.NoError(t, err)
	assert.FileExists(t, path)

	got := make(map[float64]float64)
	for _, r := range out.Records {
		got[r.Level] = r.Area
	}
	assert.InDelta(t, 200, got[0.5], 1e-6)
	assert.InDelta(t, 400, got[1], 1e-6)

	reloaded, err := files.LoadAggregate(ctx, p, aggregate.ModeCoarse)
	require.NoError(t, err)
	assert.Equal(t, out.Len(), reloaded.Len())
}
