package main

import (
	"bytes"
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crossborder-kde/internal/aggregate"
	"github.com/sells-group/crossborder-kde/internal/batch"
	"github.com/sells-group/crossborder-kde/internal/boundary"
	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/levels"
	"github.com/sells-group/crossborder-kde/internal/mobility"
	"github.com/sells-group/crossborder-kde/internal/model"
	"github.com/sells-group/crossborder-kde/internal/store"
)

// Squares of 200 km around the LAEA origin and 250 km east of it.
var (
	westCentre = [2]float64{4321000, 3210000}
	eastCentre = [2]float64{4571000, 3210000}
)

func testEnv(t *testing.T) *kdeEnv {
	t.Helper()

	params := model.Params{Bandwidth: 10000, Kernel: model.KernelGaussian, Metric: model.MetricEuclidean, EPSG: 3035}
	catalog := levels.MustNew(levels.Fine)

	inv, err := geometry.NewTransform(3035, geometry.WGS84)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(11, 12))
	var records []model.MovementRecord
	for range 60 {
		slon, slat, err := inv(westCentre[0]+rng.NormFloat64()*10000, westCentre[1]+rng.NormFloat64()*10000)
		require.NoError(t, err)
		elon, elat, err := inv(eastCentre[0]+rng.NormFloat64()*10000, eastCentre[1]+rng.NormFloat64()*10000)
		require.NoError(t, err)
		records = append(records, model.MovementRecord{
			StartLon: slon, StartLat: slat, EndLon: elon, EndLat: elat,
			StartCountry: "AA", EndCountry: "BB", Pair: "AA_BB",
		})
	}
	source := mobility.NewMemory(records)

	square := func(c [2]float64) boundary.Region {
		return boundary.Region{Geometry: geometry.Rect(c[0]-100000, c[1]-100000, c[0]+100000, c[1]+100000)}
	}
	var regions []boundary.Region
	for _, pair := range []string{"AA_BB", "CC_DD"} {
		a, b, _ := model.SplitPair(pair)
		ra, rb := square(westCentre), square(eastCentre)
		ra.Key, ra.Country, ra.Name = model.BoundaryKey(pair, a), a, "Country "+a
		rb.Key, rb.Country, rb.Name = model.BoundaryKey(pair, b), b, "Country "+b
		regions = append(regions, ra, rb)
	}
	borders := boundary.NewDataset(3035, regions)

	files, err := store.NewFiles(t.TempDir(), "gpkg")
	require.NoError(t, err)
	p, err := batch.NewPipeline(params, catalog, source, borders, batch.WithFiles(files))
	require.NoError(t, err)

	return &kdeEnv{Params: params, Catalog: catalog, Files: files, Source: source, Borders: borders, Pipeline: p}
}

func testLedger(t *testing.T) *store.SQLiteLedger {
	t.Helper()
	l, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	require.NoError(t, l.Migrate(context.Background()))
	return l
}

func TestExecuteBatch(t *testing.T) {
	ctx := context.Background()
	env := testEnv(t)
	ledger := testLedger(t)

	rep, err := executeBatch(ctx, env, ledger, env.Borders.Pairs(), batchOptions{Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"AA_BB"}, rep.SucceededPairs())
	assert.Equal(t, []string{"CC_DD"}, rep.FailedPairs())
	assert.Equal(t, model.KindDataAbsent, rep.Failed[0].Kind)

	assert.FileExists(t, env.Files.Path(store.PairFileName("AA_BB", env.Params, "gpkg")))
	assert.FileExists(t, env.Files.Path(store.DiagnosticsFileName(env.Params)))
	failed, err := env.Files.LoadFailed(env.Params)
	require.NoError(t, err)
	assert.Equal(t, []string{"CC_DD"}, failed.Pairs())

	run, err := ledger.GetRun(ctx, rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 2, run.Pairs)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	pairs, err := ledger.ListPairs(ctx, rep.RunID)
	require.NoError(t, err)
	assert.Len(t, pairs, 2)
}

func TestExecuteBatchSkipsKnownFailedAndAggregates(t *testing.T) {
	ctx := context.Background()
	env := testEnv(t)
	ledger := testLedger(t)
	roster := env.Borders.Pairs()

	_, err := executeBatch(ctx, env, ledger, roster, batchOptions{})
	require.NoError(t, err)

	rep, err := executeBatch(ctx, env, ledger, roster, batchOptions{Aggregate: aggregate.ModeCoarse})
	require.NoError(t, err)
	assert.Equal(t, []string{"CC_DD"}, rep.Skipped)
	assert.Empty(t, rep.Failed)

	// The skipped pair stays in the report.
	failed, err := env.Files.LoadFailed(env.Params)
	require.NoError(t, err)
	assert.Equal(t, []string{"CC_DD"}, failed.Pairs())

	agg, err := env.Files.LoadAggregate(ctx, env.Params, aggregate.ModeCoarse)
	require.NoError(t, err)
	assert.NotZero(t, agg.Len())
	assert.Empty(t, agg.Countries())

	rep, err = executeBatch(ctx, env, ledger, roster, batchOptions{Retry: true})
	require.NoError(t, err)
	assert.Empty(t, rep.Skipped)
	assert.Equal(t, []string{"CC_DD"}, rep.FailedPairs())

	runs, err := ledger.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestExecuteBatchConfigurationAborts(t *testing.T) {
	ctx := context.Background()
	env := testEnv(t)
	ledger := testLedger(t)

	rep, err := executeBatch(ctx, env, ledger, []string{"bb_aa"}, batchOptions{Concurrency: 1})
	require.Error(t, err)
	assert.True(t, model.IsFatal(err))
	require.NotNil(t, rep)

	run, err := ledger.GetRun(ctx, rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
}

func TestResolveRoster(t *testing.T) {
	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(rosterPath, []byte("pairs:\n  - mc_fr\n  - AD_ES\n"), 0o644))
	fallback := func() ([]string, error) { return []string{"DE_PL"}, nil }
	empty := func() ([]string, error) { return nil, nil }

	got, err := resolveRoster([]string{"fr_mc,AD_ES", "MC_FR"}, rosterPath, fallback)
	require.NoError(t, err)
	assert.Equal(t, []string{"FR_MC", "AD_ES"}, got)

	got, err = resolveRoster(nil, rosterPath, fallback)
	require.NoError(t, err)
	assert.Equal(t, []string{"FR_MC", "AD_ES"}, got)

	got, err = resolveRoster(nil, "", fallback)
	require.NoError(t, err)
	assert.Equal(t, []string{"DE_PL"}, got)

	_, err = resolveRoster(nil, "", empty)
	assert.Equal(t, model.KindDataAbsent, model.KindOf(err))

	_, err = resolveRoster([]string{"FRANCE"}, "", fallback)
	assert.True(t, model.IsFatal(err))
}

func TestFormatReport(t *testing.T) {
	rep := &batch.Report{
		RunID: "abc12345-6789-0000-0000-000000000000",
		Failed: []batch.Failure{
			{Pair: "CC_DD", Kind: model.KindDataAbsent, Reason: "mobility: no movements"},
		},
		Skipped: []string{"EE_FF"},
	}

	var buf bytes.Buffer
	formatReport(&buf, rep)

	output := buf.String()
	assert.Contains(t, output, "PAIR")
	assert.Contains(t, output, "CC_DD")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "EE_FF")
	assert.Contains(t, output, "skipped")
	assert.Contains(t, output, "run abc12345: 0 succeeded, 1 failed, 1 skipped")
}
