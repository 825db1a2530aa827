package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/crossborder-kde/internal/aggregate"
	"github.com/sells-group/crossborder-kde/internal/geofile"
	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/layer"
	"github.com/sells-group/crossborder-kde/internal/model"
)

func sampleLayer() *layer.Layer {
	a := geometry.Rect(0, 0, 10, 10)
	b := geometry.Rect(20, 0, 25, 5)
	return &layer.Layer{EPSG: 3035, Records: []layer.Record{
		{Level: 1, Country: "FR", Name: "France", Geometry: b, Area: geometry.Area(b)},
		{Level: 0.55, Country: "MC", Name: "Monaco", Geometry: a, Area: geometry.Area(a)},
	}}
}

func TestFileNames(t *testing.T) {
	t.Parallel()

	p := testParams()
	p.LimitMovement = true
	p.MovementLimitKM = 200

	assert.Equal(t, "merged_FR_MC_25000BW_200movelimit_gaussian_euclidean.gpkg", PairFileName("FR_MC", p, "gpkg"))
	assert.Equal(t, "geo_file_for_country_FR_in_country_pair_FR_MC_25000BW_200movelimit_gaussian_euclidean.shp", BandsFileName("FR_MC", "FR", p, "shp"))
	assert.Equal(t, "all_countries_merged_kde_25000BW_200movelimit_gaussian_euclidean_coarse.gpkg", AggregateFileName(p, aggregate.ModeCoarse, "gpkg"))
	assert.Equal(t, "failed_pairs_25000BW_200movelimit_gaussian_euclidean.yaml", FailedPairsFileName(p))
	assert.Equal(t, "diagnostics_25000BW_200movelimit_gaussian_euclidean.xlsx", DiagnosticsFileName(p))
}

func TestNewFilesRejectsFormat(t *testing.T) {
	t.Parallel()

	_, err := NewFiles(t.TempDir(), "kml")
	require.Error(t, err)
	assert.True(t, model.IsFatal(err))

	f, err := NewFiles(filepath.Join(t.TempDir(), "nested", "out"), "")
	require.NoError(t, err)
	assert.Equal(t, geofile.FormatGeoPackage, f.Format)
	assert.DirExists(t, f.Dir)
}

func TestSaveLoadPair(t *testing.T) {
	t.Parallel()

	for _, format := range []string{geofile.FormatGeoPackage, geofile.FormatShapefile} {
		t.Run(format, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			f, err := NewFiles(t.TempDir(), format)
			require.NoError(t, err)

			path, err := f.SavePair(ctx, "FR_MC", testParams(), sampleLayer())
			require.NoError(t, err)
			assert.FileExists(t, path)

			got, err := f.LoadPair(ctx, "FR_MC", testParams())
			require.NoError(t, err)
			assert.Equal(t, 3035, got.EPSG)
			require.Equal(t, 2, got.Len())
			assert.Equal(t, 1.0, got.Records[0].Level)
			assert.Equal(t, "FR", got.Records[0].Country)
			assert.Equal(t, "France", got.Records[0].Name)
			assert.InDelta(t, 25, got.Records[0].Area, 1e-6)
			assert.Equal(t, 0.55, got.Records[1].Level)
			assert.InDelta(t, 100, geometry.Area(got.Records[1].Geometry), 1e-6)
		})
	}
}

func TestToTableColumns(t *testing.T) {
	t.Parallel()

	tbl := ToTable("merged_FR_MC", sampleLayer())
	require.Len(t, tbl.Features, 2)
	attrs := tbl.Features[0].Attrs
	assert.Equal(t, "FR", attrs["country_name"])
	assert.Equal(t, "France", attrs["name"])
	assert.Equal(t, "100%", attrs["label"])
	assert.NotContains(t, attrs, "country")
}

func TestLoadPairMissing(t *testing.T) {
	t.Parallel()

	f, err := NewFiles(t.TempDir(), "gpkg")
	require.NoError(t, err)

	_, err = f.LoadPair(context.Background(), "AD_ES", testParams())
	require.Error(t, err)
	assert.Equal(t, model.KindDataAbsent, model.KindOf(err))

	// Files written under other parameters are not found.
	other := testParams()
	other.Kernel = model.KernelEpanechnikov
	_, err = f.SavePair(context.Background(), "AD_ES", other, sampleLayer())
	require.NoError(t, err)
	_, err = f.LoadPair(context.Background(), "AD_ES", testParams())
	assert.Equal(t, model.KindDataAbsent, model.KindOf(err))
}

func TestStoredPairs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, err := NewFiles(t.TempDir(), "gpkg")
	require.NoError(t, err)

	other := testParams()
	other.Bandwidth = 125000
	for _, pair := range []string{"FR_MC", "AD_ES"} {
		_, err = f.SavePair(ctx, pair, testParams(), sampleLayer())
		require.NoError(t, err)
	}
	_, err = f.SavePair(ctx, "DE_PL", other, sampleLayer())
	require.NoError(t, err)
	_, err = f.SaveAggregate(ctx, testParams(), aggregate.ModeFine, sampleLayer())
	require.NoError(t, err)

	pairs, err := f.StoredPairs(testParams())
	require.NoError(t, err)
	assert.Equal(t, []string{"AD_ES", "FR_MC"}, pairs)

	pairs, err = f.StoredPairs(other)
	require.NoError(t, err)
	assert.Equal(t, []string{"DE_PL"}, pairs)
}

func TestSaveLoadAggregate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, err := NewFiles(t.TempDir(), "gpkg")
	require.NoError(t, err)

	l := sampleLayer()
	for i := range l.Records {
		l.Records[i].Country = ""
		l.Records[i].Name = ""
	}
	_, err = f.SaveAggregate(ctx, testParams(), aggregate.ModeFine, l)
	require.NoError(t, err)

	got, err := f.LoadAggregate(ctx, testParams(), aggregate.ModeFine)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.Empty(t, got.Countries())

	_, err = f.LoadAggregate(ctx, testParams(), aggregate.ModeCoarse)
	assert.Equal(t, model.KindDataAbsent, model.KindOf(err))
}

func TestSaveBands(t *testing.T) {
	t.Parallel()

	f, err := NewFiles(t.TempDir(), "gpkg")
	require.NoError(t, err)
	path, err := f.SaveBands(context.Background(), "FR_MC", "FR", testParams(), sampleLayer())
	require.NoError(t, err)
	assert.Equal(t, BandsFileName("FR_MC", "FR", testParams(), "gpkg"), filepath.Base(path))

	tables, err := geofile.GeoPackageTables(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"geo_file_for_country_FR_in_country_pair_FR_MC_25000BW_nomovelimit_gaussian_euclidean"}, tables)
}

func TestFailedReport(t *testing.T) {
	t.Parallel()

	f, err := NewFiles(t.TempDir(), "gpkg")
	require.NoError(t, err)

	empty, err := f.LoadFailed(testParams())
	require.NoError(t, err)
	assert.Empty(t, empty.Pairs())

	_, err = f.SaveFailed(testParams(), FailedReport{
		RunID: "run-1",
		Failures: []FailedPair{
			{Pair: "FR_MC", Kind: model.KindDegenerateInput, Reason: "zero spread"},
			{Pair: "AD_ES", Kind: model.KindDataAbsent, Reason: "no points"},
		},
	})
	require.NoError(t, err)

	got, err := f.LoadFailed(testParams())
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, testParams().Signature(), got.Signature)
	assert.Equal(t, []string{"AD_ES", "FR_MC"}, got.Pairs())
	assert.Equal(t, model.KindDataAbsent, got.Failures[0].Kind)
}

func TestReadRoster(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	list := filepath.Join(dir, "list.yaml")
	require.NoError(t, os.WriteFile(list, []byte("- es_ad\n- FR_MC\n- AD_ES\n"), 0o644))
	mapping := filepath.Join(dir, "map.yaml")
	require.NoError(t, os.WriteFile(mapping, []byte("pairs:\n  - BE_NL\n"), 0o644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- FRANCE\n"), 0o644))

	ids, err := ReadRoster(list)
	require.NoError(t, err)
	assert.Equal(t, []string{"AD_ES", "FR_MC"}, ids)

	ids, err = ReadRoster(mapping)
	require.NoError(t, err)
	assert.Equal(t, []string{"BE_NL"}, ids)

	_, err = ReadRoster(bad)
	assert.True(t, model.IsFatal(err))

	_, err = ReadRoster(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveDiagnostics(t *testing.T) {
	t.Parallel()

	f, err := NewFiles(t.TempDir(), "gpkg")
	require.NoError(t, err)

	outcomes := []model.PairOutcome{
		{Pair: "FR_MC", Status: model.PairStatusOK, Records: 2, Area: 125},
		{Pair: "AD_ES", Status: model.PairStatusFailed, Kind: model.KindDataAbsent, Reason: "no points"},
	}
	path, err := f.SaveDiagnostics(testParams(), outcomes, map[string]*layer.Layer{"FR_MC": sampleLayer()})
	require.NoError(t, err)

	wb, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	pairs := wb.Sheet[SheetPairs]
	require.NotNil(t, pairs)
	require.Len(t, pairs.Rows, 3)
	assert.Equal(t, "pair", pairs.Rows[0].Cells[0].String())
	assert.Equal(t, "AD_ES", pairs.Rows[1].Cells[0].String())
	assert.Equal(t, "data_absent", pairs.Rows[1].Cells[2].String())

	lv := wb.Sheet[SheetLevels]
	require.NotNil(t, lv)
	require.Len(t, lv.Rows, 3)
	assert.Equal(t, "FR", lv.Rows[1].Cells[1].String())
	assert.Equal(t, "100%", lv.Rows[1].Cells[3].String())
	assert.Equal(t, "MC", lv.Rows[2].Cells[1].String())
	assert.Equal(t, "55%", lv.Rows[2].Cells[3].String())
}
