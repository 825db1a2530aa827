package boundary

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crossborder-kde/internal/geofile"
	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/model"
)

func sampleDataset() *Dataset {
	return NewDataset(3035, []Region{
		{Key: "AD_ES_AD", Country: "AD", Name: "Andorra", Geometry: geometry.Rect(0, 0, 10, 10)},
		{Key: "AD_ES_ES", Country: "ES", Name: "España", Geometry: geometry.Rect(10, 0, 30, 10)},
		{Key: "AD_ES_ES", Country: "ES", Name: "España", Geometry: geometry.Rect(10, 10, 30, 20)},
		{Key: "ES_FR_ES", Country: "ES", Name: "España", Geometry: geometry.Rect(10, 20, 30, 40)},
	})
}

func TestSelectByCompositeKey(t *testing.T) {
	t.Parallel()
	d := sampleDataset()

	sel, err := d.Select("AD_ES", "es")
	require.NoError(t, err)
	assert.Equal(t, "ES", sel.Country)
	assert.Equal(t, 3035, sel.EPSG)
	require.Len(t, sel.Regions, 2)
	assert.InDelta(t, 400, geometry.Area(sel.Geometry()), 1e-9)

	// A pair-split territory is not reused for another pair.
	sel, err = d.Select("ES_FR", "ES")
	require.NoError(t, err)
	assert.Len(t, sel.Regions, 1)
}

func TestSelectMissingKey(t *testing.T) {
	t.Parallel()

	_, err := sampleDataset().Select("ES_FR", "FR")
	require.Error(t, err)
	assert.Equal(t, model.KindDataAbsent, model.KindOf(err))
}

func TestDatasetLookups(t *testing.T) {
	t.Parallel()
	d := sampleDataset()

	assert.Equal(t, 4, d.Len())
	assert.Equal(t, "Andorra", d.Name("ad"))
	assert.Equal(t, "FR", d.Name("FR"))
	assert.Equal(t, []string{"AD_ES_AD", "AD_ES_ES", "ES_FR_ES"}, d.Keys())
	assert.Equal(t, []string{"AD_ES"}, d.Pairs())
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{in: "  ANDORRA ", want: "Andorra"},
		{in: "BOSNA I HERCEGOVINA", want: "Bosna I Hercegovina"},
		{in: "España", want: "España"},
		{in: "123", want: "123"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DisplayName(tt.in))
		})
	}
}

func TestCountryOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "AD", countryOf("AD_ES_AD"))
	assert.Equal(t, "", countryOf("AD_ES_FR"))
	assert.Equal(t, "", countryOf("ES_AD_AD"))
	assert.Equal(t, "", countryOf("AD"))
}

func TestLoadGeoPackage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "borders.gpkg")

	tbl := geofile.Table{
		Name: "borders",
		EPSG: 3035,
		Columns: []geofile.Column{
			{Name: "CNTR_OD", Type: geofile.TypeText},
			{Name: "NAME", Type: geofile.TypeText},
		},
		Features: []geofile.Feature{
			{Geometry: geometry.Rect(0, 0, 10, 10), Attrs: map[string]any{"CNTR_OD": "AA_BB_AA", "NAME": "ALPHA"}},
			{Geometry: geometry.Rect(10, 0, 20, 10), Attrs: map[string]any{"CNTR_OD": "aa_bb_bb", "NAME": "Beta"}},
			{Geometry: geometry.Rect(0, 0, 1, 1), Attrs: map[string]any{"CNTR_OD": "junk", "NAME": "x"}},
		},
	}
	require.NoError(t, geofile.WriteGeoPackage(ctx, path, tbl))

	d, err := Load(ctx, path, LoadOptions{TargetEPSG: 3035})
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, "Alpha", d.Name("AA"))

	sel, err := d.Select("AA_BB", "BB")
	require.NoError(t, err)
	assert.InDelta(t, 100, geometry.Area(sel.Geometry()), 1e-9)
}

func TestLoadReprojects(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "borders.shp")

	tbl := geofile.Table{
		Name:    "borders",
		Columns: []geofile.Column{{Name: "CNTR_OD", Type: geofile.TypeText}, {Name: "NAME", Type: geofile.TypeText}},
		Features: []geofile.Feature{
			{Geometry: geometry.Rect(9.9, 51.9, 10.1, 52.1), Attrs: map[string]any{"CNTR_OD": "AA_BB_AA", "NAME": "Alpha"}},
		},
	}
	require.NoError(t, geofile.WriteShapefile(path, tbl))

	_, err := Load(ctx, path, LoadOptions{TargetEPSG: 3035})
	require.Error(t, err)
	assert.Equal(t, model.KindConfiguration, model.KindOf(err))

	d, err := Load(ctx, path, LoadOptions{SourceEPSG: geometry.WGS84, TargetEPSG: 3035})
	require.NoError(t, err)
	sel, err := d.Select("AA_BB", "AA")
	require.NoError(t, err)
	minX, minY, maxX, maxY, ok := geometry.Bounds(sel.Geometry())
	require.True(t, ok)
	assert.Less(t, minX, 4321000.0)
	assert.Greater(t, maxX, 4321000.0)
	assert.Less(t, minY, 3210000.0)
	assert.Greater(t, maxY, 3210000.0)
}
