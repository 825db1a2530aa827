package layer

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crossborder-kde/internal/contour"
	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/model"
)

func rec(level float64, country string, g geom.Polygon) Record {
	return Record{Level: level, Country: country, Name: country, Geometry: g, Area: geometry.Area(g)}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	a := &Layer{EPSG: 3035, Records: []Record{rec(0.5, "AA", geometry.Rect(0, 0, 1, 1))}}
	b := &Layer{EPSG: 3035, Records: []Record{rec(1, "BB", geometry.Rect(5, 5, 7, 7)), rec(0.5, "BB", geometry.Rect(4, 4, 8, 8))}}

	m, err := Merge("AA_BB", a, b)
	require.NoError(t, err)
	assert.Equal(t, 3035, m.EPSG)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []string{"AA", "BB"}, m.Countries())
	assert.Equal(t, []float64{0.5, 1}, m.Levels())
	assert.InDelta(t, 1+4+16, m.TotalArea(), 1e-9)
}

func TestMergeErrors(t *testing.T) {
	t.Parallel()

	a := &Layer{EPSG: 3035, Records: []Record{rec(0.5, "AA", geometry.Rect(0, 0, 1, 1))}}
	b := &Layer{EPSG: 4326, Records: []Record{rec(0.5, "BB", geometry.Rect(0, 0, 1, 1))}}

	_, err := Merge("AA_BB", a, b)
	require.Error(t, err)
	assert.Equal(t, model.KindGeometry, model.KindOf(err))

	_, err = Merge("BB_AA", a, a)
	assert.Equal(t, model.KindConfiguration, model.KindOf(err))
}

func TestConcatSkipsEmptyLayers(t *testing.T) {
	t.Parallel()

	empty := &Layer{EPSG: 4326}
	a := &Layer{EPSG: 3035, Records: []Record{rec(0.5, "AA", geometry.Rect(0, 0, 1, 1))}}

	out, err := Concat(nil, empty, a)
	require.NoError(t, err)
	assert.Equal(t, 3035, out.EPSG)
	assert.Equal(t, 1, out.Len())
}

func TestSortByLevelDesc(t *testing.T) {
	t.Parallel()

	l := &Layer{Records: []Record{
		rec(0.2, "BB", nil),
		rec(1, "BB", nil),
		rec(0.2, "AA", nil),
		rec(0.55, "AA", nil),
	}}
	l.SortByLevelDesc()

	var got []string
	for _, r := range l.Records {
		got = append(got, r.Country)
	}
	assert.Equal(t, []string{"BB", "AA", "AA", "BB"}, got)
	assert.Equal(t, 1.0, l.Records[0].Level)
	assert.Equal(t, 0.2, l.Records[3].Level)
}

func TestFromBands(t *testing.T) {
	t.Parallel()

	bands := []contour.Band{
		{Level: 0.5, EPSG: 3035, Geometry: geom.MultiPolygon{geometry.Rect(0, 0, 2, 2)}, Area: 4},
		{Level: 1, EPSG: 3035},
	}
	l, err := FromBands(bands, "AA", "Alpha")
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())
	assert.Equal(t, "Alpha", l.Records[0].Name)
	assert.Empty(t, l.Records[1].Geometry)

	bands[1].EPSG = 4326
	_, err = FromBands(bands, "AA", "Alpha")
	assert.Equal(t, model.KindGeometry, model.KindOf(err))
}
