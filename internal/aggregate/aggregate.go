// Package aggregate combines merged pair layers into one continental layer.
package aggregate

import (
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/layer"
	"github.com/sells-group/crossborder-kde/internal/levels"
	"github.com/sells-group/crossborder-kde/internal/model"
)

// Mode selects how dissolved levels are re-expressed.
type Mode string

const (
	// ModeFine keeps every dissolved level as is.
	ModeFine Mode = "fine"
	// ModeCoarse re-expresses the levels as cumulative "at least" bands
	// at CoarseLevels.
	ModeCoarse Mode = "coarse"
)

// CoarseLevels are the cumulative targets of ModeCoarse, ascending.
var CoarseLevels = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}

// ParseMode accepts "fine" and "coarse", and the legend sizes "20" and
// "10" as their aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fine", "20":
		return ModeFine, nil
	case "coarse", "10":
		return ModeCoarse, nil
	}
	return "", eris.Wrapf(model.ErrConfiguration, "aggregate: unsupported mode %q (want fine or coarse)", s)
}

// Aggregator dissolves and rebuckets layers.
type Aggregator struct {
	// SumArea reports the summed record area of each level instead of the
	// area of the dissolved union.
	SumArea bool
}

// Aggregate runs a default Aggregator.
func Aggregate(layers map[string]*layer.Layer, mode Mode) (*layer.Layer, error) {
	return Aggregator{}.Aggregate(layers, mode)
}

// Aggregate concatenates layers, dissolves them by level and rebuckets the
// result according to mode. The output is ordered by level, highest first,
// and holds no empty geometries.
func (a Aggregator) Aggregate(layers map[string]*layer.Layer, mode Mode) (*layer.Layer, error) {
	if mode != ModeFine && mode != ModeCoarse {
		return nil, eris.Wrapf(model.ErrConfiguration, "aggregate: unsupported mode %q", mode)
	}

	pairs := make([]string, 0, len(layers))
	for p := range layers {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)
	ordered := make([]*layer.Layer, 0, len(pairs))
	for _, p := range pairs {
		ordered = append(ordered, layers[p])
	}
	all, err := layer.Concat(ordered...)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: concatenate")
	}

	dissolved := a.Dissolve(all)
	out := dissolved
	if mode == ModeCoarse {
		out = Rebucket(dissolved, CoarseLevels)
	}
	out.SortByLevelDesc()

	zap.L().Info("aggregate: layers combined",
		zap.Int("pairs", len(pairs)),
		zap.Int("records", all.Len()),
		zap.Int("levels", out.Len()),
		zap.String("mode", string(mode)),
	)
	return out, nil
}

// Dissolve unions every geometry sharing a level into one record per
// level, ascending. Levels whose union is empty are dropped.
func (a Aggregator) Dissolve(l *layer.Layer) *layer.Layer {
	groups := make(map[int][]geom.Polygon)
	sums := make(map[int]float64)
	for _, r := range l.Records {
		k := levels.Key(r.Level)
		groups[k] = append(groups[k], r.Geometry)
		sums[k] += r.Area
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := &layer.Layer{EPSG: l.EPSG}
	for _, k := range keys {
		u := geometry.UnionAll(groups[k])
		if geometry.Empty(u) {
			continue
		}
		area := geometry.Area(u)
		if a.SumArea {
			area = sums[k]
		}
		out.Records = append(out.Records, layer.Record{
			Level:    float64(k) / 100,
			Geometry: u,
			Area:     area,
		})
	}
	return out
}

// Rebucket re-expresses dissolved levels as cumulative bands: the record
// at target t is the union of every level at or below t. Areas are
// non-decreasing in t. Targets no level falls under are omitted.
func Rebucket(dissolved *layer.Layer, targets []float64) *layer.Layer {
	recs := append([]layer.Record(nil), dissolved.Records...)
	sort.SliceStable(recs, func(i, j int) bool { return levels.Key(recs[i].Level) < levels.Key(recs[j].Level) })
	ts := append([]float64(nil), targets...)
	sort.Float64s(ts)

	out := &layer.Layer{EPSG: dissolved.EPSG}
	var cum geom.Polygon
	next := 0
	for _, t := range ts {
		var batch []geom.Polygon
		for next < len(recs) && levels.Key(recs[next].Level) <= levels.Key(t) {
			batch = append(batch, recs[next].Geometry)
			next++
		}
		if len(batch) > 0 {
			cum = geometry.Union(cum, geometry.UnionAll(batch))
		}
		if geometry.Empty(cum) {
			continue
		}
		out.Records = append(out.Records, layer.Record{
			Level:    levels.Round(t),
			Geometry: cum,
			Area:     geometry.Area(cum),
		})
	}
	return out
}
