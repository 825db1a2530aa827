// Package contour turns a log-density grid into ordered polygon bands, one
// per interval between consecutive thresholds.
package contour

import (
	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/kde"
	"github.com/sells-group/crossborder-kde/internal/levels"
	"github.com/sells-group/crossborder-kde/internal/model"
)

// Band is the region whose density lies between two consecutive thresholds.
// The densest band has no upper bound.
type Band struct {
	Level     float64
	Label     string
	Threshold float64
	Geometry  geom.MultiPolygon
	EPSG      int
	Area      float64
}

// Empty reports whether the band covers no area.
func (b Band) Empty() bool { return len(b.Geometry) == 0 }

// Polygon returns the band as a single even-odd polygon.
func (b Band) Polygon() geom.Polygon { return geometry.Flatten(b.Geometry) }

// Extract contours g at thresholds and returns one band per threshold
// interval, from the lowest density (outermost, smallest level) to the
// highest (innermost, level 1.0). Bands with no area are kept.
func Extract(g *kde.Grid, thresholds []float64, catalog levels.Catalog) ([]Band, error) {
	if len(thresholds) != catalog.Thresholds() {
		return nil, eris.Wrapf(model.ErrConfiguration,
			"contour: %d thresholds for %d levels, want %d", len(thresholds), catalog.Len(), catalog.Thresholds())
	}
	for i := 1; i < len(thresholds); i++ {
		if !(thresholds[i] > thresholds[i-1]) {
			return nil, eris.Wrapf(model.ErrConfiguration, "contour: thresholds not strictly increasing at %d", i)
		}
	}

	f := newField(g, thresholds[0]-1)
	n := catalog.Len()
	rings := make([][]geom.Path, n)
	for k := range n {
		rings[k] = f.rings(thresholds[k])
	}

	bands := make([]Band, n)
	for k := range n {
		set := rings[k]
		if k+1 < n {
			set = append(append([]geom.Path(nil), rings[k]...), rings[k+1]...)
		}
		mp := ResolveHoles(set)
		bands[k] = Band{
			Level:     catalog.Levels[k],
			Label:     catalog.Labels[k],
			Threshold: thresholds[k],
			Geometry:  mp,
			EPSG:      g.EPSG,
			Area:      area(mp),
		}
	}

	zap.L().Debug("contour: bands extracted",
		zap.Int("bands", len(bands)),
		zap.Int("epsg", g.EPSG),
	)
	return bands, nil
}

// ResolveHoles turns a set of non-crossing rings into one polygon part per
// contour: each outer ring with the rings nested directly inside it
// subtracted by polygon difference.
func ResolveHoles(rings []geom.Path) geom.MultiPolygon {
	var out geom.MultiPolygon
	for _, c := range geometry.Nest(rings) {
		p := geom.Polygon{c.Outer}
		for _, h := range c.Holes {
			p = geometry.Difference(p, geom.Polygon{h})
		}
		if geometry.Empty(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func area(mp geom.MultiPolygon) float64 {
	var a float64
	for _, p := range mp {
		a += geometry.Area(p)
	}
	return a
}
