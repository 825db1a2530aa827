// Package clip cuts density bands to administrative borders.
package clip

import (
	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/boundary"
	"github.com/sells-group/crossborder-kde/internal/contour"
	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/layer"
	"github.com/sells-group/crossborder-kde/internal/model"
)

// Clip intersects every band with every region of sel and keeps the
// non-empty parts, one record per band and region, tagged with the
// region's country and display name. Geometries are never reprojected: a
// coordinate system mismatch wraps model.ErrGeometryInconsistency.
func Clip(bands []contour.Band, sel boundary.Selection) (*layer.Layer, error) {
	out := &layer.Layer{EPSG: sel.EPSG}
	for i, b := range bands {
		if b.EPSG != sel.EPSG {
			return nil, eris.Wrapf(model.ErrGeometryInconsistency,
				"clip: band %d in epsg %d, border %s in epsg %d", i, b.EPSG, model.BoundaryKey(sel.Pair, sel.Country), sel.EPSG)
		}
		if b.Empty() {
			continue
		}
		out.Records = append(out.Records, intersect(b.Level, b.Polygon(), sel.Regions)...)
	}
	zap.L().Debug("clip: bands clipped",
		zap.String("pair", sel.Pair),
		zap.String("country", sel.Country),
		zap.Int("bands", len(bands)),
		zap.Int("records", len(out.Records)),
	)
	return out, nil
}

// ClipLayer clips an existing layer against sel again. Clipping an
// already clipped layer against the same border leaves it unchanged.
func ClipLayer(l *layer.Layer, sel boundary.Selection) (*layer.Layer, error) {
	if l.EPSG != sel.EPSG {
		return nil, eris.Wrapf(model.ErrGeometryInconsistency,
			"clip: layer in epsg %d, border %s in epsg %d", l.EPSG, model.BoundaryKey(sel.Pair, sel.Country), sel.EPSG)
	}
	out := &layer.Layer{EPSG: sel.EPSG}
	for _, r := range l.Records {
		out.Records = append(out.Records, intersect(r.Level, r.Geometry, sel.Regions)...)
	}
	return out, nil
}

func intersect(level float64, g geom.Polygon, regions []boundary.Region) []layer.Record {
	if geometry.Empty(g) {
		return nil
	}
	var out []layer.Record
	for _, reg := range regions {
		part := geometry.Intersect(g, reg.Geometry)
		if geometry.Empty(part) {
			continue
		}
		out = append(out, layer.Record{
			Level:    level,
			Country:  reg.Country,
			Name:     reg.Name,
			Geometry: part,
			Area:     geometry.Area(part),
		})
	}
	return out
}
