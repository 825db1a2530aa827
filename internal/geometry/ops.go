package geometry

import (
	"math"

	"github.com/ctessum/geom"
)

// Polygons are handled as geom.Polygon: a flat list of closed rings under
// the even-odd rule, so one value can hold several disjoint parts with holes.

// Empty reports whether p covers no area.
func Empty(p geom.Polygon) bool {
	return len(p) == 0 || Area(p) == 0
}

// Area returns the planar area of p with holes subtracted.
func Area(p geom.Polygon) float64 {
	if len(p) == 0 {
		return 0
	}
	return math.Abs(p.Area())
}

// Intersect returns the part of a inside b.
func Intersect(a, b geom.Polygon) geom.Polygon {
	if Empty(a) || Empty(b) || !BoundsOverlap(a, b) {
		return nil
	}
	return clean(polygonOf(a.Intersection(b)))
}

// Difference returns the part of a outside b.
func Difference(a, b geom.Polygon) geom.Polygon {
	if Empty(a) {
		return nil
	}
	if Empty(b) || !BoundsOverlap(a, b) {
		return a
	}
	return clean(polygonOf(a.Difference(b)))
}

// Union returns the area covered by a or b.
func Union(a, b geom.Polygon) geom.Polygon {
	switch {
	case Empty(a):
		return clean(b)
	case Empty(b):
		return clean(a)
	}
	return clean(polygonOf(a.Union(b)))
}

// UnionAll unions ps pairwise in a balanced tree so each operation works on
// inputs of similar size.
func UnionAll(ps []geom.Polygon) geom.Polygon {
	switch len(ps) {
	case 0:
		return nil
	case 1:
		return clean(ps[0])
	}
	mid := len(ps) / 2
	return Union(UnionAll(ps[:mid]), UnionAll(ps[mid:]))
}

// Flatten joins the parts of a multipolygon into one even-odd polygon. The
// parts must not overlap.
func Flatten(mp geom.MultiPolygon) geom.Polygon {
	var out geom.Polygon
	for _, p := range mp {
		out = append(out, p...)
	}
	return out
}

// Rect returns the axis-aligned rectangle [minX,maxX]x[minY,maxY].
func Rect(minX, minY, maxX, maxY float64) geom.Polygon {
	return geom.Polygon{{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
		{X: minX, Y: minY},
	}}
}

// Bounds returns the bounding box of p. ok is false when p has no points.
func Bounds(p geom.Polygon) (minX, minY, maxX, maxY float64, ok bool) {
	first := true
	for _, r := range p {
		for _, pt := range r {
			if first {
				minX, minY, maxX, maxY = pt.X, pt.Y, pt.X, pt.Y
				first = false
				continue
			}
			minX = min(minX, pt.X)
			minY = min(minY, pt.Y)
			maxX = max(maxX, pt.X)
			maxY = max(maxY, pt.Y)
		}
	}
	return minX, minY, maxX, maxY, !first
}

// BoundsOverlap reports whether the bounding boxes of a and b intersect.
func BoundsOverlap(a, b geom.Polygon) bool {
	aMinX, aMinY, aMaxX, aMaxY, okA := Bounds(a)
	bMinX, bMinY, bMaxX, bMaxY, okB := Bounds(b)
	if !okA || !okB {
		return false
	}
	return aMinX <= bMaxX && bMinX <= aMaxX && aMinY <= bMaxY && bMinY <= aMaxY
}

// TransformPolygon applies t to every vertex of p.
func TransformPolygon(p geom.Polygon, t Transform) (geom.Polygon, error) {
	out := make(geom.Polygon, 0, len(p))
	for _, r := range p {
		ring := make(geom.Path, len(r))
		for i, pt := range r {
			x, y, err := t(pt.X, pt.Y)
			if err != nil {
				return nil, err
			}
			ring[i] = geom.Point{X: x, Y: y}
		}
		out = append(out, ring)
	}
	return out, nil
}

// polygonOf returns the rings of a set operation result as one polygon.
func polygonOf(g geom.Polygonal) geom.Polygon {
	if p, ok := g.(geom.Polygon); ok {
		return p
	}
	var out geom.Polygon
	for _, p := range g.Polygons() {
		out = append(out, p...)
	}
	return out
}

// clean drops rings with fewer than three distinct vertices and closes the
// remaining ones.
func clean(p geom.Polygon) geom.Polygon {
	if len(p) == 0 {
		return nil
	}
	out := make(geom.Polygon, 0, len(p))
	for _, r := range p {
		r = closeRing(r)
		if len(r) < 4 || ringArea(r) == 0 {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func closeRing(r geom.Path) geom.Path {
	if len(r) == 0 || r[0] == r[len(r)-1] {
		return r
	}
	closed := make(geom.Path, len(r), len(r)+1)
	copy(closed, r)
	return append(closed, r[0])
}
