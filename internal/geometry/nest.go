package geometry

import (
	"math"
	"sort"

	"github.com/ctessum/geom"
)

// Contour is one outer ring with the rings nested directly inside it.
type Contour struct {
	Outer geom.Path
	Holes []geom.Path
}

// Nest groups non-crossing rings into contours. A ring enclosed by an even
// number of other rings is an outer boundary; a ring enclosed by an odd
// number is a hole of its innermost enclosing ring. Contours come back in
// the order their outer rings appear in rings.
func Nest(rings []geom.Path) []Contour {
	n := len(rings)
	if n == 0 {
		return nil
	}
	areas := make([]float64, n)
	for i, r := range rings {
		areas[i] = math.Abs(ringArea(r))
	}
	// Larger rings first: a ring can only be enclosed by a larger one.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return areas[order[a]] > areas[order[b]] })

	parent := make([]int, n)
	depth := make([]int, n)
	for k, i := range order {
		parent[i] = -1
		// Search from the smallest enclosing candidate outwards.
		for m := k - 1; m >= 0; m-- {
			j := order[m]
			if areas[j] <= areas[i] {
				continue
			}
			if ringInside(rings[i], rings[j]) {
				parent[i] = j
				depth[i] = depth[j] + 1
				break
			}
		}
	}

	index := make(map[int]int)
	var out []Contour
	for i := range rings {
		if depth[i]%2 == 0 {
			index[i] = len(out)
			out = append(out, Contour{Outer: rings[i]})
		}
	}
	for i := range rings {
		if depth[i]%2 == 1 {
			c := index[parent[i]]
			out[c].Holes = append(out[c].Holes, rings[i])
		}
	}
	return out
}

// Polygon returns the contour as an even-odd polygon without subtracting
// anything: the outer ring followed by its holes.
func (c Contour) Polygon() geom.Polygon {
	p := geom.Polygon{c.Outer}
	return append(p, c.Holes...)
}

// ringInside reports whether inner lies inside outer. The rings must not
// cross; most vertices decide so that shared vertices do not.
func ringInside(inner, outer geom.Path) bool {
	in, total := 0, 0
	for _, p := range openRing(inner) {
		switch pointInRing(p, outer) {
		case 1:
			in++
			total++
		case -1:
			total++
		}
	}
	return total > 0 && in*2 > total
}

// pointInRing returns 1 when p is strictly inside r, -1 when strictly
// outside and 0 when it lies on the boundary.
func pointInRing(p geom.Point, r geom.Path) int {
	r = openRing(r)
	n := len(r)
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := r[i], r[j]
		if onSegment(p, a, b) {
			return 0
		}
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	if inside {
		return 1
	}
	return -1
}

func onSegment(p, a, b geom.Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if cross != 0 {
		return false
	}
	return p.X >= min(a.X, b.X) && p.X <= max(a.X, b.X) && p.Y >= min(a.Y, b.Y) && p.Y <= max(a.Y, b.Y)
}

// ringArea is the signed shoelace area; positive for counter-clockwise rings.
func ringArea(r geom.Path) float64 {
	r = openRing(r)
	var a float64
	for i := range r {
		j := (i + 1) % len(r)
		a += r[i].X*r[j].Y - r[j].X*r[i].Y
	}
	return a / 2
}

func openRing(r geom.Path) geom.Path {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}

// SignedArea returns the shoelace area of ring r: positive when the ring
// runs counter-clockwise.
func SignedArea(r geom.Path) float64 { return ringArea(r) }
