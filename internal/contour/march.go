package contour

import (
	"math"

	"github.com/ctessum/geom"

	"github.com/sells-group/crossborder-kde/internal/kde"
)

// field is a density grid padded by one node on every side with a value
// below every threshold, so each superlevel set is bounded inside it and
// every traced ring closes.
type field struct {
	x0, y0 float64
	cell   float64
	nx, ny int
	z      []float64
}

func newField(g *kde.Grid, sentinel float64) *field {
	f := &field{
		x0:   g.X0 - g.Cell,
		y0:   g.Y0 - g.Cell,
		cell: g.Cell,
		nx:   g.NX + 2,
		ny:   g.NY + 2,
	}
	f.z = make([]float64, f.nx*f.ny)
	for k := range f.z {
		f.z[k] = sentinel
	}
	for j := 0; j < g.NY; j++ {
		for i := 0; i < g.NX; i++ {
			v := g.At(i, j)
			if math.IsNaN(v) || v < sentinel {
				v = sentinel
			}
			f.z[(j+1)*f.nx+i+1] = v
		}
	}
	return f
}

func (f *field) at(i, j int) float64 { return f.z[j*f.nx+i] }

// edge names a lattice edge: the horizontal edge from node (i, j) to
// (i+1, j) or the vertical edge from (i, j) to (i, j+1).
type edge struct {
	horiz bool
	i, j  int
}

// cellEdges returns the bottom, right, top and left edges of cell (i, j).
// Edge k runs between corner k and corner k+1, corners counter-clockwise
// from the bottom left.
func cellEdges(i, j int) [4]edge {
	return [4]edge{
		{horiz: true, i: i, j: j},
		{horiz: false, i: i + 1, j: j},
		{horiz: true, i: i, j: j + 1},
		{horiz: false, i: i, j: j},
	}
}

// crossing returns where the contour at t crosses e by linear interpolation.
func (f *field) crossing(e edge, t float64) geom.Point {
	a := f.at(e.i, e.j)
	x := f.x0 + float64(e.i)*f.cell
	y := f.y0 + float64(e.j)*f.cell
	var b float64
	if e.horiz {
		b = f.at(e.i+1, e.j)
	} else {
		b = f.at(e.i, e.j+1)
	}
	frac := 0.5
	if b != a {
		frac = (t - a) / (b - a)
	}
	if e.horiz {
		return geom.Point{X: x + frac*f.cell, Y: y}
	}
	return geom.Point{X: x, Y: y + frac*f.cell}
}

// segments returns the directed segments of the contour at t in cell
// (i, j) as (from, to) edge pairs. The superlevel set {z >= t} lies to the
// left of every segment, so outer rings run counter-clockwise and holes
// clockwise. Saddles are resolved by the mean of the four corners.
func (f *field) segments(i, j int, t float64) [][2]edge {
	z := [4]float64{f.at(i, j), f.at(i+1, j), f.at(i+1, j+1), f.at(i, j+1)}
	var in [4]bool
	count := 0
	for k, v := range z {
		if v >= t {
			in[k] = true
			count++
		}
	}
	if count == 0 || count == 4 {
		return nil
	}
	e := cellEdges(i, j)
	prev := func(k int) int { return (k + 3) % 4 }

	switch count {
	case 1:
		for c := range 4 {
			if in[c] {
				return [][2]edge{{e[c], e[prev(c)]}}
			}
		}
	case 3:
		for c := range 4 {
			if !in[c] {
				return [][2]edge{{e[prev(c)], e[c]}}
			}
		}
	}

	// Two corners inside.
	for c := range 4 {
		n := (c + 1) % 4
		if in[c] && in[n] {
			return [][2]edge{{e[n], e[prev(c)]}}
		}
	}

	// Diagonal saddle.
	centre := (z[0] + z[1] + z[2] + z[3]) / 4
	var out [][2]edge
	for c := range 4 {
		switch {
		case centre >= t && !in[c]:
			out = append(out, [2]edge{e[prev(c)], e[c]})
		case centre < t && in[c]:
			out = append(out, [2]edge{e[c], e[prev(c)]})
		}
	}
	return out
}

// rings traces every closed contour ring of {z >= t}. Rings come back in
// scan order of their first segment, bottom row first.
func (f *field) rings(t float64) []geom.Path {
	next := make(map[edge]edge)
	var starts []edge
	for j := 0; j < f.ny-1; j++ {
		for i := 0; i < f.nx-1; i++ {
			for _, s := range f.segments(i, j, t) {
				next[s[0]] = s[1]
				starts = append(starts, s[0])
			}
		}
	}

	seen := make(map[edge]bool, len(next))
	var out []geom.Path
	for _, start := range starts {
		if seen[start] {
			continue
		}
		var ring geom.Path
		cur := start
		for !seen[cur] {
			seen[cur] = true
			ring = append(ring, f.crossing(cur, t))
			nxt, ok := next[cur]
			if !ok {
				break
			}
			cur = nxt
		}
		if len(ring) < 3 {
			continue
		}
		ring = append(ring, ring[0])
		out = append(out, ring)
	}
	return out
}
