// Package kde fits two-dimensional kernel density estimates over projected
// movement endpoints and samples them on a regular grid.
package kde

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/model"
)

// Grid layout and threshold floor, in projected units and log-density.
const (
	Margin   = 50000.0
	CellSize = 2000.0
	Floor    = -30.0
)

// gaussianCutoff is the support radius of the gaussian kernel in
// bandwidths. Contributions beyond it are below exp(-40).
const gaussianCutoff = 9.0

// haversineSlack widens the projected prefilter radius for the great-circle
// metric, whose distances differ slightly from projected ones.
const haversineSlack = 1.25

// Options configure a fit.
type Options struct {
	Bandwidth float64
	Kernel    model.Kernel
	Metric    model.Metric

	// Inverse maps projected coordinates to longitude/latitude. Required
	// for the haversine metric.
	Inverse geometry.Transform
}

// Estimator is a fitted kernel density estimate.
type Estimator struct {
	opts    Options
	epsg    int
	points  []model.Point
	lonlat  map[[2]float64]model.Point
	tree    *kdtree.Tree
	radius  float64
	logNorm float64

	minX, minY, maxX, maxY float64
}

// Fit builds an estimator over ps.
func Fit(ps model.CountryPointSet, opts Options) (*Estimator, error) {
	if !(opts.Bandwidth > 0) || math.IsInf(opts.Bandwidth, 0) {
		return nil, eris.Wrapf(model.ErrConfiguration, "kde: bandwidth must be positive, got %v", opts.Bandwidth)
	}
	if _, err := model.ParseKernel(string(opts.Kernel)); err != nil {
		return nil, err
	}
	if _, err := model.ParseMetric(string(opts.Metric)); err != nil {
		return nil, err
	}
	if opts.Metric == model.MetricHaversine && opts.Inverse == nil {
		return nil, eris.Wrap(model.ErrConfiguration, "kde: haversine metric needs an inverse projection")
	}

	n := ps.Len()
	if n == 0 {
		return nil, eris.Wrapf(model.ErrDataAbsent, "kde: no points for %s in %s", ps.Country, ps.Pair)
	}
	if n < 2 {
		return nil, eris.Wrapf(model.ErrDegenerateInput, "kde: %d point for %s in %s", n, ps.Country, ps.Pair)
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range ps.Points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return nil, eris.Wrapf(model.ErrDegenerateInput, "kde: non-finite point %d for %s in %s", i, ps.Country, ps.Pair)
		}
		xs[i], ys[i] = p.X, p.Y
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return nil, eris.Wrapf(model.ErrDegenerateInput, "kde: zero spread for %s in %s", ps.Country, ps.Pair)
	}

	e := &Estimator{
		opts:   opts,
		epsg:   ps.EPSG,
		points: append([]model.Point(nil), ps.Points...),
	}
	e.minX, e.minY, e.maxX, e.maxY, _ = ps.Bounds()

	h := opts.Bandwidth
	switch opts.Kernel {
	case model.KernelEpanechnikov:
		e.radius = h
		e.logNorm = math.Log(2/(math.Pi*h*h)) - math.Log(float64(n))
	default:
		e.radius = gaussianCutoff * h
		e.logNorm = -math.Log(2*math.Pi*h*h) - math.Log(float64(n))
	}

	pts := make(kdtree.Points, n)
	for i, p := range ps.Points {
		pts[i] = kdtree.Point{p.X, p.Y}
	}
	e.tree = kdtree.New(pts, false)

	if opts.Metric == model.MetricHaversine {
		e.lonlat = make(map[[2]float64]model.Point, n)
		for i, p := range ps.Points {
			lon, lat, err := opts.Inverse(p.X, p.Y)
			if err != nil {
				return nil, eris.Wrapf(err, "kde: inverse project point %d", i)
			}
			e.lonlat[[2]float64{p.X, p.Y}] = model.Point{X: lon, Y: lat}
		}
	}
	return e, nil
}

// EPSG returns the coordinate system of the fitted points.
func (e *Estimator) EPSG() int { return e.epsg }

// LogDensity returns the log of the normalised kernel average at (x, y), or
// -Inf when no point lies within the kernel's support.
func (e *Estimator) LogDensity(x, y float64) float64 {
	terms := e.terms(x, y)
	if len(terms) == 0 {
		return math.Inf(-1)
	}
	if e.opts.Kernel == model.KernelEpanechnikov {
		return math.Log(floats.Sum(terms)) + e.logNorm
	}
	return floats.LogSumExp(terms) + e.logNorm
}

// terms returns one kernel term per point in support: log-kernel values for
// the gaussian kernel, plain weights for epanechnikov.
func (e *Estimator) terms(x, y float64) []float64 {
	h := e.opts.Bandwidth
	r := e.radius
	if e.opts.Metric == model.MetricHaversine {
		r *= haversineSlack
	}
	keep := kdtree.NewDistKeeper(r * r)
	e.tree.NearestSet(keep, kdtree.Point{x, y})

	var (
		lon, lat float64
		err      error
	)
	if e.opts.Metric == model.MetricHaversine {
		if lon, lat, err = e.opts.Inverse(x, y); err != nil {
			return nil
		}
	}

	terms := make([]float64, 0, len(keep.Heap))
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		d2 := c.Dist
		if e.opts.Metric == model.MetricHaversine {
			p := c.Comparable.(kdtree.Point)
			ll := e.lonlat[[2]float64{p[0], p[1]}]
			d := geometry.GreatCircleMeters(lon, lat, ll.X, ll.Y)
			d2 = d * d
		}
		if d2 > e.radius*e.radius {
			continue
		}
		u2 := d2 / (h * h)
		if e.opts.Kernel == model.KernelEpanechnikov {
			if u2 >= 1 {
				continue
			}
			terms = append(terms, 1-u2)
			continue
		}
		terms = append(terms, -0.5*u2)
	}
	return terms
}

// Grid samples the log-density on a regular lattice covering the point
// bounding box expanded by Margin on every side. Nodes start on the lower
// edge and step by CellSize while below the upper edge, which is never
// sampled itself.
func (e *Estimator) Grid() *Grid {
	x0 := e.minX - Margin
	y0 := e.minY - Margin
	nx := max(int(math.Ceil((e.maxX-e.minX+2*Margin)/CellSize)), 1)
	ny := max(int(math.Ceil((e.maxY-e.minY+2*Margin)/CellSize)), 1)

	g := &Grid{
		X0:     x0,
		Y0:     y0,
		Cell:   CellSize,
		NX:     nx,
		NY:     ny,
		Values: make([]float64, nx*ny),
		EPSG:   e.epsg,
	}
	for j := 0; j < ny; j++ {
		y := g.Y(j)
		for i := 0; i < nx; i++ {
			g.Values[j*nx+i] = e.LogDensity(g.X(i), y)
		}
	}
	zap.L().Debug("kde: grid sampled",
		zap.Int("nx", nx),
		zap.Int("ny", ny),
		zap.Int("points", len(e.points)),
		zap.Float64("max", g.Max()),
	)
	return g
}
