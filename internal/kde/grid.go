package kde

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/crossborder-kde/internal/model"
)

// Grid is a row-major lattice of log-density values. Node (i, j) sits at
// (X0 + i*Cell, Y0 + j*Cell).
type Grid struct {
	X0, Y0 float64
	Cell   float64
	NX, NY int
	Values []float64
	EPSG   int
}

// X returns the x coordinate of column i.
func (g *Grid) X(i int) float64 { return g.X0 + float64(i)*g.Cell }

// Y returns the y coordinate of row j.
func (g *Grid) Y(j int) float64 { return g.Y0 + float64(j)*g.Cell }

// At returns the value at column i, row j.
func (g *Grid) At(i, j int) float64 { return g.Values[j*g.NX+i] }

// Max returns the largest finite value, or -Inf when there is none.
func (g *Grid) Max() float64 {
	m := math.Inf(-1)
	for _, v := range g.Values {
		if !math.IsInf(v, 0) && !math.IsNaN(v) && v > m {
			m = v
		}
	}
	return m
}

// Thresholds returns n evenly spaced log-density values from Floor up to
// the grid maximum. The list is strictly increasing.
func Thresholds(g *Grid, n int) ([]float64, error) {
	if n < 2 {
		return nil, eris.Wrapf(model.ErrConfiguration, "kde: need at least 2 thresholds, got %d", n)
	}
	hi := g.Max()
	if math.IsInf(hi, -1) || hi <= Floor {
		return nil, eris.Wrapf(model.ErrDegenerateInput, "kde: max log-density %v not above floor %v", hi, Floor)
	}
	return floats.Span(make([]float64, n), Floor, hi), nil
}
