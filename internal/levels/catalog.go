// Package levels defines the fixed, ordered vocabulary of density levels and
// their legend labels.
//
// A level names the position of a band among evenly spaced log-density
// thresholds. It is not a calibrated probability mass.
package levels

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crossborder-kde/internal/model"
)

// Supported legend sizes.
const (
	Fine   = 20 // 19 bands at 5% steps
	Coarse = 10 // 9 bands at 10% steps
)

// Catalog is an ascending list of levels with one legend label each. The
// largest level is always 1.0 and marks the innermost, densest band.
type Catalog struct {
	Levels []float64
	Labels []string
}

// Entry is one legend row.
type Entry struct {
	Level float64 `json:"level" yaml:"level"`
	Label string  `json:"label" yaml:"label"`
}

// New builds the catalog for a legend of n levels. n must be 10 or 20; the
// catalog holds n-1 values stepping by 1/n up to 1.0.
func New(n int) (Catalog, error) {
	if n != Fine && n != Coarse {
		return Catalog{}, eris.Wrapf(model.ErrConfiguration, "levels: unsupported number of levels %d (want %d or %d)", n, Coarse, Fine)
	}
	c := Catalog{
		Levels: make([]float64, 0, n-1),
		Labels: make([]string, 0, n-1),
	}
	for k := 2; k <= n; k++ {
		v := Round(float64(k) / float64(n))
		c.Levels = append(c.Levels, v)
		c.Labels = append(c.Labels, fmt.Sprintf("%d%%", Key(v)))
	}
	return c, nil
}

// MustNew is New for the two supported sizes; it panics otherwise.
func MustNew(n int) Catalog {
	c, err := New(n)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of levels, which is also the number of bands an
// extraction produces.
func (c Catalog) Len() int { return len(c.Levels) }

// Thresholds returns how many density thresholds a contouring run needs.
func (c Catalog) Thresholds() int { return len(c.Levels) + 1 }

// Index returns the position of level in the catalog.
func (c Catalog) Index(level float64) (int, bool) {
	k := Key(level)
	for i, v := range c.Levels {
		if Key(v) == k {
			return i, true
		}
	}
	return 0, false
}

// Label returns the legend label for level, or a percentage rendering of
// the value when level is not part of the catalog.
func (c Catalog) Label(level float64) string {
	if i, ok := c.Index(level); ok {
		return c.Labels[i]
	}
	return fmt.Sprintf("%d%%", Key(level))
}

// Legend returns the catalog from densest to sparsest, the order a legend
// lists it in.
func (c Catalog) Legend() []Entry {
	out := make([]Entry, 0, len(c.Levels))
	for i := len(c.Levels) - 1; i >= 0; i-- {
		out = append(out, Entry{Level: c.Levels[i], Label: c.Labels[i]})
	}
	return out
}

// Key maps a level to an integer in hundredths so levels read back from
// files compare exactly.
func Key(level float64) int {
	return int(math.Round(level * 100))
}

// Round snaps a level to two decimals.
func Round(level float64) float64 {
	return float64(Key(level)) / 100
}
