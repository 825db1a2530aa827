// Package layer holds leveled polygon layers: the clipped bands of one
// country, the merged layer of a pair, and the continental aggregate.
package layer

import (
	"sort"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crossborder-kde/internal/contour"
	"github.com/sells-group/crossborder-kde/internal/levels"
	"github.com/sells-group/crossborder-kde/internal/model"
)

// Record is one leveled polygon. Country and Name are empty in aggregated
// layers.
type Record struct {
	Level    float64
	Country  string
	Name     string
	Geometry geom.Polygon
	Area     float64
}

// Layer is a set of records sharing one coordinate system.
type Layer struct {
	EPSG    int
	Records []Record
}

// Len returns the number of records.
func (l *Layer) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Records)
}

// Levels returns the distinct levels present, ascending.
func (l *Layer) Levels() []float64 {
	seen := make(map[int]bool)
	var out []float64
	for _, r := range l.Records {
		k := levels.Key(r.Level)
		if !seen[k] {
			seen[k] = true
			out = append(out, levels.Round(r.Level))
		}
	}
	sort.Float64s(out)
	return out
}

// Countries returns the distinct country codes present, sorted.
func (l *Layer) Countries() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range l.Records {
		if r.Country != "" && !seen[r.Country] {
			seen[r.Country] = true
			out = append(out, r.Country)
		}
	}
	sort.Strings(out)
	return out
}

// TotalArea sums the area of every record.
func (l *Layer) TotalArea() float64 {
	var a float64
	for _, r := range l.Records {
		a += r.Area
	}
	return a
}

// FromBands turns unclipped bands into a layer of country, one record per
// band, empty bands included.
func FromBands(bands []contour.Band, country, name string) (*Layer, error) {
	l := &Layer{}
	for i, b := range bands {
		if i == 0 {
			l.EPSG = b.EPSG
		} else if b.EPSG != l.EPSG {
			return nil, eris.Wrapf(model.ErrGeometryInconsistency, "layer: band %d in epsg %d, want %d", i, b.EPSG, l.EPSG)
		}
		l.Records = append(l.Records, Record{
			Level:    b.Level,
			Country:  country,
			Name:     name,
			Geometry: b.Polygon(),
			Area:     b.Area,
		})
	}
	return l, nil
}

// Concat joins layers into one. Every non-empty layer must share the
// coordinate system of the first.
func Concat(layers ...*Layer) (*Layer, error) {
	out := &Layer{}
	for _, l := range layers {
		if l == nil {
			continue
		}
		if len(l.Records) == 0 {
			if out.EPSG == 0 {
				out.EPSG = l.EPSG
			}
			continue
		}
		if len(out.Records) == 0 {
			out.EPSG = l.EPSG
		} else if l.EPSG != out.EPSG {
			return nil, eris.Wrapf(model.ErrGeometryInconsistency, "layer: cannot combine epsg %d with %d", l.EPSG, out.EPSG)
		}
		out.Records = append(out.Records, l.Records...)
	}
	return out, nil
}

// Merge concatenates the clipped layers of the two countries of pair into
// the pair's merged layer.
func Merge(pair string, a, b *Layer) (*Layer, error) {
	if _, _, err := model.SplitPair(pair); err != nil {
		return nil, err
	}
	out, err := Concat(a, b)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: merge %s", pair)
	}
	return out, nil
}

// SortByLevelDesc orders records from the highest level to the lowest,
// then by country.
func (l *Layer) SortByLevelDesc() {
	sort.SliceStable(l.Records, func(i, j int) bool {
		ki, kj := levels.Key(l.Records[i].Level), levels.Key(l.Records[j].Level)
		if ki != kj {
			return ki > kj
		}
		return l.Records[i].Country < l.Records[j].Country
	})
}
