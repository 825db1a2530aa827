// Package boundary holds the administrative border dataset. It is loaded
// once per run and shared read-only by every pair.
package boundary

import (
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/model"
)

// Region is one border polygon. Key is the composite pair+country
// identifier, e.g. "AD_ES_AD" for the Andorran side of the AD_ES pair.
type Region struct {
	Key      string
	Country  string
	Name     string
	Geometry geom.Polygon
}

// Dataset indexes regions by composite key. It is never modified after
// NewDataset returns.
type Dataset struct {
	epsg    int
	regions []Region
	byKey   map[string][]int
	names   map[string]string
}

// NewDataset indexes regions, whose geometries are in epsg.
func NewDataset(epsg int, regions []Region) *Dataset {
	d := &Dataset{
		epsg:    epsg,
		regions: regions,
		byKey:   make(map[string][]int, len(regions)),
		names:   make(map[string]string),
	}
	for i, r := range regions {
		k := strings.ToUpper(r.Key)
		d.byKey[k] = append(d.byKey[k], i)
		if _, ok := d.names[r.Country]; !ok && r.Name != "" {
			d.names[r.Country] = r.Name
		}
	}
	return d
}

// EPSG returns the coordinate system of every region.
func (d *Dataset) EPSG() int { return d.epsg }

// Len returns the number of regions.
func (d *Dataset) Len() int { return len(d.regions) }

// Keys returns the distinct composite keys in sorted order.
func (d *Dataset) Keys() []string {
	keys := make([]string, 0, len(d.byKey))
	for k := range d.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pairs returns the canonical pair ids that have border rows for both of
// their countries.
func (d *Dataset) Pairs() []string {
	sides := make(map[string]int)
	for k := range d.byKey {
		i := strings.LastIndex(k, "_")
		if i <= 0 {
			continue
		}
		sides[k[:i]]++
	}
	var out []string
	for pair, n := range sides {
		if _, _, err := model.SplitPair(pair); err == nil && n >= 2 {
			out = append(out, pair)
		}
	}
	sort.Strings(out)
	return out
}

// Name returns the display name of country, or the code itself when the
// dataset has none.
func (d *Dataset) Name(country string) string {
	if n, ok := d.names[strings.ToUpper(country)]; ok {
		return n
	}
	return strings.ToUpper(country)
}

// Selection is the border of one country as analysed for one pair.
type Selection struct {
	Pair    string
	Country string
	EPSG    int
	Regions []Region
}

// Geometry returns the union of the selected regions.
func (s Selection) Geometry() geom.Polygon {
	parts := make([]geom.Polygon, len(s.Regions))
	for i, r := range s.Regions {
		parts[i] = r.Geometry
	}
	return geometry.UnionAll(parts)
}

// Select returns the regions stored under the composite key of pair and
// country. A missing key wraps model.ErrDataAbsent; there is no fallback to
// the bare country code.
func (d *Dataset) Select(pair, country string) (Selection, error) {
	key := model.BoundaryKey(pair, country)
	idx, ok := d.byKey[key]
	if !ok {
		return Selection{}, eris.Wrapf(model.ErrDataAbsent, "boundary: no border for key %s", key)
	}
	sel := Selection{
		Pair:    pair,
		Country: strings.ToUpper(strings.TrimSpace(country)),
		EPSG:    d.epsg,
		Regions: make([]Region, 0, len(idx)),
	}
	for _, i := range idx {
		sel.Regions = append(sel.Regions, d.regions[i])
	}
	return sel, nil
}
