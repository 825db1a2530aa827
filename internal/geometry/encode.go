package geometry

import (
	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// ToMultiPolygon converts an even-odd polygon into an OGC multipolygon with
// explicit outer rings and holes.
func ToMultiPolygon(p geom.Polygon, srid int) (*gogeom.MultiPolygon, error) {
	mp := gogeom.NewMultiPolygon(gogeom.XY).SetSRID(srid)
	for _, c := range Nest(clean(p)) {
		poly := gogeom.NewPolygon(gogeom.XY)
		if err := poly.Push(linearRing(c.Outer)); err != nil {
			return nil, eris.Wrap(err, "geometry: push outer ring")
		}
		for _, h := range c.Holes {
			if err := poly.Push(linearRing(h)); err != nil {
				return nil, eris.Wrap(err, "geometry: push hole")
			}
		}
		if err := mp.Push(poly); err != nil {
			return nil, eris.Wrap(err, "geometry: push polygon")
		}
	}
	return mp, nil
}

// FromGeom converts a polygonal go-geom geometry into an even-odd polygon.
// Non-polygonal geometries are rejected.
func FromGeom(g gogeom.T) (geom.Polygon, error) {
	switch t := g.(type) {
	case nil:
		return nil, nil
	case *gogeom.Polygon:
		return fromPolygon(t), nil
	case *gogeom.MultiPolygon:
		var out geom.Polygon
		for i := 0; i < t.NumPolygons(); i++ {
			out = append(out, fromPolygon(t.Polygon(i))...)
		}
		return out, nil
	default:
		return nil, eris.Errorf("geometry: unsupported geometry type %T", g)
	}
}

// MarshalWKB encodes p as little-endian WKB multipolygon.
func MarshalWKB(p geom.Polygon) ([]byte, error) {
	mp, err := ToMultiPolygon(p, 0)
	if err != nil {
		return nil, err
	}
	data, err := wkb.Marshal(mp, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode wkb")
	}
	return data, nil
}

// UnmarshalWKB decodes a WKB polygon or multipolygon.
func UnmarshalWKB(data []byte) (geom.Polygon, error) {
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: decode wkb")
	}
	return FromGeom(g)
}

func fromPolygon(p *gogeom.Polygon) geom.Polygon {
	out := make(geom.Polygon, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		flat := p.LinearRing(i).FlatCoords()
		ring := make(geom.Path, 0, len(flat)/2)
		for j := 0; j+1 < len(flat); j += 2 {
			ring = append(ring, geom.Point{X: flat[j], Y: flat[j+1]})
		}
		out = append(out, closeRing(ring))
	}
	return out
}

func linearRing(r geom.Path) *gogeom.LinearRing {
	r = closeRing(r)
	flat := make([]float64, 0, len(r)*2)
	for _, pt := range r {
		flat = append(flat, pt.X, pt.Y)
	}
	return gogeom.NewLinearRingFlat(gogeom.XY, flat)
}
