// Package geometry wraps the polygon set operations, coordinate transforms
// and encodings the density pipeline needs.
package geometry

import (
	"math"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crossborder-kde/internal/model"
)

// WGS84 is the EPSG code of geographic longitude/latitude.
const WGS84 = 4326

// projDefs maps supported EPSG codes to proj4 definitions.
var projDefs = map[int]string{
	4326:  "+proj=longlat +datum=WGS84 +no_defs",
	3035:  "+proj=laea +lat_0=52 +lon_0=10 +x_0=4321000 +y_0=3210000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	3857:  "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	32632: "+proj=utm +zone=32 +datum=WGS84 +units=m +no_defs",
	32633: "+proj=utm +zone=33 +datum=WGS84 +units=m +no_defs",
	25832: "+proj=utm +zone=32 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	25833: "+proj=utm +zone=33 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
}

// ProjDef returns the proj4 definition of epsg.
func ProjDef(epsg int) (string, error) {
	def, ok := projDefs[epsg]
	if !ok {
		return "", eris.Wrapf(model.ErrConfiguration, "geometry: unsupported epsg %d", epsg)
	}
	return def, nil
}

// Supported reports whether epsg has a known definition.
func Supported(epsg int) bool {
	_, ok := projDefs[epsg]
	return ok
}

// Transform converts a coordinate from one CRS to another.
type Transform func(x, y float64) (float64, float64, error)

// Identity leaves coordinates untouched.
func Identity(x, y float64) (float64, float64, error) { return x, y, nil }

// checkLon, checkLat is a point every supported CRS can represent. NewTransform
// runs it through each new transform so an unusable CRS fails at construction.
const checkLon, checkLat = 10.0, 52.0

// NewTransform returns the transform from EPSG src to EPSG dst. Geographic
// coordinates are longitude/latitude in degrees. A CRS that cannot be
// transformed is a configuration error.
func NewTransform(src, dst int) (Transform, error) {
	if src == dst {
		if !Supported(src) {
			return nil, eris.Wrapf(model.ErrConfiguration, "geometry: unsupported epsg %d", src)
		}
		return Identity, nil
	}
	toGeo, err := geographic(src, false)
	if err != nil {
		return nil, err
	}
	fromGeo, err := geographic(dst, true)
	if err != nil {
		return nil, err
	}
	t := Transform(func(x, y float64) (float64, float64, error) {
		lon, lat, err := toGeo(x, y)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "geometry: transform %d -> %d", src, dst)
		}
		ox, oy, err := fromGeo(lon, lat)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "geometry: transform %d -> %d", src, dst)
		}
		if math.IsNaN(ox) || math.IsNaN(oy) || math.IsInf(ox, 0) || math.IsInf(oy, 0) {
			return 0, 0, eris.Errorf("geometry: transform %d -> %d: (%g, %g) has no finite image", src, dst, x, y)
		}
		return ox, oy, nil
	})

	// The check point is expressed in src first, so both legs are exercised.
	toSrc, err := geographic(src, true)
	if err != nil {
		return nil, err
	}
	sx, sy, err := toSrc(checkLon, checkLat)
	if err == nil {
		_, _, err = t(sx, sy)
	}
	if err != nil {
		return nil, eris.Wrapf(model.ErrConfiguration, "geometry: transform %d -> %d unusable: %v", src, dst, err)
	}
	return t, nil
}

// geographic returns the transform of epsg from (forward) or to geographic
// longitude/latitude. ETRS89 and WGS84 are treated as the same datum.
func geographic(epsg int, forward bool) (Transform, error) {
	def, err := ProjDef(epsg)
	if err != nil {
		return nil, err
	}
	switch epsg {
	case WGS84:
		return Identity, nil
	case 3035:
		if forward {
			return etrsLAEA.forward, nil
		}
		return etrsLAEA.inverse, nil
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, eris.Wrapf(model.ErrConfiguration, "geometry: parse epsg %d: %v", epsg, err)
	}
	geo, err := proj.Parse(projDefs[WGS84])
	if err != nil {
		return nil, eris.Wrapf(model.ErrConfiguration, "geometry: parse epsg %d: %v", WGS84, err)
	}
	var t proj.Transformer
	if forward {
		t, err = geo.NewTransform(sr)
	} else {
		t, err = sr.NewTransform(geo)
	}
	if err != nil {
		return nil, eris.Wrapf(model.ErrConfiguration, "geometry: transform epsg %d: %v", epsg, err)
	}
	return Transform(t), nil
}
