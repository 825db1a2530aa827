package geometry

import (
	"math"

	"github.com/rotisserie/eris"
)

// laea is an ellipsoidal Lambert azimuthal equal-area projection (oblique
// aspect). Geographic input and output are longitude/latitude in degrees.
type laea struct {
	a, e, e2     float64
	lon0, lat0   float64 // degrees
	x0, y0       float64
	qp           float64
	sinB0, cosB0 float64
	rq, d        float64
}

func newLAEA(a, invF, lat0, lon0, x0, y0 float64) *laea {
	f := 1 / invF
	e2 := 2*f - f*f
	l := &laea{a: a, e: math.Sqrt(e2), e2: e2, lon0: lon0, lat0: lat0, x0: x0, y0: y0}

	phi0 := lat0 * math.Pi / 180
	l.qp = l.q(math.Pi / 2)
	b0 := math.Asin(l.q(phi0) / l.qp)
	l.sinB0, l.cosB0 = math.Sin(b0), math.Cos(b0)
	l.rq = a * math.Sqrt(l.qp/2)
	sinPhi0 := math.Sin(phi0)
	l.d = a * (math.Cos(phi0) / math.Sqrt(1-e2*sinPhi0*sinPhi0)) / (l.rq * l.cosB0)
	return l
}

// etrsLAEA is EPSG:3035, ETRS89 / LAEA Europe.
var etrsLAEA = newLAEA(6378137, 298.257222101, 52, 10, 4321000, 3210000)

func (l *laea) q(phi float64) float64 {
	s := math.Sin(phi)
	es := l.e * s
	return (1 - l.e2) * (s/(1-es*es) - math.Log((1-es)/(1+es))/(2*l.e))
}

func (l *laea) forward(lon, lat float64) (float64, float64, error) {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.Abs(lat) > 90 {
		return math.NaN(), math.NaN(), eris.Errorf("geometry: laea: invalid coordinate (%g, %g)", lon, lat)
	}
	q := l.q(lat * math.Pi / 180)
	sinB := math.Max(-1, math.Min(1, q/l.qp))
	cosB := math.Sqrt(1 - sinB*sinB)
	dl := (lon - l.lon0) * math.Pi / 180
	denom := 1 + l.sinB0*sinB + l.cosB0*cosB*math.Cos(dl)
	if denom <= 1e-12 {
		return math.NaN(), math.NaN(), eris.Errorf("geometry: laea: antipode of the projection centre (%g, %g)", lon, lat)
	}
	b := l.rq * math.Sqrt(2/denom)
	x := l.x0 + b*l.d*cosB*math.Sin(dl)
	y := l.y0 + (b/l.d)*(l.cosB0*sinB-l.sinB0*cosB*math.Cos(dl))
	return x, y, nil
}

func (l *laea) inverse(x, y float64) (float64, float64, error) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.NaN(), math.NaN(), eris.Errorf("geometry: laea: invalid coordinate (%g, %g)", x, y)
	}
	dx, dy := x-l.x0, y-l.y0
	rho := math.Hypot(dx/l.d, l.d*dy)
	if rho < 1e-9 {
		return l.lon0, l.lat0, nil
	}
	if rho > 2*l.rq {
		return math.NaN(), math.NaN(), eris.Errorf("geometry: laea: (%g, %g) is outside the projection", x, y)
	}
	c := 2 * math.Asin(rho/(2*l.rq))
	sinC, cosC := math.Sin(c), math.Cos(c)
	beta := math.Asin(cosC*l.sinB0 + l.d*dy*sinC*l.cosB0/rho)
	lam := l.lon0*math.Pi/180 + math.Atan2(dx*sinC, l.d*rho*l.cosB0*cosC-l.d*l.d*dy*l.sinB0*sinC)

	e2, e4 := l.e2, l.e2*l.e2
	e6 := e4 * e2
	phi := beta +
		(e2/3+31*e4/180+517*e6/5040)*math.Sin(2*beta) +
		(23*e4/360+251*e6/3780)*math.Sin(4*beta) +
		(761*e6/45360)*math.Sin(6*beta)
	return normalizeLon(lam * 180 / math.Pi), phi * 180 / math.Pi, nil
}

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
