package mobility

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/model"
)

// Extractor projects movement endpoints and groups them by country.
type Extractor struct {
	epsg    int
	limit   bool
	limitKM float64
	forward geometry.Transform
}

// NewExtractor builds an extractor projecting longitude/latitude to
// params.EPSG and applying the movement limit of params.
func NewExtractor(params model.Params) (*Extractor, error) {
	fwd, err := geometry.NewTransform(geometry.WGS84, params.EPSG)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		epsg:    params.EPSG,
		limit:   params.LimitMovement,
		limitKM: params.MovementLimitKM,
		forward: fwd,
	}, nil
}

// Extract returns the point set of country within pair: the start points
// of movements starting in country and the end points of movements ending
// there. With the movement limit on, movements longer than the limit are
// dropped; a missing distance is computed from the endpoints.
func (e *Extractor) Extract(records []model.MovementRecord, pair, country string) (model.CountryPointSet, error) {
	ps := model.CountryPointSet{Country: country, Pair: pair, EPSG: e.epsg}
	for _, r := range records {
		if r.Pair != pair {
			continue
		}
		if e.limit && distanceKM(r) > e.limitKM {
			continue
		}
		if r.StartCountry == country {
			if err := e.add(&ps, r.StartLon, r.StartLat); err != nil {
				return ps, err
			}
		}
		if r.EndCountry == country {
			if err := e.add(&ps, r.EndLon, r.EndLat); err != nil {
				return ps, err
			}
		}
	}
	return ps, nil
}

func (e *Extractor) add(ps *model.CountryPointSet, lon, lat float64) error {
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return nil
	}
	x, y, err := e.forward(lon, lat)
	if err != nil {
		return eris.Wrapf(model.ErrDegenerateInput, "mobility: project (%v, %v): %v", lon, lat, err)
	}
	ps.Points = append(ps.Points, model.Point{X: x, Y: y})
	return nil
}

// distanceKM returns the recorded movement distance, or the great-circle
// distance between the endpoints when none was recorded.
func distanceKM(r model.MovementRecord) float64 {
	if r.DistanceKM != nil && !math.IsNaN(*r.DistanceKM) {
		return *r.DistanceKM
	}
	return geometry.GreatCircleMeters(r.StartLon, r.StartLat, r.EndLon, r.EndLat) / 1000
}
