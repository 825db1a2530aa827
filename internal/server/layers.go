package server

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/crossborder-kde/internal/aggregate"
	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/layer"
	"github.com/sells-group/crossborder-kde/internal/model"
	"github.com/sells-group/crossborder-kde/internal/store"
)

func (s *Server) pairLayer(w http.ResponseWriter, r *http.Request) {
	pair, err := model.ParsePair(chi.URLParam(r, "pair"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	p, err := s.paramsFrom(r.URL.Query())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	l, err := s.files.LoadPair(r.Context(), pair, p)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	s.writeLayer(w, r, l)
}

func (s *Server) aggregateLayer(w http.ResponseWriter, r *http.Request) {
	mode, err := aggregate.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	p, err := s.paramsFrom(r.URL.Query())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	l, err := s.files.LoadAggregate(r.Context(), p, mode)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	s.writeLayer(w, r, l)
}

// paramsFrom applies the signature overrides of a query to the server
// defaults: bandwidth, kernel, metric and movement_limit_km ("no" turns the
// limit off).
func (s *Server) paramsFrom(q url.Values) (model.Params, error) {
	p := s.params
	if v := q.Get("bandwidth"); v != "" {
		bw, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, eris.Wrapf(model.ErrConfiguration, "server: invalid bandwidth %q", v)
		}
		p.Bandwidth = bw
	}
	if v := q.Get("kernel"); v != "" {
		p.Kernel = model.Kernel(strings.ToLower(v))
	}
	if v := q.Get("metric"); v != "" {
		p.Metric = model.Metric(strings.ToLower(v))
	}
	if v := q.Get("movement_limit_km"); v != "" {
		if v == "no" {
			p.LimitMovement = false
		} else {
			km, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return p, eris.Wrapf(model.ErrConfiguration, "server: invalid movement limit %q", v)
			}
			p.LimitMovement = true
			p.MovementLimitKM = km
		}
	}
	return p, p.Validate()
}

// writeLayer encodes l as a GeoJSON FeatureCollection in WGS84, or in the
// layer's own coordinate system with ?native=true.
func (s *Server) writeLayer(w http.ResponseWriter, r *http.Request, l *layer.Layer) {
	native := r.URL.Query().Get("native") == "true"
	fc, err := s.featureCollection(l, native)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		writeErr(w, r, eris.Wrap(err, "server: encode geojson"))
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) featureCollection(l *layer.Layer, native bool) (*geojson.FeatureCollection, error) {
	srid := l.EPSG
	var to geometry.Transform = geometry.Identity
	if !native && l.EPSG != geometry.WGS84 {
		t, err := geometry.NewTransform(l.EPSG, geometry.WGS84)
		if err != nil {
			return nil, err
		}
		to, srid = t, geometry.WGS84
	}

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, l.Len())}
	for i, rec := range l.Records {
		g, err := geometry.TransformPolygon(rec.Geometry, to)
		if err != nil {
			return nil, eris.Wrapf(err, "server: reproject record %d", i)
		}
		mp, err := geometry.ToMultiPolygon(g, srid)
		if err != nil {
			return nil, err
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       strconv.Itoa(i),
			Geometry: mp,
			Properties: map[string]interface{}{
				store.ColLevel:   rec.Level,
				store.ColLabel:   s.catalog.Label(rec.Level),
				store.ColCountry: rec.Country,
				store.ColName:    rec.Name,
				store.ColArea:    rec.Area,
			},
		})
	}
	return fc, nil
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		Status:    model.RunStatus(r.URL.Query().Get("status")),
		Signature: r.URL.Query().Get("signature"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	runs, err := s.ledger.ListRuns(r.Context(), filter)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	run, err := s.ledger.GetRun(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	pairs, err := s.ledger.ListPairs(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "pairs": pairs})
}
