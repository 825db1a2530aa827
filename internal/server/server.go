// Package server hands persisted layers to map renderers over HTTP as
// GeoJSON.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/levels"
	"github.com/sells-group/crossborder-kde/internal/model"
	"github.com/sells-group/crossborder-kde/internal/store"
)

// Server serves the layers found under one store directory.
type Server struct {
	files   *store.Files
	params  model.Params
	catalog levels.Catalog
	ledger  store.Ledger
	origins []string
}

// Option configures a Server.
type Option func(*Server)

// WithLedger exposes the run ledger under /runs.
func WithLedger(l store.Ledger) Option {
	return func(s *Server) { s.ledger = l }
}

// WithAllowedOrigins sets the CORS origins. Defaults to every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// New builds a server over files. params are the defaults a request's
// query can override.
func New(files *store.Files, params model.Params, catalog levels.Catalog, opts ...Option) *Server {
	s := &Server{
		files:   files,
		params:  params,
		catalog: catalog,
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/levels", s.levels)
	r.Route("/layers", func(lr chi.Router) {
		lr.Get("/pairs/{pair}", s.pairLayer)
		lr.Get("/aggregate/{mode}", s.aggregateLayer)
	})
	if s.ledger != nil {
		r.Route("/runs", func(rr chi.Router) {
			rr.Get("/", s.listRuns)
			rr.Get("/{runID}", s.getRun)
		})
	}
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// levels lists the legend, densest level first. ?n=10 selects the coarse
// legend.
func (s *Server) levels(w http.ResponseWriter, r *http.Request) {
	catalog := s.catalog
	if v := r.URL.Query().Get("n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "n must be an integer")
			return
		}
		c, err := levels.New(n)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		catalog = c
	}
	writeJSON(w, http.StatusOK, catalog.Legend())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusOf maps the error taxonomy to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrDataAbsent):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConfiguration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("server: request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, err.Error())
}
