// Package server exposes the run catalog and solver metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/san-kum/mpcsim/internal/db"
	"github.com/san-kum/mpcsim/internal/export"
	"github.com/san-kum/mpcsim/internal/logging"
	"github.com/san-kum/mpcsim/internal/storage"
)

// Catalog lists stored runs.
type Catalog interface {
	List(ctx context.Context, limit int) ([]db.Entry, error)
	Get(ctx context.Context, runID string) (db.Entry, error)
}

// Trajectories loads the per-step history of a stored run.
type Trajectories interface {
	LoadTrajectory(runID string) (*storage.Trajectory, error)
}

type Server struct {
	Catalog      Catalog
	Trajectories Trajectories
}

// NewHandler routes /health, /metrics and the /runs endpoints. gatherer
// backs /metrics; nil uses the default registry.
func NewHandler(cat Catalog, traj Trajectories, gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{Catalog: cat, Trajectories: traj}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Get("/{id}", s.getRun)
		r.Get("/{id}/trajectory", s.getTrajectory)
		r.Get("/{id}/plot.svg", s.plotRun)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		l := logging.Component("server")
		l.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l := logging.Component("server")
		l.Warn().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, db.ErrNotFound) || errors.Is(err, storage.ErrRunNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid limit %q", v)})
			return
		}
		limit = n
	}
	entries, err := s.Catalog.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	entry, err := s.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) getTrajectory(w http.ResponseWriter, r *http.Request) {
	traj, err := s.Trajectories.LoadTrajectory(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, traj)
}

func (s *Server) plotRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	traj, err := s.Trajectories.LoadTrajectory(id)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := export.TrajectoryPlot(id, traj.States, traj.Applied)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	if err := export.WriteTo(w, p, "svg"); err != nil {
		l := logging.Component("server")
		l.Warn().Err(err).Str("run", id).Msg("write plot")
	}
}

// ListenAndServe serves h on addr until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	l := logging.Component("server")
	errc := make(chan error, 1)
	go func() {
		l.Info().Str("addr", addr).Msg("serving")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
