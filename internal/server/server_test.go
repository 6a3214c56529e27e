package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/mpcsim/internal/db"
	"github.com/san-kum/mpcsim/internal/metrics"
	"github.com/san-kum/mpcsim/internal/opt"
	"github.com/san-kum/mpcsim/internal/storage"
)

type fakeCatalog struct {
	entries []db.Entry
	limit   int
}

func (f *fakeCatalog) List(ctx context.Context, limit int) ([]db.Entry, error) {
	f.limit = limit
	return f.entries, nil
}

func (f *fakeCatalog) Get(ctx context.Context, id string) (db.Entry, error) {
	for _, e := range f.entries {
		if e.RunID == id {
			return e, nil
		}
	}
	return db.Entry{}, fmt.Errorf("%w: %s", db.ErrNotFound, id)
}

type fakeTrajectories map[string]*storage.Trajectory

func (f fakeTrajectories) LoadTrajectory(id string) (*storage.Trajectory, error) {
	if t, ok := f[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
}

func newTestHandler(t *testing.T) (http.Handler, *fakeCatalog, *prometheus.Registry) {
	t.Helper()
	cat := &fakeCatalog{entries: []db.Entry{{RunID: "mpc_1", Controller: "mpc", Steps: 100}}}
	traj := fakeTrajectories{"mpc_1": {States: []float64{1, 0.5, 0.2}, Applied: []float64{-0.5, -0.5}}}
	reg := prometheus.NewRegistry()
	return NewHandler(cat, traj, reg), cat, reg
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rr := get(h, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestListRuns(t *testing.T) {
	h, cat, _ := newTestHandler(t)
	rr := get(h, "/runs?limit=5")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, cat.limit)
	var entries []db.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "mpc_1", entries[0].RunID)

	assert.Equal(t, http.StatusBadRequest, get(h, "/runs?limit=abc").Code)
}

func TestGetRun(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rr := get(h, "/runs/mpc_1")
	assert.Equal(t, http.StatusOK, rr.Code)
	var entry db.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
	assert.Equal(t, 100, entry.Steps)

	assert.Equal(t, http.StatusNotFound, get(h, "/runs/missing").Code)
}

func TestTrajectoryAndPlot(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rr := get(h, "/runs/mpc_1/trajectory")
	assert.Equal(t, http.StatusOK, rr.Code)
	var traj storage.Trajectory
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &traj))
	assert.Len(t, traj.States, 3)

	rr = get(h, "/runs/mpc_1/plot.svg")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/svg+xml", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "<svg")

	assert.Equal(t, http.StatusNotFound, get(h, "/runs/missing/trajectory").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, reg := newTestHandler(t)
	c, err := metrics.NewSolverCollector(reg)
	require.NoError(t, err)
	c.ObserveSolve(opt.StatusOptimal, 0)
	c.ObserveFallback(10, opt.StatusInfeasible)

	rr := get(h, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `mpcsim_solves_total{status="optimal"} 1`), body)
	assert.Contains(t, body, "mpcsim_fallbacks_total 1")
}
