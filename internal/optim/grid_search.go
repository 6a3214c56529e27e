// Package optim tunes run parameters by exhaustive search.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/san-kum/mpcsim/internal/experiment"
	"github.com/san-kum/mpcsim/internal/sim"
)

var ErrNoCandidates = errors.New("optim: no candidate could be built")

// BuildFunc returns a set-up experiment for one grid point.
type BuildFunc func(params map[string]float64) (*experiment.Experiment, error)

// Candidate is one evaluated grid point.
type Candidate struct {
	Params map[string]float64
	Score  float64
	Result *sim.Result
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	limit      int
	score      func() sim.Metric
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// SetLimit caps concurrent runs; 0 keeps the ensemble default.
func (g *GridSearch) SetLimit(n int) { g.limit = n }

// SetScore attaches a fresh metric to every candidate so all grid points are
// ranked with the same weights. It is added last, so a score named like a
// default metric replaces that metric's reported value.
func (g *GridSearch) SetScore(fn func() sim.Metric) { g.score = fn }

// Points enumerates the grid in row-major order.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.collect(0, make(map[string]float64), &out)
	return out
}

func (g *GridSearch) collect(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.collect(depth+1, newParams, out)
	}
}

// Search runs every buildable grid point concurrently and returns the point
// with the smallest value of metricName. Points that fail to build are
// skipped; a failing run aborts the search. All candidates must share the
// initial state and step count of the first one.
func (g *GridSearch) Search(ctx context.Context, build BuildFunc, metricName string) (map[string]float64, float64, error) {
	cands, err := g.Evaluate(ctx, build, metricName)
	if err != nil {
		return nil, math.Inf(1), err
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Score < best.Score {
			best = c
		}
	}
	return best.Params, best.Score, nil
}

// Evaluate scores every buildable grid point.
func (g *GridSearch) Evaluate(ctx context.Context, build BuildFunc, metricName string) ([]Candidate, error) {
	var (
		exps   []*experiment.Experiment
		params []map[string]float64
	)
	for _, p := range g.Points() {
		exp, err := build(p)
		if err != nil {
			log.Debug().Err(err).Interface("params", p).Msg("skipping grid point")
			continue
		}
		if exp.GetSimulator() == nil {
			if err := exp.Setup(); err != nil {
				log.Debug().Err(err).Interface("params", p).Msg("skipping grid point")
				continue
			}
		}
		if g.score != nil {
			exp.GetSimulator().AddMetric(g.score())
		}
		exps = append(exps, exp)
		params = append(params, p)
	}
	if len(exps) == 0 {
		return nil, ErrNoCandidates
	}

	ens := sim.NewEnsemble(func(i int) (*sim.Simulator, error) {
		return exps[i].GetSimulator(), nil
	}, len(exps))
	ens.SetLimit(g.limit)

	first := exps[0]
	results, err := ens.Run(ctx, first.Config().InitialState, first.SimConfig())
	if err != nil {
		return nil, err
	}

	cands := make([]Candidate, len(results))
	for i, res := range results {
		val, ok := res.Metrics[metricName]
		if !ok {
			return nil, fmt.Errorf("optim: metric %q not reported", metricName)
		}
		cands[i] = Candidate{Params: params[i], Score: val, Result: res}
	}
	return cands, nil
}
