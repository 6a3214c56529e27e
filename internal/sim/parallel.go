package sim

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Build constructs the simulator for run i. Every run gets its own policy
// and plant so no state is shared between goroutines.
type Build func(i int) (*Simulator, error)

// Ensemble runs independent simulations concurrently.
type Ensemble struct {
	build   Build
	numRuns int
	limit   int
}

func NewEnsemble(build Build, numRuns int) *Ensemble {
	return &Ensemble{build: build, numRuns: numRuns, limit: runtime.GOMAXPROCS(0)}
}

// SetLimit caps how many runs execute at once.
func (e *Ensemble) SetLimit(n int) {
	if n > 0 {
		e.limit = n
	}
}

// Run executes every run from x0. Results are indexed like the runs; the
// first error cancels the rest.
func (e *Ensemble) Run(ctx context.Context, x0 float64, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.numRuns)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i := 0; i < e.numRuns; i++ {
		g.Go(func() error {
			sim, err := e.build(i)
			if err != nil {
				return err
			}
			res, err := sim.Run(ctx, x0, cfg)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
