package mpc

import (
	"fmt"

	"github.com/san-kum/mpcsim/internal/opt"
)

// Solution is the planned trajectory of one re-plan. U and X are empty
// unless Status is optimal.
type Solution struct {
	Status opt.Status
	U      []float64
	X      []float64
}

// First returns the input to apply now.
func (s Solution) First() (float64, bool) {
	if !s.Status.IsOptimal() || len(s.U) == 0 {
		return 0, false
	}
	return s.U[0], true
}

// Extract reads the planned trajectory from a solved formulation. A
// non-optimal status is not an error.
func Extract(f *Formulation, status opt.Status) (Solution, error) {
	sol := Solution{Status: status}
	if !status.IsOptimal() {
		return sol, nil
	}
	var err error
	if sol.U, err = values(f.Model, f.U); err != nil {
		return Solution{}, fmt.Errorf("extract inputs: %w", err)
	}
	if sol.X, err = values(f.Model, f.X); err != nil {
		return Solution{}, fmt.Errorf("extract states: %w", err)
	}
	return sol, nil
}

func values(m opt.Model, vars []opt.Var) ([]float64, error) {
	out := make([]float64, len(vars))
	for i, v := range vars {
		x, err := m.Value(v)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}
