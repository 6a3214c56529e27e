// Package mpc implements receding-horizon control of a scalar linear
// system: formulate a finite-horizon quadratic program from the current
// state, solve it through an opt.Model, apply the first planned input and
// hold it until the next re-plan.
package mpc

import (
	"fmt"
	"math"

	"github.com/san-kum/mpcsim/internal/opt"
)

// Dynamics is the prediction model x[k+1] = A x[k] + B u[k] + C.
type Dynamics struct {
	A float64 `yaml:"a" mapstructure:"a" json:"a"`
	B float64 `yaml:"b" mapstructure:"b" json:"b"`
	C float64 `yaml:"c" mapstructure:"c" json:"c"`
}

func DefaultDynamics() Dynamics { return Dynamics{A: 0.9, B: 1} }

// Weights are the stage state weight Q, input weight R and terminal
// weight S.
type Weights struct {
	Q float64 `yaml:"q" mapstructure:"q" json:"q"`
	R float64 `yaml:"r" mapstructure:"r" json:"r"`
	S float64 `yaml:"s" mapstructure:"s" json:"s"`
}

func DefaultWeights() Weights { return Weights{Q: 100, R: 0.42, S: 0.01} }

// Bounds is the admissible input box.
type Bounds struct {
	Lower float64 `yaml:"lower" mapstructure:"lower" json:"lower"`
	Upper float64 `yaml:"upper" mapstructure:"upper" json:"upper"`
}

func DefaultBounds() Bounds { return Bounds{Lower: -1, Upper: 1} }

// HorizonProblem is everything needed to build one re-plan.
type HorizonProblem struct {
	Step         int
	Horizon      int
	InitialState float64
	Dynamics     Dynamics
	Weights      Weights
	Bounds       Bounds
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate checks the problem before any optimizer call.
func (p HorizonProblem) Validate() error {
	if p.Horizon < 1 {
		return fmt.Errorf("%w: horizon must be at least 1, got %d", ErrInconsistentDims, p.Horizon)
	}
	if !finite(p.InitialState) {
		return fmt.Errorf("%w: initial state %g", ErrParameterBounds, p.InitialState)
	}
	if !finite(p.Dynamics.A, p.Dynamics.B, p.Dynamics.C) {
		return fmt.Errorf("%w: dynamics %+v", ErrParameterBounds, p.Dynamics)
	}
	w := p.Weights
	if !finite(w.Q, w.R, w.S) || w.Q < 0 || w.R < 0 || w.S < 0 {
		return fmt.Errorf("%w: weights must be finite and non-negative, got %+v", ErrParameterBounds, w)
	}
	b := p.Bounds
	if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) || b.Lower > b.Upper {
		return fmt.Errorf("%w: input bounds [%g, %g]", ErrParameterBounds, b.Lower, b.Upper)
	}
	return nil
}

// Formulation is a HorizonProblem registered on a model.
type Formulation struct {
	Problem HorizonProblem
	Model   opt.Model

	// U holds Horizon input variables, X holds Horizon+2 state variables.
	// X[Horizon+1] only enters the terminal cost.
	U []opt.Var
	X []opt.Var

	InitialConstr  string
	DynamicsConstr []string
}

// Formulate registers p on a fresh model from env. It does not solve.
func Formulate(env opt.Env, p HorizonProblem) (*Formulation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m, err := env.NewModel(fmt.Sprintf("mpc_%d", p.Step))
	if err != nil {
		return nil, fmt.Errorf("new model: %w", err)
	}
	f := &Formulation{Problem: p, Model: m}

	f.U, err = series(m, "u", p.Step, p.Horizon, p.Bounds.Lower, p.Bounds.Upper)
	if err != nil {
		return nil, err
	}
	f.X, err = series(m, "x", p.Step, p.Horizon+2, math.Inf(-1), math.Inf(1))
	if err != nil {
		return nil, err
	}

	f.InitialConstr = fmt.Sprintf("init_{%d}", p.Step)
	if err := m.AddConstr(f.InitialConstr, opt.Sum(f.X[0]), opt.Equal, p.InitialState); err != nil {
		return nil, err
	}

	d := p.Dynamics
	for k := range f.U {
		name := fmt.Sprintf("ss_{%d,%d}", p.Step, k)
		lhs := opt.LinExpr{}.Add(f.X[k+1], 1).Add(f.X[k], -d.A).Add(f.U[k], -d.B)
		if err := m.AddConstr(name, lhs, opt.Equal, d.C); err != nil {
			return nil, err
		}
		f.DynamicsConstr = append(f.DynamicsConstr, name)
	}

	obj, err := objective(p.Weights, f.U, f.X)
	if err != nil {
		return nil, err
	}
	if err := m.SetObjective(obj, opt.Minimize); err != nil {
		return nil, err
	}
	return f, nil
}

func series(m opt.Model, prefix string, step, n int, lb, ub float64) ([]opt.Var, error) {
	vars := make([]opt.Var, n)
	for k := range vars {
		v, err := m.AddVar(fmt.Sprintf("%s_{%d,%d}", prefix, step, k), opt.Continuous, lb, ub)
		if err != nil {
			return nil, err
		}
		vars[k] = v
	}
	return vars, nil
}

// objective is sum_k Q x[k+1]^2 + R u[k]^2 plus S x[last]^2.
func objective(w Weights, u, x []opt.Var) (opt.QuadExpr, error) {
	if len(x) == 0 {
		return opt.QuadExpr{}, fmt.Errorf("%w: no state for terminal cost", ErrInconsistentDims)
	}
	if len(x) < len(u)+1 {
		return opt.QuadExpr{}, fmt.Errorf("%w: %d states for %d inputs", ErrInconsistentDims, len(x), len(u))
	}
	var obj opt.QuadExpr
	for k := range u {
		obj = obj.AddSquare(x[k+1], w.Q).AddSquare(u[k], w.R)
	}
	return obj.AddSquare(x[len(x)-1], w.S), nil
}

// Formulator builds re-plans with a fixed model, weights and bounds.
type Formulator struct {
	env      opt.Env
	horizon  int
	dynamics Dynamics
	weights  Weights
	bounds   Bounds
}

func NewFormulator(env opt.Env, horizon int, d Dynamics, w Weights, b Bounds) *Formulator {
	return &Formulator{env: env, horizon: horizon, dynamics: d, weights: w, bounds: b}
}

func (f *Formulator) Horizon() int { return f.horizon }

// Problem returns the HorizonProblem for state x0 at step.
func (f *Formulator) Problem(x0 float64, step int) HorizonProblem {
	return HorizonProblem{
		Step:         step,
		Horizon:      f.horizon,
		InitialState: x0,
		Dynamics:     f.dynamics,
		Weights:      f.weights,
		Bounds:       f.bounds,
	}
}

func (f *Formulator) Formulate(x0 float64, step int) (*Formulation, error) {
	return Formulate(f.env, f.Problem(x0, step))
}
