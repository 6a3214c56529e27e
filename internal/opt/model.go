// Package opt defines the optimizer capability used by the controllers and
// constraint builders: named variables with bounds, linear constraints, a
// quadratic objective, and a solve that reports a [Status].
//
// A [Problem] records everything a caller declares and hands the whole
// model to a [Backend] on Optimize. Backends live in subpackages.
package opt

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Model is the capability every optimizer backend exposes.
type Model interface {
	Name() string
	AddVar(name string, kind VarKind, lb, ub float64) (Var, error)
	SetBounds(v Var, lb, ub float64) error
	AddConstr(name string, lhs LinExpr, sense Sense, rhs float64) error
	SetObjective(obj QuadExpr, sense ObjSense) error
	Optimize(ctx context.Context) error
	Status() Status
	Value(v Var) (float64, error)
}

// Env creates models. One Env may hand out many independent models.
type Env interface {
	NewModel(name string) (Model, error)
}

// Backend solves a recorded problem. Solve returns an error only when the
// solver could not be invoked; an infeasible or interrupted solve is a
// Status.
type Backend interface {
	Solve(ctx context.Context, p *Problem) (Result, error)
}

// Result is what a backend reports for one solve. Values is indexed by
// variable position and only meaningful when Status is StatusOptimal.
type Result struct {
	Status    Status
	Values    []float64
	Objective float64
}

// Variable is a declared decision variable.
type Variable struct {
	Name  string
	Kind  VarKind
	Lower float64
	Upper float64
}

// Constraint is a declared linear constraint Expr (sense) RHS. The stored
// Expr is canonical and has no constant.
type Constraint struct {
	Name  string
	Expr  LinExpr
	Sense Sense
	RHS   float64
}

// Objective is the declared objective.
type Objective struct {
	Expr  QuadExpr
	Sense ObjSense
}

type env struct {
	backend Backend
}

// NewEnv returns an Env whose models solve with backend.
func NewEnv(backend Backend) Env {
	return &env{backend: backend}
}

func (e *env) NewModel(name string) (Model, error) {
	return NewProblem(name, e.backend), nil
}

// Problem is the recorded model. It implements [Model].
type Problem struct {
	name    string
	backend Backend

	vars     []Variable
	constrs  []Constraint
	names    map[string]struct{}
	obj      Objective
	status   Status
	values   []float64
	objValue float64
	elapsed  time.Duration
}

// NewProblem returns an empty model solved by backend.
func NewProblem(name string, backend Backend) *Problem {
	return &Problem{
		name:    name,
		backend: backend,
		names:   make(map[string]struct{}),
	}
}

func (p *Problem) Name() string { return p.name }

func (p *Problem) claim(name string) error {
	if _, ok := p.names[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	p.names[name] = struct{}{}
	return nil
}

func checkBounds(kind VarKind, lb, ub float64) (float64, float64, error) {
	if math.IsNaN(lb) || math.IsNaN(ub) || lb > ub {
		return 0, 0, fmt.Errorf("%w: [%g, %g]", ErrInvalidBounds, lb, ub)
	}
	if kind == Binary {
		lb, ub = math.Max(lb, 0), math.Min(ub, 1)
		if lb > ub {
			return 0, 0, fmt.Errorf("%w: binary domain [%g, %g]", ErrInvalidBounds, lb, ub)
		}
	}
	return lb, ub, nil
}

func (p *Problem) AddVar(name string, kind VarKind, lb, ub float64) (Var, error) {
	if name == "" {
		name = fmt.Sprintf("v%d", len(p.vars))
	}
	lb, ub, err := checkBounds(kind, lb, ub)
	if err != nil {
		return Var{}, fmt.Errorf("var %s: %w", name, err)
	}
	if err := p.claim(name); err != nil {
		return Var{}, err
	}
	p.vars = append(p.vars, Variable{Name: name, Kind: kind, Lower: lb, Upper: ub})
	p.invalidate()
	return varAt(len(p.vars) - 1), nil
}

func (p *Problem) SetBounds(v Var, lb, ub float64) error {
	if err := p.check(v); err != nil {
		return err
	}
	vr := &p.vars[v.Index()]
	lb, ub, err := checkBounds(vr.Kind, lb, ub)
	if err != nil {
		return fmt.Errorf("var %s: %w", vr.Name, err)
	}
	vr.Lower, vr.Upper = lb, ub
	p.invalidate()
	return nil
}

func (p *Problem) AddConstr(name string, lhs LinExpr, sense Sense, rhs float64) error {
	if name == "" {
		name = fmt.Sprintf("c%d", len(p.constrs))
	}
	for _, t := range lhs.Terms {
		if err := p.check(t.Var); err != nil {
			return fmt.Errorf("constraint %s: %w", name, err)
		}
	}
	if math.IsNaN(rhs) {
		return fmt.Errorf("constraint %s: rhs is NaN", name)
	}
	if err := p.claim(name); err != nil {
		return err
	}
	expr := lhs.Canonical()
	p.constrs = append(p.constrs, Constraint{
		Name:  name,
		Expr:  LinExpr{Terms: expr.Terms},
		Sense: sense,
		RHS:   rhs - expr.Constant,
	})
	p.invalidate()
	return nil
}

func (p *Problem) SetObjective(obj QuadExpr, sense ObjSense) error {
	for _, t := range obj.Lin.Terms {
		if err := p.check(t.Var); err != nil {
			return fmt.Errorf("objective: %w", err)
		}
	}
	for _, t := range obj.Quad {
		if err := p.check(t.I); err != nil {
			return fmt.Errorf("objective: %w", err)
		}
		if err := p.check(t.J); err != nil {
			return fmt.Errorf("objective: %w", err)
		}
	}
	p.obj = Objective{
		Expr:  QuadExpr{Quad: append([]QuadTerm(nil), obj.Quad...), Lin: obj.Lin.Canonical()},
		Sense: sense,
	}
	p.invalidate()
	return nil
}

// Optimize hands the model to the backend. A returned error means the
// backend could not run; the outcome of a run is reported by Status.
func (p *Problem) Optimize(ctx context.Context) error {
	if p.backend == nil {
		return ErrNoBackend
	}
	p.invalidate()
	start := time.Now()
	res, err := p.backend.Solve(ctx, p)
	p.elapsed = time.Since(start)
	if err != nil {
		return fmt.Errorf("optimize %s: %w", p.name, err)
	}
	p.status = res.Status
	if res.Status == StatusOptimal {
		if len(res.Values) != len(p.vars) {
			p.status = StatusNumeric
			return fmt.Errorf("optimize %s: backend returned %d values for %d variables", p.name, len(res.Values), len(p.vars))
		}
		p.values = make([]float64, len(res.Values))
		copy(p.values, res.Values)
		p.objValue = res.Objective
	}
	return nil
}

func (p *Problem) invalidate() {
	p.status = StatusNotSolved
	p.values = nil
	p.objValue = 0
}

func (p *Problem) Status() Status { return p.status }

func (p *Problem) Value(v Var) (float64, error) {
	if err := p.check(v); err != nil {
		return 0, err
	}
	if p.values == nil {
		return 0, fmt.Errorf("%w: status %s", ErrNoSolution, p.status)
	}
	return p.values[v.Index()], nil
}

// ObjectiveValue returns the objective at the current solution.
func (p *Problem) ObjectiveValue() (float64, error) {
	if p.values == nil {
		return 0, fmt.Errorf("%w: status %s", ErrNoSolution, p.status)
	}
	return p.objValue, nil
}

// Elapsed is the wall time spent in the last backend call.
func (p *Problem) Elapsed() time.Duration { return p.elapsed }

func (p *Problem) check(v Var) error {
	if !v.Valid() || v.Index() >= len(p.vars) {
		return fmt.Errorf("%w: index %d", ErrUnknownVar, v.Index())
	}
	return nil
}

// Vars returns the declared variables in declaration order.
func (p *Problem) Vars() []Variable { return append([]Variable(nil), p.vars...) }

// Constraints returns the declared constraints in declaration order.
func (p *Problem) Constraints() []Constraint { return append([]Constraint(nil), p.constrs...) }

// Objective returns the declared objective.
func (p *Problem) Objective() Objective { return p.obj }

// NumVars returns the number of declared variables.
func (p *Problem) NumVars() int { return len(p.vars) }

// NumConstrs returns the number of declared constraints.
func (p *Problem) NumConstrs() int { return len(p.constrs) }

// VarName returns the declared name of v.
func (p *Problem) VarName(v Var) (string, error) {
	if err := p.check(v); err != nil {
		return "", err
	}
	return p.vars[v.Index()].Name, nil
}

// Constraint looks up a constraint by name.
func (p *Problem) Constraint(name string) (Constraint, bool) {
	for _, c := range p.constrs {
		if c.Name == name {
			return c, true
		}
	}
	return Constraint{}, false
}
