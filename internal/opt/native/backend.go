// Package native is a pure-Go optimizer backend built on gonum.
//
// Continuous problems with a quadratic objective are solved by a primal
// active-set method, linear ones by gonum's simplex, and problems with
// binary or integer variables by depth-first search with bound propagation.
// It targets the small, well-posed models built in this module rather than
// general large-scale programs.
package native

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/mpcsim/internal/opt"
	"gonum.org/v1/gonum/mat"
)

// ErrUnsupported is returned for models outside what the backend handles.
var ErrUnsupported = errors.New("native: unsupported model")

var errInterrupted = errors.New("native: interrupted")

const (
	defaultTol       = 1e-9
	defaultNodeLimit = 1_000_000
)

// Backend implements opt.Backend.
type Backend struct {
	timeLimit time.Duration
	maxIter   int
	nodeLimit int
	tol       float64
}

// Option configures a Backend.
type Option func(*Backend)

// WithTimeLimit bounds the wall time of one solve. A solve that runs out of
// time reports opt.StatusTimeLimit.
func WithTimeLimit(d time.Duration) Option {
	return func(b *Backend) { b.timeLimit = d }
}

// WithMaxIterations caps active-set iterations. Zero picks a limit from the
// problem size.
func WithMaxIterations(n int) Option {
	return func(b *Backend) { b.maxIter = n }
}

// WithNodeLimit caps the number of search nodes for integer models.
func WithNodeLimit(n int) Option {
	return func(b *Backend) { b.nodeLimit = n }
}

// WithTolerance sets the feasibility and optimality tolerance.
func WithTolerance(tol float64) Option {
	return func(b *Backend) { b.tol = tol }
}

// New returns a backend with the given options applied.
func New(opts ...Option) *Backend {
	b := &Backend{nodeLimit: defaultNodeLimit, tol: defaultTol}
	for _, o := range opts {
		o(b)
	}
	return b
}

// NewEnv returns an opt.Env backed by a new native backend.
func NewEnv(opts ...Option) opt.Env {
	return opt.NewEnv(New(opts...))
}

// Solve implements opt.Backend.
func (b *Backend) Solve(ctx context.Context, p *opt.Problem) (opt.Result, error) {
	if err := ctx.Err(); err != nil {
		return opt.Result{}, err
	}
	solveCtx := ctx
	if b.timeLimit > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, b.timeLimit)
		defer cancel()
	}

	prob, err := compile(p)
	if err != nil {
		return opt.Result{}, err
	}

	var res opt.Result
	if prob.hasInteger() {
		res, err = b.search(solveCtx, prob)
	} else {
		res, err = b.continuous(solveCtx, prob)
	}
	if errors.Is(err, errInterrupted) {
		if ctx.Err() != nil {
			return opt.Result{}, ctx.Err()
		}
		return opt.Result{Status: opt.StatusTimeLimit}, nil
	}
	if err != nil {
		return opt.Result{}, err
	}
	if res.Status == opt.StatusOptimal && p.Objective().Sense == opt.Maximize {
		res.Objective = -res.Objective
	}
	return res, nil
}

func interrupted(ctx context.Context) error {
	if ctx.Err() != nil {
		return errInterrupted
	}
	return nil
}

// row is a dense linear row a.x (<= or =) rhs.
type row struct {
	coef []float64
	rhs  float64
}

func (r row) dot(x []float64) float64 {
	s := 0.0
	for j, a := range r.coef {
		s += a * x[j]
	}
	return s
}

// problem is the compiled form: minimize 1/2 x'Hx + c'x + offset subject to
// eq rows, le rows and variable bounds.
type problem struct {
	n       int
	lb, ub  []float64
	integer []bool
	hess    *mat.Dense
	quad    bool
	c       []float64
	offset  float64
	eq      []row
	le      []row
}

func compile(p *opt.Problem) (*problem, error) {
	vars := p.Vars()
	n := len(vars)
	prob := &problem{
		n:       n,
		lb:      make([]float64, n),
		ub:      make([]float64, n),
		integer: make([]bool, n),
		c:       make([]float64, n),
	}
	for j, v := range vars {
		prob.lb[j], prob.ub[j] = v.Lower, v.Upper
		prob.integer[j] = v.Kind != opt.Continuous
	}

	for _, c := range p.Constraints() {
		r := row{coef: make([]float64, n), rhs: c.RHS}
		for _, t := range c.Expr.Terms {
			r.coef[t.Var.Index()] += t.Coef
		}
		switch c.Sense {
		case opt.Equal:
			prob.eq = append(prob.eq, r)
		case opt.LessEqual:
			prob.le = append(prob.le, r)
		case opt.GreaterEqual:
			prob.le = append(prob.le, negate(r))
		default:
			return nil, fmt.Errorf("%w: constraint %s has sense %d", ErrUnsupported, c.Name, c.Sense)
		}
	}

	obj := p.Objective()
	sign := 1.0
	if obj.Sense == opt.Maximize {
		sign = -1
	}
	for _, t := range obj.Expr.Lin.Terms {
		prob.c[t.Var.Index()] += sign * t.Coef
	}
	prob.offset = sign * obj.Expr.Lin.Constant

	if n > 0 && !obj.Expr.IsLinear() {
		prob.hess = mat.NewDense(n, n, nil)
		for _, t := range obj.Expr.Quad {
			i, j := t.I.Index(), t.J.Index()
			if i == j {
				prob.hess.Set(i, i, prob.hess.At(i, i)+2*sign*t.Coef)
				continue
			}
			prob.hess.Set(i, j, prob.hess.At(i, j)+sign*t.Coef)
			prob.hess.Set(j, i, prob.hess.At(j, i)+sign*t.Coef)
		}
		prob.quad = true
	}
	return prob, nil
}

func negate(r row) row {
	out := row{coef: make([]float64, len(r.coef)), rhs: -r.rhs}
	for j, a := range r.coef {
		out.coef[j] = -a
	}
	return out
}

func (p *problem) hasInteger() bool {
	for _, isInt := range p.integer {
		if isInt {
			return true
		}
	}
	return false
}

func (p *problem) objective(x []float64) float64 {
	s := p.offset
	for j, c := range p.c {
		s += c * x[j]
	}
	if p.quad {
		v := mat.NewVecDense(p.n, x)
		var hx mat.VecDense
		hx.MulVec(p.hess, v)
		s += 0.5 * mat.Dot(v, &hx)
	}
	return s
}

// withBounds returns a shallow copy of p with replaced variable bounds.
func (p *problem) withBounds(lb, ub []float64) *problem {
	cp := *p
	cp.lb, cp.ub = lb, ub
	return &cp
}

func (p *problem) feasible(x []float64, tol float64) bool {
	for j := range x {
		if x[j] < p.lb[j]-tol || x[j] > p.ub[j]+tol {
			return false
		}
	}
	for _, r := range p.eq {
		if math.Abs(r.dot(x)-r.rhs) > tol*(1+math.Abs(r.rhs)) {
			return false
		}
	}
	for _, r := range p.le {
		if r.dot(x) > r.rhs+tol*(1+math.Abs(r.rhs)) {
			return false
		}
	}
	return true
}

// continuous solves p with every variable treated as real.
func (b *Backend) continuous(ctx context.Context, p *problem) (opt.Result, error) {
	for j := range p.lb {
		if p.lb[j] > p.ub[j] {
			return opt.Result{Status: opt.StatusInfeasible}, nil
		}
	}
	if p.n == 0 {
		return b.empty(p), nil
	}
	if p.quad {
		return b.activeSet(ctx, p)
	}
	return b.linear(ctx, p)
}

func (b *Backend) empty(p *problem) opt.Result {
	if !p.feasible(nil, b.tol) {
		return opt.Result{Status: opt.StatusInfeasible}
	}
	return opt.Result{Status: opt.StatusOptimal, Values: []float64{}, Objective: p.offset}
}
