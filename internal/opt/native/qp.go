package native

import (
	"context"
	"math"

	"github.com/san-kum/mpcsim/internal/opt"
	"gonum.org/v1/gonum/mat"
)

// activeSet minimizes a convex quadratic with a primal active-set method.
// Bounds become inequality rows, fixed variables become equalities.
func (b *Backend) activeSet(ctx context.Context, p *problem) (opt.Result, error) {
	eq := append([]row(nil), p.eq...)
	ineq := append([]row(nil), p.le...)
	for j := 0; j < p.n; j++ {
		switch {
		case p.lb[j] == p.ub[j]:
			eq = append(eq, unit(p.n, j, 1, p.lb[j]))
		default:
			if !math.IsInf(p.ub[j], 1) {
				ineq = append(ineq, unit(p.n, j, 1, p.ub[j]))
			}
			if !math.IsInf(p.lb[j], -1) {
				ineq = append(ineq, unit(p.n, j, -1, -p.lb[j]))
			}
		}
	}

	x, status, err := b.startPoint(ctx, p, eq, ineq)
	if err != nil || status != opt.StatusOptimal {
		return opt.Result{Status: status}, err
	}

	maxIter := b.maxIter
	if maxIter <= 0 {
		maxIter = 10*(p.n+len(ineq)) + 100
	}

	var work []int
	inWork := make([]bool, len(ineq))
	for iter := 0; iter < maxIter; iter++ {
		if err := interrupted(ctx); err != nil {
			return opt.Result{}, err
		}

		rows := append([]row(nil), eq...)
		for _, i := range work {
			rows = append(rows, ineq[i])
		}
		step, lambda, err := solveKKT(p.hess, rows, p.gradient(x))
		if err != nil {
			return opt.Result{Status: opt.StatusNumeric}, nil
		}

		if infNorm(step) <= b.tol*(1+infNorm(x)) {
			drop, most := -1, -b.tol
			for k := range work {
				if l := lambda[len(eq)+k]; l < most {
					drop, most = k, l
				}
			}
			if drop < 0 {
				for j := range x {
					x[j] = math.Max(p.lb[j], math.Min(p.ub[j], x[j]))
				}
				return opt.Result{Status: opt.StatusOptimal, Values: x, Objective: p.objective(x)}, nil
			}
			inWork[work[drop]] = false
			work = append(work[:drop], work[drop+1:]...)
			continue
		}

		alpha, block := 1.0, -1
		for i, r := range ineq {
			if inWork[i] {
				continue
			}
			ap := r.dot(step)
			if ap <= b.tol {
				continue
			}
			if ratio := (r.rhs - r.dot(x)) / ap; ratio < alpha {
				alpha, block = math.Max(ratio, 0), i
			}
		}
		for j := range x {
			x[j] += alpha * step[j]
		}
		if block >= 0 {
			work = append(work, block)
			inWork[block] = true
		}
	}
	return opt.Result{Status: opt.StatusIterationLimit}, nil
}

// startPoint finds a feasible point: the projection of the clamped origin
// onto the equalities when that satisfies the inequalities, otherwise a
// simplex phase one.
func (b *Backend) startPoint(ctx context.Context, p *problem, eq, ineq []row) ([]float64, opt.Status, error) {
	x := make([]float64, p.n)
	for j := range x {
		x[j] = math.Max(p.lb[j], math.Min(p.ub[j], 0))
	}
	if len(eq) > 0 {
		if y, ok := project(eq, x); ok {
			x = y
		}
	}
	if satisfied(eq, ineq, x, b.tol) {
		return x, opt.StatusOptimal, nil
	}
	return b.simplex(ctx, p, make([]float64, p.n))
}

// project returns the point closest to x on {y : Ay = b}.
func project(eq []row, x []float64) ([]float64, bool) {
	a, rhs := stack(eq)
	xv := mat.NewVecDense(len(x), append([]float64(nil), x...))

	var ax mat.VecDense
	ax.MulVec(a, xv)
	resid := mat.NewVecDense(len(rhs), nil)
	resid.SubVec(mat.NewVecDense(len(rhs), rhs), &ax)

	var aat mat.Dense
	aat.Mul(a, a.T())
	var y mat.VecDense
	if err := y.SolveVec(&aat, resid); err != nil {
		return nil, false
	}
	var corr mat.VecDense
	corr.MulVec(a.T(), &y)
	xv.AddVec(xv, &corr)
	return xv.RawVector().Data, true
}

func satisfied(eq, ineq []row, x []float64, tol float64) bool {
	for _, r := range eq {
		if math.Abs(r.dot(x)-r.rhs) > tol*(1+math.Abs(r.rhs)) {
			return false
		}
	}
	for _, r := range ineq {
		if r.dot(x) > r.rhs+tol*(1+math.Abs(r.rhs)) {
			return false
		}
	}
	return true
}

// solveKKT solves [H A'; A 0][p; l] = [-g; 0].
func solveKKT(h *mat.Dense, rows []row, g []float64) ([]float64, []float64, error) {
	n, m := len(g), len(rows)
	k := mat.NewDense(n+m, n+m, nil)
	k.Slice(0, n, 0, n).(*mat.Dense).Copy(h)
	for i, r := range rows {
		for j, a := range r.coef {
			if a != 0 {
				k.Set(n+i, j, a)
				k.Set(j, n+i, a)
			}
		}
	}
	rhs := mat.NewVecDense(n+m, nil)
	for j, v := range g {
		rhs.SetVec(j, -v)
	}
	var sol mat.VecDense
	if err := sol.SolveVec(k, rhs); err != nil {
		// Free variables with zero curvature make K singular; take the
		// minimum-norm solution, which leaves them where they are.
		var svd mat.SVD
		if !svd.Factorize(k, mat.SVDThin) {
			return nil, nil, err
		}
		rank := svd.Rank(kktRcond)
		if rank == 0 {
			return nil, nil, err
		}
		sol.Reset()
		svd.SolveVecTo(&sol, rhs, rank)
		var resid mat.VecDense
		resid.MulVec(k, &sol)
		resid.SubVec(&resid, rhs)
		if infNorm(resid.RawVector().Data) > kktResidTol*(1+infNorm(rhs.RawVector().Data)) {
			return nil, nil, err
		}
	}
	out := sol.RawVector().Data
	return out[:n], out[n:], nil
}

const (
	kktRcond    = 1e-12
	kktResidTol = 1e-8
)

func (p *problem) gradient(x []float64) []float64 {
	var hx mat.VecDense
	hx.MulVec(p.hess, mat.NewVecDense(p.n, x))
	g := make([]float64, p.n)
	for j := range g {
		g[j] = hx.AtVec(j) + p.c[j]
	}
	return g
}

func infNorm(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		m = math.Max(m, math.Abs(x))
	}
	return m
}
