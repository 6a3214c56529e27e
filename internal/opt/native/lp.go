package native

import (
	"context"
	"errors"
	"math"

	"github.com/san-kum/mpcsim/internal/opt"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

func (b *Backend) linear(ctx context.Context, p *problem) (opt.Result, error) {
	x, status, err := b.simplex(ctx, p, p.c)
	if err != nil || status != opt.StatusOptimal {
		return opt.Result{Status: status}, err
	}
	return opt.Result{Status: opt.StatusOptimal, Values: x, Objective: p.objective(x)}, nil
}

// simplex minimizes c'x over the feasible set of p. Variables that appear
// in no row and have no finite bound are dropped before conversion, since
// gonum rejects all-zero columns.
func (b *Backend) simplex(ctx context.Context, p *problem, c []float64) ([]float64, opt.Status, error) {
	if err := interrupted(ctx); err != nil {
		return nil, opt.StatusNotSolved, err
	}

	used := make([]bool, p.n)
	mark := func(rows []row) {
		for _, r := range rows {
			for j, a := range r.coef {
				if a != 0 {
					used[j] = true
				}
			}
		}
	}
	mark(p.eq)
	mark(p.le)

	x := make([]float64, p.n)
	var cols []int
	for j := range used {
		if !math.IsInf(p.lb[j], -1) || !math.IsInf(p.ub[j], 1) {
			used[j] = true
		}
		if !used[j] {
			if c[j] != 0 {
				return nil, opt.StatusUnbounded, nil
			}
			continue
		}
		cols = append(cols, j)
	}

	var eqRows, leRows []row
	for _, r := range p.eq {
		rr := restrict(r, cols)
		if rr.zero() {
			if math.Abs(rr.rhs) > b.tol {
				return nil, opt.StatusInfeasible, nil
			}
			continue
		}
		eqRows = append(eqRows, rr)
	}
	for _, r := range p.le {
		rr := restrict(r, cols)
		if rr.zero() {
			if rr.rhs < -b.tol {
				return nil, opt.StatusInfeasible, nil
			}
			continue
		}
		leRows = append(leRows, rr)
	}
	for k, j := range cols {
		if !math.IsInf(p.ub[j], 1) {
			leRows = append(leRows, unit(len(cols), k, 1, p.ub[j]))
		}
		if !math.IsInf(p.lb[j], -1) {
			leRows = append(leRows, unit(len(cols), k, -1, -p.lb[j]))
		}
	}
	if len(cols) == 0 {
		return x, opt.StatusOptimal, nil
	}

	cc := make([]float64, len(cols))
	for k, j := range cols {
		cc[k] = c[j]
	}

	var g, a mat.Matrix
	var h, rhs []float64
	if len(leRows) > 0 {
		g, h = stack(leRows)
	}
	if len(eqRows) > 0 {
		a, rhs = stack(eqRows)
	}
	if g == nil && a == nil {
		for k := range cc {
			if cc[k] != 0 {
				return nil, opt.StatusUnbounded, nil
			}
		}
		return x, opt.StatusOptimal, nil
	}

	cNew, aNew, bNew := lp.Convert(cc, g, h, a, rhs)
	if nr, nc := aNew.Dims(); nr > nc {
		return nil, opt.StatusNumeric, nil
	}
	_, optX, err := lp.Simplex(cNew, aNew, bNew, b.tol, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return nil, opt.StatusInfeasible, nil
	case errors.Is(err, lp.ErrUnbounded):
		return nil, opt.StatusUnbounded, nil
	case err != nil:
		return nil, opt.StatusNumeric, nil
	}

	// Convert splits each variable into x+ - x-.
	for k, j := range cols {
		x[j] = optX[k] - optX[len(cols)+k]
	}
	return x, opt.StatusOptimal, nil
}

func restrict(r row, cols []int) row {
	out := row{coef: make([]float64, len(cols)), rhs: r.rhs}
	for k, j := range cols {
		out.coef[k] = r.coef[j]
	}
	return out
}

func (r row) zero() bool {
	for _, a := range r.coef {
		if a != 0 {
			return false
		}
	}
	return true
}

func unit(n, k int, sign, rhs float64) row {
	r := row{coef: make([]float64, n), rhs: rhs}
	r.coef[k] = sign
	return r
}

func stack(rows []row) (*mat.Dense, []float64) {
	n := len(rows[0].coef)
	m := mat.NewDense(len(rows), n, nil)
	rhs := make([]float64, len(rows))
	for i, r := range rows {
		m.SetRow(i, r.coef)
		rhs[i] = r.rhs
	}
	return m, rhs
}
