package native

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/mpcsim/internal/opt"
)

// srow is a sparse row used during propagation.
type srow struct {
	idx []int
	val []float64
	rhs float64
	eq  bool
}

type searcher struct {
	b   *Backend
	ctx context.Context
	p   *problem

	rows          []srow
	hasContinuous bool
	feasibility   bool

	nodes     int
	best      []float64
	bestObj   float64
	found     bool
	limitHit  bool
	numeric   bool
	unbounded bool
}

// search enumerates integer assignments depth first. Each node fixes one
// variable to its upper value or excludes that value, then tightens
// domains through the linear rows.
func (b *Backend) search(ctx context.Context, p *problem) (opt.Result, error) {
	s := &searcher{b: b, ctx: ctx, p: p, feasibility: !p.quad}
	for j, c := range p.c {
		if c != 0 {
			s.feasibility = false
		}
		if !p.integer[j] {
			s.hasContinuous = true
		}
	}
	for _, r := range p.eq {
		s.rows = append(s.rows, sparse(r, true))
	}
	for _, r := range p.le {
		s.rows = append(s.rows, sparse(r, false))
	}

	lo := append([]float64(nil), p.lb...)
	hi := append([]float64(nil), p.ub...)
	for j, isInt := range p.integer {
		if isInt {
			lo[j] = math.Ceil(lo[j] - b.tol)
			hi[j] = math.Floor(hi[j] + b.tol)
		}
	}
	if !s.propagate(lo, hi) {
		return opt.Result{Status: opt.StatusInfeasible}, nil
	}
	for j, isInt := range p.integer {
		if isInt && (math.IsInf(lo[j], 0) || math.IsInf(hi[j], 0)) {
			return opt.Result{}, fmt.Errorf("%w: integer variable %d needs finite bounds", ErrUnsupported, j)
		}
	}

	if _, err := s.dfs(lo, hi); err != nil {
		return opt.Result{}, err
	}

	switch {
	case s.unbounded:
		return opt.Result{Status: opt.StatusUnbounded}, nil
	case s.limitHit:
		return opt.Result{Status: opt.StatusNodeLimit}, nil
	case s.found:
		return opt.Result{Status: opt.StatusOptimal, Values: s.best, Objective: s.bestObj}, nil
	case s.numeric:
		return opt.Result{Status: opt.StatusNumeric}, nil
	}
	return opt.Result{Status: opt.StatusInfeasible}, nil
}

func sparse(r row, eq bool) srow {
	out := srow{rhs: r.rhs, eq: eq}
	for j, a := range r.coef {
		if a != 0 {
			out.idx = append(out.idx, j)
			out.val = append(out.val, a)
		}
	}
	return out
}

// dfs returns true when the search should stop.
func (s *searcher) dfs(lo, hi []float64) (bool, error) {
	s.nodes++
	if s.nodes > s.b.nodeLimit {
		s.limitHit = true
		return true, nil
	}
	if s.nodes%256 == 0 {
		if err := interrupted(s.ctx); err != nil {
			return true, err
		}
	}
	if s.found && !s.p.quad && s.lowerBound(lo, hi) >= s.bestObj-s.b.tol {
		return false, nil
	}

	j := s.pick(lo, hi)
	if j < 0 {
		return s.leaf(lo, hi)
	}

	fixLo := append([]float64(nil), lo...)
	fixHi := append([]float64(nil), hi...)
	fixLo[j] = hi[j]
	if s.propagate(fixLo, fixHi) {
		if stop, err := s.dfs(fixLo, fixHi); stop || err != nil {
			return stop, err
		}
	}

	restLo := append([]float64(nil), lo...)
	restHi := append([]float64(nil), hi...)
	restHi[j] = hi[j] - 1
	if s.propagate(restLo, restHi) {
		return s.dfs(restLo, restHi)
	}
	return false, nil
}

// pick selects a free integer variable from the row with the fewest free
// integer variables, or -1 when every integer variable is fixed.
func (s *searcher) pick(lo, hi []float64) int {
	best, bestCount := -1, math.MaxInt
	for _, r := range s.rows {
		first, count := -1, 0
		for _, j := range r.idx {
			if s.p.integer[j] && lo[j] < hi[j] {
				if first < 0 {
					first = j
				}
				count++
			}
		}
		if count > 0 && count < bestCount {
			best, bestCount = first, count
			if count == 1 {
				break
			}
		}
	}
	if best >= 0 {
		return best
	}
	for j, isInt := range s.p.integer {
		if isInt && lo[j] < hi[j] {
			return j
		}
	}
	return -1
}

func (s *searcher) leaf(lo, hi []float64) (bool, error) {
	var x []float64
	var obj float64
	if s.hasContinuous {
		res, err := s.b.continuous(s.ctx, s.p.withBounds(lo, hi))
		if err != nil {
			return true, err
		}
		switch res.Status {
		case opt.StatusOptimal:
			x, obj = res.Values, res.Objective
		case opt.StatusUnbounded:
			s.unbounded = true
			return true, nil
		case opt.StatusInfeasible:
			return false, nil
		default:
			s.numeric = true
			return false, nil
		}
	} else {
		x = append([]float64(nil), lo...)
		if !s.p.feasible(x, s.b.tol) {
			return false, nil
		}
		obj = s.p.objective(x)
	}
	for j, isInt := range s.p.integer {
		if isInt {
			x[j] = lo[j]
		}
	}
	if !s.found || obj < s.bestObj-s.b.tol {
		s.best, s.bestObj, s.found = x, obj, true
	}
	return s.feasibility, nil
}

// lowerBound is a bound on a linear objective over the current box.
func (s *searcher) lowerBound(lo, hi []float64) float64 {
	bound := s.p.offset
	for j, c := range s.p.c {
		switch {
		case c > 0:
			bound += c * lo[j]
		case c < 0:
			bound += c * hi[j]
		}
	}
	if math.IsNaN(bound) {
		return math.Inf(-1)
	}
	return bound
}

// propagate tightens integer domains against every row until nothing
// changes. It returns false when a domain empties or a row cannot hold.
func (s *searcher) propagate(lo, hi []float64) bool {
	tol := s.b.tol
	for pass := 0; pass < 1000; pass++ {
		changed := false
		for _, r := range s.rows {
			minF, minInf, maxF, maxInf := activity(r, lo, hi)
			if minInf == 0 && minF > r.rhs+tol*(1+math.Abs(r.rhs)) {
				return false
			}
			if r.eq && maxInf == 0 && maxF < r.rhs-tol*(1+math.Abs(r.rhs)) {
				return false
			}
			for k, j := range r.idx {
				if !s.p.integer[j] {
					continue
				}
				a := r.val[k]
				if rest, ok := residual(minF, minInf, minTerm(a, lo[j], hi[j])); ok {
					if tightenLE(a, r.rhs-rest, j, lo, hi, tol) {
						changed = true
					}
				}
				if r.eq {
					if rest, ok := residual(maxF, maxInf, maxTerm(a, lo[j], hi[j])); ok {
						if tightenLE(-a, rest-r.rhs, j, lo, hi, tol) {
							changed = true
						}
					}
				}
				if lo[j] > hi[j] {
					return false
				}
			}
		}
		if !changed {
			return true
		}
	}
	return true
}

// tightenLE applies a*x_j <= bound to the domain of x_j.
func tightenLE(a, bound float64, j int, lo, hi []float64, tol float64) bool {
	v := bound / a
	if a > 0 {
		if nh := math.Floor(v + tol); nh < hi[j] {
			hi[j] = nh
			return true
		}
		return false
	}
	if nl := math.Ceil(v - tol); nl > lo[j] {
		lo[j] = nl
		return true
	}
	return false
}

func minTerm(a, lo, hi float64) float64 {
	if a > 0 {
		return a * lo
	}
	return a * hi
}

func maxTerm(a, lo, hi float64) float64 {
	if a > 0 {
		return a * hi
	}
	return a * lo
}

// activity returns the finite parts of the minimum and maximum row
// activity and how many terms are unbounded in each direction.
func activity(r srow, lo, hi []float64) (minF float64, minInf int, maxF float64, maxInf int) {
	for k, j := range r.idx {
		a := r.val[k]
		if t := minTerm(a, lo[j], hi[j]); math.IsInf(t, 0) {
			minInf++
		} else {
			minF += t
		}
		if t := maxTerm(a, lo[j], hi[j]); math.IsInf(t, 0) {
			maxInf++
		} else {
			maxF += t
		}
	}
	return minF, minInf, maxF, maxInf
}

// residual is the activity of a row with one term removed.
func residual(finite float64, infs int, term float64) (float64, bool) {
	if math.IsInf(term, 0) {
		return finite, infs == 1
	}
	return finite - term, infs == 0
}
