package opt

import (
	"slices"
	"sort"
)

// Var is a handle to a decision variable owned by a [Model]. The zero Var is
// invalid.
type Var struct {
	id int
}

// Index returns the zero-based position of v in its model.
func (v Var) Index() int { return v.id - 1 }

// Valid reports whether v was issued by a model.
func (v Var) Valid() bool { return v.id > 0 }

func varAt(i int) Var { return Var{id: i + 1} }

// Term is a coefficient applied to a single variable.
type Term struct {
	Var  Var
	Coef float64
}

// LinExpr is an affine expression: sum of Terms plus Constant. Methods
// return new expressions and never alias the receiver's storage.
type LinExpr struct {
	Terms    []Term
	Constant float64
}

// Sum returns the expression v0 + v1 + ... with unit coefficients.
func Sum(vars ...Var) LinExpr {
	terms := make([]Term, len(vars))
	for i, v := range vars {
		terms[i] = Term{Var: v, Coef: 1}
	}
	return LinExpr{Terms: terms}
}

// Add returns e + coef*v.
func (e LinExpr) Add(v Var, coef float64) LinExpr {
	return LinExpr{
		Terms:    append(slices.Clip(e.Terms), Term{Var: v, Coef: coef}),
		Constant: e.Constant,
	}
}

// AddConst returns e + c.
func (e LinExpr) AddConst(c float64) LinExpr {
	return LinExpr{Terms: slices.Clip(e.Terms), Constant: e.Constant + c}
}

// Plus returns e + o.
func (e LinExpr) Plus(o LinExpr) LinExpr {
	terms := make([]Term, 0, len(e.Terms)+len(o.Terms))
	terms = append(terms, e.Terms...)
	terms = append(terms, o.Terms...)
	return LinExpr{Terms: terms, Constant: e.Constant + o.Constant}
}

// Scale returns k*e.
func (e LinExpr) Scale(k float64) LinExpr {
	terms := make([]Term, len(e.Terms))
	for i, t := range e.Terms {
		terms[i] = Term{Var: t.Var, Coef: k * t.Coef}
	}
	return LinExpr{Terms: terms, Constant: k * e.Constant}
}

// Canonical merges repeated variables, drops zero coefficients and orders
// terms by variable index.
func (e LinExpr) Canonical() LinExpr {
	acc := make(map[Var]float64, len(e.Terms))
	for _, t := range e.Terms {
		acc[t.Var] += t.Coef
	}
	terms := make([]Term, 0, len(acc))
	for v, c := range acc {
		if c != 0 {
			terms = append(terms, Term{Var: v, Coef: c})
		}
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Var.id < terms[j].Var.id })
	return LinExpr{Terms: terms, Constant: e.Constant}
}

// Eval evaluates e given a value lookup indexed by variable position.
func (e LinExpr) Eval(values []float64) float64 {
	s := e.Constant
	for _, t := range e.Terms {
		s += t.Coef * values[t.Var.Index()]
	}
	return s
}

// QuadTerm is Coef*I*J. A square has I == J.
type QuadTerm struct {
	I, J Var
	Coef float64
}

// QuadExpr is a quadratic expression with an affine part.
type QuadExpr struct {
	Quad []QuadTerm
	Lin  LinExpr
}

// AddSquare returns q + coef*v^2.
func (q QuadExpr) AddSquare(v Var, coef float64) QuadExpr {
	return q.AddProduct(v, v, coef)
}

// AddProduct returns q + coef*a*b.
func (q QuadExpr) AddProduct(a, b Var, coef float64) QuadExpr {
	return QuadExpr{
		Quad: append(slices.Clip(q.Quad), QuadTerm{I: a, J: b, Coef: coef}),
		Lin:  q.Lin,
	}
}

// AddLinear returns q + e.
func (q QuadExpr) AddLinear(e LinExpr) QuadExpr {
	return QuadExpr{Quad: slices.Clip(q.Quad), Lin: q.Lin.Plus(e)}
}

// IsLinear reports whether q has no quadratic terms with a nonzero
// coefficient.
func (q QuadExpr) IsLinear() bool {
	for _, t := range q.Quad {
		if t.Coef != 0 {
			return false
		}
	}
	return true
}

// IsConstant reports whether q involves no variables.
func (q QuadExpr) IsConstant() bool {
	return q.IsLinear() && len(q.Lin.Canonical().Terms) == 0
}

// Eval evaluates q given a value lookup indexed by variable position.
func (q QuadExpr) Eval(values []float64) float64 {
	s := q.Lin.Eval(values)
	for _, t := range q.Quad {
		s += t.Coef * values[t.I.Index()] * values[t.J.Index()]
	}
	return s
}
