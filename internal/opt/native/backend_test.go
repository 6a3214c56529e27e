package native

import (
	"context"
	"math"
	"testing"

	"github.com/san-kum/mpcsim/internal/opt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-6

var inf = math.Inf(1)

func newModel(t *testing.T, opts ...Option) *opt.Problem {
	t.Helper()
	m, err := NewEnv(opts...).NewModel(t.Name())
	require.NoError(t, err)
	return m.(*opt.Problem)
}

func mustVar(t *testing.T, m opt.Model, name string, kind opt.VarKind, lb, ub float64) opt.Var {
	t.Helper()
	v, err := m.AddVar(name, kind, lb, ub)
	require.NoError(t, err)
	return v
}

func value(t *testing.T, m opt.Model, v opt.Var) float64 {
	t.Helper()
	x, err := m.Value(v)
	require.NoError(t, err)
	return x
}

func TestLinearProgram(t *testing.T) {
	m := newModel(t)
	x := mustVar(t, m, "x", opt.Continuous, 0, inf)
	y := mustVar(t, m, "y", opt.Continuous, 0, inf)
	require.NoError(t, m.AddConstr("c0", opt.LinExpr{}.Add(x, 1).Add(y, 2), opt.LessEqual, 4))
	require.NoError(t, m.AddConstr("c1", opt.LinExpr{}.Add(x, 3).Add(y, 1), opt.LessEqual, 6))
	require.NoError(t, m.SetObjective(opt.QuadExpr{}.AddLinear(opt.Sum(x, y).Scale(-1)), opt.Minimize))

	require.NoError(t, m.Optimize(context.Background()))
	require.Equal(t, opt.StatusOptimal, m.Status())
	assert.InDelta(t, 1.6, value(t, m, x), eps)
	assert.InDelta(t, 1.2, value(t, m, y), eps)

	obj, err := m.ObjectiveValue()
	require.NoError(t, err)
	assert.InDelta(t, -2.8, obj, eps)
}

func TestLinearProgramMaximize(t *testing.T) {
	m := newModel(t)
	x := mustVar(t, m, "x", opt.Continuous, 0, inf)
	y := mustVar(t, m, "y", opt.Continuous, 0, inf)
	require.NoError(t, m.AddConstr("c0", opt.LinExpr{}.Add(x, 1).Add(y, 2), opt.LessEqual, 4))
	require.NoError(t, m.AddConstr("c1", opt.LinExpr{}.Add(x, 3).Add(y, 1), opt.LessEqual, 6))
	require.NoError(t, m.SetObjective(opt.QuadExpr{}.AddLinear(opt.Sum(x, y)), opt.Maximize))

	require.NoError(t, m.Optimize(context.Background()))
	require.Equal(t, opt.StatusOptimal, m.Status())

	obj, err := m.ObjectiveValue()
	require.NoError(t, err)
	assert.InDelta(t, 2.8, obj, eps)
}

func TestLinearInfeasibleAndUnbounded(t *testing.T) {
	t.Run("infeasible", func(t *testing.T) {
		m := newModel(t)
		x := mustVar(t, m, "x", opt.Continuous, 0, inf)
		require.NoError(t, m.AddConstr("lo", opt.Sum(x), opt.GreaterEqual, 2))
		require.NoError(t, m.AddConstr("hi", opt.Sum(x), opt.LessEqual, 1))
		require.NoError(t, m.Optimize(context.Background()))
		assert.Equal(t, opt.StatusInfeasible, m.Status())
	})

	t.Run("unbounded", func(t *testing.T) {
		m := newModel(t)
		x := mustVar(t, m, "x", opt.Continuous, 0, inf)
		require.NoError(t, m.SetObjective(opt.QuadExpr{}.AddLinear(opt.LinExpr{}.Add(x, -1)), opt.Minimize))
		require.NoError(t, m.Optimize(context.Background()))
		assert.Equal(t, opt.StatusUnbounded, m.Status())
	})

	t.Run("free column", func(t *testing.T) {
		m := newModel(t)
		x := mustVar(t, m, "x", opt.Continuous, math.Inf(-1), inf)
		require.NoError(t, m.SetObjective(opt.QuadExpr{}.AddLinear(opt.Sum(x)), opt.Minimize))
		require.NoError(t, m.Optimize(context.Background()))
		assert.Equal(t, opt.StatusUnbounded, m.Status())
	})
}

func TestQuadraticWithInequality(t *testing.T) {
	m := newModel(t)
	x := mustVar(t, m, "x", opt.Continuous, math.Inf(-1), inf)
	y := mustVar(t, m, "y", opt.Continuous, math.Inf(-1), inf)
	require.NoError(t, m.AddConstr("cap", opt.Sum(x, y), opt.LessEqual, 1))

	// (x-1)^2 + (y-2)^2
	obj := opt.QuadExpr{}.AddSquare(x, 1).AddSquare(y, 1).
		AddLinear(opt.LinExpr{}.Add(x, -2).Add(y, -4).AddConst(5))
	require.NoError(t, m.SetObjective(obj, opt.Minimize))

	require.NoError(t, m.Optimize(context.Background()))
	require.Equal(t, opt.StatusOptimal, m.Status())
	assert.InDelta(t, 0, value(t, m, x), eps)
	assert.InDelta(t, 1, value(t, m, y), eps)

	v, err := m.ObjectiveValue()
	require.NoError(t, err)
	assert.InDelta(t, 2, v, eps)
}

func TestQuadraticBounds(t *testing.T) {
	m := newModel(t)
	x := mustVar(t, m, "x", opt.Continuous, -1, 1)
	require.NoError(t, m.SetObjective(opt.QuadExpr{}.AddSquare(x, 1).AddLinear(opt.LinExpr{}.Add(x, -4)), opt.Minimize))

	require.NoError(t, m.Optimize(context.Background()))
	require.Equal(t, opt.StatusOptimal, m.Status())
	assert.InDelta(t, 1, value(t, m, x), eps)
	assert.LessOrEqual(t, value(t, m, x), 1.0)
}

func TestQuadraticActiveBoundsInsideBox(t *testing.T) {
	m := newModel(t)
	x := mustVar(t, m, "x", opt.Continuous, -1, 1)
	y := mustVar(t, m, "y", opt.Continuous, -1, 1)
	z := mustVar(t, m, "z", opt.Continuous, math.Inf(-1), inf)
	require.NoError(t, m.AddConstr("link", opt.LinExpr{}.Add(z, 1).Add(x, -0.9).Add(y, -1), opt.Equal, 0))
	obj := opt.QuadExpr{}.AddSquare(z, 100).AddSquare(x, 0.42).AddSquare(y, 0.42).
		AddLinear(opt.LinExpr{}.Add(x, -30).Add(y, 30))
	require.NoError(t, m.SetObjective(obj, opt.Minimize))

	require.NoError(t, m.Optimize(context.Background()))
	require.Equal(t, opt.StatusOptimal, m.Status())
	for _, v := range []opt.Var{x, y} {
		got := value(t, m, v)
		assert.GreaterOrEqual(t, got, -1.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestQuadraticFreeVariableWithoutCurvature(t *testing.T) {
	m := newModel(t)
	x := mustVar(t, m, "x", opt.Continuous, math.Inf(-1), inf)
	y := mustVar(t, m, "y", opt.Continuous, math.Inf(-1), inf)
	z := mustVar(t, m, "z", opt.Continuous, math.Inf(-1), inf)
	require.NoError(t, m.AddConstr("link", opt.LinExpr{}.Add(y, 1).Add(x, -1), opt.Equal, 0))

	// (x-1)^2 + y^2; z has no curvature and appears in no row
	obj := opt.QuadExpr{}.AddSquare(x, 1).AddSquare(y, 1).AddSquare(z, 0).
		AddLinear(opt.LinExpr{}.Add(x, -2).AddConst(1))
	require.NoError(t, m.SetObjective(obj, opt.Minimize))

	require.NoError(t, m.Optimize(context.Background()))
	require.Equal(t, opt.StatusOptimal, m.Status())
	assert.InDelta(t, 0.5, value(t, m, x), eps)
	assert.InDelta(t, 0.5, value(t, m, y), eps)
	assert.InDelta(t, 0, value(t, m, z), eps)
}

func TestQuadraticEquality(t *testing.T) {
	m := newModel(t)
	x := mustVar(t, m, "x", opt.Continuous, math.Inf(-1), inf)
	y := mustVar(t, m, "y", opt.Continuous, math.Inf(-1), inf)
	require.NoError(t, m.AddConstr("sum", opt.Sum(x, y), opt.Equal, 2))
	require.NoError(t, m.SetObjective(opt.QuadExpr{}.AddSquare(x, 1).AddSquare(y, 1), opt.Minimize))

	require.NoError(t, m.Optimize(context.Background()))
	require.Equal(t, opt.StatusOptimal, m.Status())
	assert.InDelta(t, 1, value(t, m, x), eps)
	assert.InDelta(t, 1, value(t, m, y), eps)
}

func TestQuadraticInfeasible(t *testing.T) {
	m := newModel(t)
	x := mustVar(t, m, "x", opt.Continuous, 0, 1)
	y := mustVar(t, m, "y", opt.Continuous, 0, 1)
	require.NoError(t, m.AddConstr("sum", opt.Sum(x, y), opt.Equal, 3))
	require.NoError(t, m.SetObjective(opt.QuadExpr{}.AddSquare(x, 1), opt.Minimize))

	require.NoError(t, m.Optimize(context.Background()))
	assert.Equal(t, opt.StatusInfeasible, m.Status())
}

func TestBinaryKnapsack(t *testing.T) {
	m := newModel(t)
	a := mustVar(t, m, "a", opt.Binary, 0, 1)
	b := mustVar(t, m, "b", opt.Binary, 0, 1)
	c := mustVar(t, m, "c", opt.Binary, 0, 1)
	require.NoError(t, m.AddConstr("weight", opt.LinExpr{}.Add(a, 2).Add(b, 3).Add(c, 1), opt.LessEqual, 5))
	require.NoError(t, m.SetObjective(opt.QuadExpr{}.AddLinear(opt.LinExpr{}.Add(a, 5).Add(b, 4).Add(c, 3)), opt.Maximize))

	require.NoError(t, m.Optimize(context.Background()))
	require.Equal(t, opt.StatusOptimal, m.Status())
	assert.Equal(t, 1.0, value(t, m, a))
	assert.Equal(t, 1.0, value(t, m, b))
	assert.Equal(t, 0.0, value(t, m, c))

	obj, err := m.ObjectiveValue()
	require.NoError(t, err)
	assert.InDelta(t, 9, obj, eps)
}

func TestGeneralInteger(t *testing.T) {
	m := newModel(t)
	x := mustVar(t, m, "x", opt.Integer, 0, 10)
	require.NoError(t, m.AddConstr("cap", opt.LinExpr{}.Add(x, 2), opt.LessEqual, 7))
	require.NoError(t, m.SetObjective(opt.QuadExpr{}.AddLinear(opt.Sum(x)), opt.Maximize))

	require.NoError(t, m.Optimize(context.Background()))
	require.Equal(t, opt.StatusOptimal, m.Status())
	assert.Equal(t, 3.0, value(t, m, x))
}

func TestMixedInteger(t *testing.T) {
	m := newModel(t)
	x := mustVar(t, m, "x", opt.Continuous, 0, 10)
	z := mustVar(t, m, "z", opt.Binary, 0, 1)
	require.NoError(t, m.AddConstr("switch", opt.LinExpr{}.Add(x, 1).Add(z, -10), opt.LessEqual, 1))

	// (x-3)^2 + 2z
	obj := opt.QuadExpr{}.AddSquare(x, 1).AddLinear(opt.LinExpr{}.Add(x, -6).Add(z, 2).AddConst(9))
	require.NoError(t, m.SetObjective(obj, opt.Minimize))

	require.NoError(t, m.Optimize(context.Background()))
	require.Equal(t, opt.StatusOptimal, m.Status())
	assert.InDelta(t, 3, value(t, m, x), eps)
	assert.Equal(t, 1.0, value(t, m, z))
}

func TestBinaryInfeasible(t *testing.T) {
	m := newModel(t)
	a := mustVar(t, m, "a", opt.Binary, 0, 1)
	b := mustVar(t, m, "b", opt.Binary, 0, 1)
	require.NoError(t, m.AddConstr("both", opt.Sum(a, b), opt.Equal, 2))
	require.NoError(t, m.AddConstr("atmost", opt.Sum(a, b), opt.LessEqual, 1))

	require.NoError(t, m.Optimize(context.Background()))
	assert.Equal(t, opt.StatusInfeasible, m.Status())
}

func TestNodeLimit(t *testing.T) {
	m := newModel(t, WithNodeLimit(1))
	a := mustVar(t, m, "a", opt.Binary, 0, 1)
	b := mustVar(t, m, "b", opt.Binary, 0, 1)
	c := mustVar(t, m, "c", opt.Binary, 0, 1)
	require.NoError(t, m.AddConstr("pair", opt.Sum(a, b, c), opt.Equal, 2))

	require.NoError(t, m.Optimize(context.Background()))
	assert.Equal(t, opt.StatusNodeLimit, m.Status())
}

func TestUnboundedInteger(t *testing.T) {
	m := newModel(t)
	mustVar(t, m, "n", opt.Integer, math.Inf(-1), inf)

	err := m.Optimize(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCancelledContext(t *testing.T) {
	m := newModel(t)
	mustVar(t, m, "x", opt.Continuous, 0, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Optimize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, opt.StatusNotSolved, m.Status())
}

func TestEmptyModel(t *testing.T) {
	m := newModel(t)
	require.NoError(t, m.Optimize(context.Background()))
	assert.Equal(t, opt.StatusOptimal, m.Status())
}
