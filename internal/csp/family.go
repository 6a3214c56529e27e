// Package csp builds N-queens and Sudoku as 0/1 models over opt.Model,
// using the same indexed-variable and constraint assembly as the MPC
// formulation.
package csp

import (
	"errors"
	"fmt"
	"io"

	"github.com/san-kum/mpcsim/internal/grid"
	"github.com/san-kum/mpcsim/internal/opt"
)

var (
	ErrSize     = errors.New("csp: invalid size")
	ErrUnsolved = errors.New("csp: no feasible assignment")
)

// binaryFamily declares one binary variable per index of shape, named by
// name.
func binaryFamily(m opt.Model, name func(idx []int) string, shape ...int) (*grid.Array[opt.Var], error) {
	return grid.Build(func(idx []int) (opt.Var, error) {
		return m.AddVar(name(idx), opt.Binary, 0, 1)
	}, shape...)
}

// sumConstr adds sum(vars) (sense) rhs under name.
func sumConstr(m opt.Model, name string, vars []opt.Var, sense opt.Sense, rhs float64) error {
	if err := m.AddConstr(name, opt.Sum(vars...), sense, rhs); err != nil {
		return fmt.Errorf("constraint %s: %w", name, err)
	}
	return nil
}

// values reads the solved values of every variable in a.
func values(m opt.Model, a *grid.Array[opt.Var]) (*grid.Array[float64], error) {
	if !m.Status().IsOptimal() {
		return nil, fmt.Errorf("%w: %s", ErrUnsolved, m.Status())
	}
	return grid.Map(a, m.Value)
}

// WriteArtifacts dumps m as an LP file to lp and, when m holds a solution,
// the solution to sol. Either writer may be nil.
func WriteArtifacts(m opt.Model, lp, sol io.Writer) error {
	ex, ok := m.(opt.Exporter)
	if !ok {
		return fmt.Errorf("csp: model %s cannot be exported", m.Name())
	}
	if lp != nil {
		if err := ex.WriteLP(lp); err != nil {
			return err
		}
	}
	if sol != nil && m.Status().IsOptimal() {
		if err := ex.WriteSolution(sol); err != nil {
			return err
		}
	}
	return nil
}
