package csp

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/mpcsim/internal/grid"
	"github.com/san-kum/mpcsim/internal/opt"
)

// DefaultQueens is the board size when none is given.
const DefaultQueens = 8

// Queens is the N-queens model: x_{r,c} = 1 places a queen on row r,
// column c.
type Queens struct {
	N     int
	Model opt.Model
	X     *grid.Array[opt.Var]
}

// BuildQueens declares the n*n binaries and the row, column and diagonal
// families. Rows and columns hold exactly one queen (c0, c1); every
// diagonal of length two or more holds at most one (c2..c5).
func BuildQueens(env opt.Env, n int) (*Queens, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: n must be at least 1, got %d", ErrSize, n)
	}
	m, err := env.NewModel("nqueen")
	if err != nil {
		return nil, err
	}
	x, err := binaryFamily(m, func(idx []int) string {
		return fmt.Sprintf("x_{%d,%d}", idx[0], idx[1])
	}, n, n)
	if err != nil {
		return nil, err
	}
	q := &Queens{N: n, Model: m, X: x}

	for r := 0; r < n; r++ {
		lane, err := x.Lane(1, r, 0)
		if err != nil {
			return nil, err
		}
		if err := sumConstr(m, fmt.Sprintf("c0_%d", r), lane, opt.Equal, 1); err != nil {
			return nil, err
		}
	}
	for c := 0; c < n; c++ {
		lane, err := x.Lane(0, 0, c)
		if err != nil {
			return nil, err
		}
		if err := sumConstr(m, fmt.Sprintf("c1_%d", c), lane, opt.Equal, 1); err != nil {
			return nil, err
		}
	}

	// down-right diagonals starting in column 0, then in row 0
	for rr := 0; rr < n-1; rr++ {
		if err := q.diagonal(fmt.Sprintf("c2_%d", rr), n-rr, func(i int) []int { return []int{rr + i, i} }); err != nil {
			return nil, err
		}
	}
	for cc := 1; cc < n-1; cc++ {
		if err := q.diagonal(fmt.Sprintf("c3_%d", cc), n-cc, func(i int) []int { return []int{i, cc + i} }); err != nil {
			return nil, err
		}
	}
	// up-right diagonals starting in column 0, then in the last row
	for rr := 1; rr < n; rr++ {
		if err := q.diagonal(fmt.Sprintf("c4_%d", rr), rr+1, func(i int) []int { return []int{rr - i, i} }); err != nil {
			return nil, err
		}
	}
	for cc := 1; cc < n-1; cc++ {
		if err := q.diagonal(fmt.Sprintf("c5_%d", cc), n-cc, func(i int) []int { return []int{n - 1 - i, cc + i} }); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (q *Queens) diagonal(name string, length int, cell func(i int) []int) error {
	idxs := make([][]int, length)
	for i := range idxs {
		idxs[i] = cell(i)
	}
	vars, err := q.X.Pick(idxs...)
	if err != nil {
		return err
	}
	return sumConstr(q.Model, name, vars, opt.LessEqual, 1)
}

// NQueens builds and solves the n-queens model.
func NQueens(ctx context.Context, env opt.Env, n int) (*Queens, error) {
	q, err := BuildQueens(env, n)
	if err != nil {
		return nil, err
	}
	if err := q.Model.Optimize(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

// Board returns the solved 0/1 placement.
func (q *Queens) Board() (*grid.Array[float64], error) {
	return values(q.Model, q.X)
}

// Columns returns the queen's column for every row.
func (q *Queens) Columns() ([]int, error) {
	board, err := q.Board()
	if err != nil {
		return nil, err
	}
	cols := make([]int, q.N)
	for r := 0; r < q.N; r++ {
		cols[r] = -1
		for c := 0; c < q.N; c++ {
			if math.Round(board.At(r, c)) == 1 {
				cols[r] = c
			}
		}
	}
	return cols, nil
}

var (
	lightSquare = lipgloss.NewStyle().Background(lipgloss.Color("252")).Foreground(lipgloss.Color("0"))
	darkSquare  = lipgloss.NewStyle().Background(lipgloss.Color("240")).Foreground(lipgloss.Color("15"))
)

// Render draws the board with lipgloss, one queen per row.
func (q *Queens) Render() (string, error) {
	cols, err := q.Columns()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for r, qc := range cols {
		for c := 0; c < q.N; c++ {
			cell := "   "
			if c == qc {
				cell = " Q "
			}
			style := lightSquare
			if (r+c)%2 == 1 {
				style = darkSquare
			}
			b.WriteString(style.Render(cell))
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
